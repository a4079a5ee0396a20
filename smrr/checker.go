// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2025 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package smrr verifies that the System Management Range Registers (SMRR) on
// x86 platforms are supported, programmed, enabled and identical on every
// logical CPU, so that SMRAM is protected against cache poisoning attacks.
package smrr

import (
	"fmt"
	"io"
	"strings"

	"github.com/snapcore/smrrcheck/registry"
)

// CheckFlags customizes the behaviour of a check.
type CheckFlags int

const (
	// PermitVirtualMachine permits RunHostCheck to run inside of a virtual
	// machine, where MSR values are provided by the hypervisor.
	PermitVirtualMachine CheckFlags = 1 << iota

	// InvasiveMemoryProbe enables an additional stage that attempts to
	// read and modify memory at the SMRR base address in order to confirm
	// that the protection is enforced by the hardware. This writes to
	// physical memory and is never enabled by default.
	InvasiveMemoryProbe
)

// PhysicalMemory provides access to physical memory, using the physical
// address as the offset.
type PhysicalMemory interface {
	io.ReaderAt
	io.WriterAt
}

// CheckOptions contains optional parameters for a CheckContext.
type CheckOptions struct {
	Flags CheckFlags

	// Sink receives every diagnostic as it is emitted, in addition to
	// the diagnostics being recorded in the result.
	Sink DiagnosticSink

	// Memory is required for the InvasiveMemoryProbe flag.
	Memory PhysicalMemory
}

// CheckContext verifies the SMRR configuration using the registers provided by a
// RegisterAccess. A CheckContext holds no state between calls to Run.
type CheckContext struct {
	access RegisterAccess
	flags  CheckFlags
	sink   DiagnosticSink
	memory PhysicalMemory
}

// NewCheckContext returns a new CheckContext that reads registers from the supplied
// access. The opts argument may be nil.
func NewCheckContext(access RegisterAccess, opts *CheckOptions) *CheckContext {
	if opts == nil {
		opts = new(CheckOptions)
	}
	return &CheckContext{
		access: access,
		flags:  opts.Flags,
		sink:   opts.Sink,
		memory: opts.Memory,
	}
}

// Run performs the check and returns the result. It returns StatusError if a
// required register is not defined or cannot be read, StatusSkipped if the CPU
// does not implement SMRR, StatusFail if any rule is violated, or else
// StatusPass.
func (c *CheckContext) Run() *CheckResult {
	return c.run(newReporter(c.sink))
}

func (c *CheckContext) run(rep *reporter) *CheckResult {
	r := &checkRun{
		reporter: rep,
		checker:  c,
		access:   c.access,
	}
	return r.run()
}

type reporter struct {
	sink   DiagnosticSink
	result *CheckResult
}

func newReporter(sink DiagnosticSink) *reporter {
	return &reporter{sink: sink, result: new(CheckResult)}
}

func (r *reporter) emit(severity Severity, format string, args ...interface{}) {
	d := Diagnostic{Severity: severity, Message: fmt.Sprintf(format, args...)}
	r.result.Diagnostics = append(r.result.Diagnostics, d)
	if r.sink != nil {
		r.sink.Emit(d)
	}
}

func (r *reporter) info(format string, args ...interface{}) {
	r.emit(SeverityInfo, format, args...)
}

func (r *reporter) good(format string, args ...interface{}) {
	r.emit(SeverityGood, format, args...)
}

func (r *reporter) bad(format string, args ...interface{}) {
	r.emit(SeverityBad, format, args...)
}

func (r *reporter) finish(status Status, err error) *CheckResult {
	r.result.Status = status
	r.result.Err = err
	return r.result
}

func (r *reporter) abort(err error) *CheckResult {
	r.bad("%v", err)
	return r.finish(StatusError, err)
}

// checkRun contains the state for a single invocation of CheckContext.Run.
type checkRun struct {
	*reporter
	checker *CheckContext
	access  RegisterAccess
	state   *State
}

func (r *checkRun) run() *CheckResult {
	if err := r.checkRegistersDefined(); err != nil {
		return r.abort(err)
	}

	supported, err := r.checkSupported()
	if err != nil {
		return r.abort(err)
	}
	if !supported {
		r.info("%v", ErrSMRRNotSupported)
		return r.finish(StatusSkipped, &UnsupportedFeatureError{ErrSMRRNotSupported})
	}

	for _, stage := range []func() error{
		r.checkBase,
		r.checkMask,
		r.checkCPUConsistency,
	} {
		if err := stage(); err != nil {
			return r.abort(err)
		}
	}

	if r.checker.flags&InvasiveMemoryProbe > 0 {
		if err := r.checkMemoryProbe(); err != nil {
			return r.abort(err)
		}
	}

	if len(r.result.Violations) > 0 {
		r.bad("SMRR protection against cache attack is not configured properly")
		return r.finish(StatusFail, &SecurityViolationError{Violations: r.result.Violations})
	}

	r.good("SMRR protection against cache attack is properly configured")
	return r.finish(StatusPass, nil)
}

func (r *checkRun) okSoFar() bool {
	return len(r.result.Violations) == 0
}

func (r *checkRun) violate(rule Rule, cpu int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.result.Violations = append(r.result.Violations, &Violation{Rule: rule, CPU: cpu, Message: msg})
	r.bad("%s", msg)
}

func (r *checkRun) readRegister(name string, cpu int) (RegisterSnapshot, error) {
	snapshot, err := r.access.ReadRegister(name, cpu)
	if err != nil {
		return RegisterSnapshot{}, &AccessFailureError{err}
	}
	return snapshot, nil
}

func (r *checkRun) getField(snapshot RegisterSnapshot, field string) (uint64, error) {
	val, err := r.access.GetField(snapshot, field, false)
	if err != nil {
		return 0, &ConfigurationError{err}
	}
	return val, nil
}

// checkRegistersDefined verifies that all of the registers required by the
// check are defined, before any register is read.
func (r *checkRun) checkRegistersDefined() error {
	var missing []string
	for _, name := range []string{
		registry.RegisterMTRRCAP,
		registry.RegisterSMRRPhysBase,
		registry.RegisterSMRRPhysMask,
	} {
		if !r.access.IsRegisterDefined(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ConfigurationError{fmt.Errorf("cannot find definitions of required registers: %s", strings.Join(missing, ", "))}
	}
	return nil
}

// checkSupported determines whether the CPU advertises the SMRR capability
// in MTRRCAP.
func (r *checkRun) checkSupported() (bool, error) {
	r.state = new(State)
	r.result.State = r.state

	mtrrcap, err := r.readRegister(registry.RegisterMTRRCAP, PrimaryCPU)
	if err != nil {
		return false, err
	}
	r.info("%s = 0x%016X", registry.RegisterMTRRCAP, mtrrcap.Value)

	smrr, err := r.getField(mtrrcap, "SMRR")
	if err != nil {
		return false, err
	}
	if smrr != 1 {
		return false, nil
	}

	r.state.Supported = true
	r.good("OK. SMRR range protection is supported")
	return true, nil
}

// checkBase verifies that SMRR_PHYSBASE on the primary CPU has a valid memory
// type and a programmed base.
func (r *checkRun) checkBase() error {
	r.info("Checking SMRR range base programming..")

	base, err := r.readRegister(registry.RegisterSMRRPhysBase, PrimaryCPU)
	if err != nil {
		return err
	}
	r.state.Base = base
	r.info("%s = 0x%016X", registry.RegisterSMRRPhysBase, base.Value)

	physBase, err := r.getField(base, "PhysBase")
	if err != nil {
		return err
	}
	memType, err := r.getField(base, "Type")
	if err != nil {
		return err
	}
	r.state.PhysBase = physBase
	r.state.MemType = uint8(memType)

	r.info("SMRR range base: 0x%016X", physBase)

	if name, ok := r.access.MemoryTypeName(memType); ok {
		r.info("SMRR range memory type is %s", name)
	} else {
		r.violate(RuleMemoryType, PrimaryCPU, "SMRR range memory type 0x%X is invalid", memType)
	}

	if physBase == 0 {
		r.violate(RuleBaseProgrammed, PrimaryCPU, "SMRR range base is not programmed")
	}

	if r.okSoFar() {
		r.good("OK so far. SMRR range base is programmed")
	}
	return nil
}

// checkMask verifies that SMRR_PHYSMASK on the primary CPU has a programmed
// mask and that the range is enabled.
func (r *checkRun) checkMask() error {
	r.info("Checking SMRR range mask programming..")

	mask, err := r.readRegister(registry.RegisterSMRRPhysMask, PrimaryCPU)
	if err != nil {
		return err
	}
	r.state.Mask = mask
	r.info("%s = 0x%016X", registry.RegisterSMRRPhysMask, mask.Value)

	physMask, err := r.getField(mask, "PhysMask")
	if err != nil {
		return err
	}
	valid, err := r.getField(mask, "Valid")
	if err != nil {
		return err
	}
	r.state.PhysMask = physMask
	r.state.MaskValid = valid != 0

	r.info("SMRR range mask: 0x%016X", physMask)

	if !r.state.MaskValid {
		r.violate(RuleMaskValid, PrimaryCPU, "SMRR range is not enabled: the valid bit is clear")
	}
	if physMask == 0 {
		r.violate(RuleMaskProgrammed, PrimaryCPU, "SMRR range is not enabled: the range mask is not programmed")
	}

	if r.okSoFar() {
		r.good("OK so far. SMRR range is enabled")
	}
	return nil
}

// checkCPUConsistency verifies that the raw SMRR_PHYSBASE and SMRR_PHYSMASK
// values are the same on every logical CPU as on the primary CPU. The scan
// stops at the first CPU that differs.
func (r *checkRun) checkCPUConsistency() error {
	r.info("Verifying that SMRR range base & mask are the same on all logical CPUs..")

	n, err := r.access.LogicalCPUCount()
	switch {
	case err != nil:
		return &AccessFailureError{fmt.Errorf("cannot determine the number of logical CPUs: %w", err)}
	case n == 0:
		return &AccessFailureError{ErrNoLogicalCPUs}
	}

	for cpu := 0; cpu < n; cpu++ {
		base, err := r.readRegister(registry.RegisterSMRRPhysBase, cpu)
		if err != nil {
			return err
		}
		mask, err := r.readRegister(registry.RegisterSMRRPhysMask, cpu)
		if err != nil {
			return err
		}
		r.state.PerCPU = append(r.state.PerCPU, CPUSnapshot{Base: base, Mask: mask})
		r.info("[CPU%d] %s = %016X, %s = %016X", cpu, registry.RegisterSMRRPhysBase, base.Value, registry.RegisterSMRRPhysMask, mask.Value)

		if base.Value != r.state.Base.Value || mask.Value != r.state.Mask.Value {
			r.violate(RuleCPUConsistency, cpu, "SMRR range base/mask on CPU%d do not match the primary CPU", cpu)
			break
		}
	}

	if r.okSoFar() {
		r.good("OK so far. SMRR range base/mask match on all logical CPUs")
	}
	return nil
}
