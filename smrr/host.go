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

package smrr

import (
	"fmt"

	"github.com/canonical/cpuid"
	"github.com/snapcore/smrrcheck/internal/hostenv"
	"github.com/snapcore/smrrcheck/registry"
)

// RunHostCheck performs the check on the host described by env. If reg is nil,
// the default registry for the host's CPU vendor is used. Diagnostics are
// forwarded to sink if it is not nil.
//
// The check refuses to run in a virtual machine unless the PermitVirtualMachine
// flag is supplied. Physical memory is only opened if the InvasiveMemoryProbe
// flag is supplied, and is closed before returning.
func RunHostCheck(env hostenv.HostEnvironment, reg *registry.Registry, flags CheckFlags, sink DiagnosticSink) *CheckResult {
	rep := newReporter(sink)

	virtMode, err := env.DetectVirtMode(hostenv.DetectVirtModeVM)
	if err != nil {
		return rep.abort(fmt.Errorf("cannot detect virtualization mode: %w", err))
	}
	if virtMode != hostenv.VirtModeNone {
		if flags&PermitVirtualMachine == 0 {
			return rep.abort(ErrVirtualMachineDetected)
		}
		rep.info("Running in a virtual machine (%s): register values are provided by the hypervisor", virtMode)
	}

	amd64Env, err := env.AMD64()
	if err != nil {
		return rep.abort(&AccessFailureError{fmt.Errorf("cannot obtain AMD64 environment: %w", err)})
	}
	if !amd64Env.HasCPUIDFeature(cpuid.MSR) {
		return rep.abort(&AccessFailureError{hostenv.ErrNoMSRSupport})
	}

	if reg == nil {
		reg, err = registry.ForCPUVendor(amd64Env.CPUVendorIdentificator())
		if err != nil {
			return rep.abort(&ConfigurationError{fmt.Errorf("cannot load registry: %w", err)})
		}
	}

	opts := &CheckOptions{Flags: flags, Sink: sink}
	if flags&InvasiveMemoryProbe > 0 {
		mem, err := env.PhysicalMemory()
		if err != nil {
			return rep.abort(&AccessFailureError{fmt.Errorf("cannot open physical memory: %w", err)})
		}
		defer mem.Close()
		opts.Memory = mem
	}

	return NewCheckContext(NewMSRAccess(reg, amd64Env), opts).run(rep)
}
