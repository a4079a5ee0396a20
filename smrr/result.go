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
	"encoding/json"
	"fmt"
)

// Status is the terminal verdict of a check.
type Status int

const (
	// StatusUnknown is the zero value and indicates that no check has
	// completed. It is never returned from a check.
	StatusUnknown Status = iota

	// StatusPass indicates that SMRR is supported, correctly programmed,
	// enabled and identical on every logical CPU.
	StatusPass

	// StatusFail indicates that one or more rules were violated.
	StatusFail

	// StatusSkipped indicates that the CPU does not implement SMRR.
	StatusSkipped

	// StatusError indicates that the check could not be completed, either
	// because of missing register definitions or because registers could
	// not be read.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusPass:
		return "PASS"
	case StatusFail:
		return "FAIL"
	case StatusSkipped:
		return "SKIPPED"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalJSON implements [json.Marshaler].
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Severity is the severity of a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota // an informational observation
	SeverityGood                 // a rule passed
	SeverityBad                  // a rule was violated or the check failed
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityGood:
		return "good"
	case SeverityBad:
		return "bad"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// MarshalJSON implements [json.Marshaler].
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Diagnostic is a human-readable observation made during a check.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// DiagnosticSink receives diagnostics as they are emitted.
type DiagnosticSink interface {
	Emit(d Diagnostic)
}

// DiagnosticSinkFunc is an adapter to allow the use of an ordinary function
// as a DiagnosticSink.
type DiagnosticSinkFunc func(d Diagnostic)

// Emit implements [DiagnosticSink.Emit].
func (fn DiagnosticSinkFunc) Emit(d Diagnostic) {
	fn(d)
}

// Rule identifies an SMRR configuration rule.
type Rule string

const (
	// RuleMemoryType requires the SMRR_PHYSBASE memory type to be a
	// recognized memory type.
	RuleMemoryType Rule = "memory-type"

	// RuleBaseProgrammed requires the SMRR_PHYSBASE base to be non-zero.
	RuleBaseProgrammed Rule = "base-programmed"

	// RuleMaskValid requires the SMRR_PHYSMASK valid bit to be set.
	RuleMaskValid Rule = "mask-valid"

	// RuleMaskProgrammed requires the SMRR_PHYSMASK mask to be non-zero.
	RuleMaskProgrammed Rule = "mask-programmed"

	// RuleCPUConsistency requires every logical CPU to have the same raw
	// SMRR_PHYSBASE and SMRR_PHYSMASK values as the primary CPU.
	RuleCPUConsistency Rule = "cpu-consistency"

	// RuleMemoryProbe requires SMRAM to be unreadable and unmodifiable from
	// outside of SMM. This is only checked with the InvasiveMemoryProbe flag.
	RuleMemoryProbe Rule = "memory-probe"
)

// Violation describes a rule that was violated on a logical CPU.
type Violation struct {
	Rule    Rule   `json:"rule"`
	CPU     int    `json:"cpu"`
	Message string `json:"message"`
}

func (v *Violation) Error() string {
	return v.Message
}

// CPUSnapshot contains the SMRR registers captured from a single logical CPU.
type CPUSnapshot struct {
	Base RegisterSnapshot `json:"base"`
	Mask RegisterSnapshot `json:"mask"`
}

// State is the SMRR configuration observed during a check. Fields are only
// populated for the stages that were reached.
type State struct {
	Supported bool             `json:"supported"`
	Base      RegisterSnapshot `json:"base"`
	Mask      RegisterSnapshot `json:"mask"`
	PhysBase  uint64           `json:"phys-base"`
	MemType   uint8            `json:"mem-type"`
	PhysMask  uint64           `json:"phys-mask"`
	MaskValid bool             `json:"mask-valid"`
	PerCPU    []CPUSnapshot    `json:"per-cpu,omitempty"`
}

// CheckResult is the outcome of a check. The diagnostics are in the order that
// they were emitted.
type CheckResult struct {
	Status      Status
	Diagnostics []Diagnostic
	Violations  []*Violation
	State       *State // nil if the check did not reach the capability check

	// Err is the error associated with any status other than StatusPass.
	// For StatusFail, this is a *SecurityViolationError. For StatusSkipped,
	// this is a *UnsupportedFeatureError.
	Err error
}

type checkResultJSON struct {
	Status      Status       `json:"status"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	Violations  []*Violation `json:"violations,omitempty"`
	State       *State       `json:"state,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// MarshalJSON implements [json.Marshaler].
func (r *CheckResult) MarshalJSON() ([]byte, error) {
	j := checkResultJSON{
		Status:      r.Status,
		Diagnostics: r.Diagnostics,
		Violations:  r.Violations,
		State:       r.State,
	}
	if j.Diagnostics == nil {
		j.Diagnostics = []Diagnostic{}
	}
	if r.Err != nil {
		j.Error = r.Err.Error()
	}
	return json.Marshal(j)
}
