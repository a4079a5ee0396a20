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
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// makeIndentedListItem turns the supplied string into a list item by prepending
// the supplied marker string to it. In a multi-line string, subsequent lines are
// aligned with the start of the first line after the marker.
func makeIndentedListItem(indentation int, marker, str string) string {
	lines := strings.Split(strings.TrimSuffix(str, "\n"), "\n")

	w := new(bytes.Buffer)
	fmt.Fprintf(w, "%*s%s %s", indentation, "", marker, lines[0])
	for _, line := range lines[1:] {
		fmt.Fprintf(w, "\n%*s%s", indentation+2, "", line)
	}
	io.WriteString(w, "\n")
	return w.String()
}

// CompoundError is an interface for accessing wrapped errors from an error type that
// wraps more than one error.
type CompoundError interface {
	Unwrap() []error
}

var (
	// ErrSMRRNotSupported is returned wrapped in UnsupportedFeatureError if the
	// CPU does not advertise the SMRR capability.
	ErrSMRRNotSupported = errors.New("CPU does not support SMRR range protection of SMRAM")

	// ErrNoLogicalCPUs is returned wrapped in AccessFailureError if no logical
	// CPUs are reported.
	ErrNoLogicalCPUs = errors.New("no logical CPUs were found")

	// ErrNoMemoryAccess is returned wrapped in ConfigurationError if the
	// InvasiveMemoryProbe flag is supplied without a way to access physical
	// memory.
	ErrNoMemoryAccess = errors.New("no physical memory access is available for the memory probe")

	// ErrVirtualMachineDetected is returned from RunHostCheck when running
	// in a virtual machine and the PermitVirtualMachine flag was not supplied.
	ErrVirtualMachineDetected = errors.New("virtual machine environment detected")
)

// ConfigurationError is associated with StatusError when the register database
// for the current platform is missing definitions required by the check. It does
// not indicate a security problem with the platform.
type ConfigurationError struct {
	err error
}

func (e *ConfigurationError) Error() string {
	return "invalid register configuration: " + e.err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.err
}

// AccessFailureError is associated with StatusError when a register or physical
// memory cannot be read or written. An inability to observe the configuration is
// not evidence of a misconfiguration.
type AccessFailureError struct {
	err error
}

func (e *AccessFailureError) Error() string {
	return "cannot access platform registers: " + e.err.Error()
}

func (e *AccessFailureError) Unwrap() error {
	return e.err
}

// UnsupportedFeatureError is associated with StatusSkipped when the platform does
// not implement SMRR.
type UnsupportedFeatureError struct {
	err error
}

func (e *UnsupportedFeatureError) Error() string {
	return "unsupported feature: " + e.err.Error()
}

func (e *UnsupportedFeatureError) Unwrap() error {
	return e.err
}

// SecurityViolationError is associated with StatusFail and contains every rule
// violation found during the check.
type SecurityViolationError struct {
	Violations []*Violation
}

func (e *SecurityViolationError) Error() string {
	w := new(bytes.Buffer)
	io.WriteString(w, "SMRR protection against cache attack is not configured properly:\n")
	for _, v := range e.Violations {
		io.WriteString(w, makeIndentedListItem(0, "-", fmt.Sprintf("[%s] %s", v.Rule, v.Message)))
	}
	return w.String()
}

func (e *SecurityViolationError) Unwrap() []error {
	var errs []error
	for _, v := range e.Violations {
		errs = append(errs, v)
	}
	return errs
}
