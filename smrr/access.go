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
	"errors"
	"fmt"
)

// PrimaryCPU is the index of the boot processor, which the SMRR configuration
// of every other logical CPU is compared against.
const PrimaryCPU = 0

// RegisterSnapshot is the value of a register on a logical CPU, captured by a
// single read.
type RegisterSnapshot struct {
	Register string `json:"register"` // the symbolic register name
	CPU      int    `json:"cpu"`      // the logical CPU index
	Value    uint64 `json:"value"`    // the raw 64-bit value
}

// RegisterAccess provides named, per-CPU register reads and symbolic bit-field
// extraction. Logical CPUs are addressed by index, from 0 to LogicalCPUCount()-1,
// with index 0 being the primary CPU.
type RegisterAccess interface {
	// IsRegisterDefined indicates whether the named register is defined for
	// the current platform.
	IsRegisterDefined(name string) bool

	// ReadRegister reads the named register on the logical CPU with the
	// specified index. This returns a *RegisterUnavailableError if the register
	// is not defined or cannot be read.
	ReadRegister(name string, cpu int) (RegisterSnapshot, error)

	// GetField extracts the named bit-field from a previously captured
	// snapshot. This returns a *UnknownFieldError if the field is not defined
	// for the snapshot's register.
	GetField(snapshot RegisterSnapshot, field string, signExtend bool) (uint64, error)

	// LogicalCPUCount returns the number of logical CPUs.
	LogicalCPUCount() (int, error)

	// MemoryTypeName returns the name of the supplied memory-type code and
	// whether it is a recognized code for the current platform.
	MemoryTypeName(code uint64) (string, bool)
}

var (
	// ErrRegisterUndefined is returned wrapped in RegisterUnavailableError if
	// the requested register is not defined for the current platform.
	ErrRegisterUndefined = errors.New("register is not defined")

	// ErrInvalidCPUIndex is returned wrapped in RegisterUnavailableError if
	// the requested logical CPU index is out of range.
	ErrInvalidCPUIndex = errors.New("invalid CPU index")
)

// RegisterUnavailableError is returned from RegisterAccess.ReadRegister when
// a register cannot be read.
type RegisterUnavailableError struct {
	Register string
	CPU      int
	err      error
}

func (e *RegisterUnavailableError) Error() string {
	return fmt.Sprintf("cannot read register %s on CPU %d: %v", e.Register, e.CPU, e.err)
}

func (e *RegisterUnavailableError) Unwrap() error {
	return e.err
}

// UnknownFieldError is returned from RegisterAccess.GetField when the requested
// field is not defined for a register.
type UnknownFieldError struct {
	Register string
	Field    string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("register %s has no field %s", e.Register, e.Field)
}
