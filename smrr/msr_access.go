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
	"sync"

	"github.com/snapcore/smrrcheck/internal/hostenv"
	"github.com/snapcore/smrrcheck/registry"
)

// MSRAccess is an implementation of [RegisterAccess] that reads MSRs from the
// host using the definitions in a registry. Logical CPU indices map to the
// online CPUs in ascending order, which are enumerated on first use. It is safe
// to use from multiple goroutines.
type MSRAccess struct {
	registry *registry.Registry
	env      hostenv.HostEnvironmentAMD64

	cpusOnce sync.Once
	cpus     []uint32
	cpusErr  error
}

// NewMSRAccess returns a new MSRAccess for the supplied registry and environment.
func NewMSRAccess(reg *registry.Registry, env hostenv.HostEnvironmentAMD64) *MSRAccess {
	return &MSRAccess{
		registry: reg,
		env:      env,
	}
}

func (a *MSRAccess) logicalCPUs() ([]uint32, error) {
	a.cpusOnce.Do(func() {
		a.cpus, a.cpusErr = a.env.LogicalCPUs()
	})
	return a.cpus, a.cpusErr
}

// IsRegisterDefined implements [RegisterAccess.IsRegisterDefined].
func (a *MSRAccess) IsRegisterDefined(name string) bool {
	return a.registry.IsDefined(name)
}

// ReadRegister implements [RegisterAccess.ReadRegister].
func (a *MSRAccess) ReadRegister(name string, cpu int) (RegisterSnapshot, error) {
	reg, ok := a.registry.Register(name)
	if !ok {
		return RegisterSnapshot{}, &RegisterUnavailableError{Register: name, CPU: cpu, err: ErrRegisterUndefined}
	}

	cpus, err := a.logicalCPUs()
	if err != nil {
		return RegisterSnapshot{}, &RegisterUnavailableError{Register: name, CPU: cpu, err: err}
	}
	if cpu < 0 || cpu >= len(cpus) {
		return RegisterSnapshot{}, &RegisterUnavailableError{Register: name, CPU: cpu, err: ErrInvalidCPUIndex}
	}

	val, err := a.env.ReadMSR(cpus[cpu], reg.MSR)
	if err != nil {
		return RegisterSnapshot{}, &RegisterUnavailableError{
			Register: name,
			CPU:      cpu,
			err:      fmt.Errorf("cannot read MSR %#x: %w", reg.MSR, err)}
	}

	return RegisterSnapshot{Register: name, CPU: cpu, Value: val}, nil
}

// GetField implements [RegisterAccess.GetField].
func (a *MSRAccess) GetField(snapshot RegisterSnapshot, field string, signExtend bool) (uint64, error) {
	reg, ok := a.registry.Register(snapshot.Register)
	if !ok {
		return 0, &UnknownFieldError{Register: snapshot.Register, Field: field}
	}
	f, ok := reg.Field(field)
	if !ok {
		return 0, &UnknownFieldError{Register: snapshot.Register, Field: field}
	}
	return f.Extract(snapshot.Value, signExtend), nil
}

// LogicalCPUCount implements [RegisterAccess.LogicalCPUCount].
func (a *MSRAccess) LogicalCPUCount() (int, error) {
	cpus, err := a.logicalCPUs()
	if err != nil {
		return 0, err
	}
	return len(cpus), nil
}

// MemoryTypeName implements [RegisterAccess.MemoryTypeName].
func (a *MSRAccess) MemoryTypeName(code uint64) (string, bool) {
	return a.registry.MemoryTypeName(code)
}
