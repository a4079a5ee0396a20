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

// Package hostenvtest provides mock host environments for testing.
package hostenvtest

import (
	"errors"
	"fmt"

	"github.com/snapcore/smrrcheck/internal/hostenv"
)

// MSRRead records a single call to MockAMD64Environment.ReadMSR.
type MSRRead struct {
	CPU uint32
	MSR uint32
}

// MockAMD64Environment provides a mock AMD64 environment.
type MockAMD64Environment struct {
	Vendor   string
	Features map[uint64]struct{}
	CPUs     []uint32
	CPUsErr  error

	// MSRs contains the MSR values, keyed by CPU number and then by MSR
	// address.
	MSRs map[uint32]map[uint32]uint64

	// Reads records every MSR read, in order.
	Reads []MSRRead
}

// NewMockAMD64Environment returns a new MockAMD64Environment with the specified
// number of CPUs, numbered from 0, each with the same supplied MSR values.
func NewMockAMD64Environment(cpuVendorIdentificator string, cpuidFeatures []uint64, cpus uint32, msrs map[uint32]uint64) *MockAMD64Environment {
	env := &MockAMD64Environment{
		Vendor:   cpuVendorIdentificator,
		Features: make(map[uint64]struct{}),
		MSRs:     make(map[uint32]map[uint32]uint64),
	}
	for _, feature := range cpuidFeatures {
		env.Features[feature] = struct{}{}
	}
	for i := uint32(0); i < cpus; i++ {
		env.CPUs = append(env.CPUs, i)
		env.MSRs[i] = make(map[uint32]uint64)
		for msr, val := range msrs {
			env.MSRs[i][msr] = val
		}
	}
	return env
}

// CPUVendorIdentificator implements [hostenv.HostEnvironmentAMD64.CPUVendorIdentificator].
func (e *MockAMD64Environment) CPUVendorIdentificator() string {
	return e.Vendor
}

// HasCPUIDFeature implements [hostenv.HostEnvironmentAMD64.HasCPUIDFeature].
func (e *MockAMD64Environment) HasCPUIDFeature(feature uint64) bool {
	_, has := e.Features[feature]
	return has
}

// LogicalCPUs implements [hostenv.HostEnvironmentAMD64.LogicalCPUs].
func (e *MockAMD64Environment) LogicalCPUs() ([]uint32, error) {
	if e.CPUsErr != nil {
		return nil, e.CPUsErr
	}
	return e.CPUs, nil
}

// ReadMSR implements [hostenv.HostEnvironmentAMD64.ReadMSR].
func (e *MockAMD64Environment) ReadMSR(cpu, msr uint32) (uint64, error) {
	e.Reads = append(e.Reads, MSRRead{CPU: cpu, MSR: msr})

	msrs, exists := e.MSRs[cpu]
	if !exists {
		return 0, hostenv.ErrNoKernelMSRSupport
	}
	val, exists := msrs[msr]
	if !exists {
		return 0, hostenv.ErrNoMSRSupport
	}
	return val, nil
}

// MockPhysicalMemory provides a mock region of physical memory starting at Base.
type MockPhysicalMemory struct {
	Base uint64
	Data []byte

	// DropWrites causes writes to be silently discarded, as they are for
	// SMRAM when SMRR is enforced.
	DropWrites bool

	Closed bool
}

func (m *MockPhysicalMemory) offset(n int, off int64) (int, error) {
	start := uint64(off)
	if start < m.Base || start-m.Base+uint64(n) > uint64(len(m.Data)) {
		return 0, fmt.Errorf("address 0x%x is outside of the mocked region", start)
	}
	return int(start - m.Base), nil
}

// ReadAt implements [io.ReaderAt].
func (m *MockPhysicalMemory) ReadAt(p []byte, off int64) (int, error) {
	i, err := m.offset(len(p), off)
	if err != nil {
		return 0, err
	}
	return copy(p, m.Data[i:]), nil
}

// WriteAt implements [io.WriterAt].
func (m *MockPhysicalMemory) WriteAt(p []byte, off int64) (int, error) {
	i, err := m.offset(len(p), off)
	if err != nil {
		return 0, err
	}
	if m.DropWrites {
		return len(p), nil
	}
	return copy(m.Data[i:], p), nil
}

// Close implements [io.Closer].
func (m *MockPhysicalMemory) Close() error {
	if m.Closed {
		return errors.New("already closed")
	}
	m.Closed = true
	return nil
}

// MockHostEnvironment provides a mock host environment.
type MockHostEnvironment struct {
	VirtMode    string
	VirtModeErr error

	AMD64Env *MockAMD64Environment

	Memory    *MockPhysicalMemory
	MemoryErr error
}

// MockHostEnvironmentOption is an option supplied to [NewMockHostEnvironmentWithOpts].
type MockHostEnvironmentOption func(*MockHostEnvironment)

// WithVirtMode adds the specified virtualization mode to a MockHostEnvironment.
func WithVirtMode(mode string, err error) MockHostEnvironmentOption {
	return func(env *MockHostEnvironment) {
		env.VirtMode = mode
		env.VirtModeErr = err
	}
}

// WithAMD64Environment adds a mock AMD64 environment to a MockHostEnvironment,
// with the specified number of CPUs each with the same supplied MSR values.
func WithAMD64Environment(cpuVendorIdentificator string, cpuidFeatures []uint64, cpus uint32, msrs map[uint32]uint64) MockHostEnvironmentOption {
	return func(env *MockHostEnvironment) {
		env.AMD64Env = NewMockAMD64Environment(cpuVendorIdentificator, cpuidFeatures, cpus, msrs)
	}
}

// WithMSRValueOnCPU overrides the value of a MSR for a single CPU. This must be
// supplied after WithAMD64Environment.
func WithMSRValueOnCPU(cpu, msr uint32, val uint64) MockHostEnvironmentOption {
	return func(env *MockHostEnvironment) {
		if env.AMD64Env == nil {
			panic("WithMSRValueOnCPU supplied without WithAMD64Environment")
		}
		msrs, exists := env.AMD64Env.MSRs[cpu]
		if !exists {
			panic(fmt.Sprintf("CPU %d does not exist", cpu))
		}
		msrs[msr] = val
	}
}

// WithPhysicalMemory adds mock physical memory to a MockHostEnvironment.
func WithPhysicalMemory(mem *MockPhysicalMemory) MockHostEnvironmentOption {
	return func(env *MockHostEnvironment) {
		env.Memory = mem
	}
}

// NewMockHostEnvironmentWithOpts returns a new MockHostEnvironment with the
// supplied options. It is not virtualized by default.
func NewMockHostEnvironmentWithOpts(opts ...MockHostEnvironmentOption) *MockHostEnvironment {
	env := &MockHostEnvironment{VirtMode: hostenv.VirtModeNone}
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// DetectVirtMode implements [hostenv.HostEnvironment.DetectVirtMode].
func (e *MockHostEnvironment) DetectVirtMode(mode hostenv.DetectVirtMode) (string, error) {
	if e.VirtModeErr != nil {
		return "", e.VirtModeErr
	}
	return e.VirtMode, nil
}

// AMD64 implements [hostenv.HostEnvironment.AMD64].
func (e *MockHostEnvironment) AMD64() (hostenv.HostEnvironmentAMD64, error) {
	if e.AMD64Env == nil {
		return nil, hostenv.ErrNotAMD64Host
	}
	return e.AMD64Env, nil
}

// PhysicalMemory implements [hostenv.HostEnvironment.PhysicalMemory].
func (e *MockHostEnvironment) PhysicalMemory() (hostenv.PhysicalMemory, error) {
	if e.MemoryErr != nil {
		return nil, e.MemoryErr
	}
	if e.Memory == nil {
		return nil, hostenv.ErrNoPhysicalMemoryAccess
	}
	return e.Memory, nil
}
