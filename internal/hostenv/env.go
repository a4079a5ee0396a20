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

package hostenv

import (
	"errors"
	"io"
)

// HostEnvironmentAMD64 is an interface that abstracts out a host environment specific
// to AMD64 platforms.
type HostEnvironmentAMD64 interface {
	// CPUVendorIdentificator returns the CPU vendor.
	CPUVendorIdentificator() string

	// HasCPUIDFeature returns if feature from FeatureNames map in the
	// github.com/canonical/cpuid package is available.
	HasCPUIDFeature(feature uint64) bool

	// LogicalCPUs returns the numbers of the online logical CPUs in
	// ascending order.
	LogicalCPUs() ([]uint32, error)

	// ReadMSR reads the value of the specified MSR on the specified
	// logical CPU.
	ReadMSR(cpu, msr uint32) (uint64, error)
}

// PhysicalMemory provides access to physical memory, using the physical
// address as the offset.
type PhysicalMemory interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// DetectVirtMode controls what type of virtualization to test for.
type DetectVirtMode int

const (
	// DetectVirtModeAll detects for all types of virtualization.
	DetectVirtModeAll DetectVirtMode = iota

	// DetectVirtModeContainer detects for container types of virtualization.
	DetectVirtModeContainer

	// DetectVirtModeVM detects for fully virtualized types of environments.
	DetectVirtModeVM
)

// VirtModeNone corresponds to no virtualization.
const VirtModeNone = "none"

var (
	// ErrNotAMD64Host is returned from HostEnvironment.AMD64 on environments that
	// are not AMD64.
	ErrNotAMD64Host = errors.New("not a AMD64 host")

	// ErrNoKernelMSRSupport is returned from HostEnvironmentAMD64.ReadMSR if there is
	// no support for reading MSRs.
	ErrNoKernelMSRSupport = errors.New("missing kernel support for reading MSRs")

	// ErrNoMSRSupport is returned from HostEnvironmentAMD64.ReadMSR if there is
	// no MSR support or the specified MSR cannot be read.
	ErrNoMSRSupport = errors.New("missing MSR support")

	// ErrMSRPermissionDenied is returned from HostEnvironmentAMD64.ReadMSR if the
	// caller isn't permitted to open the MSR device.
	ErrMSRPermissionDenied = errors.New("permission denied when accessing MSR device")

	// ErrNoPhysicalMemoryAccess is returned from HostEnvironment.PhysicalMemory if
	// the physical memory device is not available or cannot be opened.
	ErrNoPhysicalMemoryAccess = errors.New("physical memory device is not accessible")
)

// HostEnvironment is an interface that abstracts out a host environment, so that
// consumers of the API can provide ways to mock parts of an environment.
type HostEnvironment interface {
	// DetectVirtMode returns whether the environment is virtualized. If not, it returns
	// (VirtModeNone, nil). The mode can be used to choose what type of virtualization to
	// test for.
	DetectVirtMode(mode DetectVirtMode) (string, error)

	// AMD64 returns an interface that can be used to mock some parts of an AMD64 platform.
	// This will return ErrNotAMD64Host on non-AMD64 platforms.
	AMD64() (HostEnvironmentAMD64, error)

	// PhysicalMemory opens the physical memory device for reading and writing.
	// The caller should call Close when finished.
	PhysicalMemory() (PhysicalMemory, error)
}
