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
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/canonical/cpuid"
	"github.com/tklauser/numcpus"
	"golang.org/x/sys/unix"
)

var (
	cpuidHasFeature   = cpuid.HasFeature
	numcpusListOnline = numcpus.ListOnline
	devcpuPath        = "/dev/cpu"
)

type defaultEnvAMD64Impl struct{}

// CPUVendorIdentificator implements [HostEnvironmentAMD64.CPUVendorIdentificator].
func (defaultEnvAMD64Impl) CPUVendorIdentificator() string {
	return cpuid.VendorIdentificatorString
}

// HasCPUIDFeature implements [HostEnvironmentAMD64.HasCPUIDFeature].
func (defaultEnvAMD64Impl) HasCPUIDFeature(feature uint64) bool {
	return cpuidHasFeature(feature)
}

// LogicalCPUs implements [HostEnvironmentAMD64.LogicalCPUs].
func (defaultEnvAMD64Impl) LogicalCPUs() ([]uint32, error) {
	online, err := numcpusListOnline()
	if err != nil {
		return nil, fmt.Errorf("cannot list online CPUs: %w", err)
	}

	cpus := make([]uint32, 0, len(online))
	for _, cpu := range online {
		if cpu < 0 {
			return nil, fmt.Errorf("invalid CPU number %d", cpu)
		}
		cpus = append(cpus, uint32(cpu))
	}
	sort.Slice(cpus, func(i, j int) bool { return cpus[i] < cpus[j] })
	return cpus, nil
}

// ReadMSR implements [HostEnvironmentAMD64.ReadMSR].
func (defaultEnvAMD64Impl) ReadMSR(cpu, msr uint32) (uint64, error) {
	f, err := os.Open(filepath.Join(devcpuPath, strconv.FormatUint(uint64(cpu), 10), "msr"))
	switch {
	case os.IsNotExist(err):
		return 0, ErrNoKernelMSRSupport
	case os.IsPermission(err):
		return 0, ErrMSRPermissionDenied
	case errors.Is(err, unix.EIO):
		return 0, ErrNoMSRSupport
	case err != nil:
		return 0, err
	}
	defer f.Close()

	var data [8]byte
	_, err = f.ReadAt(data[:], int64(msr))
	switch {
	case errors.Is(err, unix.EIO): // I think the kernel returns -EIO if the MSR is not supported, but this is poorly documented.
		return 0, ErrNoMSRSupport
	case err != nil:
		return 0, fmt.Errorf("cannot read from MSR device: %w", err)
	}

	return binary.LittleEndian.Uint64(data[:]), nil
}

// AMD64 implements [HostEnvironment.AMD64].
func (defaultEnvImpl) AMD64() (HostEnvironmentAMD64, error) {
	return defaultEnvAMD64Impl{}, nil
}
