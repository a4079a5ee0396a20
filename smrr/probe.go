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
	"encoding/binary"
	"fmt"
)

const (
	// smrrPageShift converts the PhysBase field to a physical address.
	smrrPageShift = 12

	memoryProbeLength         = 0x10
	memoryProbePattern uint32 = 0x90909090

	// smramUnreadableValue is what reads of SMRAM from outside of SMM
	// return when SMRR is enforced.
	smramUnreadableValue uint32 = 0xffffffff
)

func (r *checkRun) readPhysicalUint32(addr uint64) (uint32, error) {
	var buf [4]byte
	if _, err := r.checker.memory.ReadAt(buf[:], int64(addr)); err != nil {
		return 0, &AccessFailureError{fmt.Errorf("cannot read physical memory at 0x%08X: %w", addr, err)}
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (r *checkRun) writePhysicalUint32(addr uint64, val uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	if _, err := r.checker.memory.WriteAt(buf[:], int64(addr)); err != nil {
		return &AccessFailureError{fmt.Errorf("cannot write physical memory at 0x%08X: %w", addr, err)}
	}
	return nil
}

// checkMemoryProbe attempts to read from and write to SMRAM at the SMRR base
// address. Writes should be dropped and reads should return all F's. Once the
// test pattern has been written, the original contents are restored unless the
// read back shows that the write was dropped. The probe is skipped if an earlier
// stage found a violation.
func (r *checkRun) checkMemoryProbe() (err error) {
	if r.checker.memory == nil {
		return &ConfigurationError{ErrNoMemoryAccess}
	}
	if !r.okSoFar() {
		r.info("Skipping the memory probe because the SMRR range is not configured properly")
		return nil
	}

	addr := r.state.PhysBase << smrrPageShift
	r.info("Trying to read/modify memory at SMRR base address 0x%08X..", addr)

	var contents [memoryProbeLength]byte
	if _, err := r.checker.memory.ReadAt(contents[:], int64(addr)); err != nil {
		return &AccessFailureError{fmt.Errorf("cannot read physical memory at 0x%08X: %w", addr, err)}
	}
	r.info("Contents at 0x%08X: %x", addr, contents)

	orig := binary.LittleEndian.Uint32(contents[:4])
	if err := r.writePhysicalUint32(addr, memoryProbePattern); err != nil {
		return err
	}

	restore := true
	defer func() {
		if !restore {
			return
		}
		if restoreErr := r.writePhysicalUint32(addr, orig); restoreErr != nil && err == nil {
			err = restoreErr
		}
	}()

	val, err := r.readPhysicalUint32(addr)
	if err != nil {
		return err
	}
	if val == orig {
		// The write was dropped.
		restore = false
	}

	if val == smramUnreadableValue {
		r.good("OK. Memory at SMRR base contains all F's and is not modifiable")
		return nil
	}

	r.violate(RuleMemoryProbe, PrimaryCPU, "contents of memory at SMRR base are readable or modifiable")
	return nil
}
