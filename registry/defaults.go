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

package registry

import (
	"bytes"
	"embed"
	"fmt"
)

//go:embed data/*.yaml
var data embed.FS

const (
	// RegisterMTRRCAP is the name of the MTRR capabilities register.
	RegisterMTRRCAP = "MTRRCAP"

	// RegisterSMRRPhysBase is the name of the SMRR base address register.
	RegisterSMRRPhysBase = "SMRR_PHYSBASE"

	// RegisterSMRRPhysMask is the name of the SMRR range mask register.
	RegisterSMRRPhysMask = "SMRR_PHYSMASK"
)

var vendorFiles = map[string]string{
	"GenuineIntel": "data/intel.yaml",
}

func loadEmbedded(name string) (*Registry, error) {
	b, err := data.ReadFile(name)
	if err != nil {
		return nil, err
	}
	reg, err := Load(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("cannot load %s: %w", name, err)
	}
	return reg, nil
}

// Common returns the registry of definitions that apply to all x86 platforms.
func Common() (*Registry, error) {
	return loadEmbedded("data/common.yaml")
}

// ForCPUVendor returns the default registry for the CPU vendor with the
// supplied identification string, as returned by the CPUID instruction.
// Vendors without specific definitions only get the common definitions.
func ForCPUVendor(vendor string) (*Registry, error) {
	reg, err := Common()
	if err != nil {
		return nil, err
	}

	name, ok := vendorFiles[vendor]
	if !ok {
		return reg, nil
	}

	vendorReg, err := loadEmbedded(name)
	if err != nil {
		return nil, err
	}
	return reg.Merge(vendorReg), nil
}
