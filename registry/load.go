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
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

type fieldYAML struct {
	Name string    `yaml:"name"`
	Bit  uint      `yaml:"bit"`
	Size uint      `yaml:"size"`
	Kind FieldKind `yaml:"kind"`
	Desc string    `yaml:"desc"`
}

type registerYAML struct {
	Name   string      `yaml:"name"`
	MSR    *uint32     `yaml:"msr"`
	Desc   string      `yaml:"desc"`
	Fields []fieldYAML `yaml:"fields"`
}

type registryYAML struct {
	MemoryTypes map[uint64]string `yaml:"memory_types"`
	Registers   []registerYAML    `yaml:"registers"`
}

func (f *fieldYAML) toField() (Field, error) {
	if f.Name == "" {
		return Field{}, errors.New("missing field name")
	}
	if f.Size == 0 || f.Size > 64 {
		return Field{}, fmt.Errorf("invalid size %d for field %q", f.Size, f.Name)
	}
	if f.Bit+f.Size > 64 {
		return Field{}, fmt.Errorf("field %q exceeds the register width", f.Name)
	}

	kind := f.Kind
	switch kind {
	case "":
		kind = FieldKindUint
	case FieldKindUint, FieldKindMemType:
		// ok
	case FieldKindBool:
		if f.Size != 1 {
			return Field{}, fmt.Errorf("invalid size %d for boolean field %q", f.Size, f.Name)
		}
	default:
		return Field{}, fmt.Errorf("invalid kind %q for field %q", f.Kind, f.Name)
	}

	return Field{
		Name: f.Name,
		Bit:  f.Bit,
		Size: f.Size,
		Kind: kind,
		Desc: f.Desc,
	}, nil
}

func (r *registerYAML) toRegister() (*Register, error) {
	if r.Name == "" {
		return nil, errors.New("missing register name")
	}
	if r.MSR == nil {
		return nil, fmt.Errorf("missing MSR address for register %q", r.Name)
	}

	reg := &Register{
		Name: r.Name,
		MSR:  *r.MSR,
		Desc: r.Desc}

	seen := make(map[string]struct{})
	for _, f := range r.Fields {
		field, err := f.toField()
		if err != nil {
			return nil, fmt.Errorf("invalid field definition for register %q: %w", r.Name, err)
		}
		if _, exists := seen[field.Name]; exists {
			return nil, fmt.Errorf("duplicate field %q for register %q", field.Name, r.Name)
		}
		seen[field.Name] = struct{}{}
		reg.Fields = append(reg.Fields, field)
	}

	return reg, nil
}

// Load decodes a registry from the supplied YAML document.
func Load(r io.Reader) (*Registry, error) {
	var data registryYAML
	if err := yaml.NewDecoder(r).Decode(&data); err != nil && err != io.EOF {
		return nil, fmt.Errorf("cannot decode registry: %w", err)
	}

	out := newRegistry()
	for code, name := range data.MemoryTypes {
		out.memTypes[code] = name
	}
	for i := range data.Registers {
		reg, err := data.Registers[i].toRegister()
		if err != nil {
			return nil, err
		}
		if _, exists := out.registers[reg.Name]; exists {
			return nil, fmt.Errorf("duplicate register %q", reg.Name)
		}
		out.registers[reg.Name] = reg
	}

	return out, nil
}

// LoadFile decodes a registry from the YAML file at the specified path.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Load(f)
}
