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

// Package registry provides the database of symbolic MSR definitions used by
// the SMRR checks. It maps register names to MSR addresses and bit-field
// layouts, and maps memory-type codes to their names.
package registry

import (
	"sort"
)

// FieldKind describes the semantic type of a register field.
type FieldKind string

const (
	// FieldKindUint indicates an unsigned integer field.
	FieldKindUint FieldKind = "uint"

	// FieldKindBool indicates a single bit flag.
	FieldKindBool FieldKind = "bool"

	// FieldKindMemType indicates a memory-type code that can be looked
	// up with [Registry.MemoryTypeName].
	FieldKindMemType FieldKind = "memtype"
)

// Field describes a named bit-field of a register.
type Field struct {
	Name string
	Bit  uint
	Size uint
	Kind FieldKind
	Desc string
}

// Mask returns the mask of the field, relative to bit 0 of the field.
func (f *Field) Mask() uint64 {
	if f.Size >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << f.Size) - 1
}

// Extract extracts the value of this field from the supplied raw register
// value. If signExtend is true, the most significant bit of the field is
// propagated to the upper bits of the result.
func (f *Field) Extract(raw uint64, signExtend bool) uint64 {
	v := (raw >> f.Bit) & f.Mask()
	if signExtend && f.Size > 0 && f.Size < 64 && v&(uint64(1)<<(f.Size-1)) != 0 {
		v |= ^f.Mask()
	}
	return v
}

// Register describes a named MSR.
type Register struct {
	Name   string
	MSR    uint32
	Desc   string
	Fields []Field
}

// Field returns the definition of the named field for this register.
func (r *Register) Field(name string) (*Field, bool) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// Registry is a set of register definitions and a memory-type table for a
// platform. A Registry is immutable once constructed and is safe to share
// between goroutines.
type Registry struct {
	registers map[string]*Register
	memTypes  map[uint64]string
}

func newRegistry() *Registry {
	return &Registry{
		registers: make(map[string]*Register),
		memTypes:  make(map[uint64]string),
	}
}

// Register returns the definition of the named register.
func (r *Registry) Register(name string) (*Register, bool) {
	reg, ok := r.registers[name]
	return reg, ok
}

// IsDefined indicates whether the named register is defined for this registry.
func (r *Registry) IsDefined(name string) bool {
	_, ok := r.registers[name]
	return ok
}

// RegisterNames returns the names of all defined registers, sorted.
func (r *Registry) RegisterNames() []string {
	var names []string
	for name := range r.registers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MemoryTypeName returns the name of the supplied memory-type code, and
// whether the code is recognized.
func (r *Registry) MemoryTypeName(code uint64) (string, bool) {
	name, ok := r.memTypes[code]
	return name, ok
}

// Merge returns a new registry containing the definitions from this registry
// and other. Definitions in other replace definitions of the same register or
// memory-type code in this registry.
func (r *Registry) Merge(other *Registry) *Registry {
	out := newRegistry()
	for _, src := range []*Registry{r, other} {
		if src == nil {
			continue
		}
		for name, reg := range src.registers {
			out.registers[name] = reg
		}
		for code, name := range src.memTypes {
			out.memTypes[code] = name
		}
	}
	return out
}
