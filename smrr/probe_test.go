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

package smrr_test

import (
	"bytes"
	"errors"

	. "gopkg.in/check.v1"

	"github.com/snapcore/smrrcheck/internal/hostenvtest"
	"github.com/snapcore/smrrcheck/internal/testutil"
	. "github.com/snapcore/smrrcheck/smrr"
)

type probeSuite struct{}

var _ = Suite(&probeSuite{})

func (s *probeSuite) newAccess() *mockRegisterAccess {
	access := newMockRegisterAccess(2)
	access.fields["SMRR_PHYSBASE"]["PhysBase"] = 0x7F000
	return access
}

func (s *probeSuite) TestProbeEnforced(c *C) {
	mem := &hostenvtest.MockPhysicalMemory{
		Base:       0x7F000000,
		Data:       bytes.Repeat([]byte{0xff}, 0x1000),
		DropWrites: true,
	}

	result := NewCheckContext(s.newAccess(), &CheckOptions{Flags: InvasiveMemoryProbe, Memory: mem}).Run()
	c.Check(result.Status, Equals, StatusPass)
	c.Check(result.Violations, HasLen, 0)

	n := len(result.Diagnostics)
	c.Check(result.Diagnostics[n-5:], DeepEquals, []Diagnostic{
		{Severity: SeverityGood, Message: "OK so far. SMRR range base/mask match on all logical CPUs"},
		{Severity: SeverityInfo, Message: "Trying to read/modify memory at SMRR base address 0x7F000000.."},
		{Severity: SeverityInfo, Message: "Contents at 0x7F000000: ffffffffffffffffffffffffffffffff"},
		{Severity: SeverityGood, Message: "OK. Memory at SMRR base contains all F's and is not modifiable"},
		{Severity: SeverityGood, Message: "SMRR protection against cache attack is properly configured"},
	})
}

func (s *probeSuite) TestProbeModifiable(c *C) {
	data := make([]byte, 0x1000)
	copy(data, []byte{0x44, 0x33, 0x22, 0x11, 0xaa})
	mem := &hostenvtest.MockPhysicalMemory{Base: 0x7F000000, Data: data}

	result := NewCheckContext(s.newAccess(), &CheckOptions{Flags: InvasiveMemoryProbe, Memory: mem}).Run()
	c.Check(result.Status, Equals, StatusFail)
	c.Check(result.Violations, DeepEquals, []*Violation{
		{Rule: RuleMemoryProbe, CPU: 0, Message: "contents of memory at SMRR base are readable or modifiable"},
	})
	c.Check(result.Err, ErrorMatches, `SMRR protection against cache attack is not configured properly:
- \[memory-probe\] contents of memory at SMRR base are readable or modifiable
`)

	// The original contents are restored.
	c.Check(mem.Data[:5], DeepEquals, []byte{0x44, 0x33, 0x22, 0x11, 0xaa})
}

func (s *probeSuite) TestProbeReadable(c *C) {
	mem := &hostenvtest.MockPhysicalMemory{
		Base:       0x7F000000,
		Data:       bytes.Repeat([]byte{0x5a}, 0x1000),
		DropWrites: true,
	}

	result := NewCheckContext(s.newAccess(), &CheckOptions{Flags: InvasiveMemoryProbe, Memory: mem}).Run()
	c.Check(result.Status, Equals, StatusFail)
	c.Assert(result.Violations, HasLen, 1)
	c.Check(result.Violations[0].Rule, Equals, RuleMemoryProbe)
	c.Check(mem.Data, DeepEquals, bytes.Repeat([]byte{0x5a}, 0x1000))
}

func (s *probeSuite) TestProbeNotRunByDefault(c *C) {
	// Any access to this region fails.
	mem := &hostenvtest.MockPhysicalMemory{}

	result := NewCheckContext(s.newAccess(), &CheckOptions{Memory: mem}).Run()
	c.Check(result.Status, Equals, StatusPass)
	for _, d := range result.Diagnostics {
		c.Check(d.Message, Not(Matches), `Trying to read/modify memory.*`)
	}
}

func (s *probeSuite) TestProbeSkippedAfterViolation(c *C) {
	access := s.newAccess()
	access.fields["SMRR_PHYSMASK"]["PhysMask"] = 0
	mem := &hostenvtest.MockPhysicalMemory{}

	result := NewCheckContext(access, &CheckOptions{Flags: InvasiveMemoryProbe, Memory: mem}).Run()
	c.Check(result.Status, Equals, StatusFail)
	c.Check(result.Violations, HasLen, 1)
	c.Check("Skipping the memory probe because the SMRR range is not configured properly", testutil.InSlice(Equals), s.messages(result))
}

func (s *probeSuite) TestProbeNoMemory(c *C) {
	result := NewCheckContext(s.newAccess(), &CheckOptions{Flags: InvasiveMemoryProbe}).Run()
	c.Check(result.Status, Equals, StatusError)
	c.Check(result.Err, ErrorMatches, `invalid register configuration: no physical memory access is available for the memory probe`)
	c.Check(result.Err, testutil.ErrorIs, ErrNoMemoryAccess)
}

func (s *probeSuite) TestProbeReadError(c *C) {
	mem := &hostenvtest.MockPhysicalMemory{Base: 0x1000, Data: make([]byte, 0x1000)}

	result := NewCheckContext(s.newAccess(), &CheckOptions{Flags: InvasiveMemoryProbe, Memory: mem}).Run()
	c.Check(result.Status, Equals, StatusError)
	c.Check(result.Err, ErrorMatches, `cannot access platform registers: cannot read physical memory at 0x7F000000: address 0x7f000000 is outside of the mocked region`)
}

// failingReadMemory fails every read after the first.
type failingReadMemory struct {
	*hostenvtest.MockPhysicalMemory
	reads int
}

func (m *failingReadMemory) ReadAt(p []byte, off int64) (int, error) {
	m.reads++
	if m.reads > 1 {
		return 0, errors.New("some error")
	}
	return m.MockPhysicalMemory.ReadAt(p, off)
}

func (s *probeSuite) TestProbeRestoresAfterReadBackError(c *C) {
	data := make([]byte, 0x1000)
	copy(data, []byte{0x44, 0x33, 0x22, 0x11})
	mem := &failingReadMemory{MockPhysicalMemory: &hostenvtest.MockPhysicalMemory{Base: 0x7F000000, Data: data}}

	result := NewCheckContext(s.newAccess(), &CheckOptions{Flags: InvasiveMemoryProbe, Memory: mem}).Run()
	c.Check(result.Status, Equals, StatusError)
	c.Check(result.Err, ErrorMatches, `cannot access platform registers: cannot read physical memory at 0x7F000000: some error`)
	c.Check(mem.reads, Equals, 2)
	c.Check(mem.Data[:4], DeepEquals, []byte{0x44, 0x33, 0x22, 0x11})
}

func (s *probeSuite) TestProbeEnforcedDoesNotRestore(c *C) {
	mem := &countingWriteMemory{MockPhysicalMemory: &hostenvtest.MockPhysicalMemory{
		Base:       0x7F000000,
		Data:       bytes.Repeat([]byte{0xff}, 0x1000),
		DropWrites: true,
	}}

	result := NewCheckContext(s.newAccess(), &CheckOptions{Flags: InvasiveMemoryProbe, Memory: mem}).Run()
	c.Check(result.Status, Equals, StatusPass)
	c.Check(mem.writes, Equals, 1)
}

func (s *probeSuite) TestProbeModifiableRestoresOnce(c *C) {
	mem := &countingWriteMemory{MockPhysicalMemory: &hostenvtest.MockPhysicalMemory{
		Base: 0x7F000000,
		Data: make([]byte, 0x1000),
	}}

	result := NewCheckContext(s.newAccess(), &CheckOptions{Flags: InvasiveMemoryProbe, Memory: mem}).Run()
	c.Check(result.Status, Equals, StatusFail)
	c.Check(mem.writes, Equals, 2)
	c.Check(mem.Data[:4], DeepEquals, []byte{0, 0, 0, 0})
}

type countingWriteMemory struct {
	*hostenvtest.MockPhysicalMemory
	writes int
}

func (m *countingWriteMemory) WriteAt(p []byte, off int64) (int, error) {
	m.writes++
	return m.MockPhysicalMemory.WriteAt(p, off)
}

func (s *probeSuite) messages(result *CheckResult) (out []string) {
	for _, d := range result.Diagnostics {
		out = append(out, d.Message)
	}
	return out
}
