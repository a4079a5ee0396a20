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

package hostenv_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/snapcore/smrrcheck/internal/hostenv"
	snapd_testutil "github.com/snapcore/snapd/testutil"

	. "gopkg.in/check.v1"
)

type defaultEnvSuite struct {
	snapd_testutil.BaseTest
}

var _ = Suite(&defaultEnvSuite{})

func (s *defaultEnvSuite) mockDetectVirt(c *C, script string) *snapd_testutil.MockCmd {
	cmd := snapd_testutil.MockCommand(c, "systemd-detect-virt", script)
	s.AddCleanup(cmd.Restore)
	return cmd
}

func (s *defaultEnvSuite) TestDetectVirtModeNone(c *C) {
	cmd := s.mockDetectVirt(c, `echo none; exit 1`)

	virt, err := DefaultEnv.DetectVirtMode(DetectVirtModeAll)
	c.Check(err, IsNil)
	c.Check(virt, Equals, VirtModeNone)
	c.Check(cmd.Calls(), DeepEquals, [][]string{{"systemd-detect-virt"}})
}

func (s *defaultEnvSuite) TestDetectVirtModeVM(c *C) {
	cmd := s.mockDetectVirt(c, `echo kvm`)

	virt, err := DefaultEnv.DetectVirtMode(DetectVirtModeVM)
	c.Check(err, IsNil)
	c.Check(virt, Equals, "kvm")
	c.Check(cmd.Calls(), DeepEquals, [][]string{{"systemd-detect-virt", "--vm"}})
}

func (s *defaultEnvSuite) TestDetectVirtModeContainer(c *C) {
	cmd := s.mockDetectVirt(c, `echo lxc`)

	virt, err := DefaultEnv.DetectVirtMode(DetectVirtModeContainer)
	c.Check(err, IsNil)
	c.Check(virt, Equals, "lxc")
	c.Check(cmd.Calls(), DeepEquals, [][]string{{"systemd-detect-virt", "--container"}})
}

func (s *defaultEnvSuite) TestDetectVirtModeErr(c *C) {
	s.mockDetectVirt(c, `exit 2`)

	_, err := DefaultEnv.DetectVirtMode(DetectVirtModeVM)
	c.Check(err, ErrorMatches, `exit status 2`)
}

func (s *defaultEnvSuite) TestPhysicalMemory(c *C) {
	path := filepath.Join(c.MkDir(), "mem")
	data := make([]byte, 0x2000)
	binary.LittleEndian.PutUint32(data[0x1000:], 0xffffffff)
	c.Assert(os.WriteFile(path, data, 0600), IsNil)

	s.AddCleanup(MockDevMemPath(path))

	mem, err := DefaultEnv.PhysicalMemory()
	c.Assert(err, IsNil)
	defer mem.Close()

	var buf [4]byte
	_, err = mem.ReadAt(buf[:], 0x1000)
	c.Check(err, IsNil)
	c.Check(binary.LittleEndian.Uint32(buf[:]), Equals, uint32(0xffffffff))

	binary.LittleEndian.PutUint32(buf[:], 0x90909090)
	_, err = mem.WriteAt(buf[:], 0x1004)
	c.Check(err, IsNil)

	_, err = mem.ReadAt(buf[:], 0x1004)
	c.Check(err, IsNil)
	c.Check(binary.LittleEndian.Uint32(buf[:]), Equals, uint32(0x90909090))
}

func (s *defaultEnvSuite) TestPhysicalMemoryMissing(c *C) {
	s.AddCleanup(MockDevMemPath(filepath.Join(c.MkDir(), "mem")))

	_, err := DefaultEnv.PhysicalMemory()
	c.Check(err, Equals, ErrNoPhysicalMemoryAccess)
}
