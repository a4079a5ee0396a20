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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"github.com/snapcore/snapd/osutil"
	"github.com/snapcore/snapd/osutil/sys"
	"golang.org/x/xerrors"

	"github.com/snapcore/smrrcheck/internal/hostenv"
	"github.com/snapcore/smrrcheck/registry"
	"github.com/snapcore/smrrcheck/smrr"
)

type options struct {
	Registry string `long:"registry" value-name:"FILE" description:"Load additional register definitions from the specified YAML file. These replace the built-in definitions of the same name"`
	Invasive bool   `long:"invasive" description:"Attempt to read and modify memory at the SMRR base address to confirm that SMRAM is protected. This writes to physical memory"`
	PermitVM bool   `long:"permit-vm" description:"Permit running in a virtual machine, where the register values are provided by the hypervisor"`
	JSON     bool   `long:"json" description:"Print the result as JSON"`
	Output   string `long:"output" value-name:"FILE" description:"Write the result as JSON to the specified file"`
	Verbose  bool   `short:"v" long:"verbose" description:"Print informational diagnostics"`
}

var opts options

var (
	env          hostenv.HostEnvironment = hostenv.DefaultEnv
	runHostCheck                         = smrr.RunHostCheck
)

const (
	exitPass    = 0
	exitFail    = 1
	exitError   = 2
	exitSkipped = 3
)

func exitCode(status smrr.Status) int {
	switch status {
	case smrr.StatusPass:
		return exitPass
	case smrr.StatusFail:
		return exitFail
	case smrr.StatusSkipped:
		return exitSkipped
	default:
		return exitError
	}
}

// logSink forwards diagnostics to a logger. Informational diagnostics are only
// visible in verbose mode.
type logSink struct {
	logger logrus.FieldLogger
}

func (s *logSink) Emit(d smrr.Diagnostic) {
	switch d.Severity {
	case smrr.SeverityInfo:
		s.logger.Debug(d.Message)
	case smrr.SeverityGood:
		s.logger.Info(d.Message)
	default:
		s.logger.Warn(d.Message)
	}
}

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// loadRegistry returns nil if no registry file was supplied, so that the
// default registry for the host's CPU vendor is used.
func loadRegistry(env hostenv.HostEnvironment, path string) (*registry.Registry, error) {
	if path == "" {
		return nil, nil
	}

	custom, err := registry.LoadFile(path)
	if err != nil {
		return nil, err
	}

	var base *registry.Registry
	if amd64Env, err := env.AMD64(); err == nil {
		base, err = registry.ForCPUVendor(amd64Env.CPUVendorIdentificator())
		if err != nil {
			return nil, err
		}
	} else {
		base, err = registry.Common()
		if err != nil {
			return nil, err
		}
	}

	return base.Merge(custom), nil
}

func writeResult(path string, result *smrr.CheckResult) error {
	f, err := osutil.NewAtomicFile(path, 0644, 0, sys.UserID(osutil.NoChown), sys.GroupID(osutil.NoChown))
	if err != nil {
		return xerrors.Errorf("cannot create new atomic file: %w", err)
	}
	defer f.Cancel()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return xerrors.Errorf("cannot write to temporary file: %w", err)
	}

	if err := f.Commit(); err != nil {
		return xerrors.Errorf("cannot atomically replace file: %w", err)
	}
	return nil
}

func run() (int, error) {
	if _, err := flags.Parse(&opts); err != nil {
		return exitError, err
	}

	logger := newLogger(os.Stderr, opts.Verbose)

	reg, err := loadRegistry(env, opts.Registry)
	if err != nil {
		return exitError, xerrors.Errorf("cannot load register definitions: %w", err)
	}

	var checkFlags smrr.CheckFlags
	if opts.PermitVM {
		checkFlags |= smrr.PermitVirtualMachine
	}
	if opts.Invasive {
		logger.Warn("Running the invasive memory probe, which writes to physical memory")
		checkFlags |= smrr.InvasiveMemoryProbe
	}

	logger.Info("Checking SMRR protection of SMRAM against cache attacks")
	result := runHostCheck(env, reg, checkFlags, &logSink{logger: logger})

	if opts.Output != "" {
		if err := writeResult(opts.Output, result); err != nil {
			return exitError, err
		}
	}

	if opts.JSON {
		b, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return exitError, xerrors.Errorf("cannot serialize result: %w", err)
		}
		fmt.Println(string(b))
	} else {
		fmt.Println(result.Status)
	}

	return exitCode(result.Status), nil
}

func main() {
	code, err := run()
	if err != nil {
		switch e := err.(type) {
		case *flags.Error:
			// flags already prints this
			if e.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		default:
			fmt.Fprintln(os.Stderr, "Cannot check SMRR configuration:", err)
		}
	}
	os.Exit(code)
}
