// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"

	"github.com/cloudsh/cloudsh/internal/window"

	"github.com/spf13/pflag"
)

// headCommand prints the first part of files.
type headCommand struct {
	baseCommand
}

func init() {
	RegisterDefault(newHeadCommand())
}

func newHeadCommand() *headCommand {
	return &headCommand{baseCommand{
		name:  "head",
		usage: "[OPTION]... [FILE]...",
		about: "Print the first 10 lines of each FILE to standard output. With more than one FILE, precede each with a header giving the file name.",
	}}
}

func (c *headCommand) flagSet(f *windowFlags) *pflag.FlagSet {
	fs := c.newFlagSet()
	f.register(fs, "10")
	return fs
}

// SupportedFlags returns the flags supported by this command.
func (c *headCommand) SupportedFlags() []FlagInfo {
	return flagInfos(c.flagSet(&windowFlags{}))
}

// Run executes the head command.
func (c *headCommand) Run(ctx context.Context, args []string) error {
	in := c.start(ctx)
	var f windowFlags
	fs := c.flagSet(&f)
	if err := in.parse(fs, rewriteLegacyCount(args, "-n", "-c", "--lines", "--bytes")); err != nil {
		return err
	}
	count, err := f.count()
	if err != nil {
		return in.invalidCount(err)
	}

	ops, err := in.windowOperands(ctx, fs.Args())
	if err != nil {
		return err
	}
	return in.printWindows(ctx, ops, headSpec(f.unit, count, f.zero), f.quiet, f.verbose)
}

// headSpec maps a head count onto a window. "-N" lines drops the last N
// lines; "-N" bytes keeps the last N bytes.
func headSpec(unit window.Unit, count window.Count, zero bool) window.Spec {
	spec := window.Spec{Unit: unit, Mode: window.First, Count: count.N, ZeroTerminated: zero}
	if count.Sign == window.SignMinus {
		spec.Mode = window.AllButLast
		if unit == window.Bytes {
			spec.Mode = window.Last
		}
	}
	return spec
}
