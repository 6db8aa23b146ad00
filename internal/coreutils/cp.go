// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"

	"github.com/cloudsh/cloudsh/internal/transfer"

	"github.com/spf13/pflag"
)

type (
	// cpCommand copies files and directories between any two providers.
	cpCommand struct {
		baseCommand
	}

	cpFlags struct {
		transferFlags
		recursive bool
		preserve  bool
		parents   bool
	}
)

func init() {
	RegisterDefault(newCpCommand())
}

func newCpCommand() *cpCommand {
	return &cpCommand{baseCommand{
		name:  "cp",
		usage: "[OPTION]... SOURCE... DEST",
		about: "Copy SOURCE to DEST, or multiple SOURCE(s) to DIRECTORY.",
	}}
}

func (c *cpCommand) flagSet(f *cpFlags) *pflag.FlagSet {
	fs := c.newFlagSet()
	fs.BoolVarP(&f.recursive, "recursive", "r", false, "copy directories recursively")
	fs.BoolVarP(&f.recursive, "R", "R", false, "same as -r")
	_ = fs.MarkHidden("R") //nolint:errcheck // flag registered above
	fs.BoolVarP(&f.preserve, "preserve", "p", false, "preserve modification times")
	fs.BoolVar(&f.parents, "parents", false, "use full source file name under DIRECTORY")
	f.register(fs)
	return fs
}

// SupportedFlags returns the flags supported by this command.
func (c *cpCommand) SupportedFlags() []FlagInfo {
	return flagInfos(c.flagSet(&cpFlags{}))
}

// Run executes the cp command.
func (c *cpCommand) Run(ctx context.Context, args []string) error {
	in := c.start(ctx)
	var f cpFlags
	fs := c.flagSet(&f)
	if err := in.parse(fs, args); err != nil {
		return err
	}

	run, err := f.operands(in, fs.Args())
	if err != nil {
		return err
	}
	run.opts.Recursive = f.recursive
	run.opts.Preserve = f.preserve
	run.opts.Parents = f.parents
	return run.execute(ctx, in, transfer.RunCopy)
}
