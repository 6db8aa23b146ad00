// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"

	"github.com/cloudsh/cloudsh/internal/transfer"

	"github.com/spf13/pflag"
)

// mvCommand moves or renames files and directories, using the provider's
// rename primitive where one exists.
type mvCommand struct {
	baseCommand
}

func init() {
	RegisterDefault(newMvCommand())
}

func newMvCommand() *mvCommand {
	return &mvCommand{baseCommand{
		name:  "mv",
		usage: "[OPTION]... SOURCE... DEST",
		about: "Rename SOURCE to DEST, or move SOURCE(s) to DIRECTORY.",
	}}
}

func (c *mvCommand) flagSet(f *transferFlags) *pflag.FlagSet {
	fs := c.newFlagSet()
	f.register(fs)
	return fs
}

// SupportedFlags returns the flags supported by this command.
func (c *mvCommand) SupportedFlags() []FlagInfo {
	return flagInfos(c.flagSet(&transferFlags{}))
}

// Run executes the mv command.
func (c *mvCommand) Run(ctx context.Context, args []string) error {
	in := c.start(ctx)
	var f transferFlags
	fs := c.flagSet(&f)
	if err := in.parse(fs, args); err != nil {
		return err
	}

	run, err := f.operands(in, fs.Args())
	if err != nil {
		return err
	}
	return run.execute(ctx, in, transfer.RunMove)
}
