// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/spf13/pflag"
)

type (
	// mkdirCommand creates directories. On object stores a directory is a
	// zero-byte marker object under the prefix.
	mkdirCommand struct {
		baseCommand
	}

	mkdirFlags struct {
		parents bool
		verbose bool
	}
)

func init() {
	RegisterDefault(newMkdirCommand())
}

func newMkdirCommand() *mkdirCommand {
	return &mkdirCommand{baseCommand{
		name:  "mkdir",
		usage: "[OPTION]... DIRECTORY...",
		about: "Create the DIRECTORY(ies), if they do not already exist.",
	}}
}

func (c *mkdirCommand) flagSet(f *mkdirFlags) *pflag.FlagSet {
	fs := c.newFlagSet()
	fs.BoolVarP(&f.parents, "parents", "p", false, "no error if existing, make parent directories as needed")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "print a message for each created directory")
	return fs
}

// SupportedFlags returns the flags supported by this command.
func (c *mkdirCommand) SupportedFlags() []FlagInfo {
	return flagInfos(c.flagSet(&mkdirFlags{}))
}

// Run executes the mkdir command.
func (c *mkdirCommand) Run(ctx context.Context, args []string) error {
	in := c.start(ctx)
	var f mkdirFlags
	fs := c.flagSet(&f)
	if err := in.parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return in.usageError("missing operand")
	}

	paths, err := in.resolveAll(ctx, fs.Args(), "create directory")
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.mkdir(ctx, in, &f, p); err != nil {
			if fatal(ctx, err) {
				return err
			}
			in.errorf("cannot create directory '%s': %s", p, cloudpath.Describe(err))
		}
	}
	return in.result()
}

// mkdir creates p. With -p every missing ancestor is created first so
// that -v can name each one.
func (c *mkdirCommand) mkdir(ctx context.Context, in *invocation, f *mkdirFlags, p cloudpath.Path) error {
	if !f.parents {
		if err := p.Mkdir(ctx, false, false); err != nil {
			return err
		}
		return c.created(in, f, p)
	}

	var missing []cloudpath.Path
	cur := p
	for {
		info, err := cur.Stat(ctx)
		if err == nil {
			if !info.IsDir {
				return fmt.Errorf("%s: %w", cur, cloudpath.ErrNotDir)
			}
			break
		}
		if !errors.Is(err, cloudpath.ErrNotExist) {
			return err
		}
		missing = append(missing, cur)
		if cur.Ref().IsRoot() {
			break
		}
		cur = cur.Parent().WithDisplay(parentDisplay(cur.String()))
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if err := missing[i].Mkdir(ctx, true, true); err != nil {
			return err
		}
		if err := c.created(in, f, missing[i]); err != nil {
			return err
		}
	}
	return nil
}

// parentDisplay strips the last element of an operand as typed.
func parentDisplay(s string) string {
	trimmed := strings.TrimRight(s, "/")
	i := strings.LastIndex(trimmed, "/")
	switch {
	case i < 0:
		return "."
	case i == 0:
		return "/"
	default:
		return trimmed[:i]
	}
}

func (c *mkdirCommand) created(in *invocation, f *mkdirFlags, p cloudpath.Path) error {
	if !f.verbose {
		return nil
	}
	_, err := fmt.Fprintf(in.hc.Stdout, "created directory '%s'\n", p)
	return err
}
