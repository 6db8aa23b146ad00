// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

type (
	// Command is one cloudsh utility.
	Command interface {
		// Name returns the command name (e.g., "cp", "tail").
		Name() string

		// Run executes the command. The context carries the
		// HandlerContext with the streams and the path resolver.
		// args[0] is the command name, args[1:] are the arguments.
		Run(ctx context.Context, args []string) error

		// SupportedFlags returns the flags this command understands.
		SupportedFlags() []FlagInfo
	}

	// Describer is implemented by commands that carry a one-line
	// summary for help listings.
	Describer interface {
		About() string
	}

	// FlagInfo describes a supported flag.
	FlagInfo struct {
		// Name is the long flag name without dashes (e.g., "recursive").
		Name string
		// ShortName is the single-character alias (e.g., "r").
		// Empty if no short form exists.
		ShortName   string
		Description string
		// TakesValue indicates if the flag requires a value (e.g., -n 10).
		TakesValue bool
	}

	// baseCommand holds what every command shares.
	baseCommand struct {
		name  string
		usage string
		about string
	}
)

// Name returns the command name.
func (c *baseCommand) Name() string {
	return c.name
}

// About returns the command summary.
func (c *baseCommand) About() string {
	return c.about
}

// prefix is the message prefix, e.g. "cloudsh cp".
func (c *baseCommand) prefix() string {
	return "cloudsh " + c.name
}

// newFlagSet returns a GNU-style flag set: interspersed operands,
// combined short flags, errors returned rather than printed.
func (c *baseCommand) newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(c.name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(true)
	fs.SortFlags = false
	return fs
}

// writeUsage prints the help text for fs.
func (c *baseCommand) writeUsage(w io.Writer, fs *pflag.FlagSet) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage: cloudsh %s %s\n", c.name, c.usage)
	if c.about != "" {
		sb.WriteString(c.about + "\n")
	}
	if usages := fs.FlagUsages(); usages != "" {
		sb.WriteString("\nOptions:\n" + usages)
	}
	_, _ = io.WriteString(w, sb.String()) //nolint:errcheck // help output is best effort
}

// flagInfos describes every flag registered in fs.
func flagInfos(fs *pflag.FlagSet) []FlagInfo {
	var infos []FlagInfo
	fs.VisitAll(func(f *pflag.Flag) {
		infos = append(infos, FlagInfo{
			Name:        f.Name,
			ShortName:   f.Shorthand,
			Description: f.Usage,
			TakesValue:  f.Value.Type() != "bool" && f.NoOptDefVal == "",
		})
	})
	return infos
}
