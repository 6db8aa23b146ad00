// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudsh/cloudsh/internal/tui"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/spf13/pflag"
)

type (
	// sinkCommand copies standard input into a local or cloud file, the
	// missing half of "cat file | ... > gs://bucket/out".
	sinkCommand struct {
		baseCommand
	}

	sinkFlags struct {
		appendMode bool
	}
)

func init() {
	RegisterDefault(newSinkCommand())
}

func newSinkCommand() *sinkCommand {
	return &sinkCommand{baseCommand{
		name:  "sink",
		usage: "[OPTION]... FILE",
		about: "Write standard input to FILE, which may be a cloud path.",
	}}
}

func (c *sinkCommand) flagSet(f *sinkFlags) *pflag.FlagSet {
	fs := c.newFlagSet()
	fs.BoolVarP(&f.appendMode, "append", "a", false, "append to FILE instead of overwriting it")
	return fs
}

// SupportedFlags returns the flags supported by this command.
func (c *sinkCommand) SupportedFlags() []FlagInfo {
	return flagInfos(c.flagSet(&sinkFlags{}))
}

// Run executes the sink command.
func (c *sinkCommand) Run(ctx context.Context, args []string) error {
	in := c.start(ctx)
	var f sinkFlags
	fs := c.flagSet(&f)
	if err := in.parse(fs, args); err != nil {
		return err
	}
	switch fs.NArg() {
	case 0:
		return in.usageError("missing file operand")
	case 1:
	default:
		return in.usageError("extra operand '%s'", fs.Arg(1))
	}
	if tui.IsTerminal(in.hc.Stdin) {
		in.errorf("no input data provided")
		return errReported
	}

	p, err := in.resolve(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if err := sink(ctx, p, in.hc.Stdin, f.appendMode); err != nil {
		if fatal(ctx, err) {
			return err
		}
		in.errorf("cannot write to '%s': %s", p, cloudpath.Describe(err))
		return errReported
	}
	return nil
}

// sink streams r into p. The writer is closed even on failure; on object
// stores that is what commits or abandons the upload.
func sink(ctx context.Context, p cloudpath.Path, r io.Reader, appendMode bool) (err error) {
	if info, statErr := p.Stat(ctx); statErr == nil && info.IsDir {
		return fmt.Errorf("%s: %w", p, cloudpath.ErrIsDir)
	}
	w, err := p.OpenWrite(ctx, appendMode)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if _, err := io.Copy(w, &ctxReader{ctx: ctx, r: r}); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}
