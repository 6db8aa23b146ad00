// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cloudsh/cloudsh/internal/transfer"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/spf13/pflag"
)

type (
	// rmCommand removes files and directory trees.
	rmCommand struct {
		baseCommand
	}

	rmFlags struct {
		force       bool
		interactive bool
		once        bool
		recursive   bool
		dir         bool
		verbose     bool
	}

	rmRun struct {
		in       *invocation
		flags    rmFlags
		prompter transfer.Prompter
	}

	// rmFrame is one directory on the removal stack.
	rmFrame struct {
		dir     cloudpath.Path
		entries []cloudpath.Path
		failed  bool
	}
)

func init() {
	RegisterDefault(newRmCommand())
}

func newRmCommand() *rmCommand {
	return &rmCommand{baseCommand{
		name:  "rm",
		usage: "[OPTION]... FILE...",
		about: "Remove (unlink) the FILE(s).",
	}}
}

func (c *rmCommand) flagSet(f *rmFlags) *pflag.FlagSet {
	fs := c.newFlagSet()
	fs.BoolVarP(&f.force, "force", "f", false, "ignore nonexistent files and arguments, never prompt")
	fs.BoolVarP(&f.interactive, "interactive", "i", false, "prompt before every removal")
	fs.BoolVarP(&f.once, "I", "I", false, "prompt once before removing more than three files, or when removing recursively")
	fs.BoolVarP(&f.recursive, "recursive", "r", false, "remove directories and their contents recursively")
	fs.BoolVarP(&f.recursive, "R", "R", false, "same as -r")
	_ = fs.MarkHidden("R") //nolint:errcheck // flag registered above
	fs.BoolVarP(&f.dir, "dir", "d", false, "remove empty directories")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "explain what is being done")
	return fs
}

// SupportedFlags returns the flags supported by this command.
func (c *rmCommand) SupportedFlags() []FlagInfo {
	return flagInfos(c.flagSet(&rmFlags{}))
}

// Run executes the rm command.
func (c *rmCommand) Run(ctx context.Context, args []string) error {
	in := c.start(ctx)
	var f rmFlags
	fs := c.flagSet(&f)
	if err := in.parse(fs, args); err != nil {
		return err
	}
	operands := fs.Args()
	if len(operands) == 0 {
		if f.force {
			return nil
		}
		return in.usageError("missing operand")
	}
	if f.force {
		f.interactive, f.once = false, false
	}

	r := &rmRun{in: in, flags: f, prompter: in.hc.NewPrompter(c.prefix())}
	if f.once && (len(operands) > 3 || f.recursive) {
		question := fmt.Sprintf("remove %d argument%s", len(operands), plural(len(operands)))
		if f.recursive {
			question += " recursively"
		}
		ok, err := r.prompter.Confirm(ctx, question+"?")
		if err != nil || !ok {
			return err
		}
	}

	paths, err := in.resolveAll(ctx, operands, "remove")
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.removeOperand(ctx, p); err != nil {
			return err
		}
	}
	return in.result()
}

// removeOperand removes one command-line operand. Only fatal errors are
// returned; everything else is reported.
func (r *rmRun) removeOperand(ctx context.Context, p cloudpath.Path) error {
	if p.Ref().IsLocal() && isDotOperand(p.String()) {
		r.in.errorf("refusing to remove '.' or '..' directory: skipping '%s'", p)
		return nil
	}
	if p.Ref().IsLocal() && p.Ref().IsRoot() && r.flags.recursive {
		r.in.errorf("it is dangerous to operate recursively on '%s'", p)
		return nil
	}

	info, err := p.Stat(ctx)
	if err != nil {
		if r.flags.force && errors.Is(err, cloudpath.ErrNotExist) {
			return nil
		}
		return r.report(ctx, p, err)
	}
	if !info.IsDir {
		_, err := r.removeFile(ctx, p)
		return err
	}

	switch {
	case r.flags.recursive:
		return r.removeTree(ctx, p)
	case r.flags.dir:
		_, err := r.removeDir(ctx, p)
		return err
	default:
		r.in.errorf("cannot remove '%s': Is a directory", p)
		return nil
	}
}

// removeTree deletes root depth-first. A directory is removed only after
// all of its entries were.
func (r *rmRun) removeTree(ctx context.Context, root cloudpath.Path) error {
	if ok, err := r.confirm(ctx, "descend into directory '%s'?", root); !ok || err != nil {
		return err
	}
	entries, err := root.Iterdir(ctx)
	if err != nil {
		return r.report(ctx, root, err)
	}

	stack := []*rmFrame{{dir: root, entries: entries}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		top := stack[len(stack)-1]

		if len(top.entries) == 0 {
			stack = stack[:len(stack)-1]
			ok := false
			if !top.failed {
				var err error
				if ok, err = r.removeDir(ctx, top.dir); err != nil {
					return err
				}
			}
			if !ok && len(stack) > 0 {
				stack[len(stack)-1].failed = true
			}
			continue
		}

		child := top.entries[0]
		top.entries = top.entries[1:]

		info, err := child.Stat(ctx)
		if err != nil {
			if errors.Is(err, cloudpath.ErrNotExist) {
				continue
			}
			top.failed = true
			if err := r.report(ctx, child, err); err != nil {
				return err
			}
			continue
		}
		if info.IsDir {
			ok, err := r.confirm(ctx, "descend into directory '%s'?", child)
			if err != nil {
				return err
			}
			if !ok {
				top.failed = true
				continue
			}
			sub, err := child.Iterdir(ctx)
			if err != nil {
				top.failed = true
				if err := r.report(ctx, child, err); err != nil {
					return err
				}
				continue
			}
			stack = append(stack, &rmFrame{dir: child, entries: sub})
			continue
		}

		ok, err := r.removeFile(ctx, child)
		if err != nil {
			return err
		}
		if !ok {
			top.failed = true
		}
	}
	return nil
}

// removeFile deletes p and reports whether it is gone.
func (r *rmRun) removeFile(ctx context.Context, p cloudpath.Path) (bool, error) {
	if ok, err := r.confirm(ctx, "remove file '%s'?", p); !ok || err != nil {
		return false, err
	}
	if err := p.Delete(ctx); err != nil {
		if r.flags.force && errors.Is(err, cloudpath.ErrNotExist) {
			return true, nil
		}
		return false, r.report(ctx, p, err)
	}
	return true, r.verbosef("removed '%s'\n", p)
}

// removeDir deletes the empty directory p. On object stores a prefix
// vanishes with its last object, which counts as removed.
func (r *rmRun) removeDir(ctx context.Context, p cloudpath.Path) (bool, error) {
	if ok, err := r.confirm(ctx, "remove directory '%s'?", p); !ok || err != nil {
		return false, err
	}
	if err := p.Rmdir(ctx); err != nil {
		if !errors.Is(err, cloudpath.ErrNotExist) || !p.Scheme().IsCloud() {
			return false, r.report(ctx, p, err)
		}
	}
	return true, r.verbosef("removed directory '%s'\n", p)
}

func (r *rmRun) confirm(ctx context.Context, format string, p cloudpath.Path) (bool, error) {
	if !r.flags.interactive {
		return true, nil
	}
	return r.prompter.Confirm(ctx, fmt.Sprintf(format, p))
}

func (r *rmRun) verbosef(format string, args ...any) error {
	if !r.flags.verbose {
		return nil
	}
	_, err := fmt.Fprintf(r.in.hc.Stdout, format, args...)
	return err
}

// report prints a failure for p, returning err only when it is fatal.
func (r *rmRun) report(ctx context.Context, p cloudpath.Path, err error) error {
	if fatal(ctx, err) {
		return err
	}
	r.in.errorf("cannot remove '%s': %s", p, cloudpath.Describe(err))
	return nil
}

func isDotOperand(s string) bool {
	base := filepath.Base(s)
	return base == "." || base == ".."
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
