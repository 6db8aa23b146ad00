// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/cloudsh/cloudsh/internal/window"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/spf13/pflag"
)

const stdinName = "standard input"

// legacyCount matches the obsolete "-5" form of "-n 5".
var legacyCount = regexp.MustCompile(`^-[0-9]+$`)

type (
	// countValue backs both -n and -c so that the last one given wins.
	countValue struct {
		unit *window.Unit
		raw  *string
		set  window.Unit
	}

	// windowFlags are the options head and tail share.
	windowFlags struct {
		unit    window.Unit
		raw     string
		quiet   bool
		verbose bool
		zero    bool
	}

	// windowOperand is one file or stdin operand of head or tail.
	windowOperand struct {
		name  string
		path  cloudpath.Path
		stdin bool
	}
)

func (v *countValue) String() string { return *v.raw }
func (v *countValue) Type() string   { return "NUM" }

func (v *countValue) Set(s string) error {
	*v.unit = v.set
	*v.raw = s
	return nil
}

func (f *windowFlags) register(fs *pflag.FlagSet, defaultLines string) {
	f.unit, f.raw = window.Lines, defaultLines
	fs.VarP(&countValue{unit: &f.unit, raw: &f.raw, set: window.Bytes}, "bytes", "c", "print NUM bytes")
	fs.VarP(&countValue{unit: &f.unit, raw: &f.raw, set: window.Lines}, "lines", "n", "print NUM lines")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "never print headers giving file names")
	fs.BoolVar(&f.quiet, "silent", false, "same as --quiet")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "always print headers giving file names")
	fs.BoolVarP(&f.zero, "zero-terminated", "z", false, "line delimiter is NUL, not newline")
}

// count parses the -n/-c operand.
func (f *windowFlags) count() (window.Count, error) {
	return window.ParseCount(f.raw, f.unit)
}

// rewriteLegacyCount turns "-5" into "-n5". Values of options that take
// an argument are left alone, as is everything after "--".
func rewriteLegacyCount(args []string, valued ...string) []string {
	out := make([]string, len(args))
	copy(out, args)
	takesValue := make(map[string]bool, len(valued))
	for _, v := range valued {
		takesValue[v] = true
	}
	for i := 1; i < len(out); i++ {
		arg := out[i]
		if arg == "--" {
			break
		}
		if takesValue[out[i-1]] {
			continue
		}
		if legacyCount.MatchString(arg) {
			out[i] = "-n" + arg[1:]
		}
	}
	return out
}

// windowOperands resolves the operands of head or tail. "-" and an empty
// list stand for stdin.
func (in *invocation) windowOperands(ctx context.Context, args []string) ([]windowOperand, error) {
	if len(args) == 0 {
		args = []string{"-"}
	}
	var ops []windowOperand
	for _, arg := range args {
		if arg == "-" {
			ops = append(ops, windowOperand{name: stdinName, stdin: true})
			continue
		}
		expanded, err := in.expand(ctx, []string{arg})
		if err != nil {
			return nil, err
		}
		for _, name := range expanded {
			p, err := in.resolve(ctx, name)
			if err != nil {
				if errors.Is(err, cloudpath.ErrUnsupportedScheme) {
					in.errorf("cannot open '%s' for reading: %v", name, err)
					continue
				}
				return nil, err
			}
			ops = append(ops, windowOperand{name: name, path: p})
		}
	}
	return ops, nil
}

// printWindows writes the window of every operand to stdout, with headers
// when more than one operand is given. Per-operand failures are reported.
func (in *invocation) printWindows(ctx context.Context, ops []windowOperand, spec window.Spec, quiet, verbose bool) error {
	headers := window.ShowHeaders(len(ops), quiet, verbose)
	first := true
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		w, err := in.computeWindow(ctx, op, spec)
		if err != nil {
			if fatal(ctx, err) {
				return err
			}
			in.reportWindowError(op, err)
			continue
		}
		if headers {
			if _, err := io.WriteString(in.hc.Stdout, window.Header(op.name, first)); err != nil {
				return err
			}
			first = false
		}
		if _, err := in.hc.Stdout.Write(w.Content); err != nil {
			return err
		}
	}
	return in.result()
}

func (in *invocation) computeWindow(ctx context.Context, op windowOperand, spec window.Spec) (window.Window, error) {
	if op.stdin {
		return window.Compute(&ctxReader{ctx: ctx, r: in.hc.Stdin}, spec)
	}
	return window.ComputePath(ctx, op.path, spec)
}

func (in *invocation) reportWindowError(op windowOperand, err error) {
	switch {
	case errors.Is(err, cloudpath.ErrIsDir):
		in.errorf("error reading '%s': Is a directory", op.name)
	case errors.Is(err, cloudpath.ErrNotExist), errors.Is(err, cloudpath.ErrPermission):
		in.errorf("cannot open '%s' for reading: %s", op.name, cloudpath.Describe(err))
	default:
		in.errorf("error reading '%s': %s", op.name, cloudpath.Describe(err))
	}
}

// invalidCount reports a bad -n/-c operand.
func (in *invocation) invalidCount(err error) error {
	var ice *window.InvalidCountError
	if errors.As(err, &ice) {
		in.errorf("%v", ice)
		return errReported
	}
	return fmt.Errorf("parse count: %w", err)
}
