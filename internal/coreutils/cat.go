// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/spf13/pflag"
)

type (
	// catCommand concatenates files to standard output.
	catCommand struct {
		baseCommand
	}

	catFlags struct {
		number          bool
		numberNonblank  bool
		squeezeBlank    bool
		showEnds        bool
		showTabs        bool
		showNonprinting bool
		showAll         bool
		e, t, u         bool
	}

	// catFormatter applies the line-oriented options. Its state carries
	// over between files, as line numbers do in coreutils.
	catFormatter struct {
		flags catFlags
		line  int
		// blankRun counts consecutive empty lines seen.
		blankRun int
		// midLine is set when the previous file ended without a newline.
		midLine bool
	}
)

func init() {
	RegisterDefault(newCatCommand())
}

func newCatCommand() *catCommand {
	return &catCommand{baseCommand{
		name:  "cat",
		usage: "[OPTION]... [FILE]...",
		about: "Concatenate FILE(s) to standard output. With no FILE, or when FILE is -, read standard input.",
	}}
}

func (c *catCommand) flagSet(f *catFlags) *pflag.FlagSet {
	fs := c.newFlagSet()
	fs.BoolVarP(&f.showAll, "show-all", "A", false, "equivalent to -vET")
	fs.BoolVarP(&f.numberNonblank, "number-nonblank", "b", false, "number nonempty output lines, overrides -n")
	fs.BoolVarP(&f.e, "e", "e", false, "equivalent to -vE")
	fs.BoolVarP(&f.showEnds, "show-ends", "E", false, "display $ at end of each line")
	fs.BoolVarP(&f.number, "number", "n", false, "number all output lines")
	fs.BoolVarP(&f.squeezeBlank, "squeeze-blank", "s", false, "suppress repeated empty output lines")
	fs.BoolVarP(&f.t, "t", "t", false, "equivalent to -vT")
	fs.BoolVarP(&f.showTabs, "show-tabs", "T", false, "display TAB characters as ^I")
	fs.BoolVarP(&f.u, "u", "u", false, "(ignored)")
	fs.BoolVarP(&f.showNonprinting, "show-nonprinting", "v", false, "use ^ and M- notation, except for LFD and TAB")
	return fs
}

// SupportedFlags returns the flags supported by this command.
func (c *catCommand) SupportedFlags() []FlagInfo {
	return flagInfos(c.flagSet(&catFlags{}))
}

// normalize folds the shorthand options into the individual ones.
func (f *catFlags) normalize() {
	if f.showAll {
		f.showNonprinting, f.showEnds, f.showTabs = true, true, true
	}
	if f.e {
		f.showNonprinting, f.showEnds = true, true
	}
	if f.t {
		f.showNonprinting, f.showTabs = true, true
	}
	if f.numberNonblank {
		f.number = false
	}
}

func (f *catFlags) plain() bool {
	return !f.number && !f.numberNonblank && !f.squeezeBlank && !f.showEnds && !f.showTabs && !f.showNonprinting
}

// Run executes the cat command.
func (c *catCommand) Run(ctx context.Context, args []string) error {
	in := c.start(ctx)
	var f catFlags
	fs := c.flagSet(&f)
	if err := in.parse(fs, args); err != nil {
		return err
	}
	f.normalize()

	operands := fs.Args()
	if len(operands) == 0 {
		operands = []string{"-"}
	}

	out := bufio.NewWriter(in.hc.Stdout)
	cf := &catFormatter{flags: f}
	for _, op := range operands {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := catOperand(ctx, in, op, out, cf)
		if err == nil {
			continue
		}
		if fatal(ctx, err) {
			return err
		}
		in.errorf("%s", err)
	}
	if err := out.Flush(); err != nil {
		return err
	}
	return in.result()
}

func catOperand(ctx context.Context, in *invocation, op string, out *bufio.Writer, cf *catFormatter) error {
	if op == "-" {
		return cf.copy(ctx, out, in.hc.Stdin)
	}

	ops, err := in.expand(ctx, []string{op})
	if err != nil {
		return err
	}
	for _, name := range ops {
		p, err := in.resolve(ctx, name)
		if err != nil {
			return err
		}
		r, err := openFile(ctx, p)
		if err != nil {
			return err
		}
		err = cf.copy(ctx, out, r)
		r.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// openFile opens p for reading, rejecting directories with the
// coreutils message.
func openFile(ctx context.Context, p cloudpath.Path) (io.ReadCloser, error) {
	info, err := p.Stat(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", p, cloudpath.Describe(err))
	}
	if info.IsDir {
		return nil, fmt.Errorf("%s: Is a directory", p)
	}
	r, err := p.OpenRead(ctx, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", p, cloudpath.Describe(err))
	}
	return r, nil
}

// copy writes r to out with the formatting options applied. Read errors
// are returned as is; write errors are wrapped so they stay fatal.
func (cf *catFormatter) copy(ctx context.Context, out *bufio.Writer, r io.Reader) error {
	r = &ctxReader{ctx: ctx, r: r}
	if cf.flags.plain() {
		_, err := out.ReadFrom(r)
		return err
	}

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if werr := cf.writeLine(out, line); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (cf *catFormatter) writeLine(out *bufio.Writer, line []byte) error {
	continued := cf.midLine
	terminated := line[len(line)-1] == '\n'
	body := line
	if terminated {
		body = line[:len(line)-1]
	}
	cf.midLine = !terminated

	if !continued {
		if len(body) == 0 && terminated {
			cf.blankRun++
			if cf.flags.squeezeBlank && cf.blankRun > 1 {
				return nil
			}
		} else {
			cf.blankRun = 0
		}
		if cf.flags.number || (cf.flags.numberNonblank && len(body) > 0) {
			cf.line++
			fmt.Fprintf(out, "%6d\t", cf.line)
		}
	}

	for _, b := range body {
		cf.writeByte(out, b)
	}
	if terminated {
		if cf.flags.showEnds {
			out.WriteByte('$')
		}
		return out.WriteByte('\n')
	}
	return nil
}

// writeByte renders b using the -v and -T notations.
func (cf *catFormatter) writeByte(out *bufio.Writer, b byte) {
	switch {
	case b == '\t':
		if cf.flags.showTabs {
			out.WriteString("^I")
			return
		}
		out.WriteByte(b)
		return
	case !cf.flags.showNonprinting:
		out.WriteByte(b)
		return
	}

	if b >= 128 {
		out.WriteString("M-")
		b -= 128
	}
	switch {
	case b < 32:
		out.WriteByte('^')
		out.WriteByte(b + 64)
	case b == 127:
		out.WriteString("^?")
	default:
		out.WriteByte(b)
	}
}

// ctxReader stops a copy once the context is canceled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
