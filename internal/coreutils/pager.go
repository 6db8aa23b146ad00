// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/cloudsh/cloudsh/internal/tui"

	"github.com/spf13/pflag"
)

const moreSeparator = "::::::::::::::"

type (
	// pagerCommand implements less and more. On a terminal the content is
	// shown in the interactive pager; otherwise it is copied to stdout.
	pagerCommand struct {
		baseCommand
		more bool
	}

	pagerFlags struct {
		lineNumbers bool
		chop        bool
		pattern     string
		ignoreCase  bool
		squeeze     bool
		quitIfOne   bool
		screenLines int
		ignored     bool
	}

	pagerOperand struct {
		name    string
		content []byte
	}
)

func init() {
	RegisterDefault(newLessCommand())
	RegisterDefault(newMoreCommand())
}

func newLessCommand() *pagerCommand {
	return &pagerCommand{baseCommand: baseCommand{
		name:  "less",
		usage: "[OPTION]... [FILE]...",
		about: "View FILE(s) one screen at a time, scrolling in both directions.",
	}}
}

func newMoreCommand() *pagerCommand {
	return &pagerCommand{baseCommand: baseCommand{
		name:  "more",
		usage: "[OPTION]... [FILE]...",
		about: "View FILE(s) one screen at a time.",
	}, more: true}
}

func (c *pagerCommand) flagSet(f *pagerFlags) *pflag.FlagSet {
	fs := c.newFlagSet()
	fs.BoolVarP(&f.squeeze, "squeeze-blank-lines", "s", false, "squeeze multiple blank lines into one")
	fs.StringVarP(&f.pattern, "pattern", "p", "", "start at the first line matching PATTERN")
	if c.more {
		fs.IntVarP(&f.screenLines, "lines", "n", 0, "the number of lines per screenful")
		fs.BoolVarP(&f.ignored, "silent", "d", false, "display help instead of ringing bell")
		fs.BoolVarP(&f.ignored, "clean-print", "c", false, "do not scroll, clear screen and display text")
		fs.BoolVarP(&f.ignored, "no-pause", "f", false, "count logical lines, rather than screen lines")
		return fs
	}
	fs.BoolVarP(&f.lineNumbers, "LINE-NUMBERS", "N", false, "display line numbers")
	fs.BoolVarP(&f.chop, "chop-long-lines", "S", false, "cut long lines instead of wrapping them")
	fs.BoolVarP(&f.ignoreCase, "ignore-case", "i", false, "ignore case in searches")
	fs.BoolVarP(&f.ignoreCase, "IGNORE-CASE", "I", false, "ignore case in searches")
	fs.BoolVarP(&f.quitIfOne, "quit-if-one-screen", "F", false, "quit if the content fits on the first screen")
	fs.BoolVarP(&f.ignored, "RAW-CONTROL-CHARS", "R", false, "output raw control characters")
	fs.BoolVarP(&f.ignored, "no-init", "X", false, "do not clear the screen")
	return fs
}

// SupportedFlags returns the flags supported by this command.
func (c *pagerCommand) SupportedFlags() []FlagInfo {
	return flagInfos(c.flagSet(&pagerFlags{}))
}

// Run executes less or more.
func (c *pagerCommand) Run(ctx context.Context, args []string) error {
	in := c.start(ctx)
	var f pagerFlags
	fs := c.flagSet(&f)
	if err := in.parse(fs, args); err != nil {
		return err
	}
	operands := fs.Args()
	if len(operands) == 0 {
		operands = []string{"-"}
	}

	if !tui.IsTerminal(in.hc.Stdout) {
		return c.copyOut(ctx, in, &f, operands)
	}

	docs := c.load(ctx, in, &f, operands)
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, doc := range docs {
		if err := c.page(ctx, in, &f, doc); err != nil {
			return err
		}
	}
	return in.result()
}

// copyOut writes the operands to a non-terminal stdout the way cat does.
func (c *pagerCommand) copyOut(ctx context.Context, in *invocation, f *pagerFlags, operands []string) error {
	out := bufio.NewWriter(in.hc.Stdout)
	cf := &catFormatter{flags: catFlags{number: f.lineNumbers, squeezeBlank: f.squeeze}}
	headers := c.more && len(operands) > 1
	for _, op := range operands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if headers {
			if _, err := io.WriteString(out, moreSeparator+"\n"+op+"\n"+moreSeparator+"\n"); err != nil {
				return err
			}
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

// load reads every operand into memory, reporting the ones that fail.
func (c *pagerCommand) load(ctx context.Context, in *invocation, f *pagerFlags, operands []string) []pagerOperand {
	var docs []pagerOperand
	for _, op := range operands {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		cf := &catFormatter{flags: catFlags{squeezeBlank: f.squeeze}}
		err := catOperand(ctx, in, op, w, cf)
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			if fatal(ctx, err) {
				return nil
			}
			in.errorf("%s", err)
			continue
		}
		name := op
		if op == "-" {
			name = stdinName
		}
		docs = append(docs, pagerOperand{name: name, content: buf.Bytes()})
	}
	return docs
}

func (c *pagerCommand) page(ctx context.Context, in *invocation, f *pagerFlags, doc pagerOperand) error {
	if f.quitIfOne || c.more {
		_, height := tui.TerminalSize(in.hc.Stdout)
		if f.screenLines > 0 {
			height = f.screenLines
		}
		if strings.Count(string(doc.content), "\n") < height {
			_, err := in.hc.Stdout.Write(doc.content)
			return err
		}
	}

	err := in.hc.Pager(ctx, tui.PagerOptions{
		Title:       doc.name,
		Content:     string(doc.content),
		LineNumbers: f.lineNumbers,
		Chop:        f.chop,
		Pattern:     f.pattern,
		IgnoreCase:  f.ignoreCase,
		QuitAtEOF:   c.more,
		Output:      in.hc.Stdout,
	})
	if err != nil && !fatal(ctx, err) {
		in.errorf("%v", err)
		return errReported
	}
	return err
}
