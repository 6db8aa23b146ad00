// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
)

// Prompter asks yes/no questions. On a terminal it renders a huh confirm
// field; otherwise it prints the question and reads one line of input,
// treating an answer that starts with "y" as yes.
type Prompter struct {
	In  io.Reader
	Out io.Writer
	// Prefix starts every line-mode question, e.g. "cloudsh rm".
	Prefix string
	// Accessible forces line mode even on a terminal.
	Accessible bool

	once   sync.Once
	reader *bufio.Reader
}

// NewPrompter returns a Prompter reading answers from in and writing
// questions to out.
func NewPrompter(prefix string, in io.Reader, out io.Writer, accessible bool) *Prompter {
	return &Prompter{In: in, Out: out, Prefix: prefix, Accessible: accessible}
}

// Confirm asks question and reports the answer. End of input is a no.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	if !p.Accessible && IsTerminal(p.In) && IsTerminal(p.Out) {
		return p.confirmForm(ctx, question)
	}
	return p.confirmLine(ctx, question)
}

func (p *Prompter) confirmForm(ctx context.Context, question string) (bool, error) {
	var yes bool
	field := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&yes)
	form := huh.NewForm(huh.NewGroup(field)).
		WithInput(p.In).
		WithOutput(p.Out).
		WithShowHelp(false)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("prompt: %w", err)
	}
	return yes, nil
}

func (p *Prompter) confirmLine(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.once.Do(func() { p.reader = bufio.NewReader(p.In) })

	prompt := question + " "
	if p.Prefix != "" {
		prompt = p.Prefix + ": " + prompt
	}
	if _, err := io.WriteString(p.Out, prompt); err != nil {
		return false, fmt.Errorf("prompt: %w", err)
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("prompt: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return strings.HasPrefix(answer, "y"), nil
}
