// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type (
	// PagerOptions configures Page.
	PagerOptions struct {
		// Title is shown in the status line, usually the file name.
		Title   string
		Content string
		// LineNumbers prefixes every line with its number (less -N).
		LineNumbers bool
		// Chop cuts long lines at the screen edge instead of wrapping
		// them (less -S).
		Chop bool
		// Pattern positions the view at the first matching line (less -p).
		Pattern    string
		IgnoreCase bool
		// QuitAtEOF ends the pager when the user pages past the end, the
		// way more does.
		QuitAtEOF bool
		// Input carries the key presses. Nil reads the controlling
		// terminal, so content may come from a pipe.
		Input     io.Reader
		Output    io.Writer
	}

	pagerModel struct {
		viewport viewport.Model
		lines    []string
		opts     PagerOptions
		pattern  *regexp.Regexp
		// match is the index of the current pattern match, -1 if none.
		match int
		ready bool
		done  bool
	}
)

var (
	statusStyle = lipgloss.NewStyle().Reverse(true)
	numberStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Page shows opts.Content in a scrollable viewport until the user quits
// or ctx is canceled.
func Page(ctx context.Context, opts PagerOptions) error {
	m, err := newPagerModel(opts)
	if err != nil {
		return err
	}

	progOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	} else {
		progOpts = append(progOpts, tea.WithInputTTY())
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}
	if !opts.QuitAtEOF {
		progOpts = append(progOpts, tea.WithAltScreen())
	}

	if _, err := tea.NewProgram(m, progOpts...).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("pager: %w", err)
	}
	return nil
}

func newPagerModel(opts PagerOptions) (*pagerModel, error) {
	m := &pagerModel{
		lines: formatLines(opts.Content, opts.LineNumbers),
		opts:  opts,
		match: -1,
	}
	if opts.Pattern != "" {
		expr := opts.Pattern
		if opts.IgnoreCase {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s'", opts.Pattern)
		}
		m.pattern = re
		m.match = findMatch(m.lines, re, 0)
	}
	return m, nil
}

func (m *pagerModel) Init() tea.Cmd {
	return nil
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "Q", "esc":
			m.done = true
			return m, tea.Quit
		case "g", "home":
			m.viewport.GotoTop()
			return m, nil
		case "G", "end":
			m.viewport.GotoBottom()
			return m, nil
		case "n":
			m.nextMatch()
			return m, nil
		case " ", "enter":
			if m.opts.QuitAtEOF && m.viewport.AtBottom() {
				m.done = true
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *pagerModel) View() string {
	if m.done || !m.ready {
		return ""
	}
	return m.viewport.View() + "\n" + statusStyle.Render(m.status())
}

// resize lays the content out for a width x height screen. The last row
// is reserved for the status line.
func (m *pagerModel) resize(width, height int) {
	body := max(height-1, 1)
	if !m.ready {
		m.viewport = viewport.New(width, body)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = body
	}

	lines := m.lines
	if !m.opts.Chop {
		lines = wrapLines(lines, width)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.match >= 0 {
		m.viewport.SetYOffset(wrappedRow(m.lines, m.match, width, m.opts.Chop))
	}
}

func (m *pagerModel) nextMatch() {
	if m.pattern == nil {
		return
	}
	next := findMatch(m.lines, m.pattern, m.match+1)
	if next < 0 {
		return
	}
	m.match = next
	m.viewport.SetYOffset(wrappedRow(m.lines, m.match, m.viewport.Width, m.opts.Chop))
}

func (m *pagerModel) status() string {
	name := m.opts.Title
	if name == "" {
		name = "standard input"
	}
	if m.viewport.AtBottom() {
		return name + " (END)"
	}
	return fmt.Sprintf("%s %d%%", name, int(m.viewport.ScrollPercent()*100))
}

// formatLines splits content into display lines, numbering them when
// requested. A trailing newline does not produce an empty last line.
func formatLines(content string, numbers bool) []string {
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	if !numbers {
		return lines
	}
	for i, l := range lines {
		lines[i] = numberStyle.Render(fmt.Sprintf("%6d ", i+1)) + l
	}
	return lines
}

// wrapLines hard-wraps every line to width display cells.
func wrapLines(lines []string, width int) []string {
	if width <= 0 {
		return lines
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, splitWidth(l, width)...)
	}
	return out
}

func splitWidth(line string, width int) []string {
	if lipgloss.Width(line) <= width {
		return []string{line}
	}
	var (
		parts []string
		cur   strings.Builder
		cells int
	)
	for _, r := range line {
		w := lipgloss.Width(string(r))
		if cells+w > width && cells > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			cells = 0
		}
		cur.WriteRune(r)
		cells += w
	}
	return append(parts, cur.String())
}

// wrappedRow returns the display row of logical line idx.
func wrappedRow(lines []string, idx, width int, chop bool) int {
	if chop || width <= 0 {
		return idx
	}
	row := 0
	for _, l := range lines[:idx] {
		row += len(splitWidth(l, width))
	}
	return row
}

// findMatch returns the index of the first line at or after from that
// matches re, or -1.
func findMatch(lines []string, re *regexp.Regexp, from int) int {
	for i := max(from, 0); i < len(lines); i++ {
		if re.MatchString(lines[i]) {
			return i
		}
	}
	return -1
}
