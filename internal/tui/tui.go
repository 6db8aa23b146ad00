// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"os"

	"golang.org/x/term"
)

// fdHolder is implemented by *os.File and anything else backed by a file
// descriptor.
type fdHolder interface {
	Fd() uintptr
}

// IsTerminal reports whether stream is connected to a terminal. Streams
// that are not backed by a file descriptor never are.
func IsTerminal(stream any) bool {
	f, ok := stream.(fdHolder)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// TerminalSize returns the size of the terminal behind stream, or 80x24
// when it cannot be determined.
func TerminalSize(stream any) (width, height int) {
	if f, ok := stream.(fdHolder); ok {
		if w, h, err := term.GetSize(int(f.Fd())); err == nil && w > 0 && h > 0 {
			return w, h
		}
	}
	return 80, 24
}

// AccessibleFromEnv reports whether the ACCESSIBLE environment variable
// asks for screen-reader friendly prompts.
func AccessibleFromEnv() bool {
	return os.Getenv("ACCESSIBLE") != ""
}
