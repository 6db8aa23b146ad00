// SPDX-License-Identifier: MPL-2.0

// Package types defines small value types shared by the cloudsh command
// layer and its engines. It imports only the standard library.
package types

import (
	"errors"
	"fmt"
	"strconv"
)

// Process exit statuses used across cloudsh. The interrupt and broken-pipe
// codes follow the shell convention of 128 + signal number.
const (
	ExitSuccess     ExitCode = 0
	ExitFailure     ExitCode = 1
	ExitNotFound    ExitCode = 127
	ExitInterrupted ExitCode = 130
	ExitBrokenPipe  ExitCode = 141
)

// ErrInvalidExitCode is the sentinel error wrapped by InvalidExitCodeError.
var ErrInvalidExitCode = errors.New("invalid exit code")

type (
	// ExitCode represents a process exit status code.
	// Exit codes are in the range 0-255 on POSIX systems.
	// The zero value (0) means success.
	ExitCode int

	// InvalidExitCodeError is returned when an ExitCode is outside the
	// valid range (0-255).
	InvalidExitCodeError struct {
		Value ExitCode
	}
)

// Error implements the error interface.
func (e *InvalidExitCodeError) Error() string {
	return fmt.Sprintf("invalid exit code %d (must be in range 0-255)", e.Value)
}

// Unwrap returns ErrInvalidExitCode so callers can use errors.Is for programmatic detection.
func (e *InvalidExitCodeError) Unwrap() error { return ErrInvalidExitCode }

// Validate returns an error if the ExitCode is outside the valid range (0-255).
func (c ExitCode) Validate() error {
	if c < 0 || c > 255 {
		return &InvalidExitCodeError{Value: c}
	}
	return nil
}

// IsSuccess returns true if the exit code indicates successful execution.
func (c ExitCode) IsSuccess() bool { return c == ExitSuccess }

// IsSignal reports whether the code encodes termination by a signal (128+n).
func (c ExitCode) IsSignal() bool { return c > 128 && c <= 255 }

// String returns the decimal string representation of the ExitCode.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
