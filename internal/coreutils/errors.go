// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/cloudsh/cloudsh/pkg/types"
)

var (
	// ErrCommandNotFound is wrapped by the error Registry.Run returns for
	// an unknown command name.
	ErrCommandNotFound = errors.New("command not found")

	// errReported marks a failure whose messages were already printed.
	errReported = errors.New("failed")

	// errHelp ends a command after its usage was printed.
	errHelp = errors.New("help requested")
)

// ExitError carries the exit status of a failed command. Its message has
// already been written to the command's stderr.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// Error implements error.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *ExitError) Unwrap() error { return e.Err }

// ExitCodeOf returns the exit status err stands for.
func ExitCodeOf(err error) types.ExitCode {
	var exitErr *ExitError
	switch {
	case err == nil:
		return types.ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	case IsBrokenPipe(err):
		return types.ExitBrokenPipe
	case errors.Is(err, context.Canceled):
		return types.ExitInterrupted
	default:
		return types.ExitFailure
	}
}

// IsBrokenPipe reports whether err comes from writing to a closed pipe.
func IsBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}

// exitError converts the result of a command into an *ExitError, printing
// the message of errors the command did not report itself.
func exitError(ctx context.Context, name string, err error) error {
	var exitErr *ExitError
	switch {
	case err == nil, errors.Is(err, errHelp):
		return nil
	case errors.As(err, &exitErr):
		return exitErr
	case errors.Is(err, errReported):
		return &ExitError{Code: types.ExitFailure, Err: err}
	case IsBrokenPipe(err):
		return &ExitError{Code: types.ExitBrokenPipe, Err: err}
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return &ExitError{Code: types.ExitInterrupted, Err: err}
	}

	hc := GetHandlerContext(ctx)
	fmt.Fprintf(hc.Stderr, "cloudsh %s: %v\n", name, err)
	return &ExitError{Code: types.ExitFailure, Err: err}
}

// fatal reports whether err must stop a command that otherwise continues
// with its next operand.
func fatal(ctx context.Context, err error) bool {
	return IsBrokenPipe(err) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}
