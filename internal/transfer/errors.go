// SPDX-License-Identifier: MPL-2.0

package transfer

import (
	"errors"
	"fmt"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

// Error kinds.
const (
	KindUnknown Kind = iota
	KindNoSuchDirectory
	KindTargetIsDirectory
	KindSourceMissing
	KindPermissionDenied
	KindProviderRejectedOverwrite
	KindOmitDirectory
	KindInvalidArgument
)

// ErrFailed is returned by RunCopy and RunMove when at least one source
// failed. Each failure has already been passed to Options.Report.
var ErrFailed = errors.New("one or more transfers failed")

type (
	// Kind classifies a transfer failure.
	Kind int

	// Error is a structured transfer failure. Its message follows the
	// coreutils wording without the command prefix.
	Error struct {
		Kind Kind
		// Op is the verb used in the message ("copy", "move", "stat").
		Op   string
		Path string
		// Dest is set for two-operand failures.
		Dest string
		Err  error
	}
)

func (k Kind) String() string {
	switch k {
	case KindNoSuchDirectory:
		return "NoSuchDirectory"
	case KindTargetIsDirectory:
		return "TargetIsDirectory"
	case KindSourceMissing:
		return "SourceMissing"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindProviderRejectedOverwrite:
		return "ProviderRejectedOverwrite"
	case KindOmitDirectory:
		return "OmitDirectory"
	case KindInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindOmitDirectory:
		return fmt.Sprintf("-r not specified; omitting directory '%s'", e.Path)
	case KindTargetIsDirectory:
		return fmt.Sprintf("cannot overwrite directory '%s' with non-directory", e.Path)
	case KindNoSuchDirectory:
		return fmt.Sprintf("cannot create '%s': No such file or directory", e.Path)
	case KindSourceMissing:
		return fmt.Sprintf("cannot stat '%s': No such file or directory", e.Path)
	case KindInvalidArgument:
		return e.Err.Error()
	}
	if e.Dest != "" {
		return fmt.Sprintf("cannot %s '%s' to '%s': %s", e.Op, e.Path, e.Dest, cloudpath.Describe(e.Err))
	}
	return fmt.Sprintf("cannot %s '%s': %s", e.Op, e.Path, cloudpath.Describe(e.Err))
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

func invalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Err: fmt.Errorf(format, args...)}
}

// classify picks the kind for a provider error raised while executing a
// transfer.
func classify(err error) Kind {
	switch {
	case errors.Is(err, cloudpath.ErrObjectNewer):
		return KindProviderRejectedOverwrite
	case errors.Is(err, cloudpath.ErrPermission):
		return KindPermissionDenied
	default:
		return KindUnknown
	}
}
