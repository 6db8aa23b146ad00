// SPDX-License-Identifier: MPL-2.0

package cloudpath

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
)

// Provider implementations map their SDK errors onto these sentinels so
// callers can classify failures with errors.Is regardless of backend.
var (
	ErrNotExist   = fs.ErrNotExist
	ErrExist      = fs.ErrExist
	ErrPermission = fs.ErrPermission
	ErrIsDir      = errors.New("is a directory")
	ErrNotDir     = errors.New("not a directory")
	ErrNotEmpty   = errors.New("directory not empty")

	// ErrUnsupportedScheme is returned by Parse for an unknown "scheme://".
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrObjectNewer is returned when a provider refuses to overwrite an
	// object that is newer than the data being written. Retrying with
	// CopyOptions.Force bypasses the check.
	ErrObjectNewer = errors.New("cloud object is newer")
)

// CheckNotNewer returns an error wrapping ErrObjectNewer when existing
// describes a file at ref modified after notAfter.
func CheckNotNewer(ref Ref, existing Info, notAfter time.Time) error {
	if !existing.IsDir && existing.ModTime.After(notAfter) {
		return fmt.Errorf("%s: %w", ref, ErrObjectNewer)
	}
	return nil
}

// Describe returns the GNU-style reason text for err, e.g.
// "No such file or directory". Unknown errors are returned verbatim.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotExist):
		return "No such file or directory"
	case errors.Is(err, ErrPermission):
		return "Permission denied"
	case errors.Is(err, ErrExist):
		return "File exists"
	case errors.Is(err, ErrIsDir):
		return "Is a directory"
	case errors.Is(err, ErrNotDir):
		return "Not a directory"
	case errors.Is(err, ErrNotEmpty):
		return "Directory not empty"
	default:
		return err.Error()
	}
}
