// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package follow

import (
	"errors"
	"syscall"
)

// isFatalWatchError reports inotify resource exhaustion. After one of
// these the watcher delivers nothing more and follow falls back to plain
// polling.
func isFatalWatchError(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
