// SPDX-License-Identifier: MPL-2.0

package follow

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Waker turns filesystem events on followed local files into wake-ups for
// the poll loop. It watches the parent directories so that files created
// or replaced after start are noticed too.
type Waker struct {
	fsw    *fsnotify.Watcher
	names  map[string]struct{}
	c      chan struct{}
	logger *log.Logger
}

// NewWaker watches files, which must be local filesystem paths.
func NewWaker(files []string, logger *log.Logger) (*Waker, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Waker{
		fsw:    fsw,
		names:  make(map[string]struct{}, len(files)),
		c:      make(chan struct{}, 1),
		logger: logger,
	}
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		w.names[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			// The directory may appear later; polling still covers it.
			logger.Debug("cannot watch directory", "dir", dir, "err", err)
		}
	}
	return w, nil
}

// C delivers at most one pending wake-up.
func (w *Waker) C() <-chan struct{} { return w.c }

// Run forwards events until ctx is done or the watcher breaks. It closes
// the underlying watcher before returning.
func (w *Waker) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Debug("close fsnotify", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("fsnotify event channel closed unexpectedly")
			}
			if _, watched := w.names[filepath.Clean(evt.Name)]; !watched {
				continue
			}
			select {
			case w.c <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("fsnotify error channel closed unexpectedly")
			}
			if isFatalWatchError(err) {
				return fmt.Errorf("fatal fsnotify error: %w", err)
			}
			w.logger.Debug("fsnotify error", "err", err)
		}
	}
}
