// SPDX-License-Identifier: MPL-2.0

// Package follow implements tail -f: a polling loop that emits bytes
// appended to one or more files and survives truncation, replacement and
// disappearance of the files it watches.
package follow

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudsh/cloudsh/internal/window"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/charmbracelet/log"
)

// DefaultInterval is the sleep between polls when Options.Interval is unset.
const DefaultInterval = time.Second

// ErrNoFilesRemaining is returned by Run when every followed file became
// unreadable and retry is off.
var ErrNoFilesRemaining = errors.New("no files remaining")

// tailCheckSize is how many already-emitted bytes are compared when a
// cloud object grows under a new generation.
const tailCheckSize = 256

type (
	// Clock is the time source for sleeping between polls.
	Clock interface {
		Now() time.Time
		After(d time.Duration) <-chan time.Time
	}

	// PIDChecker reports whether a process is still running.
	PIDChecker func(ctx context.Context, pid int32) (bool, error)

	// Input is one operand of the follow run. Stdin operands set Reader;
	// they are printed once and never polled.
	Input struct {
		Path   cloudpath.Path
		Name   string
		Reader io.Reader
	}

	// Options configures an Engine.
	Options struct {
		// Window selects the initial output of each file.
		Window   window.Spec
		Interval time.Duration
		// PID stops following once the process exits. Zero disables it.
		PID int32
		// Retry keeps polling files that are missing or became
		// inaccessible.
		Retry bool
		// ByName re-opens files that were replaced (-F). It implies Retry.
		ByName  bool
		Quiet   bool
		Verbose bool
		// Prefix starts every notice line, e.g. "cloudsh tail".
		Prefix string
		Stdout io.Writer
		Stderr io.Writer
		Clock  Clock
		// PIDAlive overrides the process check.
		PIDAlive PIDChecker
		// Wake, when set, ends a sleep early. Polling stays authoritative.
		Wake   <-chan struct{}
		Logger *log.Logger
	}

	// target is the state of one followed file.
	target struct {
		path     cloudpath.Path
		name     string
		size     int64
		identity cloudpath.Identity
		// present is false while the file is missing.
		present bool
		// alive is false once the file is no longer polled.
		alive     bool
		unchanged int
		// tail holds the last bytes before offset size, when known.
		tail []byte
	}

	// Engine runs the follow loop. It is single-threaded; all targets are
	// polled in order on every tick.
	Engine struct {
		opts    Options
		inputs  []Input
		targets []*target
		out     *bufio.Writer
		headers bool
		// last is the target that produced the most recent output.
		last        *target
		wroteHeader bool
		started     bool
	}

	realClock struct{}
)

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// New creates an Engine over inputs.
func New(inputs []Input, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.PIDAlive == nil {
		opts.PIDAlive = processAlive
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.ByName {
		opts.Retry = true
	}
	return &Engine{
		opts:    opts,
		inputs:  inputs,
		out:     bufio.NewWriter(opts.Stdout),
		headers: window.ShowHeaders(len(inputs), opts.Quiet, opts.Verbose),
	}
}

// Run prints the initial window of every input and then polls until the
// context is canceled, the watched process exits, or no file is left to
// follow. Process exit returns nil. Cancellation flushes pending output
// and returns the context error. A failed write to stdout is returned
// wrapped, so callers can detect a closed pipe with
// errors.Is(err, syscall.EPIPE).
func (e *Engine) Run(ctx context.Context) error {
	if err := e.start(ctx); err != nil {
		return e.finish(err)
	}
	if len(e.targets) == 0 {
		return e.finish(nil)
	}

	for {
		if !e.anyAlive() {
			return e.finish(ErrNoFilesRemaining)
		}
		if e.opts.PID != 0 {
			alive, err := e.opts.PIDAlive(ctx, e.opts.PID)
			if err != nil {
				e.opts.Logger.Debug("pid check failed", "pid", e.opts.PID, "err", err)
			}
			if err == nil && !alive {
				return e.finish(e.PollOnce(ctx))
			}
		}

		select {
		case <-ctx.Done():
			return e.finish(ctx.Err())
		case <-e.opts.Clock.After(e.opts.Interval):
		case <-e.opts.Wake:
		}

		if err := e.PollOnce(ctx); err != nil {
			return e.finish(err)
		}
	}
}

// finish flushes buffered output before returning err.
func (e *Engine) finish(err error) error {
	flushErr := e.flush()
	if err != nil {
		return err
	}
	return flushErr
}

// start prints the initial windows and builds the poll targets.
func (e *Engine) start(ctx context.Context) error {
	if e.started {
		return nil
	}
	e.started = true

	for _, in := range e.inputs {
		name := in.Name
		if name == "" {
			name = in.Path.String()
		}
		if in.Reader != nil {
			if err := e.initialReader(name, in.Reader); err != nil {
				return err
			}
			continue
		}

		t := &target{path: in.Path, name: name, alive: true}
		e.targets = append(e.targets, t)
		if err := e.initialFile(ctx, t); err != nil {
			return err
		}
	}
	return e.flush()
}

func (e *Engine) initialReader(name string, r io.Reader) error {
	w, err := window.Compute(r, e.opts.Window)
	if err != nil {
		e.notice("error reading '%s': %v", name, err)
		return nil
	}
	if err := e.header(nil, name); err != nil {
		return err
	}
	return e.write(w.Content)
}

func (e *Engine) initialFile(ctx context.Context, t *target) error {
	info, err := t.path.Stat(ctx)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.notice("cannot open '%s' for reading: %s", t.name, cloudpath.Describe(err))
		t.alive = e.opts.Retry && errors.Is(err, cloudpath.ErrNotExist)
		return nil
	case info.IsDir:
		e.notice("error reading '%s': Is a directory", t.name)
		t.alive = false
		return nil
	}

	w, err := window.ComputeSized(ctx, t.path, info.Size, e.opts.Window)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.notice("error reading '%s': %s", t.name, cloudpath.Describe(err))
		t.alive = e.opts.Retry
		return nil
	}
	t.present = true
	t.size = info.Size
	t.identity = info.Identity
	if mode := e.opts.Window.Mode; mode == window.Last || mode == window.From {
		t.remember(w.Content)
	}
	if err := e.header(t, t.name); err != nil {
		return err
	}
	return e.write(w.Content)
}

// PollOnce checks every live target once and emits new data.
func (e *Engine) PollOnce(ctx context.Context) error {
	if err := e.start(ctx); err != nil {
		return err
	}
	for _, t := range e.targets {
		if !t.alive {
			continue
		}
		if err := e.poll(ctx, t); err != nil {
			return err
		}
	}
	return e.flush()
}

func (e *Engine) poll(ctx context.Context, t *target) error {
	info, err := t.path.Stat(ctx)
	if err == nil && info.IsDir {
		err = fmt.Errorf("%s: %w", t.name, cloudpath.ErrIsDir)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if t.present {
			e.notice("'%s' has become inaccessible: %s", t.name, cloudpath.Describe(err))
			t.present = false
		}
		if !e.opts.Retry {
			t.alive = false
		}
		e.opts.Logger.Debug("stat failed", "file", t.name, "err", err)
		return nil
	}

	if !t.present {
		e.notice("'%s' has appeared;  following new file", t.name)
		return e.reset(ctx, t, info)
	}

	if !t.identity.IsZero() && !info.Identity.IsZero() && t.identity != info.Identity {
		// Object stores mint a new generation on every write, so growth
		// under a new generation is an append as long as the bytes already
		// shown are still in place.
		if info.Identity.Kind == cloudpath.IdentityGeneration && info.Size >= t.size && e.sameTail(ctx, t) {
			t.identity = info.Identity
		} else {
			e.notice("'%s' has been replaced;  following new file", t.name)
			return e.reset(ctx, t, info)
		}
	}

	switch {
	case info.Size > t.size:
		t.unchanged = 0
		return e.emit(ctx, t, info.Size)
	case info.Size < t.size:
		e.notice("%s: file truncated", t.name)
		t.size = 0
		t.tail = nil
		t.unchanged = 0
	default:
		t.unchanged++
	}
	return nil
}

// reset starts following a new incarnation of t from byte 0.
func (e *Engine) reset(ctx context.Context, t *target, info cloudpath.Info) error {
	t.present = true
	t.identity = info.Identity
	t.size = 0
	t.unchanged = 0
	t.tail = nil
	if info.Size == 0 {
		return nil
	}
	return e.emit(ctx, t, info.Size)
}

// emit writes [t.size, end) of t and advances t.size by what was read.
func (e *Engine) emit(ctx context.Context, t *target, end int64) error {
	r, err := t.path.OpenRead(ctx, t.size, end-t.size)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.notice("error reading '%s': %s", t.name, cloudpath.Describe(err))
		if !e.opts.Retry {
			t.alive = false
		}
		return nil
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if len(data) > 0 {
		if herr := e.header(t, t.name); herr != nil {
			return herr
		}
		if werr := e.write(data); werr != nil {
			return werr
		}
		t.size += int64(len(data))
		t.remember(data)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.notice("error reading '%s': %s", t.name, cloudpath.Describe(err))
	}
	return nil
}

// remember appends data, which ends at offset size, to the kept tail.
func (t *target) remember(data []byte) {
	if len(data) >= tailCheckSize {
		t.tail = bytes.Clone(data[len(data)-tailCheckSize:])
		return
	}
	t.tail = append(t.tail, data...)
	if extra := len(t.tail) - tailCheckSize; extra > 0 {
		t.tail = append(t.tail[:0], t.tail[extra:]...)
	}
}

// sameTail reports whether the object still holds the kept tail just
// before offset size. An unknown tail or a failed read counts as a match.
func (e *Engine) sameTail(ctx context.Context, t *target) bool {
	n := int64(len(t.tail))
	if n == 0 || n != min(int64(tailCheckSize), t.size) {
		return true
	}
	r, err := t.path.OpenRead(ctx, t.size-n, n)
	if err != nil {
		e.opts.Logger.Debug("tail check failed", "file", t.name, "err", err)
		return true
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		e.opts.Logger.Debug("tail check failed", "file", t.name, "err", err)
		return true
	}
	return bytes.Equal(got, t.tail)
}

// header prints the "==> name <==" line when output switches to t.
// A nil t is a one-shot input and always gets its header.
func (e *Engine) header(t *target, name string) error {
	if !e.headers || (t != nil && e.last == t) {
		return nil
	}
	e.last = t
	first := !e.wroteHeader
	e.wroteHeader = true
	if _, err := e.out.WriteString(window.Header(name, first)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (e *Engine) write(p []byte) error {
	if _, err := e.out.Write(p); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (e *Engine) flush() error {
	if err := e.out.Flush(); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// notice prints a status line to stderr after flushing pending output so
// the two streams stay ordered on a shared terminal.
func (e *Engine) notice(format string, args ...any) {
	_ = e.out.Flush() //nolint:errcheck // write errors surface on the next data write
	msg := fmt.Sprintf(format, args...)
	if e.opts.Prefix != "" {
		msg = e.opts.Prefix + ": " + msg
	}
	fmt.Fprintln(e.opts.Stderr, msg)
}

func (e *Engine) anyAlive() bool {
	for _, t := range e.targets {
		if t.alive {
			return true
		}
	}
	return false
}
