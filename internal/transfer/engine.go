// SPDX-License-Identifier: MPL-2.0

package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/charmbracelet/log"
)

// DefaultChunkSize is the buffer size for streamed copies.
const DefaultChunkSize = 8 << 20

// Conflict policies, evaluated when the destination already exists.
const (
	Overwrite Policy = iota
	NoClobber
	Interactive
	UpdateNever
	UpdateIfNewer
)

// Transfer modes.
const (
	Copy Mode = iota
	Move
)

// Strategies an executed transfer can take.
const (
	StrategyNone Strategy = iota
	StrategyNative
	StrategyRename
	StrategyStream
)

// Outcome kinds.
const (
	Transferred OutcomeKind = iota
	Skipped
	DirCreated
	DirRemoved
	Failed
)

type (
	// Policy decides what happens when the destination exists.
	Policy int

	// Mode selects copy or move.
	Mode int

	// Strategy records how bytes reached the destination.
	Strategy int

	// OutcomeKind tells what an Outcome reports.
	OutcomeKind int

	// Plan describes one file-level transfer.
	Plan struct {
		Source      cloudpath.Path
		Destination cloudpath.Path
		Policy      Policy
		// Force allows one retry with a forced overwrite when the provider
		// rejects the write because its object is newer.
		Force    bool
		Preserve bool
	}

	// Outcome is the result of one step of a transfer or walk.
	Outcome struct {
		Kind        OutcomeKind
		Mode        Mode
		Source      cloudpath.Path
		Destination cloudpath.Path
		Strategy    Strategy
		Err         error
	}

	// Prompter asks the user a yes/no question.
	Prompter interface {
		Confirm(ctx context.Context, prompt string) (bool, error)
	}

	// Engine executes plans.
	Engine struct {
		prompter  Prompter
		chunkSize int
		logger    *log.Logger
	}

	// Option configures an Engine.
	Option func(*Engine)
)

// WithPrompter sets the prompter used by the Interactive policy. Without
// one, interactive overwrites are declined.
func WithPrompter(p Prompter) Option {
	return func(e *Engine) { e.prompter = p }
}

// WithChunkSize sets the streamed copy buffer size.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		chunkSize: DefaultChunkSize,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (m Mode) String() string {
	if m == Move {
		return "move"
	}
	return "copy"
}

func (s Strategy) String() string {
	switch s {
	case StrategyNative:
		return "native"
	case StrategyRename:
		return "rename"
	case StrategyStream:
		return "stream"
	default:
		return "none"
	}
}

// Transfer copies or moves plan.Source to plan.Destination. A skipped
// transfer returns an Outcome of kind Skipped and a nil error. On failure
// the returned error is an *Error.
func (e *Engine) Transfer(ctx context.Context, plan Plan, mode Mode) (Outcome, error) {
	out := Outcome{Kind: Failed, Mode: mode, Source: plan.Source, Destination: plan.Destination}
	src, dst := plan.Source, plan.Destination
	fail := func(err error) (Outcome, error) {
		out.Err = err
		return out, err
	}

	srcInfo, err := src.Stat(ctx)
	if err != nil {
		if errors.Is(err, cloudpath.ErrNotExist) {
			return fail(&Error{Kind: KindSourceMissing, Op: "stat", Path: src.String(), Err: err})
		}
		return fail(&Error{Kind: classify(err), Op: mode.String(), Path: src.String(), Dest: dst.String(), Err: err})
	}
	if srcInfo.IsDir {
		return fail(&Error{Kind: KindUnknown, Op: mode.String(), Path: src.String(), Dest: dst.String(), Err: cloudpath.ErrIsDir})
	}

	if ok, err := dst.Parent().IsDir(ctx); err != nil {
		return fail(&Error{Kind: classify(err), Op: mode.String(), Path: src.String(), Dest: dst.String(), Err: err})
	} else if !ok {
		return fail(&Error{Kind: KindNoSuchDirectory, Op: mode.String(), Path: dst.String(), Err: cloudpath.ErrNotExist})
	}

	dstInfo, err := dst.Stat(ctx)
	switch {
	case err == nil:
		proceed, err := e.resolveConflict(ctx, plan, srcInfo, dstInfo)
		if err != nil {
			return fail(&Error{Kind: KindUnknown, Op: mode.String(), Path: src.String(), Dest: dst.String(), Err: err})
		}
		if !proceed {
			out.Kind = Skipped
			return out, nil
		}
		if dstInfo.IsDir {
			return fail(&Error{Kind: KindTargetIsDirectory, Op: mode.String(), Path: dst.String(), Err: cloudpath.ErrIsDir})
		}
	case !errors.Is(err, cloudpath.ErrNotExist):
		return fail(&Error{Kind: classify(err), Op: mode.String(), Path: src.String(), Dest: dst.String(), Err: err})
	}

	strategy, err := e.execute(ctx, plan, srcInfo, mode, false)
	if errors.Is(err, cloudpath.ErrObjectNewer) && plan.Force {
		e.logger.Debug("destination is newer, retrying with force", "dst", dst)
		strategy, err = e.execute(ctx, plan, srcInfo, mode, true)
	}
	if err != nil {
		return fail(&Error{Kind: classify(err), Op: mode.String(), Path: src.String(), Dest: dst.String(), Err: err})
	}

	out.Kind = Transferred
	out.Strategy = strategy
	return out, nil
}

// resolveConflict applies the policy to an existing destination and
// reports whether the transfer should go ahead.
func (e *Engine) resolveConflict(ctx context.Context, plan Plan, srcInfo, dstInfo cloudpath.Info) (bool, error) {
	switch plan.Policy {
	case NoClobber, UpdateNever:
		return false, nil
	case Interactive:
		if e.prompter == nil {
			return false, nil
		}
		return e.prompter.Confirm(ctx, fmt.Sprintf("overwrite '%s'?", plan.Destination))
	case UpdateIfNewer:
		return srcInfo.ModTime.After(dstInfo.ModTime), nil
	default:
		return true, nil
	}
}

func (e *Engine) execute(ctx context.Context, plan Plan, srcInfo cloudpath.Info, mode Mode, force bool) (Strategy, error) {
	src, dst := plan.Source, plan.Destination

	if mode == Move && src.SameContainer(dst) {
		if mover, ok := src.Provider().(cloudpath.Mover); ok {
			moved, err := mover.Move(ctx, src.Ref(), dst.Ref())
			if moved || err != nil {
				return StrategyRename, err
			}
			e.logger.Debug("rename not applicable, falling back to copy", "src", src, "dst", dst)
		}
	}

	strategy, err := e.copyFile(ctx, plan, srcInfo, force)
	if err != nil {
		return strategy, err
	}
	if mode == Move {
		if err := src.Delete(ctx); err != nil {
			return strategy, err
		}
	}
	return strategy, nil
}

func (e *Engine) copyFile(ctx context.Context, plan Plan, srcInfo cloudpath.Info, force bool) (Strategy, error) {
	src, dst := plan.Source, plan.Destination

	if src.SameProvider(dst) {
		if copier, ok := src.Provider().(cloudpath.NativeCopier); ok {
			opts := cloudpath.CopyOptions{Preserve: plan.Preserve, Force: force}
			copied, err := copier.NativeCopy(ctx, src.Ref(), dst.Ref(), opts)
			if copied || err != nil {
				return StrategyNative, err
			}
			e.logger.Debug("native copy not applicable, streaming", "src", src, "dst", dst)
		}
	}

	if err := e.stream(ctx, src, dst, srcInfo.ModTime, force); err != nil {
		return StrategyStream, err
	}
	if plan.Preserve {
		if toucher, ok := dst.Provider().(cloudpath.Toucher); ok {
			if err := toucher.Touch(ctx, dst.Ref(), srcInfo.ModTime); err != nil {
				return StrategyStream, err
			}
		}
	}
	return StrategyStream, nil
}

// stream copies src into dst through a bounded buffer. Unless force is
// set, a destination that supports guarded writes rejects the upload when
// it was modified after srcModTime. A failed copy removes the partial
// destination on a best-effort basis.
func (e *Engine) stream(ctx context.Context, src, dst cloudpath.Path, srcModTime time.Time, force bool) error {
	r, err := src.OpenRead(ctx, 0, -1)
	if err != nil {
		return err
	}
	defer r.Close()

	var w io.WriteCloser
	if guarded, ok := dst.Provider().(cloudpath.GuardedWriter); ok && !force {
		w, err = guarded.OpenWriteGuarded(ctx, dst.Ref(), srcModTime)
	} else {
		w, err = dst.OpenWrite(ctx, false)
	}
	if err != nil {
		return err
	}
	_, copyErr := io.CopyBuffer(w, &ctxReader{ctx: ctx, r: r}, make([]byte, e.chunkSize))
	closeErr := w.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		if errors.Is(err, cloudpath.ErrObjectNewer) {
			return err
		}
		if rmErr := dst.Delete(context.WithoutCancel(ctx)); rmErr != nil && !errors.Is(rmErr, cloudpath.ErrNotExist) {
			e.logger.Debug("could not remove partial destination", "dst", dst, "err", rmErr)
		}
		return err
	}
	return nil
}

// ctxReader stops a streamed copy between chunks once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
