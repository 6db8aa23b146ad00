// SPDX-License-Identifier: MPL-2.0

package transfer

import (
	"context"
	"errors"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

type (
	// Walker copies or moves directory trees one file at a time through an
	// Engine. Every step is reported to OnOutcome as it happens and
	// accumulated in the slice returned by Walk.
	Walker struct {
		Engine    *Engine
		Policy    Policy
		Force     bool
		Preserve  bool
		OnOutcome func(Outcome)
	}

	// dirNode is one pending directory of the worklist. pending counts the
	// child directories that have not finished yet.
	dirNode struct {
		src, dst cloudpath.Path
		parent   *dirNode
		pending  int
		failed   bool
	}
)

// Walk transfers the contents of srcDir into dstDir, creating dstDir and
// any subdirectories as needed. In Move mode a source directory is
// removed only after every entry below it was relocated; a failure keeps
// the directory and all of its ancestors in place.
func (w *Walker) Walk(ctx context.Context, srcDir, dstDir cloudpath.Path, mode Mode) []Outcome {
	var outcomes []Outcome
	emit := func(o Outcome) {
		outcomes = append(outcomes, o)
		if w.OnOutcome != nil {
			w.OnOutcome(o)
		}
	}

	stack := []*dirNode{{src: srcDir, dst: dstDir}}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := ctx.Err(); err != nil {
			emit(Outcome{Kind: Failed, Mode: mode, Source: node.src, Destination: node.dst, Err: err})
			w.finish(ctx, node, mode, true, emit)
			continue
		}

		children, err := w.enter(ctx, node, mode, emit)
		if err != nil {
			emit(Outcome{Kind: Failed, Mode: mode, Source: node.src, Destination: node.dst, Err: err})
			w.finish(ctx, node, mode, true, emit)
			continue
		}

		var subdirs []*dirNode
		failed := false
		for _, child := range children {
			info, err := child.Stat(ctx)
			if err != nil {
				emit(Outcome{Kind: Failed, Mode: mode, Source: child, Err: wrapStat(child, err)})
				failed = true
				continue
			}
			target := node.dst.Join(child.Name())
			if info.IsDir {
				subdirs = append(subdirs, &dirNode{src: child, dst: target, parent: node})
				continue
			}
			plan := Plan{Source: child, Destination: target, Policy: w.Policy, Force: w.Force, Preserve: w.Preserve}
			o, err := w.Engine.Transfer(ctx, plan, mode)
			emit(o)
			if err != nil {
				failed = true
			}
		}

		node.pending = len(subdirs)
		// Reverse so the stack pops children in listing order.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
		if node.pending == 0 {
			w.finish(ctx, node, mode, failed, emit)
		} else if failed {
			node.failed = true
		}
	}
	return outcomes
}

// enter creates the destination directory of node and lists its source.
func (w *Walker) enter(ctx context.Context, node *dirNode, mode Mode, emit func(Outcome)) ([]cloudpath.Path, error) {
	info, err := node.dst.Stat(ctx)
	switch {
	case err == nil && !info.IsDir:
		return nil, &Error{Kind: KindUnknown, Op: mode.String(), Path: node.src.String(), Dest: node.dst.String(), Err: cloudpath.ErrNotDir}
	case err == nil:
	case errors.Is(err, cloudpath.ErrNotExist):
		if err := node.dst.Mkdir(ctx, true, true); err != nil {
			return nil, &Error{Kind: classify(err), Op: "create directory", Path: node.dst.String(), Err: err}
		}
		emit(Outcome{Kind: DirCreated, Mode: mode, Source: node.src, Destination: node.dst})
	default:
		return nil, &Error{Kind: classify(err), Op: mode.String(), Path: node.src.String(), Dest: node.dst.String(), Err: err}
	}

	children, err := node.src.Iterdir(ctx)
	if err != nil {
		return nil, &Error{Kind: classify(err), Op: mode.String(), Path: node.src.String(), Dest: node.dst.String(), Err: err}
	}
	return children, nil
}

// finish completes node and walks up the tree completing every ancestor
// whose last pending subdirectory was node.
func (w *Walker) finish(ctx context.Context, node *dirNode, mode Mode, failed bool, emit func(Outcome)) {
	for node != nil {
		failed = failed || node.failed
		if mode == Move && !failed {
			err := node.src.Rmdir(ctx)
			switch {
			case err == nil, errors.Is(err, cloudpath.ErrNotExist) && node.src.Scheme().IsCloud():
				// A cloud prefix disappears with its last object.
				emit(Outcome{Kind: DirRemoved, Mode: mode, Source: node.src, Destination: node.dst})
			default:
				emit(Outcome{Kind: Failed, Mode: mode, Source: node.src, Err: &Error{Kind: classify(err), Op: "remove", Path: node.src.String(), Err: err}})
				failed = true
			}
		}

		parent := node.parent
		if parent == nil {
			return
		}
		if failed {
			parent.failed = true
		}
		parent.pending--
		if parent.pending > 0 {
			return
		}
		node, failed = parent, false
	}
}

func wrapStat(p cloudpath.Path, err error) error {
	if errors.Is(err, cloudpath.ErrNotExist) {
		return &Error{Kind: KindSourceMissing, Op: "stat", Path: p.String(), Err: err}
	}
	return &Error{Kind: classify(err), Op: "stat", Path: p.String(), Err: err}
}

// Failures returns the errors recorded in outcomes, in order.
func Failures(outcomes []Outcome) []error {
	var errs []error
	for _, o := range outcomes {
		if o.Kind == Failed && o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}
