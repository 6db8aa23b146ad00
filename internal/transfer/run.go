// SPDX-License-Identifier: MPL-2.0

package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

// Options configures RunCopy and RunMove.
type Options struct {
	Policy   Policy
	Force    bool
	Preserve bool
	// Recursive allows copying directories. Moves always recurse.
	Recursive bool
	// Parents appends each source's full path under the target.
	Parents bool
	// TargetDirectory treats the target as a directory, creating it when
	// missing (-t).
	TargetDirectory bool
	// NoTargetDirectory treats the target as a plain destination path
	// even when it is an existing directory (-T).
	NoTargetDirectory bool
	Verbose           bool
	// Stdout receives verbose lines.
	Stdout io.Writer
	// Report receives every per-source failure as it happens.
	Report func(error)
}

// RunCopy copies sources to target following cp's operand rules. Argument
// errors are returned before any transfer starts. Per-source failures are
// passed to opts.Report and processing continues with the next source;
// in that case ErrFailed is returned at the end.
func RunCopy(ctx context.Context, engine *Engine, sources []cloudpath.Path, target cloudpath.Path, opts Options) error {
	if opts.Parents && target.Scheme().IsCloud() {
		for _, src := range sources {
			if src.Scheme().IsCloud() {
				return invalidArgument("cannot preserve directory structure when copying between cloud paths")
			}
		}
	}

	targetIsDir, err := prepareTarget(ctx, target, opts)
	if err != nil {
		return err
	}
	if len(sources) > 1 && !targetIsDir {
		return invalidArgument("target must be a directory when copying multiple files")
	}
	if opts.Parents && !targetIsDir {
		return invalidArgument("with --parents, destination must be a directory")
	}

	r := newRunner(engine, opts, Copy)
	for _, src := range sources {
		dst := destinationFor(src, target, targetIsDir, opts)
		err := r.copyOne(ctx, src, dst)
		if err == nil {
			continue
		}
		if KindOf(err) == KindTargetIsDirectory || errors.Is(err, context.Canceled) {
			r.report(err)
			return ErrFailed
		}
		r.report(err)
	}
	return r.result()
}

// RunMove moves sources to target following mv's operand rules.
func RunMove(ctx context.Context, engine *Engine, sources []cloudpath.Path, target cloudpath.Path, opts Options) error {
	opts.Parents = false
	targetIsDir, err := prepareTarget(ctx, target, opts)
	if err != nil {
		return err
	}
	if len(sources) > 1 && !targetIsDir {
		return invalidArgument("target '%s' is not a directory", target)
	}

	r := newRunner(engine, opts, Move)
	for _, src := range sources {
		dst := destinationFor(src, target, targetIsDir, opts)
		err := r.moveOne(ctx, src, dst)
		if err == nil {
			continue
		}
		if KindOf(err) == KindTargetIsDirectory || errors.Is(err, context.Canceled) {
			r.report(err)
			return ErrFailed
		}
		r.report(err)
	}
	return r.result()
}

// prepareTarget creates a missing -t directory and reports whether
// sources land inside the target rather than replacing it.
func prepareTarget(ctx context.Context, target cloudpath.Path, opts Options) (bool, error) {
	if opts.TargetDirectory {
		isDir, err := target.IsDir(ctx)
		if err != nil {
			return false, &Error{Kind: classify(err), Op: "access", Path: target.String(), Err: err}
		}
		if !isDir {
			if err := target.Mkdir(ctx, true, true); err != nil {
				return false, &Error{Kind: classify(err), Op: "create directory", Path: target.String(), Err: err}
			}
		}
		return true, nil
	}
	if opts.NoTargetDirectory {
		return false, nil
	}
	isDir, err := target.IsDir(ctx)
	if err != nil {
		return false, &Error{Kind: classify(err), Op: "access", Path: target.String(), Err: err}
	}
	return isDir, nil
}

func destinationFor(src, target cloudpath.Path, targetIsDir bool, opts Options) cloudpath.Path {
	if !targetIsDir {
		return target
	}
	if opts.Parents {
		return target.Join(parentsPath(src)...)
	}
	return target.Join(src.Name())
}

// parentsPath returns the path elements --parents recreates under the
// target: the local path without leading separators, or bucket and key.
func parentsPath(src cloudpath.Path) []string {
	ref := src.Ref()
	var rel string
	if ref.Scheme.IsCloud() {
		rel = ref.Container + "/" + ref.Key
	} else {
		rel = strings.TrimLeft(src.String(), "/")
	}
	var elems []string
	for _, e := range strings.Split(rel, "/") {
		if e != "" && e != "." {
			elems = append(elems, e)
		}
	}
	return elems
}

type runner struct {
	engine *Engine
	opts   Options
	mode   Mode
	failed bool
}

func newRunner(engine *Engine, opts Options, mode Mode) *runner {
	if engine == nil {
		engine = NewEngine()
	}
	return &runner{engine: engine, opts: opts, mode: mode}
}

func (r *runner) report(err error) {
	r.failed = true
	if r.opts.Report != nil {
		r.opts.Report(err)
	}
}

func (r *runner) result() error {
	if r.failed {
		return ErrFailed
	}
	return nil
}

// verbose prints the coreutils -v line for o.
func (r *runner) verbose(o Outcome) {
	if !r.opts.Verbose || r.opts.Stdout == nil {
		return
	}
	switch {
	case o.Kind == Transferred && o.Mode == Copy:
		fmt.Fprintf(r.opts.Stdout, "'%s' -> '%s'\n", o.Source, o.Destination)
	case o.Kind == Transferred && o.Mode == Move, o.Kind == DirRemoved:
		fmt.Fprintf(r.opts.Stdout, "renamed '%s' -> '%s'\n", o.Source, o.Destination)
	case o.Kind == DirCreated && o.Mode == Copy:
		fmt.Fprintf(r.opts.Stdout, "created directory '%s'\n", o.Destination)
	}
}

func (r *runner) walker() *Walker {
	return &Walker{
		Engine:   r.engine,
		Policy:   r.opts.Policy,
		Force:    r.opts.Force,
		Preserve: r.opts.Preserve,
		OnOutcome: func(o Outcome) {
			if o.Kind == Failed {
				r.report(o.Err)
				return
			}
			r.verbose(o)
		},
	}
}

func (r *runner) plan(src, dst cloudpath.Path) Plan {
	return Plan{Source: src, Destination: dst, Policy: r.opts.Policy, Force: r.opts.Force, Preserve: r.opts.Preserve}
}

// ensureParents creates the intermediate directories --parents needs.
func (r *runner) ensureParents(ctx context.Context, dst cloudpath.Path) error {
	parent := dst.Parent()
	if ok, err := parent.IsDir(ctx); err != nil || ok {
		return err
	}
	if err := parent.Mkdir(ctx, true, true); err != nil {
		return &Error{Kind: classify(err), Op: "create directory", Path: parent.String(), Err: err}
	}
	return nil
}

func (r *runner) copyOne(ctx context.Context, src, dst cloudpath.Path) error {
	info, err := src.Stat(ctx)
	if err != nil {
		return wrapStat(src, err)
	}
	if r.opts.Parents {
		if err := r.ensureParents(ctx, dst); err != nil {
			return err
		}
	}

	if !info.IsDir {
		o, err := r.engine.Transfer(ctx, r.plan(src, dst), Copy)
		if err == nil {
			r.verbose(o)
		}
		return err
	}

	if !r.opts.Recursive {
		return &Error{Kind: KindOmitDirectory, Path: src.String()}
	}
	if err := checkNotInside(src, dst, Copy); err != nil {
		return err
	}
	// Failures inside the tree are reported by the walker.
	r.walker().Walk(ctx, src, dst, Copy)
	return nil
}

func (r *runner) moveOne(ctx context.Context, src, dst cloudpath.Path) error {
	info, err := src.Stat(ctx)
	if err != nil {
		return wrapStat(src, err)
	}

	if !info.IsDir {
		o, err := r.engine.Transfer(ctx, r.plan(src, dst), Move)
		if err == nil && o.Kind == Transferred {
			r.verbose(o)
		}
		return err
	}

	if err := checkNotInside(src, dst, Move); err != nil {
		return err
	}
	if renamed, err := r.renameDir(ctx, src, dst); renamed || err != nil {
		if err == nil {
			r.verbose(Outcome{Kind: Transferred, Mode: Move, Source: src, Destination: dst})
		}
		return err
	}
	r.walker().Walk(ctx, src, dst, Move)
	return nil
}

// renameDir moves a whole local directory in one rename when the
// destination does not exist yet. Object stores have no directory
// rename, so cloud trees always go through the walker.
func (r *runner) renameDir(ctx context.Context, src, dst cloudpath.Path) (bool, error) {
	if src.Scheme().IsCloud() || !src.SameContainer(dst) {
		return false, nil
	}
	mover, ok := src.Provider().(cloudpath.Mover)
	if !ok {
		return false, nil
	}
	if exists, err := dst.Exists(ctx); err != nil || exists {
		return false, err
	}
	moved, err := mover.Move(ctx, src.Ref(), dst.Ref())
	if err != nil {
		return true, &Error{Kind: classify(err), Op: "move", Path: src.String(), Dest: dst.String(), Err: err}
	}
	return moved, nil
}

// checkNotInside rejects copying or moving a directory into itself.
func checkNotInside(src, dst cloudpath.Path, mode Mode) error {
	if !src.SameProvider(dst) || !src.Ref().Contains(dst.Ref()) {
		return nil
	}
	if mode == Move {
		return invalidArgument("cannot move '%s' to a subdirectory of itself, '%s'", src, dst)
	}
	return invalidArgument("cannot copy a directory, '%s', into itself, '%s'", src, dst)
}
