// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudsh/cloudsh/internal/follow"
	"github.com/cloudsh/cloudsh/internal/window"

	"github.com/spf13/pflag"
)

type (
	// tailCommand prints the last part of files and optionally follows
	// them as they grow.
	tailCommand struct {
		baseCommand
	}

	tailFlags struct {
		windowFlags
		follow   string
		followF  bool
		retry    bool
		pid      string
		sleep    string
		unchange int
	}

	// FollowHooks replaces the time and process sources of tail -f.
	FollowHooks struct {
		Clock    follow.Clock
		PIDAlive follow.PIDChecker
		// DisableWake turns off filesystem notifications; only the poll
		// interval drives the loop.
		DisableWake bool
	}
)

func init() {
	RegisterDefault(newTailCommand())
}

func newTailCommand() *tailCommand {
	return &tailCommand{baseCommand{
		name:  "tail",
		usage: "[OPTION]... [FILE]...",
		about: "Print the last 10 lines of each FILE to standard output. With more than one FILE, precede each with a header giving the file name.",
	}}
}

func (c *tailCommand) flagSet(f *tailFlags) *pflag.FlagSet {
	fs := c.newFlagSet()
	f.register(fs, "10")
	fs.StringVarP(&f.follow, "follow", "f", "", "output appended data as the file grows; name or descriptor")
	fs.Lookup("follow").NoOptDefVal = "descriptor"
	fs.BoolVarP(&f.followF, "F", "F", false, "same as --follow=name --retry")
	fs.BoolVar(&f.retry, "retry", false, "keep trying to open a file if it is inaccessible")
	fs.StringVar(&f.pid, "pid", "", "with -f, terminate after process ID, PID dies")
	fs.StringVarP(&f.sleep, "sleep-interval", "s", "", "with -f, sleep for approximately N seconds between iterations")
	fs.IntVar(&f.unchange, "max-unchanged-stats", 5, "accepted for compatibility")
	_ = fs.MarkHidden("max-unchanged-stats") //nolint:errcheck // flag registered above
	return fs
}

// SupportedFlags returns the flags supported by this command.
func (c *tailCommand) SupportedFlags() []FlagInfo {
	return flagInfos(c.flagSet(&tailFlags{}))
}

// Run executes the tail command.
func (c *tailCommand) Run(ctx context.Context, args []string) error {
	in := c.start(ctx)
	var f tailFlags
	fs := c.flagSet(&f)
	args = rewriteLegacyCount(args, "-n", "-c", "--lines", "--bytes", "-s", "--sleep-interval", "--pid", "--max-unchanged-stats")
	if err := in.parse(fs, args); err != nil {
		return err
	}
	count, err := f.count()
	if err != nil {
		return in.invalidCount(err)
	}
	switch f.follow {
	case "", "descriptor", "name":
	default:
		return in.usageError("invalid argument '%s' for '--follow'", f.follow)
	}
	if f.followF {
		f.follow, f.retry = "name", true
	}

	ops, err := in.windowOperands(ctx, fs.Args())
	if err != nil {
		return err
	}
	spec := tailSpec(f.unit, count, f.zero)
	if f.follow == "" {
		if f.pid != "" {
			fmt.Fprintf(in.hc.Stderr, "%s: warning: PID ignored; --pid=PID is useful only when following\n", c.prefix())
		}
		return in.printWindows(ctx, ops, spec, f.quiet, f.verbose)
	}
	return c.runFollow(ctx, in, &f, ops, spec)
}

func (c *tailCommand) runFollow(ctx context.Context, in *invocation, f *tailFlags, ops []windowOperand, spec window.Spec) error {
	opts := follow.Options{
		Window:   spec,
		Interval: in.hc.Config.Tail.SleepInterval,
		Retry:    f.retry,
		ByName:   f.follow == "name",
		Quiet:    f.quiet,
		Verbose:  f.verbose,
		Prefix:   c.prefix(),
		Stdout:   in.hc.Stdout,
		Stderr:   in.hc.Stderr,
		Clock:    in.hc.Follow.Clock,
		PIDAlive: in.hc.Follow.PIDAlive,
		Logger:   in.hc.Logger,
	}
	if f.sleep != "" {
		d, err := follow.ParseInterval(f.sleep)
		if err != nil {
			return in.usageError("%v", err)
		}
		opts.Interval = d
	}
	if f.pid != "" {
		pid, err := follow.ParsePID(f.pid)
		if err != nil {
			return in.usageError("%v", err)
		}
		opts.PID = pid
	}

	inputs := make([]follow.Input, 0, len(ops))
	var local []string
	for _, op := range ops {
		if op.stdin {
			inputs = append(inputs, follow.Input{Name: stdinName, Reader: &ctxReader{ctx: ctx, r: in.hc.Stdin}})
			continue
		}
		inputs = append(inputs, follow.Input{Path: op.path, Name: op.name})
		if op.path.Ref().IsLocal() {
			local = append(local, op.path.Ref().Key)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if len(local) > 0 && !in.hc.Follow.DisableWake {
		c.startWaker(ctx, in, local, &opts)
	}

	err := follow.New(inputs, opts).Run(ctx)
	switch {
	case err == nil:
		return in.result()
	case errors.Is(err, follow.ErrNoFilesRemaining):
		in.errorf("no files remaining")
		return errReported
	default:
		return err
	}
}

// startWaker hooks filesystem notifications for local files into the
// poll loop. A watcher that cannot start leaves plain polling in place.
func (c *tailCommand) startWaker(ctx context.Context, in *invocation, files []string, opts *follow.Options) {
	w, err := follow.NewWaker(files, in.hc.Logger)
	if err != nil {
		in.hc.Logger.Debug("file notifications unavailable", "err", err)
		return
	}
	opts.Wake = w.C()
	go func() {
		if err := w.Run(ctx); err != nil {
			in.hc.Logger.Debug("file notifications stopped", "err", err)
		}
	}()
}

// tailSpec maps a tail count onto a window. "+N" starts at unit N; "-N"
// bytes drops the last N bytes.
func tailSpec(unit window.Unit, count window.Count, zero bool) window.Spec {
	spec := window.Spec{Unit: unit, Mode: window.Last, Count: count.N, ZeroTerminated: zero}
	switch {
	case count.Sign == window.SignPlus:
		spec.Mode = window.From
	case count.Sign == window.SignMinus && unit == window.Bytes:
		spec.Mode = window.AllButLast
	}
	return spec
}
