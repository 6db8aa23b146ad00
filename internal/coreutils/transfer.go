// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudsh/cloudsh/internal/transfer"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/spf13/pflag"
)

type (
	// transferFlags are the options cp and mv share.
	transferFlags struct {
		force             bool
		interactive       bool
		noClobber         bool
		verbose           bool
		update            string
		targetDirectory   string
		noTargetDirectory bool
	}

	// transferRun is a parsed cp or mv command line.
	transferRun struct {
		sources []string
		target  string
		opts    transfer.Options
	}
)

func (f *transferFlags) register(fs *pflag.FlagSet) {
	fs.BoolVarP(&f.force, "force", "f", false, "overwrite destinations the provider considers newer")
	fs.BoolVarP(&f.interactive, "interactive", "i", false, "prompt before overwrite")
	fs.BoolVarP(&f.noClobber, "no-clobber", "n", false, "do not overwrite an existing file")
	fs.StringVarP(&f.update, "update", "u", "", "control which existing files are updated: all, none, older")
	fs.Lookup("update").NoOptDefVal = "older"
	fs.StringVarP(&f.targetDirectory, "target-directory", "t", "", "copy all SOURCE arguments into DIRECTORY")
	fs.BoolVarP(&f.noTargetDirectory, "no-target-directory", "T", false, "treat DEST as a normal file")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "explain what is being done")
}

// policy maps the flags onto a conflict policy. -n wins over
// --update=none, which wins over -i, which wins over --update=older.
func (f *transferFlags) policy() (transfer.Policy, error) {
	switch f.update {
	case "", "all", "older", "none":
	default:
		return 0, fmt.Errorf("invalid argument '%s' for '--update'", f.update)
	}
	switch {
	case f.noClobber:
		return transfer.NoClobber, nil
	case f.update == "none":
		return transfer.UpdateNever, nil
	case f.interactive:
		return transfer.Interactive, nil
	case f.update == "older":
		return transfer.UpdateIfNewer, nil
	default:
		return transfer.Overwrite, nil
	}
}

// operands splits the command line into sources and target.
func (f *transferFlags) operands(in *invocation, args []string) (*transferRun, error) {
	policy, err := f.policy()
	if err != nil {
		return nil, in.usageError("%v", err)
	}
	if f.targetDirectory != "" && f.noTargetDirectory {
		return nil, in.usageError("cannot combine --target-directory (-t) and --no-target-directory (-T)")
	}

	run := &transferRun{opts: transfer.Options{
		Policy:            policy,
		Force:             f.force,
		TargetDirectory:   f.targetDirectory != "",
		NoTargetDirectory: f.noTargetDirectory,
		Verbose:           f.verbose,
		Stdout:            in.hc.Stdout,
	}}

	switch {
	case len(args) == 0:
		return nil, in.usageError("missing file operand")
	case f.targetDirectory != "":
		run.sources, run.target = args, f.targetDirectory
	case len(args) == 1:
		return nil, in.usageError("missing destination file operand after '%s'", args[0])
	case f.noTargetDirectory && len(args) > 2:
		return nil, in.usageError("extra operand '%s'", args[2])
	default:
		run.sources, run.target = args[:len(args)-1], args[len(args)-1]
	}
	return run, nil
}

// execute resolves the operands and hands them to fn, printing every
// per-source failure as it happens.
func (r *transferRun) execute(ctx context.Context, in *invocation, fn func(context.Context, *transfer.Engine, []cloudpath.Path, cloudpath.Path, transfer.Options) error) error {
	sources, err := in.resolveAll(ctx, r.sources, "stat")
	if err != nil {
		return err
	}
	target, err := in.resolve(ctx, r.target)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return in.result()
	}

	r.opts.Report = func(err error) {
		if fatal(ctx, err) {
			return
		}
		in.errorf("%v", err)
	}
	engine := transfer.NewEngine(
		transfer.WithPrompter(in.hc.NewPrompter(in.cmd.prefix())),
		transfer.WithChunkSize(in.hc.Config.Copy.ChunkSize),
		transfer.WithLogger(in.hc.Logger),
	)

	err = fn(ctx, engine, sources, target, r.opts)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	switch {
	case err == nil, errors.Is(err, transfer.ErrFailed):
		return in.result()
	case fatal(ctx, err):
		return err
	default:
		in.errorf("%v", err)
		return errReported
	}
}
