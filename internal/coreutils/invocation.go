// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/spf13/pflag"
)

// invocation is the state of one command run.
type invocation struct {
	cmd    *baseCommand
	hc     *HandlerContext
	failed bool
}

func (c *baseCommand) start(ctx context.Context) *invocation {
	return &invocation{cmd: c, hc: GetHandlerContext(ctx)}
}

// errorf prints a "cloudsh <cmd>: ..." line to stderr and marks the run
// as failed.
func (in *invocation) errorf(format string, args ...any) {
	in.failed = true
	fmt.Fprintf(in.hc.Stderr, in.cmd.prefix()+": "+format+"\n", args...)
}

// usageError reports a command-line problem and ends the run.
func (in *invocation) usageError(format string, args ...any) error {
	in.errorf(format, args...)
	fmt.Fprintf(in.hc.Stderr, "Try 'cloudsh %s --help' for more information.\n", in.cmd.name)
	return errReported
}

// parse parses args[1:] into fs. It returns errHelp after printing the
// usage for --help.
func (in *invocation) parse(fs *pflag.FlagSet, args []string) error {
	if len(args) > 0 {
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			in.cmd.writeUsage(in.hc.Stdout, fs)
			return errHelp
		}
		return in.usageError("%v", err)
	}
	return nil
}

// result returns the final error of a run that reports per-operand
// failures itself.
func (in *invocation) result() error {
	if in.failed {
		return errReported
	}
	return nil
}

// resolve binds an operand to its provider.
func (in *invocation) resolve(ctx context.Context, raw string) (cloudpath.Path, error) {
	return in.hc.Resolver.ResolveIn(ctx, in.hc.Dir, raw)
}

// expand applies glob expansion to cloud operands. Local operands were
// already expanded by the calling shell and are kept as typed.
func (in *invocation) expand(ctx context.Context, operands []string) ([]string, error) {
	out := make([]string, 0, len(operands))
	for _, op := range operands {
		ref, err := cloudpath.Parse(op)
		if err != nil || ref.IsLocal() {
			out = append(out, op)
			continue
		}
		matches, err := in.hc.Resolver.Expand(ctx, op)
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	return out, nil
}

// resolveAll expands and resolves operands. Operands that fail to resolve
// are reported with what and skipped.
func (in *invocation) resolveAll(ctx context.Context, operands []string, what string) ([]cloudpath.Path, error) {
	expanded, err := in.expand(ctx, operands)
	if err != nil {
		return nil, err
	}
	paths := make([]cloudpath.Path, 0, len(expanded))
	for _, op := range expanded {
		p, err := in.resolve(ctx, op)
		if err != nil {
			if errors.Is(err, cloudpath.ErrUnsupportedScheme) {
				in.errorf("cannot %s '%s': %v", what, op, err)
				continue
			}
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
