// SPDX-License-Identifier: MPL-2.0

// Package shell runs POSIX scripts with mvdan/sh in which the cloudsh
// utilities are builtins. Inside a script `cp`, `tail -f` and the rest
// accept cloud URLs exactly as they do on the command line.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cloudsh/cloudsh/internal/coreutils"
	"github.com/cloudsh/cloudsh/pkg/types"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// selfName is accepted as a prefix, so `cloudsh cp a b` inside a script
// runs the builtin.
const selfName = "cloudsh"

type (
	// Shell executes scripts. The zero value is not usable; use New.
	Shell struct {
		base     coreutils.HandlerContext
		registry *coreutils.Registry
		env      []string
		external bool
	}

	// Option configures a Shell.
	Option func(*Shell)
)

// WithRegistry selects the command registry. The default is
// coreutils.DefaultRegistry.
func WithRegistry(r *coreutils.Registry) Option {
	return func(s *Shell) { s.registry = r }
}

// WithEnv sets the script environment as KEY=VALUE pairs. The default is
// the process environment.
func WithEnv(env []string) Option {
	return func(s *Shell) { s.env = env }
}

// WithExternal lets names that are not cloudsh utilities run as host
// programs. Without it they fail with status 127.
func WithExternal(enabled bool) Option {
	return func(s *Shell) { s.external = enabled }
}

// New creates a Shell. base supplies the streams, working directory and
// shared services (config, resolver, logger, prompter) of every builtin;
// the interpreter replaces the streams and directory per command.
func New(base *coreutils.HandlerContext, opts ...Option) *Shell {
	s := &Shell{registry: coreutils.DefaultRegistry}
	if base != nil {
		s.base = *base
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.env == nil {
		s.env = os.Environ()
	}
	return s
}

// Run parses and executes the script read from src. name is used in
// syntax errors and params become $1, $2 and so on. The returned code is
// the script's exit status; err is set only when the script could not
// run at all.
func (s *Shell) Run(ctx context.Context, src io.Reader, name string, params ...string) (types.ExitCode, error) {
	prog, err := syntax.NewParser().Parse(src, name)
	if err != nil {
		return types.ExitFailure, fmt.Errorf("failed to parse script: %w", err)
	}

	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(s.env...)),
		interp.StdIO(s.base.Stdin, s.base.Stdout, s.base.Stderr),
		interp.ExecHandlers(s.execHandler),
	}
	if s.base.Dir != "" {
		opts = append(opts, interp.Dir(s.base.Dir))
	}
	// "--" keeps parameters like "-v" from being read as shell options.
	if len(params) > 0 {
		opts = append(opts, interp.Params(append([]string{"--"}, params...)...))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return types.ExitFailure, fmt.Errorf("failed to create interpreter: %w", err)
	}

	err = runner.Run(ctx, prog)
	var status interp.ExitStatus
	switch {
	case err == nil:
		return types.ExitSuccess, nil
	case errors.As(err, &status):
		return types.ExitCode(status), nil
	case errors.Is(err, context.Canceled):
		return types.ExitInterrupted, nil
	default:
		return types.ExitFailure, fmt.Errorf("script execution failed: %w", err)
	}
}

// execHandler runs cloudsh utilities in-process and hands everything
// else to next when external programs are enabled.
func (s *Shell) execHandler(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if len(args) > 1 && args[0] == selfName {
			args = args[1:]
		}
		if _, ok := s.registry.Lookup(args[0]); !ok && s.external {
			return next(ctx, args)
		}

		hc := s.handlerContext(ctx)
		err := s.registry.Run(coreutils.WithHandlerContext(ctx, hc), args[0], args)
		if err == nil {
			return nil
		}
		return interp.ExitStatus(coreutils.ExitCodeOf(err))
	}
}

// handlerContext layers the interpreter's per-command streams, directory
// and environment over the shared base.
func (s *Shell) handlerContext(ctx context.Context) *coreutils.HandlerContext {
	hc := s.base
	sh := coreutils.ExtractHandlerContext(ctx)
	hc.Stdin = sh.Stdin
	hc.Stdout = sh.Stdout
	hc.Stderr = sh.Stderr
	hc.Dir = sh.Dir
	hc.LookupEnv = sh.LookupEnv
	return &hc
}
