// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cloudsh/cloudsh/internal/config"
	"github.com/cloudsh/cloudsh/internal/coreutils"
	"github.com/cloudsh/cloudsh/internal/issue"
	"github.com/cloudsh/cloudsh/internal/provider"
	"github.com/cloudsh/cloudsh/internal/tui"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

type (
	// ResolverFactory builds the path resolver for one invocation.
	ResolverFactory func(cfg *config.Config, dir string, logger *log.Logger) *provider.Resolver

	// App wires CLI services and shared dependencies. It is the composition root for
	// the CLI layer; every cobra handler receives an App reference.
	App struct {
		Config      config.Provider
		Registry    *coreutils.Registry
		NewResolver ResolverFactory
		stdin       io.Reader
		stdout      io.Writer
		stderr      io.Writer
		getwd       func() (string, error)
		flags       rootFlags
	}

	// Dependencies defines the injection points for building an App. Nil fields are
	// replaced with production defaults by NewApp.
	Dependencies struct {
		Config      config.Provider
		Registry    *coreutils.Registry
		NewResolver ResolverFactory
		Stdin       io.Reader
		Stdout      io.Writer
		Stderr      io.Writer
		Getwd       func() (string, error)
	}

	// rootFlags are the global flags shared by every subcommand.
	rootFlags struct {
		configPath string
		debug      bool
		verbose    bool
	}
)

// NewApp creates an App, filling unset dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:      deps.Config,
		Registry:    deps.Registry,
		NewResolver: deps.NewResolver,
		stdin:       deps.Stdin,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
		getwd:       deps.Getwd,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.Registry == nil {
		app.Registry = coreutils.DefaultRegistry
	}
	if app.NewResolver == nil {
		app.NewResolver = defaultResolver
	}
	if app.stdin == nil {
		app.stdin = os.Stdin
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	if app.getwd == nil {
		app.getwd = os.Getwd
	}
	return app
}

func defaultResolver(cfg *config.Config, dir string, logger *log.Logger) *provider.Resolver {
	return provider.NewResolver(cfg, provider.WithWorkDir(dir), provider.WithLogger(logger))
}

// loadConfig reads the configuration. A broken file is reported and the
// defaults are used, so a typo never blocks a copy.
func (a *App) loadConfig(ctx context.Context) *config.Config {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		fmt.Fprintln(a.stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, a.flags.verbose))
		a.renderGuide(issue.ConfigLoadFailedId)
		return config.DefaultConfig()
	}
	return cfg
}

// newLogger returns the diagnostic logger. --debug wins over log_level.
func (a *App) newLogger(cfg *config.Config) *log.Logger {
	level, err := log.ParseLevel(cfg.LogLevel.String())
	if err != nil {
		level = log.WarnLevel
	}
	if a.flags.debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Prefix:          config.AppName,
		ReportTimestamp: false,
		Level:           level,
	})
}

// handlerContext builds the environment shared by the utilities of one
// invocation.
func (a *App) handlerContext(ctx context.Context) (*coreutils.HandlerContext, error) {
	cfg := a.loadConfig(ctx)
	logger := a.newLogger(cfg)
	dir, err := a.getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return &coreutils.HandlerContext{
		Stdin:    a.stdin,
		Stdout:   a.stdout,
		Stderr:   a.stderr,
		Dir:      dir,
		Config:   cfg,
		Logger:   logger,
		Resolver: a.NewResolver(cfg, dir, logger),
	}, nil
}

// runUtility executes one registry command with argv args.
func (a *App) runUtility(cmd *cobra.Command, name string, args []string) error {
	hc, err := a.handlerContext(cmd.Context())
	if err != nil {
		return err
	}
	argv := append([]string{name}, args...)
	err = a.Registry.Run(coreutils.WithHandlerContext(cmd.Context(), hc), name, argv)
	if err == nil {
		return nil
	}
	a.explainFailure(hc)
	return &ExitError{Code: coreutils.ExitCodeOf(err), Err: err, Reported: true}
}

// explainFailure adds set-up hints after a failed command when a storage
// client could not be built.
func (a *App) explainFailure(hc *coreutils.HandlerContext) {
	initErrs := hc.Resolver.InitErrors()
	if len(initErrs) == 0 {
		return
	}
	for _, err := range initErrs {
		hc.Logger.Debug("storage client unavailable", "err", err)
		if a.flags.verbose {
			ae := issue.NewErrorContext().
				WithOperation("initialize storage client").
				WithSuggestion("Run 'cloudsh guide credentials' for set-up instructions").
				Wrap(err).
				Build()
			fmt.Fprintln(a.stderr, ae.Format(true))
		}
	}
	a.renderGuide(issue.CredentialsMissingId)
}

// renderGuide prints a troubleshooting guide when stderr is a terminal.
func (a *App) renderGuide(id issue.Id) {
	if !tui.IsTerminal(a.stderr) {
		return
	}
	rendered, err := issue.Get(id).Render("auto")
	if err != nil {
		return
	}
	fmt.Fprint(a.stderr, rendered)
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
