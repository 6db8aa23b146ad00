// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for cloudsh.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cloudsh",
		Short: "Coreutils for local files and cloud object storage",
		Long: TitleStyle.Render("cloudsh") + SubtitleStyle.Render(" - coreutils for local files and cloud object storage") + `

cloudsh provides cp, mv, rm, cat, head, tail, ls, mkdir, touch, less,
more and sink. Every operand may be a local path or a gs://, s3:// or
az:// URL, and transfers between providers stream without temporary
files.

` + SubtitleStyle.Render("Examples:") + `
  cloudsh cp -r ./logs gs://bucket/logs     Upload a directory
  cloudsh tail -f s3://bucket/app.log       Follow a growing object
  cloudsh ls -l az://container/reports      List a container prefix
  cloudsh sh -c 'cat gs://b/a | head -n 5'  Run a script with cloud-aware builtins
  cloudsh config show                       Show current configuration`,
		Args:               cobra.ArbitraryArgs,
		SilenceErrors:      true,
		SilenceUsage:       true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			// Unknown names go to the registry, which reports them with
			// the shell's "command not found" status.
			return app.runUtility(cmd, args[0], args[1:])
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&app.flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/cloudsh/config.cue)")
	pf.BoolVar(&app.flags.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&app.flags.verbose, "verbose", false, "show full error details")

	rootCmd.SetIn(app.stdin)
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	rootCmd.AddGroup(&cobra.Group{ID: utilityGroup, Title: "Utilities:"})
	for _, name := range app.Registry.Names() {
		rootCmd.AddCommand(newUtilityCommand(app, name))
	}
	rootCmd.AddCommand(newShCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))
	rootCmd.AddCommand(newGuideCommand(app))

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once.
func Execute() {
	app := NewApp(Dependencies{})
	rootCmd := newRootCommand(app)

	args, err := hoistGlobalFlags(rootCmd.PersistentFlags(), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "cloudsh: "+err.Error())
		os.Exit(2)
	}
	rootCmd.SetArgs(args)

	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(errorHandler),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// errorHandler skips failures the utilities already printed.
func errorHandler(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}

// hoistGlobalFlags applies the root flags that precede the subcommand name
// and returns the remaining arguments. Utilities parse their own argv, so
// cobra would otherwise hand `cloudsh --debug cp a b` to cp verbatim.
func hoistGlobalFlags(fs *pflag.FlagSet, args []string) ([]string, error) {
	i := 0
	for i < len(args) {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") || arg == "--" {
			break
		}
		name, value, hasValue := strings.Cut(arg[2:], "=")
		f := fs.Lookup(name)
		if f == nil {
			break
		}
		if !hasValue {
			if f.NoOptDefVal != "" {
				value = f.NoOptDefVal
			} else {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("flag needs an argument: --%s", name)
				}
				i++
				value = args[i]
			}
		}
		if err := fs.Set(f.Name, value); err != nil {
			return nil, fmt.Errorf("invalid argument %q for --%s: %w", value, name, err)
		}
		i++
	}
	return args[i:], nil
}
