// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudsh/cloudsh/internal/shell"

	"github.com/spf13/cobra"
)

// newShCommand creates the `cloudsh sh` command.
func newShCommand(app *App) *cobra.Command {
	var (
		script   string
		external bool
	)

	cmd := &cobra.Command{
		Use:   "sh [-c SCRIPT | FILE] [ARG]...",
		Short: "Run a POSIX shell script with cloud-aware builtins",
		Long: `Run a POSIX shell script in which cp, mv, rm, cat, head, tail, ls,
mkdir, touch, less, more and sink are builtins that accept cloud paths.

The script comes from -c, from FILE, or from standard input. The
remaining arguments become $1, $2 and so on. Other programs are refused
unless --external is given.`,
		Example: `  cloudsh sh -c 'for f in gs://b/logs/*.txt; do head -n 1 "$f"; done'
  cloudsh sh backup.sh s3://bucket/backups`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, app, script, cmd.Flags().Changed("command"), external, args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&script, "command", "c", "", "read the script from `SCRIPT`")
	cmd.Flags().BoolVar(&external, "external", false, "allow running programs that are not cloudsh utilities")
	return cmd
}

func runScript(cmd *cobra.Command, app *App, script string, inline, external bool, args []string) error {
	hc, err := app.handlerContext(cmd.Context())
	if err != nil {
		return err
	}

	var (
		src  io.Reader
		name string
	)
	switch {
	case inline:
		src, name = strings.NewReader(script), "-c"
	case len(args) > 0:
		path := args[0]
		if !filepath.IsAbs(path) {
			path = filepath.Join(hc.Dir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("cannot open script: %w", err)
		}
		defer f.Close()
		src, name, args = f, args[0], args[1:]
	default:
		src, name = hc.Stdin, "stdin"
		// The script owns standard input; builtins must not read it too.
		hc.Stdin = strings.NewReader("")
	}

	sh := shell.New(hc, shell.WithExternal(external))
	code, err := sh.Run(cmd.Context(), src, name, args...)
	if err != nil {
		return err
	}
	if !code.IsSuccess() {
		app.explainFailure(hc)
		return &ExitError{Code: code, Reported: true}
	}
	return nil
}
