// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudsh/cloudsh/internal/config"
	"github.com/cloudsh/cloudsh/internal/issue"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `cloudsh config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cloudsh configuration",
		Long: `Manage cloudsh configuration.

Configuration is stored in:
  - Linux: $XDG_CONFIG_HOME/cloudsh/config.cue (~/.config/cloudsh/config.cue)
  - macOS: ~/Library/Application Support/cloudsh/config.cue
  - Windows: %APPDATA%\cloudsh\config.cue

Every key can also be set with a CLOUDSH_ environment variable,
e.g. CLOUDSH_S3_REGION or CLOUDSH_TAIL_SLEEP_INTERVAL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var defaults bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), app, defaults)
		},
	}
	showCmd.Flags().BoolVar(&defaults, "defaults", false, "show the built-in defaults instead of the loaded file")
	cfgCmd.AddCommand(showCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath(app)
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App, defaults bool) error {
	cfg := config.DefaultConfig()
	source := SubtitleStyle.Render("(using defaults)")
	if !defaults {
		loaded, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: app.flags.configPath})
		if err != nil {
			app.renderGuide(issue.ConfigLoadFailedId)
			return err
		}
		cfg = loaded
		if path, ok := configFileInUse(app); ok {
			source = path
		}
	}

	out := app.stdout
	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s: %s\n", CmdStyle.Render("Config file"), source)
	fmt.Fprintln(out)

	for _, kv := range configValues(cfg) {
		fmt.Fprintf(out, "%s: %s\n", CmdStyle.Render(kv[0]), kv[1])
	}
	return nil
}

// configValues lists every key with its display value. Secrets are masked
// and unset strings are marked.
func configValues(cfg *config.Config) [][2]string {
	str := func(s string) string {
		if s == "" {
			return SubtitleStyle.Render("(unset)")
		}
		return SuccessStyle.Render(s)
	}
	secret := func(s string) string {
		if s == "" {
			return SubtitleStyle.Render("(unset)")
		}
		return SuccessStyle.Render("(set)")
	}
	boolean := func(b bool) string { return SuccessStyle.Render(strconv.FormatBool(b)) }

	return [][2]string{
		{"log_level", str(cfg.LogLevel.String())},
		{"tail.sleep_interval", str(cfg.Tail.SleepInterval.String())},
		{"copy.chunk_size", str(strconv.Itoa(cfg.Copy.ChunkSize))},
		{"s3.region", str(cfg.S3.Region)},
		{"s3.endpoint", str(cfg.S3.Endpoint)},
		{"s3.profile", str(cfg.S3.Profile)},
		{"s3.use_path_style", boolean(cfg.S3.UsePathStyle)},
		{"s3.access_key_id", secret(cfg.S3.AccessKeyID)},
		{"s3.secret_access_key", secret(cfg.S3.SecretAccessKey)},
		{"gcs.project", str(cfg.GCS.Project)},
		{"gcs.credentials_file", str(cfg.GCS.CredentialsFile)},
		{"gcs.endpoint", str(cfg.GCS.Endpoint)},
		{"azure.account_url", str(cfg.Azure.AccountURL)},
		{"azure.connection_string", secret(cfg.Azure.ConnectionString)},
		{"ui.accessible", boolean(cfg.UI.Accessible)},
	}
}

// configFileInUse returns the file Load reads, if it exists.
func configFileInUse(app *App) (string, bool) {
	path := app.flags.configPath
	if path == "" {
		var err error
		if path, err = config.FilePath(""); err != nil {
			return "", false
		}
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

func initConfig(app *App) error {
	path, created, err := config.CreateDefaultConfig("")
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if !created {
		fmt.Fprintf(app.stdout, "%s Configuration already exists at %s\n", WarningStyle.Render("!"), path)
		return nil
	}
	fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func showConfigPath(app *App) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	cfgPath, err := config.FilePath(cfgDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "Config directory: %s\n", cfgDir)
	fmt.Fprintf(app.stdout, "Config file: %s\n", cfgPath)
	return nil
}
