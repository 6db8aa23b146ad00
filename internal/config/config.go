// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cloudsh/cloudsh/internal/issue"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "cloudsh"
	// EnvPrefix is the prefix for environment overrides (CLOUDSH_S3_REGION).
	EnvPrefix = "CLOUDSH"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"

	maxConfigFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the cloudsh configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir reads better than Dir at call sites
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// FilePath returns the path of the config file inside dir, or inside
// ConfigDir when dir is empty.
func FilePath(dir string) (string, error) {
	cfgDir, err := configDirWithOverride(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level cache state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()
	resolvedPath := ""

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'cloudsh config path' to see where the default file lives").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, opts.ConfigFilePath); err != nil {
			return nil, "", loadError(opts.ConfigFilePath, err)
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cuePath, err := FilePath(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		if fileExists(cuePath) {
			if err := loadCUEIntoViper(v, cuePath); err != nil {
				return nil, "", loadError(cuePath, err)
			}
			resolvedPath = cuePath
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.LogLevel.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Set log_level to one of debug, info, warn, error").
			Wrap(err).
			BuildError()
	}
	if cfg.Tail.SleepInterval <= 0 {
		cfg.Tail.SleepInterval = DefaultSleepInterval
	}
	if cfg.Copy.ChunkSize <= 0 {
		cfg.Copy.ChunkSize = DefaultChunkSize
	}

	return &cfg, resolvedPath, nil
}

// newViper returns a Viper instance seeded with every known key so that
// CLOUDSH_ environment variables reach Unmarshal.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("log_level", string(defaults.LogLevel))
	v.SetDefault("tail.sleep_interval", defaults.Tail.SleepInterval.String())
	v.SetDefault("copy.chunk_size", defaults.Copy.ChunkSize)
	for _, key := range []string{
		"s3.region", "s3.endpoint", "s3.profile", "s3.access_key_id", "s3.secret_access_key",
		"gcs.project", "gcs.credentials_file", "gcs.endpoint",
		"azure.account_url", "azure.connection_string",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("s3.use_path_style", false)
	v.SetDefault("ui.accessible", false)
	return v
}

func loadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Run 'cloudsh config show' to compare against the defaults").
		Wrap(err).
		BuildError()
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper. Fields stay optional, so validation
// runs with Concrete(false).
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes a default config file into dir (or ConfigDir
// when dir is empty) unless one already exists. It returns the file path
// and whether it was created.
func CreateDefaultConfig(dir string) (string, bool, error) {
	cfgPath, err := FilePath(dir)
	if err != nil {
		return "", false, err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, false, nil
	}
	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, true, nil
}

// GenerateCUE renders cfg as a CUE document accepted by the schema.
// Credentials are never written.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// cloudsh configuration file\n\n")
	fmt.Fprintf(&sb, "log_level: %q\n", cfg.LogLevel)

	sb.WriteString("\ntail: {\n")
	fmt.Fprintf(&sb, "\tsleep_interval: %q\n", cfg.Tail.SleepInterval.String())
	sb.WriteString("}\n")

	sb.WriteString("\ncopy: {\n")
	fmt.Fprintf(&sb, "\tchunk_size: %d\n", cfg.Copy.ChunkSize)
	sb.WriteString("}\n")

	sb.WriteString("\ns3: {\n")
	writeOptional(&sb, "region", cfg.S3.Region)
	writeOptional(&sb, "endpoint", cfg.S3.Endpoint)
	writeOptional(&sb, "profile", cfg.S3.Profile)
	fmt.Fprintf(&sb, "\tuse_path_style: %v\n", cfg.S3.UsePathStyle)
	sb.WriteString("}\n")

	sb.WriteString("\ngcs: {\n")
	writeOptional(&sb, "project", cfg.GCS.Project)
	writeOptional(&sb, "credentials_file", cfg.GCS.CredentialsFile)
	writeOptional(&sb, "endpoint", cfg.GCS.Endpoint)
	sb.WriteString("}\n")

	sb.WriteString("\nazure: {\n")
	writeOptional(&sb, "account_url", cfg.Azure.AccountURL)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\taccessible: %v\n", cfg.UI.Accessible)
	sb.WriteString("}\n")

	return sb.String()
}

func writeOptional(sb *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "\t%s: %q\n", key, value)
}
