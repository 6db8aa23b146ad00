// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	// LogLevelDebug enables diagnostic logging.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs informational events.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs only warnings and errors. This is the default.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs only errors.
	LogLevelError LogLevel = "error"

	// DefaultSleepInterval is the tail -f poll interval when neither the
	// flag nor the config file sets one.
	DefaultSleepInterval = time.Second
	// DefaultChunkSize is the buffer size used by streamed copies.
	DefaultChunkSize = 8 << 20
)

// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
var ErrInvalidLogLevel = errors.New("invalid log level")

type (
	// LogLevel selects the minimum level written by the logger.
	LogLevel string

	// Config is the root configuration structure.
	Config struct {
		LogLevel LogLevel    `json:"log_level" mapstructure:"log_level"`
		Tail     TailConfig  `json:"tail" mapstructure:"tail"`
		Copy     CopyConfig  `json:"copy" mapstructure:"copy"`
		S3       S3Config    `json:"s3" mapstructure:"s3"`
		GCS      GCSConfig   `json:"gcs" mapstructure:"gcs"`
		Azure    AzureConfig `json:"azure" mapstructure:"azure"`
		UI       UIConfig    `json:"ui" mapstructure:"ui"`
	}

	// TailConfig holds follow-mode defaults.
	TailConfig struct {
		SleepInterval time.Duration `json:"sleep_interval" mapstructure:"sleep_interval"`
	}

	// CopyConfig tunes streamed transfers.
	CopyConfig struct {
		ChunkSize int `json:"chunk_size" mapstructure:"chunk_size"`
	}

	// S3Config configures the S3 provider. Empty fields fall back to the
	// AWS shared config and environment.
	S3Config struct {
		Region          string `json:"region" mapstructure:"region"`
		Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
		Profile         string `json:"profile" mapstructure:"profile"`
		UsePathStyle    bool   `json:"use_path_style" mapstructure:"use_path_style"`
		AccessKeyID     string `json:"access_key_id" mapstructure:"access_key_id"`
		SecretAccessKey string `json:"secret_access_key" mapstructure:"secret_access_key"`
	}

	// GCSConfig configures the Google Cloud Storage provider. Empty fields
	// fall back to Application Default Credentials.
	GCSConfig struct {
		Project         string `json:"project" mapstructure:"project"`
		CredentialsFile string `json:"credentials_file" mapstructure:"credentials_file"`
		Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	}

	// AzureConfig configures the Azure Blob provider. A connection string
	// takes precedence over the account URL, which authenticates with the
	// default Azure credential chain.
	AzureConfig struct {
		AccountURL       string `json:"account_url" mapstructure:"account_url"`
		ConnectionString string `json:"connection_string" mapstructure:"connection_string"`
	}

	// UIConfig contains terminal presentation settings.
	UIConfig struct {
		Accessible bool `json:"accessible" mapstructure:"accessible"`
	}
)

// Validate returns an error if the LogLevel is not recognized.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, string(l))
	}
}

// String returns the level name.
func (l LogLevel) String() string { return string(l) }

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: LogLevelWarn,
		Tail:     TailConfig{SleepInterval: DefaultSleepInterval},
		Copy:     CopyConfig{ChunkSize: DefaultChunkSize},
	}
}
