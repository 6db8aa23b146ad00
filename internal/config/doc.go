// SPDX-License-Identifier: MPL-2.0

// Package config handles cloudsh configuration using Viper with CUE as the
// file format.
//
// Configuration is loaded from ~/.config/cloudsh/config.cue (or the XDG
// equivalent on Linux, ~/Library/Application Support/cloudsh/config.cue on
// macOS, %APPDATA%\cloudsh\config.cue on Windows). Every key can also be
// set through a CLOUDSH_ environment variable, e.g. CLOUDSH_S3_REGION or
// CLOUDSH_TAIL_SLEEP_INTERVAL.
//
// The file is validated against the embedded CUE schema (config_schema.cue)
// before it is merged into Viper, so typos and out-of-range values are
// reported with their CUE path.
package config
