// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and Markdown troubleshooting
// guides for failures a user can fix themselves, such as missing cloud
// credentials or an invalid config file.
package issue
