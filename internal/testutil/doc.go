// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by cloudsh tests: a manually
// driven clock for follow-mode tests and Must* file helpers that fail the
// test instead of returning errors. The memstore subpackage holds an
// in-memory object store that stands in for cloud providers.
package testutil
