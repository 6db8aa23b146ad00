// SPDX-License-Identifier: MPL-2.0

// Package tui holds the interactive terminal front ends of cloudsh: the
// scrollable pager behind less and more, and the yes/no prompt used by
// the -i flags of cp, mv and rm.
//
// Both components degrade to plain line-oriented behaviour when the
// streams they are given are not terminals, so commands stay scriptable.
package tui
