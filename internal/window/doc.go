// SPDX-License-Identifier: MPL-2.0

// Package window computes the head/tail view of a stream: the first or
// last N lines or bytes, everything from record N on, or everything but
// the last N. Input is scanned in fixed-size chunks so memory stays
// bounded by the window rather than the file, and records that straddle
// a chunk boundary are carried over intact.
//
// ComputePath picks the cheapest strategy a provider allows: ranged reads
// for byte windows on any backend, and a backward scan from EOF for
// last-N-lines when the provider offers random access.
package window
