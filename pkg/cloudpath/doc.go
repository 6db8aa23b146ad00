// SPDX-License-Identifier: MPL-2.0

// Package cloudpath defines the path abstraction shared by every cloudsh
// command: a Ref names a local file or a cloud object, a Provider serves
// the operations for one scheme, and a Path binds the two.
//
// Providers expose optional capabilities (NativeCopier, Mover, Toucher,
// Seeker) that callers discover with a type assertion. A capability that
// cannot serve a particular pair of paths reports "not applicable" by
// returning false, and the caller falls back to the generic operations.
//
// Cloud storage has no real directories. A prefix is treated as a
// directory when at least one object lives under it or when a zero-byte
// "prefix/" marker object exists. The root of a bucket or container is
// always a directory.
package cloudpath
