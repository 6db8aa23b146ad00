// SPDX-License-Identifier: MPL-2.0

// Package coreutils implements the cloudsh utilities: cp, mv, rm, cat,
// head, tail, ls, mkdir, touch, less, more and sink. Every operand may be
// a local path or a cloud URL (gs://, s3://, az://).
//
// Commands implement Command and register themselves in DefaultRegistry
// from init functions. The cobra front end and the sh interpreter both
// dispatch through the registry, so a utility behaves the same whether it
// is typed at a shell prompt or used inside a cloudsh script.
//
// # Error Format
//
// User-facing problems are written to the command's stderr in the
// coreutils style and the command fails with an ExitError:
//
//	cloudsh cp: cannot stat 'gs://b/missing': No such file or directory
//	cloudsh tail: invalid number of lines: '1X'
//
// A write to a closed pipe ends the command with status 141 and an
// interrupt with status 130, without further messages.
package coreutils
