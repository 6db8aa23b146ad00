// SPDX-License-Identifier: MPL-2.0

package cloudpath

import (
	"context"
	"io"
	"io/fs"
	"time"
)

// Identity kinds.
const (
	// IdentityInode fingerprints a local file by device and inode.
	IdentityInode IdentityKind = "inode"
	// IdentityGeneration fingerprints a cloud object by generation or ETag.
	IdentityGeneration IdentityKind = "generation"
)

type (
	// IdentityKind tells how an Identity value was derived.
	IdentityKind string

	// Identity fingerprints the physical object behind a path. Two stats
	// with different identities refer to different underlying objects even
	// when size and content happen to match.
	Identity struct {
		Kind  IdentityKind
		Value string
	}

	// Info is the metadata returned by Stat.
	Info struct {
		Size     int64
		ModTime  time.Time
		IsDir    bool
		Mode     fs.FileMode
		Identity Identity
	}

	// CopyOptions tunes NativeCopy.
	CopyOptions struct {
		// Force overwrites a destination modified after the source.
		// Without it the copy fails with ErrObjectNewer.
		Force bool
		// Preserve keeps mode, timestamps and ownership where supported.
		Preserve bool
	}

	// Provider serves every path of one scheme. Implementations must be
	// safe for use by a single command invocation; they are not required
	// to support concurrent mutation of the same object.
	Provider interface {
		// Scheme returns the scheme this provider serves.
		Scheme() Scheme

		// Stat returns metadata for ref or an error wrapping ErrNotExist.
		Stat(ctx context.Context, ref Ref) (Info, error)

		// List returns the direct children of the directory ref.
		List(ctx context.Context, ref Ref) ([]Ref, error)

		// OpenRead opens ref for reading starting at offset. A negative
		// length reads through EOF.
		OpenRead(ctx context.Context, ref Ref, offset, length int64) (io.ReadCloser, error)

		// OpenWrite opens ref for writing, truncating it unless appendMode
		// is set. Data is committed when the writer is closed.
		OpenWrite(ctx context.Context, ref Ref, appendMode bool) (io.WriteCloser, error)

		// Mkdir creates the directory ref.
		Mkdir(ctx context.Context, ref Ref, parents, existOK bool) error

		// Delete removes the file ref. Directories yield ErrIsDir.
		Delete(ctx context.Context, ref Ref) error

		// Rmdir removes the empty directory ref.
		Rmdir(ctx context.Context, ref Ref) error
	}

	// NativeCopier copies without routing bytes through this process.
	// It returns false when it cannot serve the given pair.
	NativeCopier interface {
		NativeCopy(ctx context.Context, src, dst Ref, opts CopyOptions) (bool, error)
	}

	// Mover renames atomically. It returns false when the pair cannot be
	// renamed in place (different bucket, different device).
	Mover interface {
		Move(ctx context.Context, src, dst Ref) (bool, error)
	}

	// GuardedWriter opens a truncating write that fails with
	// ErrObjectNewer when the existing object was modified after
	// notAfter, or when the object changes before the write commits.
	GuardedWriter interface {
		OpenWriteGuarded(ctx context.Context, ref Ref, notAfter time.Time) (io.WriteCloser, error)
	}

	// Toucher sets the modification time of an existing entry.
	Toucher interface {
		Touch(ctx context.Context, ref Ref, mtime time.Time) error
	}

	// Seeker opens ref for cheap random access.
	Seeker interface {
		OpenSeeker(ctx context.Context, ref Ref) (io.ReadSeekCloser, error)
	}
)

// IsZero reports whether no identity was recorded.
func (i Identity) IsZero() bool { return i.Value == "" }

// String returns "kind:value".
func (i Identity) String() string {
	if i.IsZero() {
		return ""
	}
	return string(i.Kind) + ":" + i.Value
}
