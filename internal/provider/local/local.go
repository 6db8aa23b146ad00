// SPDX-License-Identifier: MPL-2.0

// Package local serves cloudpath operations from the host filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"
	"time"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

type (
	// Provider implements cloudpath.Provider, NativeCopier, Mover, Toucher
	// and Seeker for local paths. Relative keys resolve against the
	// process working directory; callers pass absolute keys.
	Provider struct{}

	// mappedError tags an os error with a cloudpath sentinel while keeping
	// the original message.
	mappedError struct {
		sentinel error
		err      error
	}

	limitedFile struct {
		io.Reader
		io.Closer
	}
)

// New creates a local provider.
func New() *Provider {
	return &Provider{}
}

// Scheme implements cloudpath.Provider.
func (p *Provider) Scheme() cloudpath.Scheme { return cloudpath.SchemeLocal }

// Stat implements cloudpath.Provider.
func (p *Provider) Stat(_ context.Context, ref cloudpath.Ref) (cloudpath.Info, error) {
	fi, err := os.Stat(ref.Key)
	if err != nil {
		return cloudpath.Info{}, mapError(err)
	}
	return infoOf(ref.Key, fi), nil
}

// List implements cloudpath.Provider. Entries come back in directory
// order as returned by os.ReadDir (sorted by name).
func (p *Provider) List(_ context.Context, ref cloudpath.Ref) ([]cloudpath.Ref, error) {
	entries, err := os.ReadDir(ref.Key)
	if err != nil {
		return nil, mapError(err)
	}
	refs := make([]cloudpath.Ref, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, ref.Join(e.Name()))
	}
	return refs, nil
}

// OpenRead implements cloudpath.Provider.
func (p *Provider) OpenRead(_ context.Context, ref cloudpath.Ref, offset, length int64) (io.ReadCloser, error) {
	f, err := openFile(ref.Key)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, mapError(err)
		}
	}
	if length >= 0 {
		return limitedFile{Reader: io.LimitReader(f, length), Closer: f}, nil
	}
	return f, nil
}

// OpenSeeker implements cloudpath.Seeker.
func (p *Provider) OpenSeeker(_ context.Context, ref cloudpath.Ref) (io.ReadSeekCloser, error) {
	return openFile(ref.Key)
}

// OpenWrite implements cloudpath.Provider.
func (p *Provider) OpenWrite(_ context.Context, ref cloudpath.Ref, appendMode bool) (io.WriteCloser, error) {
	if fi, err := os.Stat(ref.Key); err == nil && fi.IsDir() {
		return nil, mapError(&fs.PathError{Op: "open", Path: ref.Key, Err: syscall.EISDIR})
	}
	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(ref.Key, flags, 0o644)
	if err != nil {
		return nil, mapError(err)
	}
	return f, nil
}

// Mkdir implements cloudpath.Provider.
func (p *Provider) Mkdir(_ context.Context, ref cloudpath.Ref, parents, existOK bool) error {
	if parents {
		return mapError(os.MkdirAll(ref.Key, 0o755))
	}
	err := os.Mkdir(ref.Key, 0o755)
	if err != nil && existOK && errors.Is(err, fs.ErrExist) {
		if fi, statErr := os.Stat(ref.Key); statErr == nil && fi.IsDir() {
			return nil
		}
	}
	return mapError(err)
}

// Delete implements cloudpath.Provider.
func (p *Provider) Delete(_ context.Context, ref cloudpath.Ref) error {
	fi, err := os.Lstat(ref.Key)
	if err != nil {
		return mapError(err)
	}
	if fi.IsDir() {
		return mapError(&fs.PathError{Op: "remove", Path: ref.Key, Err: syscall.EISDIR})
	}
	return mapError(os.Remove(ref.Key))
}

// Rmdir implements cloudpath.Provider.
func (p *Provider) Rmdir(_ context.Context, ref cloudpath.Ref) error {
	fi, err := os.Lstat(ref.Key)
	if err != nil {
		return mapError(err)
	}
	if !fi.IsDir() {
		return mapError(&fs.PathError{Op: "rmdir", Path: ref.Key, Err: syscall.ENOTDIR})
	}
	entries, err := os.ReadDir(ref.Key)
	if err != nil {
		return mapError(err)
	}
	if len(entries) > 0 {
		return &mappedError{sentinel: cloudpath.ErrNotEmpty, err: fmt.Errorf("rmdir %s: directory not empty", ref.Key)}
	}
	return mapError(os.Remove(ref.Key))
}

// NativeCopy implements cloudpath.NativeCopier with a filesystem copy.
func (p *Provider) NativeCopy(_ context.Context, src, dst cloudpath.Ref, opts cloudpath.CopyOptions) (bool, error) {
	if !src.IsLocal() || !dst.IsLocal() {
		return false, nil
	}
	return true, mapError(copyFile(src.Key, dst.Key, opts.Preserve))
}

// Move implements cloudpath.Mover with os.Rename. Renames across devices
// report false so the caller falls back to copy and delete.
func (p *Provider) Move(_ context.Context, src, dst cloudpath.Ref) (bool, error) {
	if !src.IsLocal() || !dst.IsLocal() {
		return false, nil
	}
	if err := os.Rename(src.Key, dst.Key); err != nil {
		if isCrossDevice(err) {
			return false, nil
		}
		return true, mapError(err)
	}
	return true, nil
}

// Touch implements cloudpath.Toucher.
func (p *Provider) Touch(_ context.Context, ref cloudpath.Ref, mtime time.Time) error {
	return mapError(os.Chtimes(ref.Key, mtime, mtime))
}

// copyFile copies src to dst, optionally preserving mode, timestamps and
// ownership. Ownership failures are ignored as GNU cp does for non-root.
func copyFile(src, dst string, preserve bool) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return &fs.PathError{Op: "copy", Path: src, Err: syscall.EISDIR}
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if !preserve {
		return nil
	}
	if err := os.Chmod(dst, fi.Mode()); err != nil {
		return err
	}
	if err := os.Chtimes(dst, fi.ModTime(), fi.ModTime()); err != nil {
		return err
	}
	_ = chown(dst, fi)
	return nil
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, mapError(err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, mapError(err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, mapError(&fs.PathError{Op: "read", Path: path, Err: syscall.EISDIR})
	}
	return f, nil
}

func infoOf(path string, fi fs.FileInfo) cloudpath.Info {
	return cloudpath.Info{
		Size:     fi.Size(),
		ModTime:  fi.ModTime(),
		IsDir:    fi.IsDir(),
		Mode:     fi.Mode(),
		Identity: identityOf(path, fi),
	}
}

// mapError attaches cloudpath sentinels to errno values that fs does not
// already classify.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.ENOTDIR):
		return &mappedError{sentinel: cloudpath.ErrNotDir, err: err}
	case errors.Is(err, syscall.EISDIR):
		return &mappedError{sentinel: cloudpath.ErrIsDir, err: err}
	case errors.Is(err, syscall.ENOTEMPTY):
		return &mappedError{sentinel: cloudpath.ErrNotEmpty, err: err}
	default:
		return err
	}
}

func (e *mappedError) Error() string { return e.err.Error() }

func (e *mappedError) Unwrap() []error { return []error{e.sentinel, e.err} }
