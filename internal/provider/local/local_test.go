// SPDX-License-Identifier: MPL-2.0

package local

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

func TestProviderStatAndRangedRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	p := New()
	info, err := p.Stat(t.Context(), cloudpath.Local(path))
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if info.Size != 10 || info.IsDir {
		t.Errorf("Stat() = %+v, want size 10 regular file", info)
	}

	r, err := p.OpenRead(t.Context(), cloudpath.Local(path), 3, 4)
	if err != nil {
		t.Fatalf("OpenRead() error: %v", err)
	}
	defer func() { _ = r.Close() }()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(got) != "3456" {
		t.Errorf("ranged read = %q, want %q", got, "3456")
	}
}

func TestProviderErrorsCarrySentinels(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	sub := filepath.Join(dir, "sub")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(sub, "child"), 0o755); err != nil {
		t.Fatal(err)
	}

	p := New()
	ctx := t.Context()

	if _, err := p.Stat(ctx, cloudpath.Local(filepath.Join(dir, "missing"))); !errors.Is(err, cloudpath.ErrNotExist) {
		t.Errorf("Stat(missing) error = %v, want ErrNotExist", err)
	}
	if err := p.Delete(ctx, cloudpath.Local(sub)); !errors.Is(err, cloudpath.ErrIsDir) {
		t.Errorf("Delete(dir) error = %v, want ErrIsDir", err)
	}
	if err := p.Rmdir(ctx, cloudpath.Local(sub)); !errors.Is(err, cloudpath.ErrNotEmpty) {
		t.Errorf("Rmdir(non-empty) error = %v, want ErrNotEmpty", err)
	}
	if err := p.Rmdir(ctx, cloudpath.Local(file)); !errors.Is(err, cloudpath.ErrNotDir) {
		t.Errorf("Rmdir(file) error = %v, want ErrNotDir", err)
	}
	if err := p.Mkdir(ctx, cloudpath.Local(sub), false, false); !errors.Is(err, cloudpath.ErrExist) {
		t.Errorf("Mkdir(existing) error = %v, want ErrExist", err)
	}
	if err := p.Mkdir(ctx, cloudpath.Local(sub), false, true); err != nil {
		t.Errorf("Mkdir(existing, existOK) error = %v, want nil", err)
	}
	if _, err := p.OpenRead(ctx, cloudpath.Local(sub), 0, -1); !errors.Is(err, cloudpath.ErrIsDir) {
		t.Errorf("OpenRead(dir) error = %v, want ErrIsDir", err)
	}
}

func TestProviderNativeCopyPreserve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("payload"), 0o600); err != nil {
		t.Fatal(err)
	}
	stamp := time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC)
	if err := os.Chtimes(src, stamp, stamp); err != nil {
		t.Fatal(err)
	}

	p := New()
	used, err := p.NativeCopy(t.Context(), cloudpath.Local(src), cloudpath.Local(dst), cloudpath.CopyOptions{Preserve: true})
	if err != nil || !used {
		t.Fatalf("NativeCopy() = %v, %v", used, err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Errorf("copied content = %q", data)
	}
	fi, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !fi.ModTime().Equal(stamp) {
		t.Errorf("ModTime = %v, want %v", fi.ModTime(), stamp)
	}

	used, err = p.NativeCopy(t.Context(), cloudpath.Local(src), cloudpath.MustParse("gs://b/k"), cloudpath.CopyOptions{})
	if used || err != nil {
		t.Errorf("NativeCopy(local -> cloud) = %v, %v; want not applicable", used, err)
	}
}

func TestProviderMoveChangesIdentityOfReplacedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "log")
	replacement := filepath.Join(dir, "log.new")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(replacement, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New()
	before, err := p.Stat(t.Context(), cloudpath.Local(target))
	if err != nil {
		t.Fatal(err)
	}
	moved, err := p.Move(t.Context(), cloudpath.Local(replacement), cloudpath.Local(target))
	if err != nil || !moved {
		t.Fatalf("Move() = %v, %v", moved, err)
	}
	after, err := p.Stat(t.Context(), cloudpath.Local(target))
	if err != nil {
		t.Fatal(err)
	}
	if !before.Identity.IsZero() && before.Identity == after.Identity {
		t.Errorf("identity unchanged after replacement: %v", after.Identity)
	}
}
