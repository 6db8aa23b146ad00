// SPDX-License-Identifier: MPL-2.0

package memstore

import (
	"errors"
	"io"
	"testing"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

func TestStoreDirectoriesArePrefixes(t *testing.T) {
	t.Parallel()

	s := New(cloudpath.SchemeGCS)
	s.WriteFile(cloudpath.MustParse("gs://b/dir/sub/f.txt"), []byte("x"))

	info, err := s.Stat(t.Context(), cloudpath.MustParse("gs://b/dir"))
	if err != nil {
		t.Fatalf("Stat(dir) error: %v", err)
	}
	if !info.IsDir {
		t.Error("prefix with objects below should be a directory")
	}

	children, err := s.List(t.Context(), cloudpath.MustParse("gs://b/dir"))
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(children) != 1 || children[0].Key != "dir/sub" {
		t.Errorf("List() = %v, want [dir/sub]", children)
	}

	err = s.Rmdir(t.Context(), cloudpath.MustParse("gs://b/dir"))
	if !errors.Is(err, cloudpath.ErrNotEmpty) {
		t.Errorf("Rmdir(non-empty) error = %v, want ErrNotEmpty", err)
	}
}

func TestStoreWriteCommitsOnClose(t *testing.T) {
	t.Parallel()

	s := New(cloudpath.SchemeS3)
	ref := cloudpath.MustParse("s3://b/f")

	w, err := s.OpenWrite(t.Context(), ref, false)
	if err != nil {
		t.Fatalf("OpenWrite() error: %v", err)
	}
	if _, err := io.WriteString(w, "hello"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if _, err := s.ReadFile(ref); err == nil {
		t.Error("object should not be visible before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	r, err := s.OpenRead(t.Context(), ref, 1, 3)
	if err != nil {
		t.Fatalf("OpenRead() error: %v", err)
	}
	got, _ := io.ReadAll(r)
	if string(got) != "ell" {
		t.Errorf("ranged read = %q, want %q", got, "ell")
	}
}

func TestStoreMkdirMarker(t *testing.T) {
	t.Parallel()

	s := New(cloudpath.SchemeAzure)
	ref := cloudpath.MustParse("az://c/a/b")

	if err := s.Mkdir(t.Context(), ref, false, false); !errors.Is(err, cloudpath.ErrNotExist) {
		t.Errorf("Mkdir without parents error = %v, want ErrNotExist", err)
	}
	if err := s.Mkdir(t.Context(), ref, true, false); err != nil {
		t.Fatalf("Mkdir(parents) error: %v", err)
	}
	if err := s.Mkdir(t.Context(), ref, false, false); !errors.Is(err, cloudpath.ErrExist) {
		t.Errorf("second Mkdir error = %v, want ErrExist", err)
	}
	if err := s.Rmdir(t.Context(), ref); err != nil {
		t.Fatalf("Rmdir() error: %v", err)
	}
	if _, err := s.Stat(t.Context(), ref); !errors.Is(err, cloudpath.ErrNotExist) {
		t.Errorf("Stat after Rmdir error = %v, want ErrNotExist", err)
	}
}
