// SPDX-License-Identifier: MPL-2.0

package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/cloudsh/cloudsh/internal/testutil/memstore"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

func TestResolve_LocalRelative(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r := NewResolver(nil, WithWorkDir(dir))

	p, err := r.Resolve(t.Context(), "sub/file.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.Scheme() != cloudpath.SchemeLocal {
		t.Errorf("Scheme() = %q", p.Scheme())
	}
	if want := filepath.Join(dir, "sub", "file.txt"); p.Ref().Key != want {
		t.Errorf("Key = %q, want %q", p.Ref().Key, want)
	}
	if p.String() != "sub/file.txt" {
		t.Errorf("String() = %q, want the operand as typed", p.String())
	}
}

func TestResolve_CloudUsesRegisteredProvider(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	r := NewResolver(nil, WithProvider(store))

	p, err := r.Resolve(t.Context(), "gs://bucket/a/b.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.Provider() != cloudpath.Provider(store) {
		t.Error("Resolve() should bind the registered store")
	}
	if p.Ref().Container != "bucket" || p.Ref().Key != "a/b.txt" {
		t.Errorf("Ref() = %+v", p.Ref())
	}
}

func TestResolve_Errors(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil)
	if _, err := r.Resolve(t.Context(), "ftp://host/file"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("Resolve(ftp) error = %v, want ErrUnsupportedScheme", err)
	}

	boom := errors.New("no credentials")
	r = NewResolver(nil, WithFactory(cloudpath.SchemeS3, func(context.Context) (cloudpath.Provider, error) {
		return nil, boom
	}))
	_, err := r.Resolve(t.Context(), "s3://bucket/key")
	if !errors.Is(err, ErrProviderInit) || !errors.Is(err, boom) {
		t.Errorf("Resolve(s3) error = %v, want ErrProviderInit wrapping the cause", err)
	}
}

func TestResolver_InitErrors(t *testing.T) {
	t.Parallel()

	fail := true
	store := memstore.New(cloudpath.SchemeS3)
	r := NewResolver(nil, WithFactory(cloudpath.SchemeS3, func(context.Context) (cloudpath.Provider, error) {
		if fail {
			return nil, errors.New("no credentials")
		}
		return store, nil
	}))
	if got := r.InitErrors(); len(got) != 0 {
		t.Fatalf("InitErrors() = %v before any use", got)
	}

	if _, err := r.Resolve(t.Context(), "s3://b/k"); err == nil {
		t.Fatal("Resolve() error = nil")
	}
	errs := r.InitErrors()
	if len(errs) != 1 || !errors.Is(errs[0], ErrProviderInit) {
		t.Fatalf("InitErrors() = %v, want one ErrProviderInit", errs)
	}

	fail = false
	if _, err := r.Resolve(t.Context(), "s3://b/k"); err != nil {
		t.Fatalf("Resolve() after recovery error = %v", err)
	}
	if got := r.InitErrors(); len(got) != 0 {
		t.Errorf("InitErrors() = %v after a successful construction", got)
	}
}

func TestProvider_ConstructedOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	store := memstore.New(cloudpath.SchemeS3)
	r := NewResolver(nil, WithFactory(cloudpath.SchemeS3, func(context.Context) (cloudpath.Provider, error) {
		calls++
		return store, nil
	}))

	for range 3 {
		if _, err := r.Resolve(t.Context(), "s3://b/k"); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("factory called %d times, want 1", calls)
	}
}

func TestExpand_Local(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"a.log", "b.log", "c.txt", "nested/d.log"} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r := NewResolver(nil, WithWorkDir(dir))

	got, err := r.Expand(t.Context(), "*.log")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if want := []string{"a.log", "b.log"}; !slices.Equal(got, want) {
		t.Errorf("Expand(*.log) = %v, want %v", got, want)
	}

	got, err = r.Expand(t.Context(), "**/*.log")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if want := []string{"a.log", "b.log", filepath.Join("nested", "d.log")}; !slices.Equal(got, want) {
		t.Errorf("Expand(**/*.log) = %v, want %v", got, want)
	}

	got, _ = r.Expand(t.Context(), "*.none")
	if !slices.Equal(got, []string{"*.none"}) {
		t.Errorf("Expand(no match) = %v, want the operand unchanged", got)
	}
}

func TestExpand_Cloud(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	for _, key := range []string{"logs/a.txt", "logs/b.txt", "logs/c.csv", "logs/2024/d.txt", "top.txt"} {
		store.WriteFile(cloudpath.MustParse("gs://b/"+key), []byte("x"))
	}
	r := NewResolver(nil, WithProvider(store))

	tests := []struct {
		pattern string
		want    []string
	}{
		{"gs://b/logs/*.txt", []string{"gs://b/logs/a.txt", "gs://b/logs/b.txt"}},
		{"gs://b/logs/**/*.txt", []string{"gs://b/logs/2024/d.txt", "gs://b/logs/a.txt", "gs://b/logs/b.txt"}},
		{"gs://b/*.txt", []string{"gs://b/top.txt"}},
		{"gs://b/logs/?.csv", []string{"gs://b/logs/c.csv"}},
		{"gs://b/nothing/*", []string{"gs://b/nothing/*"}},
		{"gs://b/logs/a.txt", []string{"gs://b/logs/a.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			t.Parallel()
			got, err := r.Expand(t.Context(), tt.pattern)
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Expand() = %v, want %v", got, tt.want)
			}
		})
	}
}
