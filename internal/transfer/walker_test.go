// SPDX-License-Identifier: MPL-2.0

package transfer

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cloudsh/cloudsh/internal/provider/local"
	"github.com/cloudsh/cloudsh/internal/testutil/memstore"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

func seedTree(t *testing.T, s *memstore.Store, root string) {
	t.Helper()
	put(t, s, root+"/file1.txt", "cloud1", time.Time{})
	put(t, s, root+"/file2.txt", "cloud2", time.Time{})
	put(t, s, root+"/subdir/file3.txt", "cloud3", time.Time{})
}

func assertTree(t *testing.T, s *memstore.Store, root string) {
	t.Helper()
	want := map[string]string{
		"file1.txt":        "cloud1",
		"file2.txt":        "cloud2",
		"subdir/file3.txt": "cloud3",
	}
	for rel, body := range want {
		if got := content(t, s, s.Path(root+"/"+rel)); got != body {
			t.Errorf("%s/%s = %q, want %q", root, rel, got, body)
		}
	}
}

func keysUnder(s *memstore.Store, prefix string) []string {
	var out []string
	for _, k := range s.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func TestWalk_MoveCloudTree(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	seedTree(t, store, "gs://b/src")

	w := &Walker{Engine: NewEngine()}
	outcomes := w.Walk(t.Context(), store.Path("gs://b/src"), store.Path("gs://b/dst"), Move)
	if errs := Failures(outcomes); len(errs) > 0 {
		t.Fatalf("failures: %v", errs)
	}

	assertTree(t, store, "gs://b/dst")
	if left := keysUnder(store, "b/src"); len(left) > 0 {
		t.Errorf("source prefix still has %v", left)
	}
	if ok, _ := store.Path("gs://b/src").Exists(t.Context()); ok {
		t.Error("source prefix should be gone")
	}

	var removed int
	for _, o := range outcomes {
		if o.Kind == DirRemoved {
			removed++
		}
	}
	if removed != 2 {
		t.Errorf("DirRemoved outcomes = %d, want 2", removed)
	}
}

func TestWalk_MoveAcrossProviders(t *testing.T) {
	t.Parallel()

	gs := memstore.New(cloudpath.SchemeGCS)
	s3 := memstore.New(cloudpath.SchemeS3)
	seedTree(t, gs, "gs://b/src")

	w := &Walker{Engine: NewEngine()}
	outcomes := w.Walk(t.Context(), gs.Path("gs://b/src"), s3.Path("s3://b/dst"), Move)
	if errs := Failures(outcomes); len(errs) > 0 {
		t.Fatalf("failures: %v", errs)
	}
	assertTree(t, s3, "s3://b/dst")
	if left := gs.Keys(); len(left) > 0 {
		t.Errorf("source store still has %v", left)
	}
}

func TestWalk_MovePartialFailureKeepsSourceDirectory(t *testing.T) {
	t.Parallel()

	gs := memstore.New(cloudpath.SchemeGCS)
	az := memstore.New(cloudpath.SchemeAzure)
	seedTree(t, gs, "gs://b/src")
	az.FailWrites(az.Path("az://c/dst/subdir/file3.txt").Ref(), errors.New("denied"))

	var seen []OutcomeKind
	w := &Walker{Engine: NewEngine(), OnOutcome: func(o Outcome) { seen = append(seen, o.Kind) }}
	outcomes := w.Walk(t.Context(), gs.Path("gs://b/src"), az.Path("az://c/dst"), Move)

	errs := Failures(outcomes)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "denied") {
		t.Fatalf("failures = %v, want one denied write", errs)
	}
	if len(seen) != len(outcomes) {
		t.Errorf("OnOutcome saw %d outcomes, Walk returned %d", len(seen), len(outcomes))
	}

	// Completed moves stay completed.
	for _, rel := range []string{"file1.txt", "file2.txt"} {
		if _, err := az.ReadFile(az.Path("az://c/dst/" + rel).Ref()); err != nil {
			t.Errorf("%s should have moved: %v", rel, err)
		}
		if _, err := gs.ReadFile(gs.Path("gs://b/src/" + rel).Ref()); !errors.Is(err, cloudpath.ErrNotExist) {
			t.Errorf("%s should be gone from the source: %v", rel, err)
		}
	}
	if got := content(t, gs, gs.Path("gs://b/src/subdir/file3.txt")); got != "cloud3" {
		t.Errorf("failed file should stay in the source, got %q", got)
	}
	for _, o := range outcomes {
		if o.Kind == DirRemoved {
			t.Errorf("no directory should be removed, got %s", o.Source)
		}
	}
}

func TestWalk_CopyLocalToCloudAndBack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcDir := filepath.Join(dir, "src")
	for rel, body := range map[string]string{"file1.txt": "local1", "file2.txt": "local2", "subdir/file3.txt": "local3"} {
		p := filepath.Join(srcDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	lp := local.New()
	store := memstore.New(cloudpath.SchemeGCS)
	w := &Walker{Engine: NewEngine()}

	outcomes := w.Walk(t.Context(), cloudpath.New(lp, cloudpath.Local(srcDir)), store.Path("gs://b/up"), Copy)
	if errs := Failures(outcomes); len(errs) > 0 {
		t.Fatalf("upload failures: %v", errs)
	}
	if got := content(t, store, store.Path("gs://b/up/subdir/file3.txt")); got != "local3" {
		t.Errorf("uploaded file3 = %q", got)
	}

	down := filepath.Join(dir, "down")
	outcomes = w.Walk(t.Context(), store.Path("gs://b/up"), cloudpath.New(lp, cloudpath.Local(down)), Copy)
	if errs := Failures(outcomes); len(errs) > 0 {
		t.Fatalf("download failures: %v", errs)
	}
	data, err := os.ReadFile(filepath.Join(down, "subdir", "file3.txt"))
	if err != nil || string(data) != "local3" {
		t.Errorf("downloaded file3 = %q, %v", data, err)
	}

	var created []string
	for _, o := range outcomes {
		if o.Kind == DirCreated {
			created = append(created, o.Destination.Ref().Key)
		}
	}
	want := []string{down, filepath.Join(down, "subdir")}
	if !slices.Equal(created, want) {
		t.Errorf("created = %v, want %v", created, want)
	}
	if _, err := os.Stat(filepath.Join(srcDir, "file1.txt")); err != nil {
		t.Errorf("copy must keep the source: %v", err)
	}
}

func TestWalk_DestinationIsFile(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	seedTree(t, store, "gs://b/src")
	put(t, store, "gs://b/dst", "file", time.Time{})

	w := &Walker{Engine: NewEngine()}
	outcomes := w.Walk(t.Context(), store.Path("gs://b/src"), store.Path("gs://b/dst"), Move)
	errs := Failures(outcomes)
	if len(errs) != 1 || !errors.Is(errs[0], cloudpath.ErrNotDir) {
		t.Fatalf("failures = %v, want a single not-a-directory error", errs)
	}
	assertTree(t, store, "gs://b/src")
}
