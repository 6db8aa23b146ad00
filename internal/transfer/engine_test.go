// SPDX-License-Identifier: MPL-2.0

package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudsh/cloudsh/internal/provider/local"
	"github.com/cloudsh/cloudsh/internal/testutil/memstore"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

var (
	older = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer = older.Add(time.Hour)
)

type fakePrompter struct {
	answer  bool
	prompts []string
}

func (f *fakePrompter) Confirm(_ context.Context, prompt string) (bool, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, nil
}

func put(t *testing.T, s *memstore.Store, raw, content string, mtime time.Time) cloudpath.Path {
	t.Helper()
	p := s.Path(raw)
	s.WriteFile(p.Ref(), []byte(content))
	if !mtime.IsZero() {
		s.SetModTime(p.Ref(), mtime)
	}
	return p
}

func content(t *testing.T, s *memstore.Store, p cloudpath.Path) string {
	t.Helper()
	data, err := s.ReadFile(p.Ref())
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", p, err)
	}
	return string(data)
}

func TestTransfer_ConflictPolicies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		policy    Policy
		srcTime   time.Time
		answer    bool
		wantKind  OutcomeKind
		wantValue string
		wantAsked bool
	}{
		{"overwrite", Overwrite, older, false, Transferred, "source", false},
		{"no clobber", NoClobber, newer, false, Skipped, "destination", false},
		{"interactive yes", Interactive, older, true, Transferred, "source", true},
		{"interactive no", Interactive, newer, false, Skipped, "destination", true},
		{"update never", UpdateNever, newer, false, Skipped, "destination", false},
		{"update source newer", UpdateIfNewer, newer, false, Transferred, "source", false},
		{"update source older", UpdateIfNewer, older.Add(-time.Hour), false, Skipped, "destination", false},
		{"update equal times", UpdateIfNewer, older, false, Skipped, "destination", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := memstore.New(cloudpath.SchemeGCS)
			src := put(t, store, "gs://b/src.txt", "source", tt.srcTime)
			dst := put(t, store, "gs://b/dst.txt", "destination", older)
			prompter := &fakePrompter{answer: tt.answer}

			engine := NewEngine(WithPrompter(prompter))
			out, err := engine.Transfer(t.Context(), Plan{Source: src, Destination: dst, Policy: tt.policy}, Copy)
			if err != nil {
				t.Fatalf("Transfer() error = %v", err)
			}
			if out.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", out.Kind, tt.wantKind)
			}
			if got := content(t, store, dst); got != tt.wantValue {
				t.Errorf("destination = %q, want %q", got, tt.wantValue)
			}
			if asked := len(prompter.prompts) > 0; asked != tt.wantAsked {
				t.Errorf("prompted = %v, want %v", asked, tt.wantAsked)
			}
			if tt.wantAsked && prompter.prompts[0] != "overwrite 'gs://b/dst.txt'?" {
				t.Errorf("prompt = %q", prompter.prompts[0])
			}
		})
	}
}

func TestTransfer_InteractiveWithoutPrompterDeclines(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	src := put(t, store, "gs://b/src.txt", "source", time.Time{})
	dst := put(t, store, "gs://b/dst.txt", "destination", time.Time{})

	out, err := NewEngine().Transfer(t.Context(), Plan{Source: src, Destination: dst, Policy: Interactive}, Copy)
	if err != nil || out.Kind != Skipped {
		t.Fatalf("Transfer() = %v, %v; want Skipped", out.Kind, err)
	}
}

func TestTransfer_NoClobberIsIdempotent(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{Copy, Move} {
		store := memstore.New(cloudpath.SchemeS3)
		src := put(t, store, "s3://b/src.txt", "new", newer)
		dst := put(t, store, "s3://b/dst.txt", "old", older)
		engine := NewEngine()

		for i := range 2 {
			out, err := engine.Transfer(t.Context(), Plan{Source: src, Destination: dst, Policy: NoClobber}, mode)
			if err != nil {
				t.Fatalf("%v run %d: error = %v", mode, i, err)
			}
			if out.Kind != Skipped {
				t.Errorf("%v run %d: Kind = %v, want Skipped", mode, i, out.Kind)
			}
			if got := content(t, store, dst); got != "old" {
				t.Errorf("%v run %d: destination = %q, want %q", mode, i, got, "old")
			}
		}
		if _, err := store.ReadFile(src.Ref()); err != nil {
			t.Errorf("%v: source should survive a skipped move: %v", mode, err)
		}
	}
}

func TestTransfer_UpdateIfNewerMove(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		srcTime time.Time
		moved   bool
	}{
		{"older source", older.Add(-time.Minute), false},
		{"equal source", older, false},
		{"newer source", newer, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := memstore.New(cloudpath.SchemeAzure)
			src := put(t, store, "az://c/src.txt", "fresh", tt.srcTime)
			dst := put(t, store, "az://c/dst.txt", "stale", older)

			if _, err := NewEngine().Transfer(t.Context(), Plan{Source: src, Destination: dst, Policy: UpdateIfNewer}, Move); err != nil {
				t.Fatalf("Transfer() error = %v", err)
			}

			want := "stale"
			if tt.moved {
				want = "fresh"
			}
			if got := content(t, store, dst); got != want {
				t.Errorf("destination = %q, want %q", got, want)
			}
			_, err := store.ReadFile(src.Ref())
			if srcGone := errors.Is(err, cloudpath.ErrNotExist); srcGone != tt.moved {
				t.Errorf("source gone = %v, want %v", srcGone, tt.moved)
			}
		})
	}
}

func TestTransfer_Strategies(t *testing.T) {
	t.Parallel()

	t.Run("same provider copy is native", func(t *testing.T) {
		t.Parallel()
		store := memstore.New(cloudpath.SchemeGCS)
		src := put(t, store, "gs://a/f.txt", "data", time.Time{})
		out, err := NewEngine().Transfer(t.Context(), Plan{Source: src, Destination: store.Path("gs://b/f.txt")}, Copy)
		if err != nil {
			t.Fatal(err)
		}
		if out.Strategy != StrategyNative || store.NativeCopies() != 1 {
			t.Errorf("Strategy = %v, native copies = %d", out.Strategy, store.NativeCopies())
		}
	})

	t.Run("same container move renames", func(t *testing.T) {
		t.Parallel()
		store := memstore.New(cloudpath.SchemeGCS)
		src := put(t, store, "gs://a/f.txt", "data", time.Time{})
		dst := store.Path("gs://a/g.txt")
		out, err := NewEngine().Transfer(t.Context(), Plan{Source: src, Destination: dst}, Move)
		if err != nil {
			t.Fatal(err)
		}
		if out.Strategy != StrategyRename || store.Moves() != 1 || store.NativeCopies() != 0 {
			t.Errorf("Strategy = %v, moves = %d, copies = %d", out.Strategy, store.Moves(), store.NativeCopies())
		}
		if got := content(t, store, dst); got != "data" {
			t.Errorf("destination = %q", got)
		}
	})

	t.Run("cross container move copies then deletes", func(t *testing.T) {
		t.Parallel()
		store := memstore.New(cloudpath.SchemeS3)
		src := put(t, store, "s3://a/f.txt", "data", time.Time{})
		dst := store.Path("s3://b/f.txt")
		out, err := NewEngine().Transfer(t.Context(), Plan{Source: src, Destination: dst}, Move)
		if err != nil {
			t.Fatal(err)
		}
		if out.Strategy != StrategyNative || store.Moves() != 0 {
			t.Errorf("Strategy = %v, moves = %d", out.Strategy, store.Moves())
		}
		if _, err := store.ReadFile(src.Ref()); !errors.Is(err, cloudpath.ErrNotExist) {
			t.Errorf("source still exists: %v", err)
		}
	})

	t.Run("cross provider streams", func(t *testing.T) {
		t.Parallel()
		gs := memstore.New(cloudpath.SchemeGCS)
		s3 := memstore.New(cloudpath.SchemeS3)
		src := put(t, gs, "gs://a/f.txt", "payload", time.Time{})
		dst := s3.Path("s3://b/f.txt")
		out, err := NewEngine(WithChunkSize(2)).Transfer(t.Context(), Plan{Source: src, Destination: dst}, Move)
		if err != nil {
			t.Fatal(err)
		}
		if out.Strategy != StrategyStream || gs.NativeCopies() != 0 || s3.NativeCopies() != 0 {
			t.Errorf("Strategy = %v", out.Strategy)
		}
		if got := content(t, s3, dst); got != "payload" {
			t.Errorf("destination = %q", got)
		}
		if _, err := gs.ReadFile(src.Ref()); !errors.Is(err, cloudpath.ErrNotExist) {
			t.Errorf("source still exists: %v", err)
		}
	})
}

func TestTransfer_LocalToCloudPreserve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(file, []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(file, older, older); err != nil {
		t.Fatal(err)
	}

	store := memstore.New(cloudpath.SchemeGCS)
	src := cloudpath.New(local.New(), cloudpath.Local(file))
	dst := store.Path("gs://b/dst.txt")
	if _, err := NewEngine().Transfer(t.Context(), Plan{Source: src, Destination: dst, Preserve: true}, Copy); err != nil {
		t.Fatal(err)
	}
	info, err := dst.Stat(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime.Equal(older) {
		t.Errorf("ModTime = %v, want %v", info.ModTime, older)
	}
}

func TestTransfer_ObjectNewerRetry(t *testing.T) {
	t.Parallel()

	for _, force := range []bool{false, true} {
		store := memstore.New(cloudpath.SchemeGCS, memstore.WithRejectNewer())
		src := put(t, store, "gs://b/src.txt", "source", older)
		dst := put(t, store, "gs://b/dst.txt", "destination", newer)

		_, err := NewEngine().Transfer(t.Context(), Plan{Source: src, Destination: dst, Force: force}, Copy)
		if force {
			if err != nil {
				t.Fatalf("forced Transfer() error = %v", err)
			}
			if got := content(t, store, dst); got != "source" {
				t.Errorf("destination = %q, want %q", got, "source")
			}
			continue
		}
		if KindOf(err) != KindProviderRejectedOverwrite {
			t.Fatalf("Kind = %v, want ProviderRejectedOverwrite (err %v)", KindOf(err), err)
		}
		if !errors.Is(err, cloudpath.ErrObjectNewer) {
			t.Errorf("error %v should wrap ErrObjectNewer", err)
		}
	}
}

func TestTransfer_UploadOntoNewerObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(file, []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(file, older, older); err != nil {
		t.Fatal(err)
	}
	src := cloudpath.New(local.New(), cloudpath.Local(file))

	for _, force := range []bool{false, true} {
		store := memstore.New(cloudpath.SchemeGCS, memstore.WithRejectNewer())
		dst := put(t, store, "gs://b/dst.txt", "cloud", newer)

		out, err := NewEngine().Transfer(t.Context(), Plan{Source: src, Destination: dst, Force: force}, Copy)
		if force {
			if err != nil {
				t.Fatalf("forced Transfer() error = %v", err)
			}
			if out.Strategy != StrategyStream {
				t.Errorf("Strategy = %v, want stream", out.Strategy)
			}
			if got := content(t, store, dst); got != "local" {
				t.Errorf("destination = %q, want %q", got, "local")
			}
			continue
		}
		if KindOf(err) != KindProviderRejectedOverwrite {
			t.Fatalf("Kind = %v, want ProviderRejectedOverwrite (err %v)", KindOf(err), err)
		}
		if got := content(t, store, dst); got != "cloud" {
			t.Errorf("rejected upload changed the destination to %q", got)
		}
	}
}

func TestTransfer_Errors(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	file := put(t, store, "gs://b/file.txt", "x", time.Time{})
	put(t, store, "gs://b/dir/inner.txt", "y", time.Time{})
	engine := NewEngine()

	tests := []struct {
		name string
		plan Plan
		kind Kind
		msg  string
	}{
		{
			name: "missing source",
			plan: Plan{Source: store.Path("gs://b/nope.txt"), Destination: store.Path("gs://b/x.txt")},
			kind: KindSourceMissing,
			msg:  "cannot stat 'gs://b/nope.txt': No such file or directory",
		},
		{
			name: "missing parent",
			plan: Plan{Source: file, Destination: store.Path("gs://b/missing/x.txt")},
			kind: KindNoSuchDirectory,
			msg:  "cannot create 'gs://b/missing/x.txt': No such file or directory",
		},
		{
			name: "directory destination",
			plan: Plan{Source: file, Destination: store.Path("gs://b/dir")},
			kind: KindTargetIsDirectory,
			msg:  "cannot overwrite directory 'gs://b/dir' with non-directory",
		},
	}
	for _, tt := range tests {
		out, err := engine.Transfer(t.Context(), tt.plan, Copy)
		if KindOf(err) != tt.kind {
			t.Errorf("%s: Kind = %v, want %v (err %v)", tt.name, KindOf(err), tt.kind, err)
			continue
		}
		if err.Error() != tt.msg {
			t.Errorf("%s: message = %q, want %q", tt.name, err.Error(), tt.msg)
		}
		if out.Kind != Failed || out.Err == nil {
			t.Errorf("%s: outcome = %+v, want Failed", tt.name, out)
		}
	}
}

func TestTransfer_FailedStreamKeepsSource(t *testing.T) {
	t.Parallel()

	gs := memstore.New(cloudpath.SchemeGCS)
	az := memstore.New(cloudpath.SchemeAzure)
	src := put(t, gs, "gs://b/f.txt", "data", time.Time{})
	dst := az.Path("az://c/f.txt")
	az.FailWrites(dst.Ref(), errors.New("quota exceeded"))

	_, err := NewEngine().Transfer(t.Context(), Plan{Source: src, Destination: dst}, Move)
	if err == nil || !strings.Contains(err.Error(), "cannot move 'gs://b/f.txt' to 'az://c/f.txt': quota exceeded") {
		t.Fatalf("error = %v", err)
	}
	if _, err := az.ReadFile(dst.Ref()); !errors.Is(err, cloudpath.ErrNotExist) {
		t.Errorf("destination should not exist: %v", err)
	}
	if got := content(t, gs, src); got != "data" {
		t.Errorf("source = %q, want it untouched", got)
	}
}

func TestTransfer_CanceledStream(t *testing.T) {
	t.Parallel()

	gs := memstore.New(cloudpath.SchemeGCS)
	s3 := memstore.New(cloudpath.SchemeS3)
	src := put(t, gs, "gs://b/f.txt", "data", time.Time{})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := NewEngine().Transfer(ctx, Plan{Source: src, Destination: s3.Path("s3://b/f.txt")}, Copy)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
