// SPDX-License-Identifier: MPL-2.0

package follow

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/cloudsh/cloudsh/internal/provider/local"
	"github.com/cloudsh/cloudsh/internal/testutil"
	"github.com/cloudsh/cloudsh/internal/testutil/memstore"
	"github.com/cloudsh/cloudsh/internal/window"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

var lastTen = window.Spec{Unit: window.Lines, Mode: window.Last, Count: 10}

type harness struct {
	stdout, stderr bytes.Buffer
	clock          *testutil.FakeClock
}

func newHarness() *harness {
	return &harness{clock: testutil.NewFakeClock(time.Time{})}
}

func (h *harness) engine(inputs []Input, opts Options) *Engine {
	opts.Stdout = &h.stdout
	opts.Stderr = &h.stderr
	opts.Clock = h.clock
	opts.Prefix = "cloudsh tail"
	if opts.Window == (window.Spec{}) {
		opts.Window = lastTen
	}
	return New(inputs, opts)
}

func inputs(paths ...cloudpath.Path) []Input {
	in := make([]Input, len(paths))
	for i, p := range paths {
		in[i] = Input{Path: p}
	}
	return in
}

func mustPoll(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.PollOnce(t.Context()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
}

func TestPollOnce_AppendOnCloudEmitsOnlyNewBytes(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	p := store.Path("gs://b/app.log")
	store.WriteFile(p.Ref(), []byte("C1 line\n"))

	h := newHarness()
	e := h.engine(inputs(p), Options{})
	mustPoll(t, e)
	if got := h.stdout.String(); got != "C1 line\n" {
		t.Fatalf("initial output = %q", got)
	}

	// A partial record is emitted as-is and completed later.
	store.WriteFile(p.Ref(), []byte("C1 line\nC2 par"))
	mustPoll(t, e)
	store.WriteFile(p.Ref(), []byte("C1 line\nC2 partial\n"))
	mustPoll(t, e)
	mustPoll(t, e)

	if got, want := h.stdout.String(), "C1 line\nC2 partial\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if h.stderr.Len() != 0 {
		t.Errorf("unexpected notices: %q", h.stderr.String())
	}
}

func TestPollOnce_TruncationRestartsAtZero(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "f.log")
	if err := os.WriteFile(file, []byte("hello world\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := cloudpath.New(local.New(), cloudpath.Local(file))

	h := newHarness()
	e := h.engine([]Input{{Path: p, Name: "f.log"}}, Options{})
	mustPoll(t, e)

	if err := os.WriteFile(file, []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mustPoll(t, e)
	if got := h.stdout.String(); got != "hello world\n" {
		t.Errorf("truncation tick must not emit, got %q", got)
	}
	if got := h.stderr.String(); got != "cloudsh tail: f.log: file truncated\n" {
		t.Errorf("stderr = %q", got)
	}

	mustPoll(t, e)
	if got, want := h.stdout.String(), "hello world\nhi\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestPollOnce_LocalReplacement(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "f.log")
	if err := os.WriteFile(file, []byte("old content that is long\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := cloudpath.New(local.New(), cloudpath.Local(file))

	h := newHarness()
	e := h.engine([]Input{{Path: p, Name: "f.log"}}, Options{ByName: true})
	mustPoll(t, e)

	tmp := filepath.Join(dir, "f.tmp")
	if err := os.WriteFile(tmp, []byte("new file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, file); err != nil {
		t.Fatal(err)
	}
	mustPoll(t, e)

	if got, want := h.stdout.String(), "old content that is long\nnew file\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if got := h.stderr.String(); got != "cloudsh tail: 'f.log' has been replaced;  following new file\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestPollOnce_CloudRewriteSmallerIsReplacement(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeS3)
	p := store.Path("s3://b/f")
	store.WriteFile(p.Ref(), []byte("0123456789\n"))

	h := newHarness()
	e := h.engine(inputs(p), Options{})
	mustPoll(t, e)
	store.WriteFile(p.Ref(), []byte("abc\n"))
	mustPoll(t, e)

	if got, want := h.stdout.String(), "0123456789\nabc\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if !strings.Contains(h.stderr.String(), "'s3://b/f' has been replaced;  following new file") {
		t.Errorf("stderr = %q", h.stderr.String())
	}
}

func TestPollOnce_CloudRewriteLargerIsReplacement(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeS3)
	p := store.Path("s3://b/f")
	store.WriteFile(p.Ref(), []byte("aaaa\n"))

	h := newHarness()
	e := h.engine(inputs(p), Options{})
	mustPoll(t, e)
	store.WriteFile(p.Ref(), []byte("bbbbbbbbbb\n"))
	mustPoll(t, e)

	if got, want := h.stdout.String(), "aaaa\nbbbbbbbbbb\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if !strings.Contains(h.stderr.String(), "'s3://b/f' has been replaced;  following new file") {
		t.Errorf("stderr = %q", h.stderr.String())
	}
}

func TestPollOnce_CloudRewriteKeepingLongPrefixIsAppend(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	p := store.Path("gs://b/f")
	first := strings.Repeat("x", 300) + "\n"
	store.WriteFile(p.Ref(), []byte(first))

	h := newHarness()
	e := h.engine(inputs(p), Options{})
	mustPoll(t, e)
	store.WriteFile(p.Ref(), []byte(first+"more\n"))
	mustPoll(t, e)
	store.WriteFile(p.Ref(), []byte(first+"more\nend\n"))
	mustPoll(t, e)

	if got, want := h.stdout.String(), first+"more\nend\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if h.stderr.Len() != 0 {
		t.Errorf("stderr = %q", h.stderr.String())
	}
}

func TestPollOnce_InitialWindow(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	p := store.Path("gs://b/f")
	store.WriteFile(p.Ref(), []byte("cloud1\ncloud2\ncloud3\ncloud4\ncloud5\n"))

	h := newHarness()
	e := h.engine(inputs(p), Options{Window: window.Spec{Unit: window.Lines, Mode: window.Last, Count: 2}})
	mustPoll(t, e)
	store.WriteFile(p.Ref(), []byte("cloud1\ncloud2\ncloud3\ncloud4\ncloud5\ncloud6\n"))
	mustPoll(t, e)

	if got, want := h.stdout.String(), "cloud4\ncloud5\ncloud6\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestPollOnce_HeadersOnSwitch(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	a, b := store.Path("gs://b/a"), store.Path("gs://b/b")
	store.WriteFile(a.Ref(), []byte("a1\n"))
	store.WriteFile(b.Ref(), []byte("b1\n"))

	h := newHarness()
	e := h.engine([]Input{{Path: a, Name: "a"}, {Path: b, Name: "b"}}, Options{})
	mustPoll(t, e)

	store.WriteFile(a.Ref(), []byte("a1\na2\n"))
	mustPoll(t, e)
	store.WriteFile(a.Ref(), []byte("a1\na2\na3\n"))
	mustPoll(t, e)
	store.WriteFile(b.Ref(), []byte("b1\nb2\n"))
	mustPoll(t, e)

	want := "==> a <==\na1\n\n==> b <==\nb1\n\n==> a <==\na2\na3\n\n==> b <==\nb2\n"
	if got := h.stdout.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestPollOnce_QuietSuppressesHeaders(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	a, b := store.Path("gs://b/a"), store.Path("gs://b/b")
	store.WriteFile(a.Ref(), []byte("a1\n"))
	store.WriteFile(b.Ref(), []byte("b1\n"))

	h := newHarness()
	e := h.engine(inputs(a, b), Options{Quiet: true})
	mustPoll(t, e)
	if got := h.stdout.String(); got != "a1\nb1\n" {
		t.Errorf("output = %q", got)
	}
}

func TestPollOnce_MissingFiles(t *testing.T) {
	t.Parallel()

	t.Run("retry waits for the file", func(t *testing.T) {
		t.Parallel()
		store := memstore.New(cloudpath.SchemeGCS)
		p := store.Path("gs://b/later.log")

		h := newHarness()
		e := h.engine(inputs(p), Options{Retry: true})
		mustPoll(t, e)
		mustPoll(t, e)
		store.WriteFile(p.Ref(), []byte("here\n"))
		mustPoll(t, e)

		if got := h.stdout.String(); got != "here\n" {
			t.Errorf("output = %q", got)
		}
		want := "cloudsh tail: cannot open 'gs://b/later.log' for reading: No such file or directory\n" +
			"cloudsh tail: 'gs://b/later.log' has appeared;  following new file\n"
		if got := h.stderr.String(); got != want {
			t.Errorf("stderr = %q, want %q", got, want)
		}
	})

	t.Run("without retry a vanished file is dropped", func(t *testing.T) {
		t.Parallel()
		store := memstore.New(cloudpath.SchemeGCS)
		p := store.Path("gs://b/f")
		store.WriteFile(p.Ref(), []byte("one\n"))

		h := newHarness()
		e := h.engine(inputs(p), Options{})
		mustPoll(t, e)
		if err := p.Delete(t.Context()); err != nil {
			t.Fatal(err)
		}
		mustPoll(t, e)
		store.WriteFile(p.Ref(), []byte("recreated\n"))
		mustPoll(t, e)

		if got := h.stdout.String(); got != "one\n" {
			t.Errorf("output = %q, a recreated file must not be followed", got)
		}
		if !strings.Contains(h.stderr.String(), "'gs://b/f' has become inaccessible: No such file or directory") {
			t.Errorf("stderr = %q", h.stderr.String())
		}
		if err := e.Run(t.Context()); !errors.Is(err, ErrNoFilesRemaining) {
			t.Errorf("Run() error = %v, want ErrNoFilesRemaining", err)
		}
	})

	t.Run("sibling keeps being followed", func(t *testing.T) {
		t.Parallel()
		store := memstore.New(cloudpath.SchemeGCS)
		missing, ok := store.Path("gs://b/missing"), store.Path("gs://b/ok")
		store.WriteFile(ok.Ref(), []byte("x\n"))

		h := newHarness()
		e := h.engine(inputs(missing, ok), Options{Quiet: true})
		mustPoll(t, e)
		store.WriteFile(ok.Ref(), []byte("x\ny\n"))
		mustPoll(t, e)
		if got := h.stdout.String(); got != "x\ny\n" {
			t.Errorf("output = %q", got)
		}
	})
}

func TestRun_NothingToFollow(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	h := newHarness()
	e := h.engine(inputs(store.Path("gs://b/nope")), Options{})
	if err := e.Run(t.Context()); !errors.Is(err, ErrNoFilesRemaining) {
		t.Fatalf("Run() error = %v, want ErrNoFilesRemaining", err)
	}
}

func TestRun_StdinOnlyReturnsAfterWindow(t *testing.T) {
	t.Parallel()

	h := newHarness()
	e := h.engine([]Input{{Name: "standard input", Reader: strings.NewReader("a\nb\nc\n")}}, Options{
		Window: window.Spec{Unit: window.Lines, Mode: window.Last, Count: 2},
	})
	if err := e.Run(t.Context()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := h.stdout.String(); got != "b\nc\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRun_PollsOnEveryTick(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	p := store.Path("gs://b/f")
	store.WriteFile(p.Ref(), []byte("C1\n"))

	h := newHarness()
	e := h.engine(inputs(p), Options{Interval: 2 * time.Second})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	h.clock.BlockUntil(1)
	store.WriteFile(p.Ref(), []byte("C1\nC2\n"))
	h.clock.Advance(time.Second)
	if h.clock.Waiters() != 1 {
		t.Fatal("engine must keep sleeping until the interval elapses")
	}
	h.clock.Advance(time.Second)
	h.clock.BlockUntil(1)

	if got := h.stdout.String(); got != "C1\nC2\n" {
		t.Errorf("output = %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() after cancel = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_StopsWhenPIDExits(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	p := store.Path("gs://b/f")
	store.WriteFile(p.Ref(), []byte("last words\n"))

	var checked []int32
	h := newHarness()
	e := h.engine(inputs(p), Options{
		PID: 4242,
		PIDAlive: func(_ context.Context, pid int32) (bool, error) {
			checked = append(checked, pid)
			return false, nil
		},
	})
	if err := e.Run(t.Context()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(checked) != 1 || checked[0] != 4242 {
		t.Errorf("checked = %v", checked)
	}
	if got := h.stdout.String(); got != "last words\n" {
		t.Errorf("output = %q", got)
	}
}

type brokenPipe struct{}

func (brokenPipe) Write([]byte) (int, error) { return 0, syscall.EPIPE }

func TestRun_BrokenPipe(t *testing.T) {
	t.Parallel()

	store := memstore.New(cloudpath.SchemeGCS)
	p := store.Path("gs://b/f")
	store.WriteFile(p.Ref(), []byte("data\n"))

	e := New(inputs(p), Options{Window: lastTen, Stdout: brokenPipe{}, Clock: testutil.NewFakeClock(time.Time{})})
	if err := e.Run(t.Context()); !errors.Is(err, syscall.EPIPE) {
		t.Fatalf("Run() error = %v, want EPIPE", err)
	}
}

func TestParseArgs(t *testing.T) {
	t.Parallel()

	if pid, err := ParsePID("123"); err != nil || pid != 123 {
		t.Errorf("ParsePID(123) = %d, %v", pid, err)
	}
	for _, bad := range []string{"abc", "-1", "", "99999999999"} {
		if _, err := ParsePID(bad); err == nil || err.Error() != "invalid PID: '"+bad+"'" {
			t.Errorf("ParsePID(%q) error = %v", bad, err)
		}
	}

	if d, err := ParseInterval("0.5"); err != nil || d != 500*time.Millisecond {
		t.Errorf("ParseInterval(0.5) = %v, %v", d, err)
	}
	for _, bad := range []string{"x", "-1", "NaN"} {
		if _, err := ParseInterval(bad); err == nil || err.Error() != "invalid number of seconds: '"+bad+"'" {
			t.Errorf("ParseInterval(%q) error = %v", bad, err)
		}
	}
}
