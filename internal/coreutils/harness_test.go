// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/cloudsh/cloudsh/internal/config"
	"github.com/cloudsh/cloudsh/internal/provider"
	"github.com/cloudsh/cloudsh/internal/testutil/memstore"
	"github.com/cloudsh/cloudsh/internal/transfer"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

// fixedNow is the clock of every harness.
var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)

type (
	// harness runs commands against a temp dir and an in-memory gs://
	// store.
	harness struct {
		stdout syncBuffer
		stderr syncBuffer
		dir    string
		store  *memstore.Store
		hc     *HandlerContext
		// answers are returned by the prompter in order.
		answers []bool
		prompts []string
	}

	// syncBuffer is a bytes.Buffer safe for a writer goroutine.
	syncBuffer struct {
		mu  sync.Mutex
		buf bytes.Buffer
	}

	fakePrompter struct {
		h      *harness
		prefix string
	}

	brokenPipeWriter struct{}
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dir:   t.TempDir(),
		store: memstore.New(cloudpath.SchemeGCS, memstore.WithClock(func() time.Time { return fixedNow })),
	}
	cfg := config.DefaultConfig()
	h.hc = &HandlerContext{
		Stdin:  strings.NewReader(""),
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		Dir:    h.dir,
		Config: cfg,
		Resolver: provider.NewResolver(cfg,
			provider.WithProvider(h.store),
			provider.WithWorkDir(h.dir)),
		Now: func() time.Time { return fixedNow },
		NewPrompter: func(prefix string) transfer.Prompter {
			return &fakePrompter{h: h, prefix: prefix}
		},
	}
	return h
}

func (h *harness) run(ctx context.Context, args ...string) error {
	return DefaultRegistry.Run(WithHandlerContext(ctx, h.hc), args[0], args)
}

// mustRun runs args and fails the test on a non-zero exit.
func (h *harness) mustRun(t *testing.T, args ...string) {
	t.Helper()
	if err := h.run(t.Context(), args...); err != nil {
		t.Fatalf("%v: error = %v, stderr = %q", args, err, h.stderr.String())
	}
}

// put stores a gs:// object.
func (h *harness) put(raw, data string) {
	h.store.WriteFile(cloudpath.MustParse(raw), []byte(data))
}

// get reads a gs:// object, returning "" and false when it is missing.
func (h *harness) get(raw string) (string, bool) {
	data, err := h.store.ReadFile(cloudpath.MustParse(raw))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (h *harness) reset() {
	h.stdout.Reset()
	h.stderr.Reset()
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func (p *fakePrompter) Confirm(_ context.Context, question string) (bool, error) {
	p.h.prompts = append(p.h.prompts, p.prefix+": "+question)
	if len(p.h.answers) == 0 {
		return false, nil
	}
	answer := p.h.answers[0]
	p.h.answers = p.h.answers[1:]
	return answer, nil
}

func (brokenPipeWriter) Write([]byte) (int, error) {
	return 0, &os.PathError{Op: "write", Path: "/dev/stdout", Err: syscall.EPIPE}
}
