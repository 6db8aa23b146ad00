// SPDX-License-Identifier: MPL-2.0

// Package memstore is an in-memory object store that implements
// cloudpath.Provider and every optional capability. Tests use one Store
// per simulated provider; two stores with different schemes model a
// cross-provider transfer.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

type (
	// Store holds objects keyed by container and key. Directory markers are
	// stored as zero-byte objects whose key ends in "/".
	Store struct {
		scheme cloudpath.Scheme

		mu           sync.Mutex
		objects      map[objectKey]*object
		now          func() time.Time
		generation   int64
		rejectNewer  bool
		failWrites   map[objectKey]error
		nativeCopies int
		moves        int
	}

	// Option configures a Store.
	Option func(*Store)

	objectKey struct {
		container string
		key       string
	}

	object struct {
		data       []byte
		modTime    time.Time
		generation int64
	}

	writer struct {
		store *Store
		ref   cloudpath.Ref
		buf   bytes.Buffer
		done  bool
		// ifGeneration, when guarded is set, is the generation the object
		// must still have on Close; 0 means it must not exist.
		guarded      bool
		ifGeneration int64
	}
)

// WithClock sets the time source used for modification times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRejectNewer makes NativeCopy and OpenWriteGuarded fail with
// cloudpath.ErrObjectNewer when the destination is newer than the source
// and the copy is not forced. Without it guarded writes behave like
// OpenWrite.
func WithRejectNewer() Option {
	return func(s *Store) { s.rejectNewer = true }
}

// New creates an empty store serving scheme.
func New(scheme cloudpath.Scheme, opts ...Option) *Store {
	s := &Store{
		scheme:     scheme,
		objects:    make(map[objectKey]*object),
		now:        time.Now,
		failWrites: make(map[objectKey]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scheme implements cloudpath.Provider.
func (s *Store) Scheme() cloudpath.Scheme { return s.scheme }

// Path parses raw and binds it to s.
func (s *Store) Path(raw string) cloudpath.Path {
	return cloudpath.New(s, cloudpath.MustParse(raw))
}

// WriteFile stores data at ref, creating a new generation.
func (s *Store) WriteFile(ref cloudpath.Ref, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(ref, data)
}

// ReadFile returns the content of the object at ref.
func (s *Store) ReadFile(ref cloudpath.Ref) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[keyOf(ref)]
	if !ok || ref.Key == "" {
		return nil, fmt.Errorf("%s: %w", ref, cloudpath.ErrNotExist)
	}
	return bytes.Clone(obj.data), nil
}

// SetModTime overrides the modification time of an existing object.
func (s *Store) SetModTime(ref cloudpath.Ref, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.objects[keyOf(ref)]; ok {
		obj.modTime = t
	}
}

// FailWrites makes every later write to ref fail with err on Close.
func (s *Store) FailWrites(ref cloudpath.Ref, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites[keyOf(ref)] = err
}

// NativeCopies returns how many server-side copies were served.
func (s *Store) NativeCopies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nativeCopies
}

// Moves returns how many atomic renames were served.
func (s *Store) Moves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moves
}

// Keys lists every stored object as "container/key", sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k.container+"/"+k.key)
	}
	sort.Strings(keys)
	return keys
}

// Stat implements cloudpath.Provider.
func (s *Store) Stat(_ context.Context, ref cloudpath.Ref) (cloudpath.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.Key == "" {
		return cloudpath.Info{IsDir: true}, nil
	}
	if obj, ok := s.objects[keyOf(ref)]; ok {
		return cloudpath.Info{
			Size:    int64(len(obj.data)),
			ModTime: obj.modTime,
			Identity: cloudpath.Identity{
				Kind:  cloudpath.IdentityGeneration,
				Value: strconv.FormatInt(obj.generation, 10),
			},
		}, nil
	}
	if s.isDirLocked(ref) {
		return cloudpath.Info{IsDir: true}, nil
	}
	return cloudpath.Info{}, fmt.Errorf("%s: %w", ref, cloudpath.ErrNotExist)
}

// List implements cloudpath.Provider. Children are returned in key order.
func (s *Store) List(_ context.Context, ref cloudpath.Ref) ([]cloudpath.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.Key != "" {
		if _, ok := s.objects[keyOf(ref)]; ok {
			return nil, fmt.Errorf("%s: %w", ref, cloudpath.ErrNotDir)
		}
		if !s.isDirLocked(ref) {
			return nil, fmt.Errorf("%s: %w", ref, cloudpath.ErrNotExist)
		}
	}

	prefix := ref.DirPrefix()
	seen := make(map[string]bool)
	var names []string
	for k := range s.objects {
		if k.container != ref.Container || !strings.HasPrefix(k.key, prefix) {
			continue
		}
		rest := k.key[len(prefix):]
		if rest == "" {
			continue
		}
		name, _, _ := strings.Cut(rest, "/")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)

	refs := make([]cloudpath.Ref, 0, len(names))
	for _, name := range names {
		refs = append(refs, ref.Join(name))
	}
	return refs, nil
}

// OpenRead implements cloudpath.Provider.
func (s *Store) OpenRead(_ context.Context, ref cloudpath.Ref, offset, length int64) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[keyOf(ref)]
	if !ok || ref.Key == "" {
		if ref.Key == "" || s.isDirLocked(ref) {
			return nil, fmt.Errorf("%s: %w", ref, cloudpath.ErrIsDir)
		}
		return nil, fmt.Errorf("%s: %w", ref, cloudpath.ErrNotExist)
	}

	size := int64(len(obj.data))
	start := min(max(offset, 0), size)
	end := size
	if length >= 0 {
		end = min(start+length, size)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data[start:end]))), nil
}

// OpenWrite implements cloudpath.Provider. Data becomes visible on Close.
func (s *Store) OpenWrite(_ context.Context, ref cloudpath.Ref, appendMode bool) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.Key == "" || s.isDirLocked(ref) {
		return nil, fmt.Errorf("%s: %w", ref, cloudpath.ErrIsDir)
	}
	w := &writer{store: s, ref: ref}
	if appendMode {
		if obj, ok := s.objects[keyOf(ref)]; ok {
			w.buf.Write(obj.data)
		}
	}
	return w, nil
}

// OpenWriteGuarded implements cloudpath.GuardedWriter. The write also
// fails on Close if another writer replaced the object in between.
func (s *Store) OpenWriteGuarded(ctx context.Context, ref cloudpath.Ref, notAfter time.Time) (io.WriteCloser, error) {
	wc, err := s.OpenWrite(ctx, ref, false)
	if err != nil || !s.rejectNewer {
		return wc, err
	}
	w := wc.(*writer)

	s.mu.Lock()
	defer s.mu.Unlock()
	w.guarded = true
	if obj, ok := s.objects[keyOf(ref)]; ok {
		if obj.modTime.After(notAfter) {
			return nil, fmt.Errorf("%s: %w", ref, cloudpath.ErrObjectNewer)
		}
		w.ifGeneration = obj.generation
	}
	return w, nil
}

// Mkdir implements cloudpath.Provider by writing a "key/" marker.
func (s *Store) Mkdir(_ context.Context, ref cloudpath.Ref, parents, existOK bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.Key == "" || s.isDirLocked(ref) {
		if existOK {
			return nil
		}
		return fmt.Errorf("%s: %w", ref, cloudpath.ErrExist)
	}
	if _, ok := s.objects[keyOf(ref)]; ok {
		return fmt.Errorf("%s: %w", ref, cloudpath.ErrExist)
	}
	for p := ref.Parent(); !p.IsRoot(); p = p.Parent() {
		if _, ok := s.objects[keyOf(p)]; ok {
			return fmt.Errorf("%s: %w", p, cloudpath.ErrNotDir)
		}
		if !parents && !s.isDirLocked(p) {
			return fmt.Errorf("%s: %w", p, cloudpath.ErrNotExist)
		}
		if !parents {
			break
		}
	}
	s.objects[objectKey{container: ref.Container, key: ref.DirPrefix()}] = &object{modTime: s.now()}
	return nil
}

// Delete implements cloudpath.Provider.
func (s *Store) Delete(_ context.Context, ref cloudpath.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[keyOf(ref)]; ok && ref.Key != "" {
		delete(s.objects, keyOf(ref))
		return nil
	}
	if ref.Key == "" || s.isDirLocked(ref) {
		return fmt.Errorf("%s: %w", ref, cloudpath.ErrIsDir)
	}
	return fmt.Errorf("%s: %w", ref, cloudpath.ErrNotExist)
}

// Rmdir implements cloudpath.Provider.
func (s *Store) Rmdir(_ context.Context, ref cloudpath.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.Key == "" {
		return fmt.Errorf("%s: %w", ref, cloudpath.ErrPermission)
	}
	if _, ok := s.objects[keyOf(ref)]; ok {
		return fmt.Errorf("%s: %w", ref, cloudpath.ErrNotDir)
	}
	if !s.isDirLocked(ref) {
		return fmt.Errorf("%s: %w", ref, cloudpath.ErrNotExist)
	}
	marker := objectKey{container: ref.Container, key: ref.DirPrefix()}
	for k := range s.objects {
		if k != marker && k.container == ref.Container && strings.HasPrefix(k.key, marker.key) {
			return fmt.Errorf("%s: %w", ref, cloudpath.ErrNotEmpty)
		}
	}
	delete(s.objects, marker)
	return nil
}

// NativeCopy implements cloudpath.NativeCopier for any pair within s.
func (s *Store) NativeCopy(_ context.Context, src, dst cloudpath.Ref, opts cloudpath.CopyOptions) (bool, error) {
	if src.Scheme != s.scheme || dst.Scheme != s.scheme {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[keyOf(src)]
	if !ok || src.Key == "" {
		return true, fmt.Errorf("%s: %w", src, cloudpath.ErrNotExist)
	}
	if s.rejectNewer && !opts.Force {
		if existing, ok := s.objects[keyOf(dst)]; ok && existing.modTime.After(obj.modTime) {
			return true, fmt.Errorf("%s: %w", dst, cloudpath.ErrObjectNewer)
		}
	}
	if err := s.failWrites[keyOf(dst)]; err != nil {
		return true, err
	}
	s.putLocked(dst, obj.data)
	if opts.Preserve {
		s.objects[keyOf(dst)].modTime = obj.modTime
	}
	s.nativeCopies++
	return true, nil
}

// Move implements cloudpath.Mover for pairs in the same container.
func (s *Store) Move(_ context.Context, src, dst cloudpath.Ref) (bool, error) {
	if src.Scheme != s.scheme || !src.SameContainer(dst) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[keyOf(src)]
	if !ok || src.Key == "" {
		return true, fmt.Errorf("%s: %w", src, cloudpath.ErrNotExist)
	}
	delete(s.objects, keyOf(src))
	s.generation++
	s.objects[keyOf(dst)] = &object{data: obj.data, modTime: obj.modTime, generation: s.generation}
	s.moves++
	return true, nil
}

// Touch implements cloudpath.Toucher.
func (s *Store) Touch(_ context.Context, ref cloudpath.Ref, mtime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[keyOf(ref)]
	if !ok || ref.Key == "" {
		return fmt.Errorf("%s: %w", ref, cloudpath.ErrNotExist)
	}
	obj.modTime = mtime
	return nil
}

func (w *writer) Write(p []byte) (int, error) {
	if w.done {
		return 0, fmt.Errorf("%s: write after close", w.ref)
	}
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	if err := w.store.failWrites[keyOf(w.ref)]; err != nil {
		return err
	}
	if w.guarded {
		var current int64
		if obj, ok := w.store.objects[keyOf(w.ref)]; ok {
			current = obj.generation
		}
		if current != w.ifGeneration {
			return fmt.Errorf("%s: %w", w.ref, cloudpath.ErrObjectNewer)
		}
	}
	w.store.putLocked(w.ref, w.buf.Bytes())
	return nil
}

// putLocked stores a new generation of ref. Must be called with mu held.
func (s *Store) putLocked(ref cloudpath.Ref, data []byte) {
	s.generation++
	s.objects[keyOf(ref)] = &object{
		data:       bytes.Clone(data),
		modTime:    s.now(),
		generation: s.generation,
	}
}

// isDirLocked reports whether ref is a marker or a non-empty prefix.
// Must be called with mu held.
func (s *Store) isDirLocked(ref cloudpath.Ref) bool {
	if ref.Key == "" {
		return true
	}
	prefix := ref.DirPrefix()
	for k := range s.objects {
		if k.container == ref.Container && strings.HasPrefix(k.key, prefix) {
			return true
		}
	}
	return false
}

func keyOf(ref cloudpath.Ref) objectKey {
	return objectKey{container: ref.Container, key: ref.Key}
}
