// SPDX-License-Identifier: MPL-2.0

package window

import (
	"bytes"
	"errors"
	"io"
)

// DefaultChunkSize is the read granularity used when no option overrides it.
const DefaultChunkSize = 8 << 10

const (
	// Lines counts records ending in the terminator byte.
	Lines Unit = iota
	// Bytes counts raw bytes.
	Bytes
)

const (
	// First keeps the first N units.
	First Mode = iota
	// AllButLast drops the last N units.
	AllButLast
	// Last keeps the last N units.
	Last
	// From keeps everything starting at unit N, counted from 1.
	From
)

type (
	// Unit selects what Count measures.
	Unit int

	// Mode selects which part of the input a window keeps.
	Mode int

	// Spec describes a window.
	Spec struct {
		Unit           Unit
		Mode           Mode
		Count          int64
		ZeroTerminated bool
	}

	// Window is the computed view.
	Window struct {
		Content []byte
	}

	// Option tunes Compute and ComputePath.
	Option func(*options)

	options struct {
		chunkSize int
	}
)

// WithChunkSize sets the read chunk size. Values below 1 are ignored.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// String returns "lines" or "bytes".
func (u Unit) String() string {
	if u == Bytes {
		return "bytes"
	}
	return "lines"
}

// Terminator returns the record terminator for s.
func (s Spec) Terminator() byte {
	if s.ZeroTerminated {
		return 0
	}
	return '\n'
}

// Compute reads r to EOF (or as far as the window needs) and returns the
// window described by spec.
func Compute(r io.Reader, spec Spec, opts ...Option) (Window, error) {
	o := newOptions(opts)
	n := max(spec.Count, 0)

	switch spec.Unit {
	case Bytes:
		switch spec.Mode {
		case First:
			return firstBytes(r, n)
		case From:
			return fromBytes(r, n)
		case Last:
			return lastBytes(r, n, o.chunkSize)
		case AllButLast:
			return allButLastBytes(r, n, o.chunkSize)
		}
	case Lines:
		s := &scanner{r: r, term: spec.Terminator(), buf: make([]byte, o.chunkSize)}
		switch spec.Mode {
		case First:
			return s.first(n)
		case From:
			return s.from(n)
		case Last:
			return s.last(n)
		case AllButLast:
			return s.allButLast(n)
		}
	}
	return Window{}, errors.New("unsupported window mode")
}

// firstBytes stops reading as soon as n bytes arrived, so a pipe that
// stays open does not block it.
func firstBytes(r io.Reader, n int64) (Window, error) {
	content, err := io.ReadAll(io.LimitReader(r, n))
	if err != nil {
		return Window{}, err
	}
	return Window{Content: content}, nil
}

func fromBytes(r io.Reader, n int64) (Window, error) {
	if _, err := io.CopyN(io.Discard, r, max(n-1, 0)); err != nil && !errors.Is(err, io.EOF) {
		return Window{}, err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return Window{}, err
	}
	return Window{Content: content}, nil
}

// slack is how far a held-back buffer of n bytes may grow before it is
// compacted. Compacting only past n+max(n, chunk) keeps the copying
// linear in the input size.
func slack(n int64, chunk int) int64 {
	return max(n, int64(chunk))
}

// lastBytes keeps a sliding tail of at most n bytes.
func lastBytes(r io.Reader, n int64, chunk int) (Window, error) {
	var tail []byte
	buf := make([]byte, chunk)
	for {
		m, err := r.Read(buf)
		if m > 0 {
			tail = append(tail, buf[:m]...)
			if int64(len(tail))-n > slack(n, chunk) {
				tail = append(tail[:0], tail[int64(len(tail))-n:]...)
			}
		}
		if errors.Is(err, io.EOF) {
			if extra := int64(len(tail)) - n; extra > 0 {
				tail = tail[extra:]
			}
			return Window{Content: tail}, nil
		}
		if err != nil {
			return Window{}, err
		}
	}
}

// allButLastBytes holds back n bytes and releases everything before them.
// Inputs shorter than n yield an empty window.
func allButLastBytes(r io.Reader, n int64, chunk int) (Window, error) {
	var out, pending []byte
	release := func() {
		if extra := int64(len(pending)) - n; extra > 0 {
			out = append(out, pending[:extra]...)
			pending = append(pending[:0], pending[extra:]...)
		}
	}
	buf := make([]byte, chunk)
	for {
		m, err := r.Read(buf)
		if m > 0 {
			pending = append(pending, buf[:m]...)
			if int64(len(pending))-n > slack(n, chunk) {
				release()
			}
		}
		if errors.Is(err, io.EOF) {
			release()
			return Window{Content: out}, nil
		}
		if err != nil {
			return Window{}, err
		}
	}
}

// scanner splits a stream into records across chunk reads. A record that
// spans a chunk boundary is held in carry until its terminator arrives.
// Bytes before pos are consumed and bytes in [pos, seen) hold no
// terminator, so every byte is searched once and moved at most once per
// read.
type scanner struct {
	r     io.Reader
	term  byte
	buf   []byte
	carry []byte
	pos   int
	seen  int
	eof   bool
}

// next returns the next complete record including its terminator. At EOF
// a non-empty unterminated remainder is returned as the final record.
func (s *scanner) next() ([]byte, error) {
	for {
		if i := bytes.IndexByte(s.carry[s.seen:], s.term); i >= 0 {
			end := s.seen + i + 1
			rec := bytes.Clone(s.carry[s.pos:end])
			s.pos, s.seen = end, end
			return rec, nil
		}
		s.seen = len(s.carry)
		if s.eof {
			if s.pos == len(s.carry) {
				return nil, io.EOF
			}
			rec := bytes.Clone(s.carry[s.pos:])
			s.carry, s.pos, s.seen = s.carry[:0], 0, 0
			return rec, nil
		}
		if s.pos > 0 {
			s.carry = append(s.carry[:0], s.carry[s.pos:]...)
			s.seen -= s.pos
			s.pos = 0
		}
		m, err := s.r.Read(s.buf)
		s.carry = append(s.carry, s.buf[:m]...)
		if errors.Is(err, io.EOF) {
			s.eof = true
		} else if err != nil {
			return nil, err
		}
	}
}

// first returns once n records are in hand without reading further.
func (s *scanner) first(n int64) (Window, error) {
	var out []byte
	for i := int64(0); i < n; i++ {
		rec, err := s.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Window{}, err
		}
		out = append(out, rec...)
	}
	return Window{Content: out}, nil
}

func (s *scanner) from(n int64) (Window, error) {
	for i := int64(1); i < n; i++ {
		_, err := s.next()
		if errors.Is(err, io.EOF) {
			return Window{}, nil
		}
		if err != nil {
			return Window{}, err
		}
	}
	out := bytes.Clone(s.carry[s.pos:])
	s.carry, s.pos, s.seen = nil, 0, 0
	if !s.eof {
		rest, err := io.ReadAll(s.r)
		if err != nil {
			return Window{}, err
		}
		out = append(out, rest...)
	}
	return Window{Content: out}, nil
}

// last keeps a ring of the most recent n records.
func (s *scanner) last(n int64) (Window, error) {
	var ring [][]byte
	for {
		rec, err := s.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Window{}, err
		}
		if n == 0 {
			continue
		}
		ring = append(ring, rec)
		if int64(len(ring)) > n {
			ring = ring[1:]
		}
	}
	return Window{Content: bytes.Join(ring, nil)}, nil
}

// allButLast holds back the most recent n records.
func (s *scanner) allButLast(n int64) (Window, error) {
	var (
		out     []byte
		pending [][]byte
	)
	for {
		rec, err := s.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Window{}, err
		}
		pending = append(pending, rec)
		if int64(len(pending)) > n {
			out = append(out, pending[0]...)
			pending = pending[1:]
		}
	}
	return Window{Content: out}, nil
}
