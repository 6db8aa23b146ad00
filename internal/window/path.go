// SPDX-License-Identifier: MPL-2.0

package window

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"
)

// ComputePath computes the window of the file at p. Byte windows become a
// single ranged read; last-N-lines scans backward from EOF when the
// provider implements cloudpath.Seeker. Everything else streams forward
// through Compute.
func ComputePath(ctx context.Context, p cloudpath.Path, spec Spec, opts ...Option) (Window, error) {
	info, err := p.Stat(ctx)
	if err != nil {
		return Window{}, err
	}
	if info.IsDir {
		return Window{}, fmt.Errorf("read %s: %w", p, cloudpath.ErrIsDir)
	}
	return ComputeSized(ctx, p, info.Size, spec, opts...)
}

// ComputeSized is ComputePath over the first size bytes of p, for callers
// that already hold a stat result and must not read past it.
func ComputeSized(ctx context.Context, p cloudpath.Path, size int64, spec Spec, opts ...Option) (Window, error) {
	info := cloudpath.Info{Size: size}
	n := max(spec.Count, 0)

	if spec.Unit == Bytes {
		var offset, length int64
		switch spec.Mode {
		case First:
			offset, length = 0, min(n, info.Size)
		case From:
			offset = min(max(n-1, 0), info.Size)
			length = info.Size - offset
		case Last:
			offset = max(info.Size-n, 0)
			length = info.Size - offset
		case AllButLast:
			offset, length = 0, max(info.Size-n, 0)
		}
		content, err := readRange(ctx, p, offset, length)
		if err != nil {
			return Window{}, err
		}
		return Window{Content: content}, nil
	}

	if spec.Mode == Last {
		if seeker, ok := p.Provider().(cloudpath.Seeker); ok {
			return lastLinesBackward(ctx, seeker, p.Ref(), info.Size, n, spec.Terminator(), newOptions(opts).chunkSize)
		}
	}

	r, err := p.OpenRead(ctx, 0, info.Size)
	if err != nil {
		return Window{}, err
	}
	defer r.Close()
	return Compute(r, spec, opts...)
}

func readRange(ctx context.Context, p cloudpath.Path, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return []byte{}, nil
	}
	r, err := p.OpenRead(ctx, offset, length)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// lastLinesBackward reads chunks from EOF toward the start until it has
// seen n terminators, then returns the bytes after the last one found. A
// terminator in the final byte closes the last record and is not counted.
func lastLinesBackward(ctx context.Context, s cloudpath.Seeker, ref cloudpath.Ref, size, n int64, term byte, chunk int) (Window, error) {
	if n == 0 || size == 0 {
		return Window{Content: []byte{}}, nil
	}

	f, err := s.OpenSeeker(ctx, ref)
	if err != nil {
		return Window{}, err
	}
	defer f.Close()

	end := size
	var last [1]byte
	if _, err := f.Seek(size-1, io.SeekStart); err != nil {
		return Window{}, err
	}
	if _, err := io.ReadFull(f, last[:]); err != nil {
		return Window{}, err
	}
	if last[0] == term {
		end = size - 1
	}

	start := int64(0)
	found := int64(0)
	buf := make([]byte, chunk)
scan:
	for pos := end; pos > 0; {
		if err := ctx.Err(); err != nil {
			return Window{}, err
		}
		readLen := min(int64(chunk), pos)
		pos -= readLen
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return Window{}, err
		}
		if _, err := io.ReadFull(f, buf[:readLen]); err != nil {
			return Window{}, err
		}
		for i := readLen - 1; i >= 0; i-- {
			if buf[i] != term {
				continue
			}
			found++
			if found == n {
				start = pos + i + 1
				break scan
			}
		}
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return Window{}, err
	}
	content := make([]byte, size-start)
	if _, err := io.ReadFull(f, content); err != nil && !errors.Is(err, io.EOF) {
		return Window{}, err
	}
	return Window{Content: content}, nil
}

// ShowHeaders reports whether per-file "==> name <==" headers are printed
// for an invocation over n files.
func ShowHeaders(n int, quiet, verbose bool) bool {
	if quiet {
		return false
	}
	return verbose || n > 1
}

// Header returns the header line for name, preceded by a blank line when
// it is not the first header of the output.
func Header(name string, first bool) string {
	if first {
		return "==> " + name + " <==\n"
	}
	return "\n==> " + name + " <==\n"
}
