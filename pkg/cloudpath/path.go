// SPDX-License-Identifier: MPL-2.0

package cloudpath

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"time"
)

// Path is a Ref bound to the Provider that serves it. It is the handle
// every engine and command works with.
type Path struct {
	ref      Ref
	provider Provider
	display  string
}

// New binds ref to p.
func New(p Provider, ref Ref) Path {
	return Path{ref: ref, provider: p}
}

// WithDisplay returns a copy of p that renders as display. Commands use
// it so messages echo operands the way the user typed them.
func (p Path) WithDisplay(display string) Path {
	p.display = display
	return p
}

// Ref returns the underlying identifier.
func (p Path) Ref() Ref { return p.ref }

// Provider returns the provider serving p.
func (p Path) Provider() Provider { return p.provider }

// Scheme returns the provider scheme.
func (p Path) Scheme() Scheme { return p.ref.Scheme }

// IsZero reports whether p is unbound.
func (p Path) IsZero() bool { return p.provider == nil }

// String renders p for messages.
func (p Path) String() string {
	if p.display != "" {
		return p.display
	}
	return p.ref.String()
}

// Name returns the final path segment.
func (p Path) Name() string { return p.ref.Name() }

// Join returns a child of p served by the same provider.
func (p Path) Join(elem ...string) Path {
	child := Path{ref: p.ref.Join(elem...), provider: p.provider}
	if p.display != "" {
		child.display = joinDisplay(p.display, p.ref.Scheme, elem)
	}
	return child
}

// Parent returns the enclosing directory of p.
func (p Path) Parent() Path {
	return Path{ref: p.ref.Parent(), provider: p.provider}
}

// SameProvider reports whether p and o are served by the same provider
// instance (same scheme and credentials scope).
func (p Path) SameProvider(o Path) bool {
	return p.ref.Scheme == o.ref.Scheme && p.provider == o.provider
}

// SameContainer reports whether p and o share provider and bucket.
func (p Path) SameContainer(o Path) bool {
	return p.SameProvider(o) && p.ref.SameContainer(o.ref)
}

// Stat returns metadata for p.
func (p Path) Stat(ctx context.Context) (Info, error) {
	return p.provider.Stat(ctx, p.ref)
}

// Exists reports whether p exists. Errors other than ErrNotExist are
// returned to the caller.
func (p Path) Exists(ctx context.Context) (bool, error) {
	_, err := p.provider.Stat(ctx, p.ref)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	return false, err
}

// IsDir reports whether p exists and is a directory.
func (p Path) IsDir(ctx context.Context) (bool, error) {
	info, err := p.provider.Stat(ctx, p.ref)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir, nil
}

// Iterdir lists the direct children of p in provider order.
func (p Path) Iterdir(ctx context.Context) ([]Path, error) {
	refs, err := p.provider.List(ctx, p.ref)
	if err != nil {
		return nil, err
	}
	children := make([]Path, 0, len(refs))
	for _, r := range refs {
		child := Path{ref: r, provider: p.provider}
		if p.display != "" {
			child.display = joinDisplay(p.display, p.ref.Scheme, []string{r.Name()})
		}
		children = append(children, child)
	}
	return children, nil
}

// OpenRead opens p for reading from offset; a negative length reads to EOF.
func (p Path) OpenRead(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return p.provider.OpenRead(ctx, p.ref, offset, length)
}

// OpenWrite opens p for writing.
func (p Path) OpenWrite(ctx context.Context, appendMode bool) (io.WriteCloser, error) {
	return p.provider.OpenWrite(ctx, p.ref, appendMode)
}

// Mkdir creates p as a directory.
func (p Path) Mkdir(ctx context.Context, parents, existOK bool) error {
	return p.provider.Mkdir(ctx, p.ref, parents, existOK)
}

// Delete removes the file p.
func (p Path) Delete(ctx context.Context) error {
	return p.provider.Delete(ctx, p.ref)
}

// Rmdir removes the empty directory p.
func (p Path) Rmdir(ctx context.Context) error {
	return p.provider.Rmdir(ctx, p.ref)
}

// Touch sets the modification time of p when the provider supports it.
func (p Path) Touch(ctx context.Context, mtime time.Time) error {
	t, ok := p.provider.(Toucher)
	if !ok {
		return errors.ErrUnsupported
	}
	return t.Touch(ctx, p.ref, mtime)
}

func joinDisplay(base string, scheme Scheme, elem []string) string {
	sep := "/"
	if !scheme.IsCloud() {
		sep = string(filepath.Separator)
	}
	out := base
	for _, e := range elem {
		if e == "" {
			continue
		}
		if len(out) > 0 && out[len(out)-1:] != sep {
			out += sep
		}
		out += e
	}
	return out
}
