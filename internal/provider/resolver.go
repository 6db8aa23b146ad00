// SPDX-License-Identifier: MPL-2.0

// Package provider resolves command-line operands into cloudpath.Path
// values, constructing each storage backend lazily on first use.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/cloudsh/cloudsh/internal/config"
	"github.com/cloudsh/cloudsh/internal/provider/azure"
	"github.com/cloudsh/cloudsh/internal/provider/gcs"
	"github.com/cloudsh/cloudsh/internal/provider/local"
	"github.com/cloudsh/cloudsh/internal/provider/s3"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
)

var (
	// ErrUnsupportedScheme is returned for operands whose scheme has no
	// registered provider.
	ErrUnsupportedScheme = cloudpath.ErrUnsupportedScheme

	// ErrProviderInit wraps failures to construct a storage client,
	// typically missing credentials.
	ErrProviderInit = errors.New("cannot initialize storage client")
)

type (
	// Factory constructs the provider for one scheme.
	Factory func(ctx context.Context) (cloudpath.Provider, error)

	// Resolver maps operands to paths. Providers are built on first use
	// and cached for the lifetime of the resolver.
	Resolver struct {
		mu        sync.Mutex
		factories map[cloudpath.Scheme]Factory
		cache     map[cloudpath.Scheme]cloudpath.Provider
		initErrs  map[cloudpath.Scheme]error
		workDir   string
		logger    *log.Logger
	}

	// Option configures a Resolver.
	Option func(*Resolver)
)

// WithProvider registers a ready-made provider for its scheme, replacing
// the default factory.
func WithProvider(p cloudpath.Provider) Option {
	return func(r *Resolver) {
		r.cache[p.Scheme()] = p
	}
}

// WithFactory registers a factory for scheme.
func WithFactory(scheme cloudpath.Scheme, f Factory) Option {
	return func(r *Resolver) {
		r.factories[scheme] = f
		delete(r.cache, scheme)
	}
}

// WithWorkDir sets the directory relative local operands resolve against.
func WithWorkDir(dir string) Option {
	return func(r *Resolver) {
		r.workDir = dir
	}
}

// WithLogger sets the logger used for provider construction diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver returns a resolver with factories for every supported scheme
// built from cfg. A nil cfg uses the defaults.
func NewResolver(cfg *config.Config, opts ...Option) *Resolver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	r := &Resolver{
		factories: map[cloudpath.Scheme]Factory{
			cloudpath.SchemeLocal: func(context.Context) (cloudpath.Provider, error) {
				return local.New(), nil
			},
			cloudpath.SchemeGCS: func(ctx context.Context) (cloudpath.Provider, error) {
				return gcs.New(ctx, cfg.GCS)
			},
			cloudpath.SchemeS3: func(ctx context.Context) (cloudpath.Provider, error) {
				return s3.New(ctx, cfg.S3)
			},
			cloudpath.SchemeAzure: func(ctx context.Context) (cloudpath.Provider, error) {
				return azure.New(ctx, cfg.Azure)
			},
		},
		cache:    make(map[cloudpath.Scheme]cloudpath.Provider),
		initErrs: make(map[cloudpath.Scheme]error),
		logger:   log.New(os.Stderr),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Provider returns the provider for scheme, constructing it if needed.
func (r *Resolver) Provider(ctx context.Context, scheme cloudpath.Scheme) (cloudpath.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.cache[scheme]; ok {
		return p, nil
	}
	factory, ok := r.factories[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	r.logger.Debug("initializing storage provider", "scheme", scheme)
	p, err := factory(ctx)
	if err != nil {
		err = fmt.Errorf("%w for %s://: %w", ErrProviderInit, scheme, err)
		r.initErrs[scheme] = err
		return nil, err
	}
	delete(r.initErrs, scheme)
	r.cache[scheme] = p
	return p, nil
}

// InitErrors returns the latest construction failure of every scheme whose
// provider could not be built, ordered by scheme.
func (r *Resolver) InitErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	schemes := make([]cloudpath.Scheme, 0, len(r.initErrs))
	for scheme := range r.initErrs {
		schemes = append(schemes, scheme)
	}
	slices.Sort(schemes)
	errs := make([]error, 0, len(schemes))
	for _, scheme := range schemes {
		errs = append(errs, r.initErrs[scheme])
	}
	return errs
}

// Resolve parses raw and binds it to its provider. Relative local paths
// are made absolute against the work directory; the operand as typed is
// kept as the display name.
func (r *Resolver) Resolve(ctx context.Context, raw string) (cloudpath.Path, error) {
	return r.ResolveIn(ctx, r.workDir, raw)
}

// ResolveIn is Resolve with relative local paths anchored at dir. An empty
// dir means the process working directory.
func (r *Resolver) ResolveIn(ctx context.Context, dir, raw string) (cloudpath.Path, error) {
	ref, err := cloudpath.Parse(raw)
	if err != nil {
		return cloudpath.Path{}, err
	}
	if ref.IsLocal() && !filepath.IsAbs(ref.Key) {
		base := dir
		if base == "" {
			if base, err = os.Getwd(); err != nil {
				return cloudpath.Path{}, fmt.Errorf("resolve %q: %w", raw, err)
			}
		}
		ref = cloudpath.Local(filepath.Join(base, ref.Key))
	}

	p, err := r.Provider(ctx, ref.Scheme)
	if err != nil {
		return cloudpath.Path{}, err
	}
	return cloudpath.New(p, ref).WithDisplay(raw), nil
}

// Expand returns the operands matched by a glob pattern. Operands without
// glob metacharacters, and patterns that match nothing, are returned
// unchanged so the command reports them as missing. Cloud patterns are
// matched against listed keys; "**" crosses directory levels.
func (r *Resolver) Expand(ctx context.Context, raw string) ([]string, error) {
	if !hasMeta(raw) {
		return []string{raw}, nil
	}
	ref, err := cloudpath.Parse(raw)
	if err != nil {
		return nil, err
	}

	var matches []string
	if ref.IsLocal() {
		pattern := raw
		if strings.HasPrefix(pattern, "file://") {
			pattern = ref.Key
		}
		if !filepath.IsAbs(pattern) && r.workDir != "" {
			abs, err := doublestar.FilepathGlob(filepath.Join(r.workDir, pattern))
			if err != nil {
				return nil, fmt.Errorf("expand %q: %w", raw, err)
			}
			for _, m := range abs {
				rel, err := filepath.Rel(r.workDir, m)
				if err != nil {
					rel = m
				}
				matches = append(matches, rel)
			}
		} else {
			matches, err = doublestar.FilepathGlob(pattern)
			if err != nil {
				return nil, fmt.Errorf("expand %q: %w", raw, err)
			}
		}
	} else {
		matches, err = r.expandCloud(ctx, ref)
		if err != nil {
			return nil, err
		}
	}

	if len(matches) == 0 {
		return []string{raw}, nil
	}
	slices.Sort(matches)
	return matches, nil
}

func (r *Resolver) expandCloud(ctx context.Context, ref cloudpath.Ref) ([]string, error) {
	p, err := r.Provider(ctx, ref.Scheme)
	if err != nil {
		return nil, err
	}
	if !doublestar.ValidatePattern(ref.Key) {
		return nil, fmt.Errorf("expand %q: %w", ref, doublestar.ErrBadPattern)
	}

	base, _ := doublestar.SplitPattern(ref.Key)
	if base == "." {
		base = ""
	}
	maxDepth := -1
	if !strings.Contains(ref.Key, "**") {
		maxDepth = strings.Count(ref.Key, "/") - strings.Count(base, "/")
		if base == "" {
			maxDepth++
		}
	}

	var matches []string
	type level struct {
		ref   cloudpath.Ref
		depth int
	}
	queue := []level{{ref: cloudpath.Ref{Scheme: ref.Scheme, Container: ref.Container, Key: base}, depth: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		children, err := p.List(ctx, cur.ref)
		if err != nil {
			if errors.Is(err, cloudpath.ErrNotExist) || errors.Is(err, cloudpath.ErrNotDir) {
				continue
			}
			return nil, fmt.Errorf("expand %q: %w", ref, err)
		}
		for _, child := range children {
			if ok, _ := doublestar.Match(ref.Key, child.Key); ok {
				matches = append(matches, child.String())
			}
			if maxDepth >= 0 && cur.depth+1 >= maxDepth {
				continue
			}
			if info, err := p.Stat(ctx, child); err == nil && info.IsDir {
				queue = append(queue, level{ref: child, depth: cur.depth + 1})
			}
		}
	}
	slices.Sort(matches)
	return slices.Compact(matches), nil
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
