// SPDX-License-Identifier: MPL-2.0

package cloudpath

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Supported schemes.
const (
	SchemeLocal Scheme = "local"
	SchemeGCS   Scheme = "gs"
	SchemeS3    Scheme = "s3"
	SchemeAzure Scheme = "az"
)

type (
	// Scheme identifies the storage backend of a Ref.
	Scheme string

	// Ref is an opaque identifier for a local file or a cloud object.
	// For cloud schemes Container is the bucket (or Azure container) and
	// Key the object key without leading or trailing slashes. For local
	// refs Container is empty and Key holds a cleaned filesystem path.
	Ref struct {
		Scheme    Scheme
		Container string
		Key       string
	}
)

// IsCloud reports whether s names a remote object store.
func (s Scheme) IsCloud() bool {
	return s == SchemeGCS || s == SchemeS3 || s == SchemeAzure
}

// String returns the scheme name.
func (s Scheme) String() string { return string(s) }

// Parse turns a command-line operand into a Ref. Operands without a
// "scheme://" prefix are local paths.
func Parse(raw string) (Ref, error) {
	if raw == "" {
		return Ref{}, fmt.Errorf("empty path")
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Local(raw), nil
	}

	switch s := Scheme(strings.ToLower(scheme)); s {
	case "file":
		if rest == "" {
			return Ref{}, fmt.Errorf("invalid path %q", raw)
		}
		return Local(rest), nil
	case SchemeGCS, SchemeS3, SchemeAzure:
		container, key, _ := strings.Cut(rest, "/")
		if container == "" {
			return Ref{}, fmt.Errorf("invalid path %q: missing bucket", raw)
		}
		return Ref{Scheme: s, Container: container, Key: cleanKey(key)}, nil
	default:
		return Ref{}, fmt.Errorf("invalid path %q: %w %q", raw, ErrUnsupportedScheme, scheme)
	}
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level literals.
func MustParse(raw string) Ref {
	r, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// Local returns a Ref for a filesystem path.
func Local(p string) Ref {
	return Ref{Scheme: SchemeLocal, Key: filepath.Clean(p)}
}

// IsLocal reports whether r refers to the local filesystem.
func (r Ref) IsLocal() bool { return r.Scheme == SchemeLocal }

// String renders r the way a user would type it.
func (r Ref) String() string {
	if !r.Scheme.IsCloud() {
		return r.Key
	}
	if r.Key == "" {
		return fmt.Sprintf("%s://%s", r.Scheme, r.Container)
	}
	return fmt.Sprintf("%s://%s/%s", r.Scheme, r.Container, r.Key)
}

// Name returns the final path segment. The root of a bucket is named
// after the bucket.
func (r Ref) Name() string {
	if !r.Scheme.IsCloud() {
		return filepath.Base(r.Key)
	}
	if r.Key == "" {
		return r.Container
	}
	return path.Base(r.Key)
}

// Join appends path elements to r.
func (r Ref) Join(elem ...string) Ref {
	if !r.Scheme.IsCloud() {
		return Ref{Scheme: r.Scheme, Key: filepath.Join(append([]string{r.Key}, elem...)...)}
	}
	return Ref{
		Scheme:    r.Scheme,
		Container: r.Container,
		Key:       cleanKey(path.Join(append([]string{r.Key}, elem...)...)),
	}
}

// Parent returns the enclosing directory. The parent of a root is the
// root itself.
func (r Ref) Parent() Ref {
	if !r.Scheme.IsCloud() {
		return Ref{Scheme: r.Scheme, Key: filepath.Dir(r.Key)}
	}
	return Ref{Scheme: r.Scheme, Container: r.Container, Key: cleanKey(path.Dir(r.Key))}
}

// IsRoot reports whether r is a filesystem root or a bucket root.
func (r Ref) IsRoot() bool {
	if !r.Scheme.IsCloud() {
		return filepath.Dir(r.Key) == r.Key
	}
	return r.Key == ""
}

// SameContainer reports whether r and o live in the same bucket of the
// same scheme. Local refs always share a container.
func (r Ref) SameContainer(o Ref) bool {
	return r.Scheme == o.Scheme && r.Container == o.Container
}

// Contains reports whether o equals r or lies below it.
func (r Ref) Contains(o Ref) bool {
	if !r.SameContainer(o) {
		return false
	}
	if !r.Scheme.IsCloud() {
		rel, err := filepath.Rel(r.Key, o.Key)
		return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	}
	return r.Key == "" || o.Key == r.Key || strings.HasPrefix(o.Key, r.Key+"/")
}

// DirPrefix returns the object-name prefix under which the children of a
// cloud directory live ("" for a bucket root, "a/b/" otherwise).
func (r Ref) DirPrefix() string {
	if r.Key == "" {
		return ""
	}
	return r.Key + "/"
}

// cleanKey normalizes an object key: no leading or trailing slash and no
// "." or ".." segments.
func cleanKey(key string) string {
	if key == "" {
		return ""
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	return cleaned
}
