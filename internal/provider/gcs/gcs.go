// SPDX-License-Identifier: MPL-2.0

// Package gcs serves cloudpath operations from Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cloudsh/cloudsh/internal/config"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// updatedMetaKey stores the modification time set by touch and preserved
// copies; GCS "updated" is server-managed.
const updatedMetaKey = "updated"

const dirMode = 0o755 | os.ModeDir

type (
	// Provider implements cloudpath.Provider, NativeCopier, Mover,
	// GuardedWriter and Toucher for gs:// paths.
	Provider struct {
		client *storage.Client
	}

	// objectWriter maps the upload error reported by Close.
	objectWriter struct {
		*storage.Writer
		ref cloudpath.Ref
	}
)

// New creates a client using Application Default Credentials unless cfg
// names a credentials file or an emulator endpoint.
func New(ctx context.Context, cfg config.GCSConfig) (*Provider, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	if cfg.Project != "" {
		opts = append(opts, option.WithQuotaProject(cfg.Project))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Scheme implements cloudpath.Provider.
func (p *Provider) Scheme() cloudpath.Scheme { return cloudpath.SchemeGCS }

func (p *Provider) object(ref cloudpath.Ref) *storage.ObjectHandle {
	return p.client.Bucket(ref.Container).Object(ref.Key)
}

// Stat implements cloudpath.Provider. The identity is the object
// generation, which changes on every rewrite.
func (p *Provider) Stat(ctx context.Context, ref cloudpath.Ref) (cloudpath.Info, error) {
	if ref.Key == "" {
		return cloudpath.Info{IsDir: true, Mode: dirMode}, nil
	}

	attrs, err := p.object(ref).Attrs(ctx)
	if err == nil {
		return attrsInfo(attrs), nil
	}
	if err = mapError(err); !errors.Is(err, cloudpath.ErrNotExist) {
		return cloudpath.Info{}, fmt.Errorf("stat %s: %w", ref, err)
	}

	isDir, err := p.hasChildren(ctx, ref)
	if err != nil {
		return cloudpath.Info{}, fmt.Errorf("stat %s: %w", ref, err)
	}
	if !isDir {
		return cloudpath.Info{}, fmt.Errorf("stat %s: %w", ref, cloudpath.ErrNotExist)
	}
	return cloudpath.Info{IsDir: true, Mode: dirMode}, nil
}

// List implements cloudpath.Provider.
func (p *Provider) List(ctx context.Context, ref cloudpath.Ref) ([]cloudpath.Ref, error) {
	prefix := ref.DirPrefix()
	it := p.client.Bucket(ref.Container).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})

	var (
		children []cloudpath.Ref
		seen     bool
	)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", ref, mapError(err))
		}
		seen = true
		if key := childKey(prefix, attrs); key != "" {
			children = append(children, cloudpath.Ref{Scheme: cloudpath.SchemeGCS, Container: ref.Container, Key: key})
		}
	}

	if !seen && ref.Key != "" {
		if _, err := p.Stat(ctx, ref); err != nil {
			return nil, fmt.Errorf("list %s: %w", ref, err)
		}
		return nil, fmt.Errorf("list %s: %w", ref, cloudpath.ErrNotDir)
	}

	slices.SortFunc(children, func(a, b cloudpath.Ref) int { return strings.Compare(a.Key, b.Key) })
	return children, nil
}

// OpenRead implements cloudpath.Provider with NewRangeReader.
func (p *Provider) OpenRead(ctx context.Context, ref cloudpath.Ref, offset, length int64) (io.ReadCloser, error) {
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if length < 0 {
		length = -1
	}
	r, err := p.object(ref).NewRangeReader(ctx, offset, length)
	if err != nil {
		if isUnsatisfiableRange(err) {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		return nil, fmt.Errorf("read %s: %w", ref, mapError(err))
	}
	return r, nil
}

// OpenWrite implements cloudpath.Provider with the resumable upload
// writer; the new generation becomes visible on Close.
func (p *Provider) OpenWrite(ctx context.Context, ref cloudpath.Ref, appendMode bool) (io.WriteCloser, error) {
	if err := p.checkFileTarget(ctx, ref); err != nil {
		return nil, fmt.Errorf("write %s: %w", ref, err)
	}

	w := p.object(ref).NewWriter(ctx)
	if !appendMode {
		return w, nil
	}

	// Appending rewrites the object: the old content is streamed into the
	// new generation ahead of the caller's writes.
	r, err := p.object(ref).NewReader(ctx)
	if err != nil {
		if errors.Is(mapError(err), cloudpath.ErrNotExist) {
			return w, nil
		}
		_ = w.Close()
		return nil, fmt.Errorf("write %s: %w", ref, mapError(err))
	}
	defer r.Close()
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write %s: %w", ref, err)
	}
	return w, nil
}

// OpenWriteGuarded implements cloudpath.GuardedWriter. The upload carries
// a generation precondition, so an object replaced after the check also
// fails with ErrObjectNewer when the writer is closed.
func (p *Provider) OpenWriteGuarded(ctx context.Context, ref cloudpath.Ref, notAfter time.Time) (io.WriteCloser, error) {
	if err := p.checkFileTarget(ctx, ref); err != nil {
		return nil, fmt.Errorf("write %s: %w", ref, err)
	}
	cond, err := p.overwriteConditions(ctx, ref, notAfter)
	if err != nil {
		return nil, err
	}
	return &objectWriter{Writer: p.object(ref).If(cond).NewWriter(ctx), ref: ref}, nil
}

func (w *objectWriter) Close() error {
	if err := w.Writer.Close(); err != nil {
		return fmt.Errorf("write %s: %w", w.ref, mapError(err))
	}
	return nil
}

// checkFileTarget rejects the bucket root and prefixes that hold objects.
func (p *Provider) checkFileTarget(ctx context.Context, ref cloudpath.Ref) error {
	if ref.Key == "" {
		return cloudpath.ErrIsDir
	}
	isDir, err := p.hasChildren(ctx, ref)
	if err != nil {
		return err
	}
	if isDir {
		return cloudpath.ErrIsDir
	}
	return nil
}

// overwriteConditions pins ref to the generation seen now. It fails with
// ErrObjectNewer when that generation was modified after notAfter.
func (p *Provider) overwriteConditions(ctx context.Context, ref cloudpath.Ref, notAfter time.Time) (storage.Conditions, error) {
	attrs, err := p.object(ref).Attrs(ctx)
	if err != nil {
		if err = mapError(err); errors.Is(err, cloudpath.ErrNotExist) {
			return storage.Conditions{DoesNotExist: true}, nil
		}
		return storage.Conditions{}, fmt.Errorf("stat %s: %w", ref, err)
	}
	if err := cloudpath.CheckNotNewer(ref, attrsInfo(attrs), notAfter); err != nil {
		return storage.Conditions{}, err
	}
	return storage.Conditions{GenerationMatch: attrs.Generation}, nil
}

// Mkdir implements cloudpath.Provider by writing a "key/" marker object.
func (p *Provider) Mkdir(ctx context.Context, ref cloudpath.Ref, parents, existOK bool) error {
	if info, err := p.Stat(ctx, ref); err == nil {
		if info.IsDir && existOK {
			return nil
		}
		return fmt.Errorf("mkdir %s: %w", ref, cloudpath.ErrExist)
	} else if !errors.Is(err, cloudpath.ErrNotExist) {
		return err
	}

	if !parents {
		info, err := p.Stat(ctx, ref.Parent())
		if err != nil {
			return fmt.Errorf("mkdir %s: %w", ref, err)
		}
		if !info.IsDir {
			return fmt.Errorf("mkdir %s: %w", ref, cloudpath.ErrNotDir)
		}
	}

	w := p.client.Bucket(ref.Container).Object(ref.DirPrefix()).NewWriter(ctx)
	if err := w.Close(); err != nil {
		return fmt.Errorf("mkdir %s: %w", ref, mapError(err))
	}
	return nil
}

// Delete implements cloudpath.Provider.
func (p *Provider) Delete(ctx context.Context, ref cloudpath.Ref) error {
	info, err := p.Stat(ctx, ref)
	if err != nil {
		return err
	}
	if info.IsDir {
		return fmt.Errorf("delete %s: %w", ref, cloudpath.ErrIsDir)
	}
	if err := p.object(ref).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", ref, mapError(err))
	}
	return nil
}

// Rmdir implements cloudpath.Provider.
func (p *Provider) Rmdir(ctx context.Context, ref cloudpath.Ref) error {
	if ref.Key == "" {
		return fmt.Errorf("rmdir %s: %w", ref, cloudpath.ErrPermission)
	}
	marker := ref.DirPrefix()
	it := p.client.Bucket(ref.Container).Objects(ctx, &storage.Query{Prefix: marker})
	it.PageInfo().MaxSize = 2

	found := false
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("rmdir %s: %w", ref, mapError(err))
		}
		if attrs.Name != marker {
			return fmt.Errorf("rmdir %s: %w", ref, cloudpath.ErrNotEmpty)
		}
		found = true
	}
	if !found {
		if _, err := p.Stat(ctx, ref); err != nil {
			return err
		}
		return fmt.Errorf("rmdir %s: %w", ref, cloudpath.ErrNotDir)
	}

	if err := p.client.Bucket(ref.Container).Object(marker).Delete(ctx); err != nil {
		return fmt.Errorf("rmdir %s: %w", ref, mapError(err))
	}
	return nil
}

// NativeCopy implements cloudpath.NativeCopier with a server-side rewrite
// between any two GCS locations. Unless opts.Force is set, a destination
// modified after the source is refused with ErrObjectNewer.
func (p *Provider) NativeCopy(ctx context.Context, src, dst cloudpath.Ref, opts cloudpath.CopyOptions) (bool, error) {
	if src.Scheme != cloudpath.SchemeGCS || dst.Scheme != cloudpath.SchemeGCS {
		return false, nil
	}

	dstObj := p.object(dst)
	var metadata map[string]string
	if opts.Preserve || !opts.Force {
		info, err := p.Stat(ctx, src)
		if err != nil {
			return true, err
		}
		if opts.Preserve {
			metadata = map[string]string{updatedMetaKey: formatTime(info.ModTime)}
		}
		if !opts.Force {
			cond, err := p.overwriteConditions(ctx, dst, info.ModTime)
			if err != nil {
				return true, err
			}
			dstObj = dstObj.If(cond)
		}
	}

	copier := dstObj.CopierFrom(p.object(src))
	if metadata != nil {
		copier.Metadata = metadata
	}
	if _, err := copier.Run(ctx); err != nil {
		return true, fmt.Errorf("copy %s to %s: %w", src, dst, mapError(err))
	}
	return true, nil
}

// Move implements cloudpath.Mover with the atomic object move API. Moves
// across buckets, or on buckets where the API is unavailable, report
// false so callers fall back to copy and delete.
func (p *Provider) Move(ctx context.Context, src, dst cloudpath.Ref) (bool, error) {
	if src.Scheme != cloudpath.SchemeGCS || !src.SameContainer(dst) {
		return false, nil
	}
	_, err := p.object(src).Move(ctx, storage.MoveObjectDestination{Object: dst.Key})
	if err == nil {
		return true, nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusNotImplemented) {
		return false, nil
	}
	return true, fmt.Errorf("move %s to %s: %w", src, dst, mapError(err))
}

// Touch implements cloudpath.Toucher by patching the object metadata.
func (p *Provider) Touch(ctx context.Context, ref cloudpath.Ref, mtime time.Time) error {
	_, err := p.object(ref).Update(ctx, storage.ObjectAttrsToUpdate{
		Metadata: map[string]string{updatedMetaKey: formatTime(mtime)},
	})
	if err != nil {
		return fmt.Errorf("touch %s: %w", ref, mapError(err))
	}
	return nil
}

func (p *Provider) hasChildren(ctx context.Context, ref cloudpath.Ref) (bool, error) {
	it := p.client.Bucket(ref.Container).Objects(ctx, &storage.Query{Prefix: ref.DirPrefix()})
	it.PageInfo().MaxSize = 1
	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// childKey returns the child key for a listing entry under prefix, or ""
// for the directory's own marker.
func childKey(prefix string, attrs *storage.ObjectAttrs) string {
	if attrs.Prefix != "" {
		return strings.TrimSuffix(attrs.Prefix, "/")
	}
	if attrs.Name == prefix {
		return ""
	}
	return attrs.Name
}

func attrsInfo(attrs *storage.ObjectAttrs) cloudpath.Info {
	info := cloudpath.Info{
		Size:    attrs.Size,
		ModTime: attrs.Updated,
		Mode:    0o644,
		Identity: cloudpath.Identity{
			Kind:  cloudpath.IdentityGeneration,
			Value: strconv.FormatInt(attrs.Generation, 10),
		},
	}
	if ts, ok := attrs.Metadata[updatedMetaKey]; ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			info.ModTime = t
		}
	}
	return info
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func isUnsatisfiableRange(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusRequestedRangeNotSatisfiable
}

// mapError tags GCS errors with cloudpath sentinels.
func mapError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %w", cloudpath.ErrNotExist, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", cloudpath.ErrNotExist, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", cloudpath.ErrPermission, err)
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %w", cloudpath.ErrObjectNewer, err)
		}
	}
	return err
}
