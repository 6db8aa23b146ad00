// SPDX-License-Identifier: MPL-2.0

// Package azure serves cloudpath operations from Azure Blob Storage.
// Paths take the form az://container/blob; the storage account comes from
// configuration.
package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/cloudsh/cloudsh/internal/config"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// updatedMetaKey stores the modification time set by touch and preserved
// copies.
const updatedMetaKey = "updated"

const (
	dirMode          = 0o755 | os.ModeDir
	copyPollInterval = 500 * time.Millisecond
)

// ErrNoAccount is returned when neither an account URL nor a connection
// string is configured.
var ErrNoAccount = errors.New("no Azure storage account configured (set azure.account_url or azure.connection_string)")

type (
	// Provider implements cloudpath.Provider, NativeCopier, GuardedWriter
	// and Toucher for az:// paths.
	Provider struct {
		client *azblob.Client
	}

	// pipeUpload feeds an UploadStream running in the background; Close
	// waits for the upload to finish.
	pipeUpload struct {
		pw   *io.PipeWriter
		done chan error
	}
)

// New creates a client from a connection string, or from the account URL
// authenticated with the default Azure credential chain.
func New(_ context.Context, cfg config.AzureConfig) (*Provider, error) {
	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.AccountURL != "":
		var cred azcore.TokenCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("load azure credentials: %w", err)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
	default:
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Scheme implements cloudpath.Provider.
func (p *Provider) Scheme() cloudpath.Scheme { return cloudpath.SchemeAzure }

func (p *Provider) container(ref cloudpath.Ref) *container.Client {
	return p.client.ServiceClient().NewContainerClient(ref.Container)
}

func (p *Provider) blob(ref cloudpath.Ref) *blob.Client {
	return p.container(ref).NewBlobClient(ref.Key)
}

// Stat implements cloudpath.Provider. The identity is the blob ETag.
func (p *Provider) Stat(ctx context.Context, ref cloudpath.Ref) (cloudpath.Info, error) {
	if ref.Key == "" {
		return cloudpath.Info{IsDir: true, Mode: dirMode}, nil
	}

	props, err := p.blob(ref).GetProperties(ctx, nil)
	if err == nil {
		return propertiesInfo(props), nil
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

// List implements cloudpath.Provider using the hierarchy listing.
func (p *Provider) List(ctx context.Context, ref cloudpath.Ref) ([]cloudpath.Ref, error) {
	prefix := ref.DirPrefix()
	pager := p.container(ref).NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
		Prefix: &prefix,
	})

	var (
		children []cloudpath.Ref
		seen     bool
	)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", ref, mapError(err))
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			seen = true
			name := deref(item.Name)
			if name == prefix {
				continue
			}
			children = append(children, cloudpath.Ref{Scheme: cloudpath.SchemeAzure, Container: ref.Container, Key: name})
		}
		for _, bp := range page.Segment.BlobPrefixes {
			seen = true
			children = append(children, cloudpath.Ref{
				Scheme:    cloudpath.SchemeAzure,
				Container: ref.Container,
				Key:       strings.TrimSuffix(deref(bp.Name), "/"),
			})
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

// OpenRead implements cloudpath.Provider with a ranged download.
func (p *Provider) OpenRead(ctx context.Context, ref cloudpath.Ref, offset, length int64) (io.ReadCloser, error) {
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	opts := &blob.DownloadStreamOptions{Range: blob.HTTPRange{Offset: offset}}
	if length > 0 {
		opts.Range.Count = length
	}
	resp, err := p.blob(ref).DownloadStream(ctx, opts)
	if err != nil {
		if bloberror.HasCode(err, bloberror.InvalidRange) {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		return nil, fmt.Errorf("read %s: %w", ref, mapError(err))
	}
	return resp.Body, nil
}

// OpenWrite implements cloudpath.Provider. Writes stream into a block
// blob upload that commits when the writer is closed.
func (p *Provider) OpenWrite(ctx context.Context, ref cloudpath.Ref, appendMode bool) (io.WriteCloser, error) {
	if ref.Key == "" {
		return nil, fmt.Errorf("write %s: %w", ref, cloudpath.ErrIsDir)
	}
	if isDir, err := p.hasChildren(ctx, ref); err != nil {
		return nil, fmt.Errorf("write %s: %w", ref, err)
	} else if isDir {
		return nil, fmt.Errorf("write %s: %w", ref, cloudpath.ErrIsDir)
	}

	var existing io.ReadCloser
	if appendMode {
		r, err := p.OpenRead(ctx, ref, 0, -1)
		switch {
		case err == nil:
			existing = r
		case !errors.Is(err, cloudpath.ErrNotExist):
			return nil, err
		}
	}

	pr, pw := io.Pipe()
	up := &pipeUpload{pw: pw, done: make(chan error, 1)}
	bb := p.container(ref).NewBlockBlobClient(ref.Key)
	go func() {
		_, err := bb.UploadStream(ctx, pr, &blockblob.UploadStreamOptions{})
		_ = pr.CloseWithError(err)
		up.done <- err
	}()

	if existing != nil {
		_, err := io.Copy(pw, existing)
		_ = existing.Close()
		if err != nil {
			_ = pw.CloseWithError(err)
			<-up.done
			return nil, fmt.Errorf("write %s: %w", ref, err)
		}
	}
	return up, nil
}

func (u *pipeUpload) Write(b []byte) (int, error) {
	return u.pw.Write(b)
}

func (u *pipeUpload) Close() error {
	if err := u.pw.Close(); err != nil {
		return err
	}
	if err := <-u.done; err != nil {
		return mapError(err)
	}
	return nil
}

// OpenWriteGuarded implements cloudpath.GuardedWriter. The check runs when
// the writer is opened.
func (p *Provider) OpenWriteGuarded(ctx context.Context, ref cloudpath.Ref, notAfter time.Time) (io.WriteCloser, error) {
	if err := p.checkOverwrite(ctx, ref, notAfter); err != nil {
		return nil, err
	}
	return p.OpenWrite(ctx, ref, false)
}

// checkOverwrite fails with ErrObjectNewer when ref holds a blob modified
// after notAfter.
func (p *Provider) checkOverwrite(ctx context.Context, ref cloudpath.Ref, notAfter time.Time) error {
	info, err := p.Stat(ctx, ref)
	switch {
	case errors.Is(err, cloudpath.ErrNotExist):
		return nil
	case err != nil:
		return err
	}
	return cloudpath.CheckNotNewer(ref, info, notAfter)
}

// Mkdir implements cloudpath.Provider by writing a "key/" marker blob.
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

	bb := p.container(ref).NewBlockBlobClient(ref.DirPrefix())
	if _, err := bb.UploadBuffer(ctx, nil, nil); err != nil {
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
	if _, err := p.blob(ref).Delete(ctx, nil); err != nil {
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
	pager := p.container(ref).NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix:     &marker,
		MaxResults: ptr(int32(2)),
	})

	found := false
	if pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("rmdir %s: %w", ref, mapError(err))
		}
		if page.Segment != nil {
			for _, item := range page.Segment.BlobItems {
				if deref(item.Name) != marker {
					return fmt.Errorf("rmdir %s: %w", ref, cloudpath.ErrNotEmpty)
				}
				found = true
			}
		}
	}
	if !found {
		if _, err := p.Stat(ctx, ref); err != nil {
			return err
		}
		return fmt.Errorf("rmdir %s: %w", ref, cloudpath.ErrNotDir)
	}

	if _, err := p.container(ref).NewBlobClient(marker).Delete(ctx, nil); err != nil {
		return fmt.Errorf("rmdir %s: %w", ref, mapError(err))
	}
	return nil
}

// NativeCopy implements cloudpath.NativeCopier with a server-side copy
// within the configured account. The call returns once the copy has left
// the pending state. Unless opts.Force is set, a destination modified
// after the source is refused with ErrObjectNewer.
func (p *Provider) NativeCopy(ctx context.Context, src, dst cloudpath.Ref, opts cloudpath.CopyOptions) (bool, error) {
	if src.Scheme != cloudpath.SchemeAzure || dst.Scheme != cloudpath.SchemeAzure {
		return false, nil
	}

	copyOpts := &blob.StartCopyFromURLOptions{}
	if opts.Preserve || !opts.Force {
		info, err := p.Stat(ctx, src)
		if err != nil {
			return true, err
		}
		if !opts.Force {
			if err := p.checkOverwrite(ctx, dst, info.ModTime); err != nil {
				return true, err
			}
		}
		if opts.Preserve {
			copyOpts.Metadata = map[string]*string{updatedMetaKey: ptr(formatTime(info.ModTime))}
		}
	}

	dstBlob := p.blob(dst)
	resp, err := dstBlob.StartCopyFromURL(ctx, p.blob(src).URL(), copyOpts)
	if err != nil {
		return true, fmt.Errorf("copy %s to %s: %w", src, dst, mapError(err))
	}

	status := resp.CopyStatus
	for status != nil && *status == blob.CopyStatusTypePending {
		timer := time.NewTimer(copyPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return true, ctx.Err()
		case <-timer.C:
		}
		props, err := dstBlob.GetProperties(ctx, nil)
		if err != nil {
			return true, fmt.Errorf("copy %s to %s: %w", src, dst, mapError(err))
		}
		status = props.CopyStatus
	}
	if status != nil && *status != blob.CopyStatusTypeSuccess {
		return true, fmt.Errorf("copy %s to %s: copy %s", src, dst, *status)
	}
	return true, nil
}

// Touch implements cloudpath.Toucher by rewriting the blob metadata.
func (p *Provider) Touch(ctx context.Context, ref cloudpath.Ref, mtime time.Time) error {
	b := p.blob(ref)
	props, err := b.GetProperties(ctx, nil)
	if err != nil {
		return fmt.Errorf("touch %s: %w", ref, mapError(err))
	}

	meta := make(map[string]*string, len(props.Metadata)+1)
	for k, v := range props.Metadata {
		if !strings.EqualFold(k, updatedMetaKey) {
			meta[k] = v
		}
	}
	meta[updatedMetaKey] = ptr(formatTime(mtime))

	if _, err := b.SetMetadata(ctx, meta, nil); err != nil {
		return fmt.Errorf("touch %s: %w", ref, mapError(err))
	}
	return nil
}

func (p *Provider) hasChildren(ctx context.Context, ref cloudpath.Ref) (bool, error) {
	prefix := ref.DirPrefix()
	pager := p.container(ref).NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix:     &prefix,
		MaxResults: ptr(int32(1)),
	})
	if !pager.More() {
		return false, nil
	}
	page, err := pager.NextPage(ctx)
	if err != nil {
		return false, mapError(err)
	}
	return page.Segment != nil && len(page.Segment.BlobItems) > 0, nil
}

func propertiesInfo(props blob.GetPropertiesResponse) cloudpath.Info {
	info := cloudpath.Info{Mode: 0o644}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		info.ModTime = *props.LastModified
	}
	if props.ETag != nil {
		info.Identity = cloudpath.Identity{
			Kind:  cloudpath.IdentityGeneration,
			Value: strings.Trim(string(*props.ETag), `"`),
		}
	}
	if t, ok := metadataTime(props.Metadata); ok {
		info.ModTime = t
	}
	return info
}

// metadataTime looks up the touch timestamp. Metadata keys come back with
// HTTP header casing, so the lookup ignores case.
func metadataTime(meta map[string]*string) (time.Time, bool) {
	for k, v := range meta {
		if !strings.EqualFold(k, updatedMetaKey) || v == nil {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, *v)
		return t, err == nil
	}
	return time.Time{}, false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// mapError tags Azure errors with cloudpath sentinels.
func mapError(err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return fmt.Errorf("%w: %w", cloudpath.ErrNotExist, err)
	}
	if bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthorizationPermissionMismatch, bloberror.InsufficientAccountPermissions) {
		return fmt.Errorf("%w: %w", cloudpath.ErrPermission, err)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
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

func ptr[T any](v T) *T { return &v }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
