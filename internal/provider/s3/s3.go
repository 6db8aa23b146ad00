// SPDX-License-Identifier: MPL-2.0

// Package s3 serves cloudpath operations from Amazon S3 and S3-compatible
// stores such as MinIO.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/cloudsh/cloudsh/internal/config"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// updatedMetaKey stores the modification time set by touch and preserved
// copies, since S3 LastModified cannot be written.
const updatedMetaKey = "updated"

type (
	// API is the subset of the S3 client used by the provider.
	API interface {
		HeadObject(ctx context.Context, in *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
		GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
		PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
		CopyObject(ctx context.Context, in *awss3.CopyObjectInput, optFns ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error)
		DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
		ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	}

	// Provider implements cloudpath.Provider, NativeCopier, GuardedWriter
	// and Toucher for s3:// paths.
	Provider struct {
		client API
	}

	// uploadWriter buffers to a temporary file and uploads on Close.
	uploadWriter struct {
		ctx    context.Context
		p      *Provider
		ref    cloudpath.Ref
		tmp    *os.File
		closed bool
	}
)

// New builds a provider from the AWS shared configuration, overridden by
// the non-empty fields of cfg.
func New(ctx context.Context, cfg config.S3Config) (*Provider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API) *Provider {
	return &Provider{client: client}
}

// Scheme implements cloudpath.Provider.
func (p *Provider) Scheme() cloudpath.Scheme { return cloudpath.SchemeS3 }

// Stat implements cloudpath.Provider. A key that is not an object but has
// objects below it is reported as a directory.
func (p *Provider) Stat(ctx context.Context, ref cloudpath.Ref) (cloudpath.Info, error) {
	if ref.Key == "" {
		return cloudpath.Info{IsDir: true, Mode: dirMode}, nil
	}

	out, err := p.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Key),
	})
	if err == nil {
		return objectInfo(out), nil
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
	paginator := awss3.NewListObjectsV2Paginator(p.client, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(ref.Container),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var (
		children []cloudpath.Ref
		seen     bool
	)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", ref, mapError(err))
		}
		for _, obj := range page.Contents {
			seen = true
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue
			}
			children = append(children, cloudpath.Ref{Scheme: cloudpath.SchemeS3, Container: ref.Container, Key: key})
		}
		for _, cp := range page.CommonPrefixes {
			seen = true
			key := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			children = append(children, cloudpath.Ref{Scheme: cloudpath.SchemeS3, Container: ref.Container, Key: key})
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

// OpenRead implements cloudpath.Provider with a ranged GetObject.
func (p *Provider) OpenRead(ctx context.Context, ref cloudpath.Ref, offset, length int64) (io.ReadCloser, error) {
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	in := &awss3.GetObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Key),
	}
	if r := rangeHeader(offset, length); r != "" {
		in.Range = aws.String(r)
	}

	out, err := p.client.GetObject(ctx, in)
	if err != nil {
		if isInvalidRange(err) {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		return nil, fmt.Errorf("read %s: %w", ref, mapError(err))
	}
	return out.Body, nil
}

// OpenWrite implements cloudpath.Provider. Data is staged in a temporary
// file and uploaded with a single PutObject when the writer is closed.
func (p *Provider) OpenWrite(ctx context.Context, ref cloudpath.Ref, appendMode bool) (io.WriteCloser, error) {
	if ref.Key == "" {
		return nil, fmt.Errorf("write %s: %w", ref, cloudpath.ErrIsDir)
	}
	if isDir, err := p.hasChildren(ctx, ref); err != nil {
		return nil, fmt.Errorf("write %s: %w", ref, err)
	} else if isDir {
		return nil, fmt.Errorf("write %s: %w", ref, cloudpath.ErrIsDir)
	}

	tmp, err := os.CreateTemp("", "cloudsh-s3-*")
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", ref, err)
	}
	w := &uploadWriter{ctx: ctx, p: p, ref: ref, tmp: tmp}

	if appendMode {
		r, err := p.OpenRead(ctx, ref, 0, -1)
		switch {
		case err == nil:
			_, err = io.Copy(tmp, r)
			_ = r.Close()
			if err != nil {
				w.discard()
				return nil, fmt.Errorf("write %s: %w", ref, err)
			}
		case !errors.Is(err, cloudpath.ErrNotExist):
			w.discard()
			return nil, err
		}
	}
	return w, nil
}

// OpenWriteGuarded implements cloudpath.GuardedWriter. The check runs when
// the writer is opened.
func (p *Provider) OpenWriteGuarded(ctx context.Context, ref cloudpath.Ref, notAfter time.Time) (io.WriteCloser, error) {
	if err := p.checkOverwrite(ctx, ref, notAfter); err != nil {
		return nil, err
	}
	return p.OpenWrite(ctx, ref, false)
}

// checkOverwrite fails with ErrObjectNewer when ref holds an object
// modified after notAfter.
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
		parent := ref.Parent()
		info, err := p.Stat(ctx, parent)
		if err != nil {
			return fmt.Errorf("mkdir %s: %w", ref, err)
		}
		if !info.IsDir {
			return fmt.Errorf("mkdir %s: %w", ref, cloudpath.ErrNotDir)
		}
	}

	_, err := p.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(ref.Container),
		Key:           aws.String(ref.DirPrefix()),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
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
	if _, err := p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Key),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", ref, mapError(err))
	}
	return nil
}

// Rmdir implements cloudpath.Provider.
func (p *Provider) Rmdir(ctx context.Context, ref cloudpath.Ref) error {
	if ref.Key == "" {
		return fmt.Errorf("rmdir %s: %w", ref, cloudpath.ErrPermission)
	}
	out, err := p.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(ref.Container),
		Prefix:  aws.String(ref.DirPrefix()),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return fmt.Errorf("rmdir %s: %w", ref, mapError(err))
	}

	marker := false
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) != ref.DirPrefix() {
			return fmt.Errorf("rmdir %s: %w", ref, cloudpath.ErrNotEmpty)
		}
		marker = true
	}
	if !marker {
		if _, err := p.Stat(ctx, ref); err != nil {
			return err
		}
		return fmt.Errorf("rmdir %s: %w", ref, cloudpath.ErrNotDir)
	}

	if _, err := p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.DirPrefix()),
	}); err != nil {
		return fmt.Errorf("rmdir %s: %w", ref, mapError(err))
	}
	return nil
}

// NativeCopy implements cloudpath.NativeCopier with a server-side
// CopyObject between any two S3 locations. Unless opts.Force is set, a
// destination modified after the source is refused with ErrObjectNewer.
func (p *Provider) NativeCopy(ctx context.Context, src, dst cloudpath.Ref, opts cloudpath.CopyOptions) (bool, error) {
	if src.Scheme != cloudpath.SchemeS3 || dst.Scheme != cloudpath.SchemeS3 {
		return false, nil
	}

	in := &awss3.CopyObjectInput{
		Bucket:     aws.String(dst.Container),
		Key:        aws.String(dst.Key),
		CopySource: aws.String(copySource(src)),
	}
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
			in.MetadataDirective = types.MetadataDirectiveReplace
			in.Metadata = map[string]string{updatedMetaKey: info.ModTime.UTC().Format(time.RFC3339Nano)}
		}
	}

	if _, err := p.client.CopyObject(ctx, in); err != nil {
		return true, fmt.Errorf("copy %s to %s: %w", src, dst, mapError(err))
	}
	return true, nil
}

// Touch implements cloudpath.Toucher by copying the object onto itself
// with replaced metadata.
func (p *Provider) Touch(ctx context.Context, ref cloudpath.Ref, mtime time.Time) error {
	head, err := p.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return fmt.Errorf("touch %s: %w", ref, mapError(err))
	}

	meta := make(map[string]string, len(head.Metadata)+1)
	for k, v := range head.Metadata {
		meta[k] = v
	}
	meta[updatedMetaKey] = mtime.UTC().Format(time.RFC3339Nano)

	_, err = p.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:            aws.String(ref.Container),
		Key:               aws.String(ref.Key),
		CopySource:        aws.String(copySource(ref)),
		Metadata:          meta,
		MetadataDirective: types.MetadataDirectiveReplace,
		ContentType:       head.ContentType,
	})
	if err != nil {
		return fmt.Errorf("touch %s: %w", ref, mapError(err))
	}
	return nil
}

func (p *Provider) hasChildren(ctx context.Context, ref cloudpath.Ref) (bool, error) {
	out, err := p.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(ref.Container),
		Prefix:  aws.String(ref.DirPrefix()),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, mapError(err)
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

func (w *uploadWriter) Write(b []byte) (int, error) {
	return w.tmp.Write(b)
}

func (w *uploadWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.discard()

	size, err := w.tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = w.p.client.PutObject(w.ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(w.ref.Container),
		Key:           aws.String(w.ref.Key),
		Body:          w.tmp,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", w.ref, mapError(err))
	}
	return nil
}

func (w *uploadWriter) discard() {
	_ = w.tmp.Close()
	_ = os.Remove(w.tmp.Name())
}

const dirMode = 0o755 | os.ModeDir

func objectInfo(out *awss3.HeadObjectOutput) cloudpath.Info {
	info := cloudpath.Info{
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
		Mode:    0o644,
		Identity: cloudpath.Identity{
			Kind:  cloudpath.IdentityGeneration,
			Value: identityValue(aws.ToString(out.ETag), aws.ToString(out.VersionId)),
		},
	}
	if ts, ok := out.Metadata[updatedMetaKey]; ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			info.ModTime = t
		}
	}
	return info
}

func identityValue(etag, version string) string {
	etag = strings.Trim(etag, `"`)
	if version == "" || version == "null" {
		return etag
	}
	return etag + "@" + version
}

// rangeHeader renders an HTTP Range header value; it is empty when the
// whole object is requested.
func rangeHeader(offset, length int64) string {
	switch {
	case length > 0:
		return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	case offset > 0:
		return fmt.Sprintf("bytes=%d-", offset)
	default:
		return ""
	}
}

func copySource(ref cloudpath.Ref) string {
	return ref.Container + "/" + url.PathEscape(ref.Key)
}

func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange"
}

// mapError tags S3 errors with cloudpath sentinels.
func mapError(err error) error {
	var (
		noKey    *types.NoSuchKey
		notFound *types.NotFound
		noBucket *types.NoSuchBucket
	)
	if errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return fmt.Errorf("%w: %w", cloudpath.ErrNotExist, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket", "404":
			return fmt.Errorf("%w: %w", cloudpath.ErrNotExist, err)
		case "AccessDenied", "Forbidden", "403", "AllAccessDisabled":
			return fmt.Errorf("%w: %w", cloudpath.ErrPermission, err)
		case "PreconditionFailed", "412":
			return fmt.Errorf("%w: %w", cloudpath.ErrObjectNewer, err)
		}
	}
	return err
}
