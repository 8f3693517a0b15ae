// Package s3 stores files in Amazon S3 or an S3-compatible service (MinIO,
// Wasabi, DigitalOcean Spaces...). Importing it registers the "s3" driver.
//
// Directories are simulated with "/"-separated key prefixes. Writes are
// buffered in memory and uploaded with a single PutObject on Close.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nuln/filestore"
)

// deleteBatchSize is the DeleteObjects per-request limit.
const deleteBatchSize = 1000

func init() {
	filestore.Register("s3", func(cfg *filestore.Config) (filestore.StorageEngine, error) {
		return New(context.Background(), Config{
			Bucket:         cfg.String("bucket", ""),
			Region:         cfg.String("region", ""),
			Prefix:         cfg.String("prefix", cfg.BasePath),
			Endpoint:       cfg.String("endpoint", ""),
			AccessKeyID:    cfg.String("accessKeyId", ""),
			SecretKey:      cfg.String("secretKey", ""),
			ForcePathStyle: cfg.Bool("forcePathStyle", false),
		})
	})
}

// Client is the subset of the S3 API the engine uses. *s3.Client satisfies
// it; tests substitute an in-memory fake.
type Client interface {
	PutObject(ctx context.Context, params *s3aws.PutObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3aws.GetObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3aws.HeadObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3aws.CopyObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3aws.DeleteObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3aws.DeleteObjectsInput, optFns ...func(*s3aws.Options)) (*s3aws.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3aws.ListObjectsV2Input, optFns ...func(*s3aws.Options)) (*s3aws.ListObjectsV2Output, error)
}

// Config describes the bucket to use.
type Config struct {
	Bucket         string `env:"FILESTORE_S3_BUCKET"`
	Region         string `env:"FILESTORE_S3_REGION"`
	Prefix         string `env:"FILESTORE_S3_PREFIX"`          // key prefix all paths live under
	Endpoint       string `env:"FILESTORE_S3_ENDPOINT"`        // for S3-compatible services
	AccessKeyID    string `env:"FILESTORE_S3_ACCESS_KEY_ID"`   // empty uses the default credential chain
	SecretKey      string `env:"FILESTORE_S3_SECRET_KEY"`
	ForcePathStyle bool   `env:"FILESTORE_S3_FORCE_PATH_STYLE"` // required by MinIO
}

// Option customizes [New].
type Option func(*options)

type options struct {
	client     Client
	configOpts []func(*config.LoadOptions) error
}

// WithClient uses client instead of building one from the AWS config.
func WithClient(client Client) Option {
	return func(o *options) { o.client = client }
}

// WithConfigOption adds an AWS config loading option.
func WithConfigOption(opt func(*config.LoadOptions) error) Option {
	return func(o *options) { o.configOpts = append(o.configOpts, opt) }
}

// Engine implements filestore.StorageEngine on an S3 bucket.
type Engine struct {
	client Client
	bucket string
	prefix string
}

// New returns an Engine for cfg.Bucket.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("filestore/s3: bucket is required")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		if cfg.Region == "" {
			return nil, errors.New("filestore/s3: region is required")
		}
		loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, append(loadOpts, o.configOpts...)...)
		if err != nil {
			return nil, fmt.Errorf("filestore/s3: load AWS config: %w", err)
		}
		client = s3aws.NewFromConfig(awsCfg, func(so *s3aws.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &Engine{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func clean(p string) string {
	c := strings.TrimPrefix(path.Clean("/"+p), "/")
	if c == "." {
		return ""
	}
	return c
}

// key maps a logical path to an object key.
func (e *Engine) key(p string) string {
	return strings.TrimPrefix(path.Join(e.prefix, clean(p)), "/")
}

// dirPrefix maps a logical directory to the key prefix of its children.
func (e *Engine) dirPrefix(p string) string {
	if k := e.key(p); k != "" {
		return k + "/"
	}
	return ""
}

// logical maps an object key back to a logical path.
func (e *Engine) logical(key string) string {
	if e.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, e.prefix+"/")
}

func (e *Engine) head(ctx context.Context, key string) (*s3aws.HeadObjectOutput, error) {
	out, err := e.client.HeadObject(ctx, &s3aws.HeadObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	return out, classifyError(err, "head", key)
}

// list calls fn for every page under prefix. A non-empty delimiter groups
// deeper keys into common prefixes.
func (e *Engine) list(ctx context.Context, prefix, delimiter string, fn func(*s3aws.ListObjectsV2Output) bool) error {
	in := &s3aws.ListObjectsV2Input{
		Bucket: aws.String(e.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		in.Delimiter = aws.String(delimiter)
	}
	for {
		page, err := e.client.ListObjectsV2(ctx, in)
		if err != nil {
			return classifyError(err, "list", prefix)
		}
		if !fn(page) || !aws.ToBool(page.IsTruncated) || page.NextContinuationToken == nil {
			return nil
		}
		in.ContinuationToken = page.NextContinuationToken
	}
}

// keysUnder returns every object key below the directory prefix.
func (e *Engine) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := e.list(ctx, prefix, "", func(page *s3aws.ListObjectsV2Output) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		return true
	})
	return keys, err
}

func (e *Engine) Stat(ctx context.Context, p string) (*filestore.EntryInfo, error) {
	name := path.Base(clean(p))
	if clean(p) == "" {
		return &filestore.EntryInfo{Name: "/", Path: p, IsDir: true}, nil
	}

	out, err := e.head(ctx, e.key(p))
	if err == nil {
		return &filestore.EntryInfo{
			Name:    name,
			Path:    p,
			Size:    aws.ToInt64(out.ContentLength),
			ModTime: aws.ToTime(out.LastModified),
		}, nil
	}
	if !errors.Is(err, filestore.ErrNotFound) {
		return nil, err
	}

	found := false
	lerr := e.list(ctx, e.dirPrefix(p), "/", func(page *s3aws.ListObjectsV2Output) bool {
		found = len(page.Contents) > 0 || len(page.CommonPrefixes) > 0
		return false
	})
	if lerr != nil {
		return nil, lerr
	}
	if !found {
		return nil, err
	}
	return &filestore.EntryInfo{Name: name, Path: p, IsDir: true}, nil
}

func (e *Engine) Open(ctx context.Context, p string) (filestore.ReadSeekCloser, error) {
	body, err := e.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, classifyError(err, "read", e.key(p))
	}
	return &memReader{Reader: bytes.NewReader(data)}, nil
}

type memReader struct {
	*bytes.Reader
}

func (*memReader) Close() error { return nil }

func (e *Engine) Create(ctx context.Context, p string) (filestore.WriteCloser, error) {
	return e.OpenFile(ctx, p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0)
}

// OpenFile buffers writes and uploads on Close. With os.O_APPEND the existing
// object is downloaded first.
func (e *Engine) OpenFile(ctx context.Context, p string, flag int, perm os.FileMode) (filestore.WriteSeekCloser, error) {
	if clean(p) == "" {
		return nil, fmt.Errorf("%w: %q", filestore.ErrIsDir, p)
	}
	w := &objectWriter{engine: e, ctx: ctx, path: p}
	if flag&os.O_APPEND != 0 && flag&os.O_TRUNC == 0 {
		body, err := e.Get(ctx, p)
		switch {
		case err == nil:
			existing, rerr := io.ReadAll(body)
			_ = body.Close()
			if rerr != nil {
				return nil, rerr
			}
			w.buf, w.off = existing, int64(len(existing))
		case !errors.Is(err, filestore.ErrNotFound):
			return nil, err
		}
	}
	return w, nil
}

type objectWriter struct {
	engine *Engine
	ctx    context.Context
	path   string
	buf    []byte
	off    int64
	closed bool
}

func (w *objectWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, filestore.ErrClosed
	}
	end := w.off + int64(len(p))
	if grow := end - int64(len(w.buf)); grow > 0 {
		w.buf = append(w.buf, make([]byte, grow)...)
	}
	copy(w.buf[w.off:], p)
	w.off = end
	return len(p), nil
}

func (w *objectWriter) Seek(offset int64, whence int) (int64, error) {
	next := offset
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		next += w.off
	case io.SeekEnd:
		next += int64(len(w.buf))
	default:
		return 0, errors.New("filestore/s3: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("filestore/s3: negative position")
	}
	w.off = next
	return next, nil
}

func (w *objectWriter) Close() error {
	if w.closed {
		return filestore.ErrClosed
	}
	w.closed = true
	return w.engine.Put(w.ctx, w.path, bytes.NewReader(w.buf))
}

// Remove deletes one object, or every object below a directory prefix.
// Removing something that does not exist succeeds.
func (e *Engine) Remove(ctx context.Context, p string) error {
	key := e.key(p)
	if _, err := e.head(ctx, key); err == nil {
		_, err := e.client.DeleteObject(ctx, &s3aws.DeleteObjectInput{
			Bucket: aws.String(e.bucket),
			Key:    aws.String(key),
		})
		return classifyError(err, "delete", key)
	} else if !errors.Is(err, filestore.ErrNotFound) {
		return err
	}

	keys, err := e.keysUnder(ctx, e.dirPrefix(p))
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		batch := keys[start:min(start+deleteBatchSize, len(keys))]
		ids := make([]types.ObjectIdentifier, 0, len(batch))
		for _, k := range batch {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		_, err := e.client.DeleteObjects(ctx, &s3aws.DeleteObjectsInput{
			Bucket: aws.String(e.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return classifyError(err, "delete directory", p)
		}
	}
	return nil
}

// copySource builds the URL-encoded "bucket/key" CopyObject expects.
func (e *Engine) copySource(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return e.bucket + "/" + strings.Join(parts, "/")
}

func (e *Engine) copyKey(ctx context.Context, from, to string) error {
	_, err := e.client.CopyObject(ctx, &s3aws.CopyObjectInput{
		Bucket:     aws.String(e.bucket),
		Key:        aws.String(to),
		CopySource: aws.String(e.copySource(from)),
	})
	return classifyError(err, "copy", from)
}

// Rename copies then deletes; it is not atomic.
func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := e.Copy(ctx, oldPath, newPath); err != nil {
		return err
	}
	return e.Remove(ctx, oldPath)
}

// Copy copies an object, or every object below a directory, server side.
func (e *Engine) Copy(ctx context.Context, src, dst string) error {
	from, to := e.key(src), e.key(dst)
	if _, err := e.head(ctx, from); err == nil {
		return e.copyKey(ctx, from, to)
	} else if !errors.Is(err, filestore.ErrNotFound) {
		return err
	}

	keys, err := e.keysUnder(ctx, e.dirPrefix(src))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: %q", filestore.ErrNotFound, src)
	}
	for _, k := range keys {
		if err := e.copyKey(ctx, k, to+strings.TrimPrefix(k, from)); err != nil {
			return err
		}
	}
	return nil
}

// MkdirAll is a no-op: prefixes exist as soon as an object uses them.
func (e *Engine) MkdirAll(ctx context.Context, p string) error {
	return nil
}

func (e *Engine) ReadDir(ctx context.Context, p string) ([]*filestore.EntryInfo, error) {
	prefix := e.dirPrefix(p)
	var entries []*filestore.EntryInfo
	err := e.list(ctx, prefix, "/", func(page *s3aws.ListObjectsV2Output) bool {
		for _, cp := range page.CommonPrefixes {
			dir := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			entries = append(entries, &filestore.EntryInfo{
				Name:  path.Base(dir),
				Path:  e.logical(dir),
				IsDir: true,
			})
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if k == prefix {
				continue
			}
			entries = append(entries, &filestore.EntryInfo{
				Name:    path.Base(k),
				Path:    e.logical(k),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
		return true
	})
	return entries, err
}

// ListKeys lists every object whose logical path starts with prefix.
func (e *Engine) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	root := e.prefix
	if root != "" {
		root += "/"
	}
	var keys []string
	err := e.list(ctx, root+prefix, "", func(page *s3aws.ListObjectsV2Output) bool {
		for _, obj := range page.Contents {
			if k := aws.ToString(obj.Key); !strings.HasSuffix(k, "/") {
				keys = append(keys, e.logical(k))
			}
		}
		return true
	})
	return keys, err
}

// Get streams the object body.
func (e *Engine) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	key := e.key(p)
	out, err := e.client.GetObject(ctx, &s3aws.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyError(err, "get", key)
	}
	return out.Body, nil
}

// GetRange streams length bytes from offset; length <= 0 reads to the end.
func (e *Engine) GetRange(ctx context.Context, p string, offset, length int64) (io.ReadCloser, error) {
	rng := fmt.Sprintf("bytes=%d-", offset)
	if length > 0 {
		rng = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	}
	key := e.key(p)
	out, err := e.client.GetObject(ctx, &s3aws.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
		Range:  aws.String(rng),
	})
	if err != nil {
		return nil, classifyError(err, "get range", key)
	}
	return out.Body, nil
}

// Put uploads everything read from reader. The body is buffered so the SDK
// can sign it with a known length.
func (e *Engine) Put(ctx context.Context, p string, reader io.Reader) error {
	rs, ok := reader.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(reader)
		if err != nil {
			return err
		}
		rs = bytes.NewReader(data)
	}
	key := e.key(p)
	_, err := e.client.PutObject(ctx, &s3aws.PutObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
		Body:   rs,
	})
	return classifyError(err, "put", key)
}

// SignedURL presigns a GET request. Only available with a real *s3.Client.
func (e *Engine) SignedURL(ctx context.Context, p string, expiry time.Duration) (string, error) {
	client, ok := e.client.(*s3aws.Client)
	if !ok {
		return "", filestore.ErrNotSupported
	}
	req, err := s3aws.NewPresignClient(client).PresignGetObject(ctx, &s3aws.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(e.key(p)),
	}, s3aws.WithPresignExpires(expiry))
	if err != nil {
		return "", classifyError(err, "presign", e.key(p))
	}
	return req.URL, nil
}

var (
	_ filestore.StorageEngine      = (*Engine)(nil)
	_ filestore.StreamReader       = (*Engine)(nil)
	_ filestore.StreamWriter       = (*Engine)(nil)
	_ filestore.RangeReader        = (*Engine)(nil)
	_ filestore.KeyLister          = (*Engine)(nil)
	_ filestore.Copier             = (*Engine)(nil)
	_ filestore.SignedURLGenerator = (*Engine)(nil)
)
