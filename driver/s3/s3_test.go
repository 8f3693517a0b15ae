package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nuln/filestore"
	"github.com/nuln/filestore/storagetest"
)

// memClient is an in-memory bucket. pageSize keeps listings small so
// pagination is exercised.
type memClient struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
}

func newMemClient() *memClient {
	return &memClient{objects: make(map[string][]byte), pageSize: 2}
}

func (c *memClient) PutObject(_ context.Context, in *s3aws.PutObjectInput, _ ...func(*s3aws.Options)) (*s3aws.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.objects[aws.ToString(in.Key)] = data
	c.mu.Unlock()
	return &s3aws.PutObjectOutput{}, nil
}

func (c *memClient) GetObject(_ context.Context, in *s3aws.GetObjectInput, _ ...func(*s3aws.Options)) (*s3aws.GetObjectOutput, error) {
	c.mu.Lock()
	data, ok := c.objects[aws.ToString(in.Key)]
	c.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	if rng := aws.ToString(in.Range); rng != "" {
		from, to, _ := strings.Cut(strings.TrimPrefix(rng, "bytes="), "-")
		start, _ := strconv.Atoi(from)
		end := len(data)
		if to != "" {
			n, _ := strconv.Atoi(to)
			end = min(n+1, len(data))
		}
		data = data[start:end]
	}
	return &s3aws.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (c *memClient) HeadObject(_ context.Context, in *s3aws.HeadObjectInput, _ ...func(*s3aws.Options)) (*s3aws.HeadObjectOutput, error) {
	c.mu.Lock()
	data, ok := c.objects[aws.ToString(in.Key)]
	c.mu.Unlock()
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3aws.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(time.Now()),
	}, nil
}

func (c *memClient) CopyObject(_ context.Context, in *s3aws.CopyObjectInput, _ ...func(*s3aws.Options)) (*s3aws.CopyObjectOutput, error) {
	_, src, _ := strings.Cut(aws.ToString(in.CopySource), "/")
	src, err := url.PathUnescape(src)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[src]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	c.objects[aws.ToString(in.Key)] = slices.Clone(data)
	return &s3aws.CopyObjectOutput{}, nil
}

func (c *memClient) DeleteObject(_ context.Context, in *s3aws.DeleteObjectInput, _ ...func(*s3aws.Options)) (*s3aws.DeleteObjectOutput, error) {
	c.mu.Lock()
	delete(c.objects, aws.ToString(in.Key))
	c.mu.Unlock()
	return &s3aws.DeleteObjectOutput{}, nil
}

func (c *memClient) DeleteObjects(_ context.Context, in *s3aws.DeleteObjectsInput, _ ...func(*s3aws.Options)) (*s3aws.DeleteObjectsOutput, error) {
	c.mu.Lock()
	for _, id := range in.Delete.Objects {
		delete(c.objects, aws.ToString(id.Key))
	}
	c.mu.Unlock()
	return &s3aws.DeleteObjectsOutput{}, nil
}

func (c *memClient) ListObjectsV2(_ context.Context, in *s3aws.ListObjectsV2Input, _ ...func(*s3aws.Options)) (*s3aws.ListObjectsV2Output, error) {
	prefix, delim := aws.ToString(in.Prefix), aws.ToString(in.Delimiter)

	c.mu.Lock()
	var keys []string
	for k := range c.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()
	slices.Sort(keys)

	// Group into common prefixes first, then paginate the merged listing.
	type item struct {
		key    string
		prefix bool
	}
	var items []item
	seen := map[string]bool{}
	for _, k := range keys {
		if delim != "" {
			if i := strings.Index(k[len(prefix):], delim); i >= 0 {
				cp := k[:len(prefix)+i+1]
				if !seen[cp] {
					seen[cp] = true
					items = append(items, item{key: cp, prefix: true})
				}
				continue
			}
		}
		items = append(items, item{key: k})
	}

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	end := min(start+c.pageSize, len(items))

	out := &s3aws.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(items))}
	if end < len(items) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	c.mu.Lock()
	for _, it := range items[start:end] {
		if it.prefix {
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(it.key)})
			continue
		}
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(it.key),
			Size: aws.Int64(int64(len(c.objects[it.key]))),
		})
	}
	c.mu.Unlock()
	return out, nil
}

func newTestEngine(t *testing.T, prefix string) (*Engine, *memClient) {
	t.Helper()
	client := newMemClient()
	engine, err := New(context.Background(), Config{Bucket: "test-bucket", Prefix: prefix}, WithClient(client))
	require.NoError(t, err)
	return engine, client
}

func TestEngine(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t, "")
	storagetest.EngineSuite(t, engine)
}

func TestEngineWithPrefix(t *testing.T) {
	t.Parallel()
	engine, client := newTestEngine(t, "tenant/a")
	storagetest.EngineSuite(t, engine)

	require.NoError(t, engine.Put(context.Background(), "x.txt", strings.NewReader("x")))
	client.mu.Lock()
	_, ok := client.objects["tenant/a/x.txt"]
	client.mu.Unlock()
	assert.True(t, ok, "object should be stored under the prefix")
}

func TestFilesystem(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t, "")
	storagetest.FilesystemSuite(t, filestore.NewFilesystem("s3", engine))
}

func TestNewRequiresBucket(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	require.Error(t, err)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t, "")
	assert.NoError(t, engine.Remove(context.Background(), "nope.txt"))
}

func TestRemoveDirectoryBatches(t *testing.T) {
	t.Parallel()
	engine, client := newTestEngine(t, "")
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, engine.Put(ctx, "bulk/f"+strconv.Itoa(i), strings.NewReader("x")))
	}
	require.NoError(t, engine.Put(ctx, "keep.txt", strings.NewReader("k")))

	require.NoError(t, engine.Remove(ctx, "bulk"))

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Len(t, client.objects, 1)
	assert.Contains(t, client.objects, "keep.txt")
}

func TestGetRange(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t, "")
	ctx := context.Background()
	require.NoError(t, engine.Put(ctx, "range.txt", strings.NewReader("0123456789")))

	rc, err := engine.GetRange(ctx, "range.txt", 2, 3)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "234", string(data))

	rc, err = engine.GetRange(ctx, "range.txt", 7, 0)
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "789", string(data))
}

func TestCopySourceEscapesKey(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t, "")
	assert.Equal(t, "test-bucket/dir/a%20b%3F.txt", engine.copySource("dir/a b?.txt"))
}

func TestSignedURLNeedsRealClient(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t, "")
	_, err := engine.SignedURL(context.Background(), "a.txt", time.Minute)
	assert.ErrorIs(t, err, filestore.ErrNotSupported)
}

// failingClient returns scripted errors for uploads.
type failingClient struct {
	mock.Mock
	*memClient
}

func (c *failingClient) PutObject(ctx context.Context, in *s3aws.PutObjectInput, _ ...func(*s3aws.Options)) (*s3aws.PutObjectOutput, error) {
	args := c.Called(aws.ToString(in.Key))
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return c.memClient.PutObject(ctx, in)
}

func TestUploadErrorSurfacesOnClose(t *testing.T) {
	t.Parallel()
	client := &failingClient{memClient: newMemClient()}
	client.On("PutObject", "denied.txt").Return(&smithy.GenericAPIError{Code: "AccessDenied", Message: "no"})

	engine, err := New(context.Background(), Config{Bucket: "b"}, WithClient(client))
	require.NoError(t, err)

	w, err := engine.Create(context.Background(), "denied.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)

	err = w.Close()
	assert.ErrorIs(t, err, filestore.ErrPermission)
	assert.ErrorIs(t, w.Close(), filestore.ErrClosed)
	client.AssertExpectations(t)
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", &types.NoSuchKey{}, filestore.ErrNotFound},
		{"not found", &types.NotFound{}, filestore.ErrNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, filestore.ErrPermission},
		{"not implemented", &smithy.GenericAPIError{Code: "NotImplemented"}, filestore.ErrNotSupported},
		{"canceled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, classifyError(tt.err, "op", "key"), tt.want)
		})
	}

	assert.NoError(t, classifyError(nil, "op", "key"))
	other := errors.New("boom")
	assert.ErrorIs(t, classifyError(other, "op", "key"), other)
}
