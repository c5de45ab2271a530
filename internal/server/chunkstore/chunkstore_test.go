package chunkstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, *in.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "u1", "7", 0, []byte("first")))
	require.NoError(t, s.Put(ctx, "u1", "7", 0, []byte("again")))
	require.NoError(t, s.Put(ctx, "u1", "8", 3, []byte("other")))
	require.NoError(t, s.Put(ctx, "u2", "7", 0, []byte("keep")))

	got, err := s.Get(ctx, "u1", "7", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), got, "a re-sent chunk replaces the stored copy")

	_, err = s.Get(ctx, "u1", "7", 1)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.Put(ctx, "u1", "../escape", 0, []byte("x")), ErrInvalidFileID)

	require.NoError(t, s.DeleteUpload(ctx, "u1"))
	_, err = s.Get(ctx, "u1", "8", 3)
	require.ErrorIs(t, err, ErrNotFound)

	got, err = s.Get(ctx, "u2", "7", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), got)
}

func TestFSStore(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestS3Store(t *testing.T) {
	fake := newFakeS3()
	exerciseStore(t, newS3Store(fake, "bucket", ""))

	for k := range fake.objects {
		assert.True(t, strings.HasPrefix(k, "uploads/u2/"), "unexpected key %s", k)
	}
}

func TestNewS3Store_BuildsClient(t *testing.T) {
	s, err := NewS3Store(context.Background(), S3Config{
		Region: "us-east-1", Bucket: "b", AccessKey: "a", SecretKey: "s",
		Endpoint: "http://127.0.0.1:9000",
	})
	require.NoError(t, err)
	assert.Equal(t, "b", s.bucket)
	assert.Equal(t, "uploads/", s.prefix)
}

func TestValidFileID(t *testing.T) {
	for _, id := range []string{"1", "42", "file-a.dcm", "A_b"} {
		assert.True(t, ValidFileID(id), id)
	}
	for _, id := range []string{"", ".", "..", "../x", "a/b", ".hidden", strings.Repeat("a", 200)} {
		assert.False(t, ValidFileID(id), id)
	}
}
