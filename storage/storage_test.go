package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullstorydev/quicksync/config"
)

func TestGetBucketAndKey(t *testing.T) {
	tests := []struct {
		bucket, obj     string
		wantBucket, key string
	}{
		{"dumps", "quicksync.bin.gz", "dumps", "quicksync.bin.gz"},
		{"dumps/", "quicksync.bin.gz", "dumps", "quicksync.bin.gz"},
		{"dumps/mainnet/daily", "quicksync.bin.gz", "dumps", "mainnet/daily/quicksync.bin.gz"},
		{"dumps//nested/", "x", "dumps", "nested/x"},
	}
	for _, tt := range tests {
		b, k := getBucketAndKey(tt.bucket, tt.obj)
		assert.Equal(t, tt.wantBucket, b, tt.bucket)
		assert.Equal(t, tt.key, k, tt.bucket)
	}
}

type fakeS3 struct {
	s3iface.S3API
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

type fakeObject struct {
	bytes.Buffer
	ctx    context.Context
	closed bool
	err    error
}

func (o *fakeObject) Close() error {
	o.closed = true
	if o.err != nil {
		return o.err
	}
	return o.ctx.Err()
}

type fakeGCS struct {
	bucket, key string
	obj         *fakeObject
}

func (f *fakeGCS) writer(ctx context.Context, bucket, key string) io.WriteCloser {
	f.bucket, f.key = bucket, key
	f.obj.ctx = ctx
	return f.obj
}

func writeDump(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quicksync.bin.gz")
	require.NoError(t, os.WriteFile(path, []byte("dump bytes"), 0o600))
	return path
}

func TestShipToS3(t *testing.T) {
	fake := &fakeS3{}
	st := &S3Storage{conf: config.S3Config{Bucket: "dumps/mainnet"}, svc: fake}

	where, err := Ship(context.Background(), st, writeDump(t))
	require.NoError(t, err)
	assert.Equal(t, "s3://dumps/mainnet/quicksync.bin.gz", where)
	assert.Equal(t, "dumps", aws.StringValue(fake.input.Bucket))
	assert.Equal(t, "mainnet/quicksync.bin.gz", aws.StringValue(fake.input.Key))
	assert.Equal(t, "dump bytes", string(fake.body))

	fake.err = assert.AnError
	_, err = Ship(context.Background(), st, writeDump(t))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestShipToGCS(t *testing.T) {
	fake := &fakeGCS{obj: &fakeObject{}}
	st := &GCSStorage{conf: config.GCSConfig{Bucket: "dumps/mainnet"}, newWriter: fake.writer}

	where, err := Ship(context.Background(), st, writeDump(t))
	require.NoError(t, err)
	assert.Equal(t, "gs://dumps/mainnet/quicksync.bin.gz", where)
	assert.Equal(t, "dumps", fake.bucket)
	assert.Equal(t, "mainnet/quicksync.bin.gz", fake.key)
	assert.Equal(t, "dump bytes", fake.obj.String())
	assert.True(t, fake.obj.closed)

	fake.obj = &fakeObject{err: assert.AnError}
	_, err = Ship(context.Background(), st, writeDump(t))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestShipToLocal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	st, err := New(context.Background(), config.StorageConfig{Provider: "local", Local: config.LocalConfig{SaveDir: dir}})
	require.NoError(t, err)

	where, err := Ship(context.Background(), st, writeDump(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "quicksync.bin.gz"), where)

	got, err := os.ReadFile(where)
	require.NoError(t, err)
	assert.Equal(t, "dump bytes", string(got))

	// Shipping into the directory the dump already lives in leaves it intact.
	path := writeDump(t)
	st, err = New(context.Background(), config.StorageConfig{Provider: "local", Local: config.LocalConfig{SaveDir: filepath.Dir(path)}})
	require.NoError(t, err)
	where, err = Ship(context.Background(), st, path)
	require.NoError(t, err)
	assert.Equal(t, path, where)

	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dump bytes", string(got))
}

func TestNew(t *testing.T) {
	st, err := New(context.Background(), config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = New(context.Background(), config.StorageConfig{Provider: "azure"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.StorageConfig{Provider: "gcs"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.StorageConfig{Provider: "s3"})
	assert.Error(t, err)

	_, err = NewLocalStorage(config.LocalConfig{}).Save(context.Background(), nil, "x")
	assert.Error(t, err)
}
