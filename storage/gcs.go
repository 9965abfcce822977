package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"

	"github.com/fullstorydev/quicksync/config"
)

const defaultGCSTimeout = 5 * time.Minute

// objectWriter opens a writer for one object. Cancelling ctx before Close
// abandons the upload.
type objectWriter func(ctx context.Context, bucket, key string) io.WriteCloser

type GCSStorage struct {
	conf      config.GCSConfig
	newWriter objectWriter
}

// NewGCSStorage returns a GCSStorage that saves dumps to a Google Cloud
// Storage bucket using application default credentials. As with S3 the
// bucket may carry a key prefix.
func NewGCSStorage(ctx context.Context, c config.GCSConfig) (*GCSStorage, error) {
	if c.Bucket == "" {
		return nil, errors.New("gcs storage needs a bucket")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "create gcs client")
	}
	return &GCSStorage{
		conf: c,
		newWriter: func(ctx context.Context, bucket, key string) io.WriteCloser {
			return client.Bucket(bucket).Object(key).NewWriter(ctx)
		},
	}, nil
}

func (gs *GCSStorage) Save(ctx context.Context, src io.ReadSeeker, name string) (string, error) {
	timeout := gs.conf.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultGCSTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bucketName, key := getBucketAndKey(gs.conf.Bucket, name)
	gspath := fmt.Sprintf("gs://%s/%s", bucketName, key)

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return gspath, err
	}
	w := gs.newWriter(ctx, bucketName, key)
	if _, err := io.Copy(w, src); err != nil {
		cancel()
		_ = w.Close()
		return gspath, errors.Wrapf(err, "upload %s", gspath)
	}
	if err := w.Close(); err != nil {
		return gspath, errors.Wrapf(err, "upload %s", gspath)
	}
	return gspath, nil
}
