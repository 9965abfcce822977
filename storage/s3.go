package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	"github.com/fullstorydev/quicksync/config"
)

const defaultS3Timeout = 5 * time.Minute

type S3Storage struct {
	conf config.S3Config
	svc  s3iface.S3API
}

// NewS3Storage returns an S3Storage that can be used to save dumps to an AWS
// S3 bucket. The bucket may carry a key prefix, as in "bucket/dumps".
func NewS3Storage(c config.S3Config) (*S3Storage, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3 storage needs a bucket")
	}
	sess, err := session.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "create aws session")
	}
	return &S3Storage{
		conf: c,
		svc:  s3.New(sess, aws.NewConfig().WithRegion(c.Region)),
	}, nil
}

func (ss *S3Storage) Save(ctx context.Context, src io.ReadSeeker, name string) (string, error) {
	timeout := ss.conf.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultS3Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bucketName, key := getBucketAndKey(ss.conf.Bucket, name)

	_, err := ss.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   src,
	})

	s3path := fmt.Sprintf("s3://%s/%s", bucketName, key)
	if err != nil {
		return s3path, errors.Wrapf(err, "upload %s", s3path)
	}
	return s3path, nil
}

func getBucketAndKey(bucketConfig, objName string) (string, string) {
	bucketParts := strings.Split(bucketConfig, "/")
	bucketName := bucketParts[0]
	keyPath := strings.Trim(strings.Join(bucketParts[1:], "/"), "/")
	key := strings.Trim(fmt.Sprintf("%s/%s", keyPath, objName), "/")

	return bucketName, key
}
