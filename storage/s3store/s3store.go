// Package s3store keeps blocks as objects in an S3 (or S3-compatible) bucket.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/ipfs/go-cid"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
)

// Store maps every block to the object key <prefix><cid>.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ storage.BlockStore = (*Store)(nil)

type Config struct {
	Bucket          string `mapstructure:"s3-bucket" validate:"required"`
	Region          string `mapstructure:"s3-region" validate:"required"`
	Endpoint        string `mapstructure:"s3-endpoint"`
	KeyPrefix       string `mapstructure:"s3-prefix"`
	AccessKeyID     string `mapstructure:"s3-access-key-id"`
	SecretAccessKey string `mapstructure:"s3-secret-access-key"`
	MaxRetries      int    `mapstructure:"s3-max-retries"`
}

// NewClient builds an S3 client from cfg. A custom endpoint forces
// path-style addressing (MinIO, Localstack).
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3store: region is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	opts = append(opts, awsconfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3store: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// New verifies bucket access and returns a Store. The bucket must exist.
func New(ctx context.Context, client *s3.Client, bucket, prefix string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("s3store: client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3store: bucket is required")
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("s3store: access bucket %q: %w", bucket, err)
	}
	return &Store{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *Store) objectKey(id cid.Cid) string {
	return s.prefix + id.String()
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	// Content addressing makes rewrites harmless, but skip the upload when
	// the object is already there.
	ok, err := s.Has(ctx, id)
	if err != nil {
		return cid.Undef, err
	}
	if ok {
		return id, nil
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(id)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return cid.Undef, fmt.Errorf("s3store: put %s: %w", id, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("s3store: get %s: %w", id, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3store: read %s: %w", id, err)
	}
	if !cidutil.Verify(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3store: head %s: %w", id, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
