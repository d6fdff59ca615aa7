package s3store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/testkit"
)

// Runs against a live endpoint (MinIO, Localstack) only when
// PRIVFS_TEST_S3_ENDPOINT is set.
func TestS3Store_Conformance(t *testing.T) {
	endpoint := os.Getenv("PRIVFS_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("PRIVFS_TEST_S3_ENDPOINT not set")
	}
	ctx := context.Background()
	cfg := Config{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     envOr("PRIVFS_TEST_S3_ACCESS_KEY", "test"),
		SecretAccessKey: envOr("PRIVFS_TEST_S3_SECRET_KEY", "test"),
		MaxRetries:      3,
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	bucket := fmt.Sprintf("privfs-test-%d", time.Now().UnixNano())
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	n := 0
	testkit.RunStoreConformance(t, func(t *testing.T) storage.BlockStore {
		n++
		s, err := New(ctx, client, bucket, fmt.Sprintf("run-%d/", n))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), &s3.Client{}, "", ""); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
	if _, err := New(context.Background(), nil, "b", ""); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestOpen_ValidatesConfig(t *testing.T) {
	if _, _, err := open(context.Background(), Config{Region: "us-east-1"}); err == nil {
		t.Fatalf("expected validation error for missing bucket")
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
