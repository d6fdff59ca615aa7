package s3store

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"

	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/registry"
)

var flags Config

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "s3",
		Description: "S3 or S3-compatible object storage",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flags.Bucket, "s3-bucket", "", "Bucket name (for --backend=s3)")
			fs.StringVar(&flags.Region, "s3-region", "us-east-1", "Region (for --backend=s3)")
			fs.StringVar(&flags.Endpoint, "s3-endpoint", "", "Custom endpoint URL, e.g. MinIO (for --backend=s3)")
			fs.StringVar(&flags.KeyPrefix, "s3-prefix", "", "Object key prefix (for --backend=s3)")
			fs.IntVar(&flags.MaxRetries, "s3-max-retries", 0, "Max attempts per request; 0 means 10 (for --backend=s3)")
		},
		Open: func(ctx context.Context) (storage.BlockStore, func() error, error) {
			return open(ctx, flags)
		},
		OpenConfig: func(ctx context.Context, m map[string]string) (storage.BlockStore, func() error, error) {
			cfg := Config{Region: "us-east-1"}
			if err := mapstructure.WeakDecode(m, &cfg); err != nil {
				return nil, nil, fmt.Errorf("s3: decode config: %w", err)
			}
			return open(ctx, cfg)
		},
	})
}

func open(ctx context.Context, cfg Config) (storage.BlockStore, func() error, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, nil, fmt.Errorf("s3: invalid config: %w", err)
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	s, err := New(ctx, client, cfg.Bucket, cfg.KeyPrefix)
	if err != nil {
		return nil, nil, err
	}
	return s, nil, nil
}
