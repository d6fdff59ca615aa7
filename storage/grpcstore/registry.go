package grpcstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"

	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/registry"
)

var (
	flagTarget      string
	flagDialTimeout time.Duration
	flagTimeout     time.Duration
	flagMaxMsgBytes int
)

// Config holds the config-map options accepted by the grpc backend.
type Config struct {
	Target      string        `mapstructure:"grpc-target"`
	DialTimeout time.Duration `mapstructure:"grpc-dial-timeout"`
	Timeout     time.Duration `mapstructure:"grpc-timeout"`
	MaxMsgBytes int           `mapstructure:"grpc-max-msg-bytes"`
}

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "grpc",
		Description: "gRPC block store client (talks to privfs-blockd)",
		Usage:       registry.UsageCLI,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagTarget, "grpc-target", "", "gRPC target host:port (for --backend=grpc)")
			fs.DurationVar(&flagDialTimeout, "grpc-dial-timeout", 5*time.Second, "Dial timeout (for --backend=grpc)")
			fs.DurationVar(&flagTimeout, "grpc-timeout", 0, "Per-RPC timeout (for --backend=grpc)")
			fs.IntVar(&flagMaxMsgBytes, "grpc-max-msg-bytes", 0, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")
		},
		Open: func(ctx context.Context) (storage.BlockStore, func() error, error) {
			return open(ctx, Config{Target: flagTarget, DialTimeout: flagDialTimeout, Timeout: flagTimeout, MaxMsgBytes: flagMaxMsgBytes})
		},
		OpenConfig: func(ctx context.Context, m map[string]string) (storage.BlockStore, func() error, error) {
			cfg := Config{DialTimeout: 5 * time.Second}
			dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				WeaklyTypedInput: true,
				DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
				Result:           &cfg,
			})
			if err != nil {
				return nil, nil, err
			}
			if err := dec.Decode(m); err != nil {
				return nil, nil, fmt.Errorf("grpc: decode config: %w", err)
			}
			return open(ctx, cfg)
		},
	})
}

func open(ctx context.Context, cfg Config) (storage.BlockStore, func() error, error) {
	target := strings.TrimSpace(cfg.Target)
	if target == "" {
		return nil, nil, fmt.Errorf("missing --grpc-target")
	}
	client, err := Dial(ctx, target, DialOptions{Timeout: cfg.DialTimeout, MaxMsgBytes: cfg.MaxMsgBytes})
	if err != nil {
		return nil, nil, err
	}
	client.Timeout = cfg.Timeout
	return client, client.Close, nil
}
