package ipfs

import (
	"context"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"

	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/registry"
)

var (
	flagBin  string
	flagPath string
	flagPin  bool
)

// Config holds the config-map options accepted by the ipfs backend.
type Config struct {
	Bin  string `mapstructure:"ipfs-bin"`
	Path string `mapstructure:"ipfs-path"`
	Pin  bool   `mapstructure:"pin"`
}

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI (offline)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagPath, "ipfs-path", "", "IPFS_PATH of the repo to use (for --backend=ipfs)")
			fs.BoolVar(&flagPin, "pin", false, "Pin blocks on put (for --backend=ipfs)")
		},
		Open: func(context.Context) (storage.BlockStore, func() error, error) {
			return open(Config{Bin: flagBin, Path: flagPath, Pin: flagPin})
		},
		OpenConfig: func(_ context.Context, m map[string]string) (storage.BlockStore, func() error, error) {
			var cfg Config
			if err := mapstructure.WeakDecode(m, &cfg); err != nil {
				return nil, nil, fmt.Errorf("ipfs: decode config: %w", err)
			}
			return open(cfg)
		},
	})
}

func open(cfg Config) (storage.BlockStore, func() error, error) {
	opts := Options{Bin: cfg.Bin, Pin: cfg.Pin}
	if cfg.Path != "" {
		opts.Env = append(os.Environ(), "IPFS_PATH="+cfg.Path)
	}
	return New(opts), nil, nil
}
