package localfs

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"

	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/registry"
)

var (
	flagLocalDir string
)

// Options are the config-map options accepted by the localfs backend.
type Options struct {
	Dir string `mapstructure:"localfs-dir"`
}

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "Local filesystem block store (directory)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagLocalDir, "localfs-dir", "", "LocalFS block directory (for --backend=localfs)")
		},
		Open: func(context.Context) (storage.BlockStore, func() error, error) {
			return open(Options{Dir: flagLocalDir})
		},
		OpenConfig: func(_ context.Context, cfg map[string]string) (storage.BlockStore, func() error, error) {
			var opts Options
			if err := mapstructure.WeakDecode(cfg, &opts); err != nil {
				return nil, nil, fmt.Errorf("localfs: decode config: %w", err)
			}
			return open(opts)
		},
	})
}

func open(opts Options) (storage.BlockStore, func() error, error) {
	if opts.Dir == "" {
		return nil, nil, fmt.Errorf("missing --localfs-dir")
	}
	s, err := New(opts.Dir)
	if err != nil {
		return nil, nil, err
	}
	return s, nil, nil
}
