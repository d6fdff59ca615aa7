package badgerstore

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"

	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/registry"
)

var (
	flagDir  string
	flagSync bool
)

type Config struct {
	Dir        string `mapstructure:"badger-dir"`
	SyncWrites bool   `mapstructure:"badger-sync"`
}

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "badger",
		Description: "Embedded BadgerDB block store",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagDir, "badger-dir", "", "Badger database directory (for --backend=badger)")
			fs.BoolVar(&flagSync, "badger-sync", false, "fsync every write (for --backend=badger)")
		},
		Open: func(context.Context) (storage.BlockStore, func() error, error) {
			return open(Config{Dir: flagDir, SyncWrites: flagSync})
		},
		OpenConfig: func(_ context.Context, m map[string]string) (storage.BlockStore, func() error, error) {
			var cfg Config
			if err := mapstructure.WeakDecode(m, &cfg); err != nil {
				return nil, nil, fmt.Errorf("badger: decode config: %w", err)
			}
			return open(cfg)
		},
	})
}

func open(cfg Config) (storage.BlockStore, func() error, error) {
	if cfg.Dir == "" {
		return nil, nil, fmt.Errorf("missing --badger-dir")
	}
	s, err := Open(Options{Dir: cfg.Dir, SyncWrites: cfg.SyncWrites})
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}
