package config

import (
	"context"

	"github.com/spf13/pflag"

	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/registry"
	"xdao.co/privatefs/storage/storeconfig"
)

// Open opens the configured block store. Flags set explicitly in fs that
// are not configuration flags are taken as backend options and override the
// matching Options entries. Backends must be linked into the
// binary with blank imports.
func (s StoreConfig) Open(ctx context.Context, usage registry.Usage, fs *pflag.FlagSet) (storage.BlockStore, func() error, error) {
	if s.ConfigFile != "" {
		cfg, err := storeconfig.LoadFile(s.ConfigFile)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open(ctx, usage, s.Preferred)
	}
	return registry.OpenWithConfig(ctx, s.Backend, usage, s.options(fs))
}

func (s StoreConfig) options(fs *pflag.FlagSet) map[string]string {
	opts := make(map[string]string, len(s.Options))
	for k, v := range s.Options {
		opts[k] = v
	}
	if fs == nil {
		return opts
	}
	fs.VisitAll(func(f *pflag.Flag) {
		if !f.Changed || isConfigFlag(f.Name) {
			return
		}
		opts[f.Name] = f.Value.String()
	})
	return opts
}
