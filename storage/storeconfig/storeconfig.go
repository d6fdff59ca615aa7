// Package storeconfig opens one or more registered block store backends from
// a config file.
package storeconfig

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/registry"
)

// Config describes how to open one or more backends via the registry.
// Callers still need to link desired backend plugins via blank imports.
//
// WritePolicy values:
//   - "first" (default): write only to the first backend; reads fall back in order
//   - "all": write to all backends and require CID equality (see storage.ReplicatingStore)
//
// Example (YAML; JSON and TOML also work):
//
//	write_policy: all
//	backends:
//	  - name: localfs
//	    config: {localfs-dir: /var/lib/privfs/blocks}
//	  - name: s3
//	    id: offsite
//	    config: {s3-bucket: privfs, s3-region: eu-west-1}
type Config struct {
	WritePolicy string          `mapstructure:"write_policy" json:"write_policy,omitempty" validate:"omitempty,oneof=first all"`
	Backends    []BackendConfig `mapstructure:"backends" json:"backends" validate:"required,min=1,dive"`
}

type BackendConfig struct {
	// Name is the registry backend name to open (e.g. "grpc", "localfs", "badger").
	Name string `mapstructure:"name" json:"name" validate:"required"`
	// ID is an optional stable alias. If empty, Name is used.
	ID     string            `mapstructure:"id" json:"id,omitempty"`
	Config map[string]string `mapstructure:"config" json:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

var validate = validator.New()

// LoadFile reads a config file; the format follows the extension.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("storeconfig: empty config path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("storeconfig: read %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("storeconfig: decode %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("storeconfig: at least one backend is required")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("storeconfig: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		id := b.id()
		if _, ok := seen[id]; ok {
			return fmt.Errorf("storeconfig: duplicate backend id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Open opens a block store per config.
//
// If preferredBackend is non-empty, backends are reordered so preferredBackend
// is first (and thus used for writes when WritePolicy=="first").
func (c Config) Open(ctx context.Context, usage registry.Usage, preferredBackend string) (storage.BlockStore, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferredBackend != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferredBackend || ordered[i].ID == preferredBackend {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("storeconfig: preferred backend %q not found in config", preferredBackend)
		}
		if idx != 0 {
			b := ordered[idx]
			copy(ordered[1:idx+1], ordered[0:idx])
			ordered[0] = b
		}
	}

	named := make([]storage.NamedStore, 0, len(ordered))
	closers := make([]func() error, 0, len(ordered))
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, b := range ordered {
		st, closeFn, err := registry.OpenWithConfig(ctx, b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		named = append(named, storage.NamedStore{Name: b.id(), Store: st})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}

	switch c.WritePolicy {
	case "", "first":
		stores := make([]storage.BlockStore, 0, len(named))
		for _, n := range named {
			stores = append(stores, n.Store)
		}
		return storage.MultiStore{Stores: stores}, closeAll, nil
	case "all":
		return storage.ReplicatingStore{Backends: named}, closeAll, nil
	default:
		_ = closeAll()
		return nil, nil, fmt.Errorf("storeconfig: invalid write_policy %q", c.WritePolicy)
	}
}
