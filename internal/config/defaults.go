package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultIdentity        = "default"
	DefaultBackend         = "localfs"
	DefaultListen          = "127.0.0.1:7777"
	DefaultShutdownTimeout = 10 * time.Second
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("keystore", "")
	v.SetDefault("identity", DefaultIdentity)
	v.SetDefault("store.config_file", "")
	v.SetDefault("store.backend", DefaultBackend)
	v.SetDefault("store.preferred", "")
	v.SetDefault("daemon.listen", DefaultListen)
	v.SetDefault("daemon.shutdown_timeout", DefaultShutdownTimeout)
}

// ApplyDefaults fills values that depend on the environment and normalizes
// the rest. It is safe to call on a Config built by hand.
func ApplyDefaults(cfg *Config) error {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if cfg.Identity == "" {
		cfg.Identity = DefaultIdentity
	}
	if cfg.Store.ConfigFile == "" && cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultBackend
	}
	localDir := cfg.Store.ConfigFile == "" && cfg.Store.Backend == "localfs" && cfg.Store.Options["localfs-dir"] == ""
	if cfg.KeyStore == "" || localDir {
		base, err := dataDir()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if cfg.KeyStore == "" {
			cfg.KeyStore = filepath.Join(base, "keys")
		}
		if localDir {
			if cfg.Store.Options == nil {
				cfg.Store.Options = map[string]string{}
			}
			cfg.Store.Options["localfs-dir"] = filepath.Join(base, "blocks")
		}
	}

	if cfg.Daemon.Listen == "" {
		cfg.Daemon.Listen = DefaultListen
	}
	if cfg.Daemon.ShutdownTimeout == 0 {
		cfg.Daemon.ShutdownTimeout = DefaultShutdownTimeout
	}
	return nil
}

// dataDir is ~/.privfs.
func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".privfs"), nil
}
