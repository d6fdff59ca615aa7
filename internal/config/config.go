// Package config loads the settings shared by privfs and privfs-blockd.
//
// Sources, highest precedence first:
//  1. command-line flags that were set explicitly
//  2. environment variables (PRIVFS_*, e.g. PRIVFS_LOGGING_LEVEL)
//  3. the configuration file (YAML, TOML or JSON)
//  4. defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PRIVFS"

type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`

	// KeyStore is the directory holding identities and shares.
	KeyStore string `mapstructure:"keystore" validate:"required"`

	// Identity names the file system the CLI operates on.
	Identity string `mapstructure:"identity" validate:"required"`

	Store StoreConfig `mapstructure:"store"`

	Daemon DaemonConfig `mapstructure:"daemon"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=TRACE DEBUG INFO WARN WARNING ERROR"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// StoreConfig selects the block store. ConfigFile, when set, names a
// storeconfig file and takes over from Backend and Options.
type StoreConfig struct {
	ConfigFile string `mapstructure:"config_file"`
	Backend    string `mapstructure:"backend" validate:"required_without=ConfigFile"`
	// Preferred reorders a multi-backend config so writes go there first.
	Preferred string `mapstructure:"preferred"`
	// Options are backend options keyed like the backend's flags
	// (localfs-dir, s3-bucket, ...).
	Options map[string]string `mapstructure:"options"`
}

type DaemonConfig struct {
	Listen          string        `mapstructure:"listen" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// flagKeys maps configuration keys to the flag names that override them.
var flagKeys = map[string]string{
	"logging.level":           "log-level",
	"logging.format":          "log-format",
	"logging.output":          "log-output",
	"keystore":                "keystore",
	"identity":                "identity",
	"store.config_file":       "store-config",
	"store.backend":           "backend",
	"store.preferred":         "prefer",
	"daemon.listen":           "listen",
	"daemon.shutdown_timeout": "shutdown-timeout",
}

// ConfigFlag names the flag that points Load at a configuration file.
const ConfigFlag = "config"

func isConfigFlag(name string) bool {
	if name == ConfigFlag {
		return true
	}
	for _, n := range flagKeys {
		if n == name {
			return true
		}
	}
	return false
}

// Load reads configPath (or the default location when empty), the
// environment, and any flags in fs that map to configuration keys.
// fs may be nil.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)
	setDefaults(v)

	if fs != nil {
		for key, name := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("config: bind --%s: %w", name, err)
			}
		}
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("config: read: %w", err)
	}
	return nil
}

// ConfigDir is $XDG_CONFIG_HOME/privfs, falling back to ~/.config/privfs.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "privfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "privfs")
}
