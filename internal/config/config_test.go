package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "xdg"))
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
	require.Equal(t, "stderr", cfg.Logging.Output)
	require.Equal(t, DefaultIdentity, cfg.Identity)
	require.Equal(t, filepath.Join(home, ".privfs", "keys"), cfg.KeyStore)
	require.Equal(t, "localfs", cfg.Store.Backend)
	require.Equal(t, filepath.Join(home, ".privfs", "blocks"), cfg.Store.Options["localfs-dir"])
	require.Equal(t, DefaultListen, cfg.Daemon.Listen)
	require.Equal(t, DefaultShutdownTimeout, cfg.Daemon.ShutdownTimeout)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "privfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
identity: alice
store:
  backend: badger
  options:
    badger-dir: /var/lib/privfs
    badger-sync: true
daemon:
  listen: 0.0.0.0:9000
  shutdown_timeout: 3s
`), 0o600))
	t.Setenv("PRIVFS_IDENTITY", "bob")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-format", "text", "")
	fs.String("listen", DefaultListen, "")
	require.NoError(t, fs.Parse([]string{"--log-format=text"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format, "explicit flag wins over the file")
	require.Equal(t, "bob", cfg.Identity, "environment wins over the file")
	require.Equal(t, "0.0.0.0:9000", cfg.Daemon.Listen, "unset flag does not override the file")
	require.Equal(t, 3*time.Second, cfg.Daemon.ShutdownTimeout)
	require.Equal(t, "badger", cfg.Store.Backend)
	require.Equal(t, "/var/lib/privfs", cfg.Store.Options["badger-dir"])
	require.Equal(t, "1", cfg.Store.Options["badger-sync"], "weakly typed decode")
	_, hasLocal := cfg.Store.Options["localfs-dir"]
	require.False(t, hasLocal)
}

func TestLoadRejectsInvalid(t *testing.T) {
	isolate(t)
	cases := map[string]string{
		"level":    "logging: {level: chatty}\n",
		"format":   "logging: {format: xml}\n",
		"identity": "identity: \"a/b\"\n",
		"listen":   "daemon: {listen: nowhere}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "privfs.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path, nil)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
}

func TestStoreOptionsFlagsOverride(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("localfs-dir", "", "")
	fs.String("identity", "", "")
	fs.String("s3-bucket", "", "")
	require.NoError(t, fs.Parse([]string{"--localfs-dir=/tmp/blocks", "--identity=alice"}))

	s := StoreConfig{Backend: "localfs", Options: map[string]string{"localfs-dir": "/srv/blocks", "other": "x"}}
	opts := s.options(fs)
	require.Equal(t, map[string]string{"localfs-dir": "/tmp/blocks", "other": "x"}, opts)
	require.Equal(t, "/srv/blocks", s.Options["localfs-dir"], "config is not mutated")
}
