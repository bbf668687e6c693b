package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	fs.Bool("sensor-mock", false, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestDefaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8089", cfg.Store.URL)
	assert.Equal(t, 30*time.Second, cfg.Store.Timeout)
	assert.Equal(t, filepath.Join(home, ".workout-session", "cache.db"), cfg.Cache.Path)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
	assert.Equal(t, 10*time.Second, cfg.Sensor.WatchdogTimeout)
	assert.Equal(t, 15*time.Second, cfg.Sensor.PickerTimeout)
	assert.False(t, cfg.Sensor.Mock)
	assert.Equal(t, ":8089", cfg.DevStore.Listen)
	assert.NoError(t, cfg.Validate())
}

func TestFileEnvAndFlagPrecedence(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  url: http://file:9000
  token: from-file
  timeout: 5s
cache:
  path: ~/data/cache.db
sensor:
  watchdog_timeout: 20s
  preferred_address: "AA:BB"
`), 0o600))

	t.Setenv("WORKOUT_STORE_TOKEN", "from-env")
	t.Setenv("WORKOUT_SENSOR_MOCK", "true")

	cfg, err := Load(newFlags(t, "--config", path, "--store-url", "http://flag:7000"))
	require.NoError(t, err)
	assert.Equal(t, "http://flag:7000", cfg.Store.URL)
	assert.Equal(t, "from-env", cfg.Store.Token)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Sensor.WatchdogTimeout)
	assert.Equal(t, "AA:BB", cfg.Sensor.PreferredAddress)
	assert.True(t, cfg.Sensor.Mock)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "data", "cache.db"), cfg.Cache.Path)
}

func TestExplicitConfigMustExist(t *testing.T) {
	isolateHome(t)
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestMalformedConfig(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".workout-session")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o600))

	_, err := Load(nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolateHome(t)
	base, err := Load(nil)
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing url", func(c *Config) { c.Store.URL = "" }, "store.url is required"},
		{"bad scheme", func(c *Config) { c.Store.URL = "ftp://host" }, "unsupported scheme"},
		{"no host", func(c *Config) { c.Store.URL = "http://" }, "missing host"},
		{"zero timeout", func(c *Config) { c.Store.Timeout = 0 }, "store.timeout"},
		{"no cache", func(c *Config) { c.Cache.Path = "" }, "cache.path"},
		{"negative rotation", func(c *Config) { c.Log.MaxBackups = -1 }, "log rotation"},
		{"zero watchdog", func(c *Config) { c.Sensor.WatchdogTimeout = 0 }, "sensor timeouts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *base
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
