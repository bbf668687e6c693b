// Package config loads settings from flags, WORKOUT_* environment variables
// and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "WORKOUT"

type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
	Sensor   SensorConfig   `mapstructure:"sensor"`
	DevStore DevStoreConfig `mapstructure:"devstore"`
}

type StoreConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type SensorConfig struct {
	Mock             bool          `mapstructure:"mock"`
	MockControl      string        `mapstructure:"mock_control"`
	PickerTimeout    time.Duration `mapstructure:"picker_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	WatchdogTimeout  time.Duration `mapstructure:"watchdog_timeout"`
	PreferredAddress string        `mapstructure:"preferred_address"`
}

type DevStoreConfig struct {
	Listen string `mapstructure:"listen"`
	Seed   string `mapstructure:"seed"`
	Token  string `mapstructure:"token"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"store-url":             "store.url",
	"store-token":           "store.token",
	"store-timeout":         "store.timeout",
	"cache-path":            "cache.path",
	"log-file":              "log.file",
	"sensor-mock":           "sensor.mock",
	"sensor-mock-control":   "sensor.mock_control",
	"sensor-picker-timeout": "sensor.picker_timeout",
	"sensor-address":        "sensor.preferred_address",
	"listen":                "devstore.listen",
	"seed":                  "devstore.seed",
}

func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".workout-session"
	}
	return filepath.Join(home, ".workout-session")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	dir := DefaultDir()
	v.SetDefault("store.url", "http://localhost:8089")
	v.SetDefault("store.token", "")
	v.SetDefault("store.timeout", 30*time.Second)
	v.SetDefault("cache.path", filepath.Join(dir, "cache.db"))
	v.SetDefault("log.file", filepath.Join(dir, "workout-session.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("sensor.mock", false)
	v.SetDefault("sensor.mock_control", "")
	v.SetDefault("sensor.picker_timeout", 15*time.Second)
	v.SetDefault("sensor.connect_timeout", 10*time.Second)
	v.SetDefault("sensor.watchdog_timeout", 10*time.Second)
	v.SetDefault("sensor.preferred_address", "")
	v.SetDefault("devstore.listen", ":8089")
	v.SetDefault("devstore.seed", "")
	v.SetDefault("devstore.token", "")
}

// RegisterFlags adds the shared persistent flags. Commands may add more from
// flagKeys on their own flag sets.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default "+DefaultConfigPath()+")")
	fs.String("store-url", "", "base URL of the session store")
	fs.String("store-token", "", "bearer token for the session store")
	fs.Duration("store-timeout", 0, "per-request timeout")
	fs.String("cache-path", "", "local cache database")
	fs.String("log-file", "", "log file")
}

// Load reads configuration. fs may be nil. An explicitly named config file
// must exist; the default one is optional.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := DefaultConfigPath()
	explicit := false
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			path = f.Value.String()
			explicit = true
		}
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Cache.Path = expandHome(cfg.Cache.Path)
	cfg.Log.File = expandHome(cfg.Log.File)
	cfg.DevStore.Seed = expandHome(cfg.DevStore.Seed)
	return &cfg, nil
}

// Validate checks the settings a session run needs.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Store.URL)
	switch {
	case c.Store.URL == "":
		errs = append(errs, errors.New("store.url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("store.url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("store.url: unsupported scheme %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("store.url: missing host"))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("store.timeout must be positive"))
	}
	if c.Cache.Path == "" {
		errs = append(errs, errors.New("cache.path is required"))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log rotation settings cannot be negative"))
	}
	if c.Sensor.PickerTimeout <= 0 || c.Sensor.ConnectTimeout <= 0 || c.Sensor.WatchdogTimeout <= 0 {
		errs = append(errs, errors.New("sensor timeouts must be positive"))
	}
	return errors.Join(errs...)
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
