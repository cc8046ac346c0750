// Package config reads the daemon configuration. User settings such as the
// naming scheme and key bindings are not part of it, they live in a settings
// store.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreYAML  = "yaml"
	StoreRedis = "redis"
)

// Config of the capture daemon.
type Config struct {
	Backend   string        `yaml:"backend"`    // imagesnap, ffmpeg, gstreamer or gocv; empty selects by OS
	Device    string        `yaml:"device"`     // Device ID to prefer over the stored choice
	Interval  time.Duration `yaml:"interval"`   // Preview interval of subprocess backends
	VideoSize string        `yaml:"video_size"` // ffmpeg capture size
	TempDir   string        `yaml:"temp_dir"`   // Parent of the temporary recordings directory
	Verbose   bool          `yaml:"verbose"`    // Backend diagnostics

	Store        string `yaml:"store"`
	SettingsFile string `yaml:"settings_file"`
	RedisAddr    string `yaml:"redis_address"`
	RedisDB      int    `yaml:"redis_db"`

	Listen       string        `yaml:"listen"`
	LogLevel     string        `yaml:"log_level"`
	Dev          bool          `yaml:"dev"`
	PollInterval time.Duration `yaml:"poll_interval"` // Device polling where /dev cannot be watched
}

// Default returns the configuration written to a new config file.
func Default() Config {
	return Config{
		Interval:     100 * time.Millisecond,
		Store:        StoreYAML,
		RedisAddr:    "127.0.0.1:6379",
		Listen:       "127.0.0.1:8765",
		LogLevel:     "info",
		PollInterval: 2 * time.Second,
	}
}

// DefaultPath returns the path of the config file in the user's config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mucapture", "config.yaml"), nil
}

// Load reads the config file at path. When it does not exist, a default file
// is created. Missing values get their default, a missing settings file is
// placed next to the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		c := Default()
		if err := Save(path, &c); err != nil {
			return nil, fmt.Errorf("creating default config file: %w", err)
		}
		c.fill(path)
		return &c, nil
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	c.fill(path)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) fill(path string) {
	d := Default()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Store == "" {
		c.Store = d.Store
	}
	if c.SettingsFile == "" {
		c.SettingsFile = filepath.Join(filepath.Dir(path), "settings.yaml")
	}
	if c.RedisAddr == "" {
		c.RedisAddr = d.RedisAddr
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreYAML, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q, expected %q or %q", c.Store, StoreYAML, StoreRedis)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("redis_db must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Save writes c to path, creating the directory.
func Save(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Overrides holds values from command-line flags. Nil and empty values do not
// override.
type Overrides struct {
	Backend   *string
	Device    *string
	Interval  *time.Duration
	VideoSize *string
	TempDir   *string
	Verbose   *bool
	Store     *string
	RedisAddr *string
	Listen    *string
	LogLevel  *string
	Dev       *bool
}

// Override applies o to c.
func (c *Config) Override(o Overrides) {
	setString(&c.Backend, o.Backend)
	setString(&c.Device, o.Device)
	setString(&c.VideoSize, o.VideoSize)
	setString(&c.TempDir, o.TempDir)
	setString(&c.Store, o.Store)
	setString(&c.RedisAddr, o.RedisAddr)
	setString(&c.Listen, o.Listen)
	setString(&c.LogLevel, o.LogLevel)
	if o.Interval != nil && *o.Interval > 0 {
		c.Interval = *o.Interval
	}
	if o.Verbose != nil && *o.Verbose {
		c.Verbose = true
	}
	if o.Dev != nil && *o.Dev {
		c.Dev = true
	}
}

func setString(dst, src *string) {
	if src != nil && *src != "" {
		*dst = *src
	}
}
