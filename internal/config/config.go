// Package config loads the user configuration of go-coro-inspect.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
)

const (
	DefaultHomeDir    = "~/.go-coro-inspect"
	DefaultConfigFile = DefaultHomeDir + "/config.yaml"
	DefaultLogFile    = DefaultHomeDir + "/logs/app.log"
	DefaultCacheDir   = DefaultHomeDir + "/cache"
	DefaultBabeltrace = "babeltrace"
)

var (
	ValidReaders = []string{"auto", "babeltrace", "jsonl"}
	ValidOutputs = []string{"text", "json", "chrome", "summary"}
	validFormats = []string{"text", "json"}
)

// Config holds the settings shared by every command.
type Config struct {
	// Beacon event name fed to the reconstructor.
	Event string `yaml:"event"`

	Reader     string `yaml:"reader"`
	Babeltrace string `yaml:"babeltrace"`
	Output     string `yaml:"output"`
	// Row order of the summary output, e.g. "count" or "name:desc".
	Sort string `yaml:"sort"`

	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Watch   WatchConfig   `yaml:"watch"`
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"` // text, json
}

type WatchConfig struct {
	// Debounce delay, Go duration syntax.
	Debounce string `yaml:"debounce"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Event:      model.DefaultBeaconEvent,
		Reader:     "auto",
		Babeltrace: DefaultBabeltrace,
		Output:     "text",
		Sort:       "total",
		Cache: CacheConfig{
			Enabled: true,
			Dir:     DefaultCacheDir,
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   DefaultLogFile,
			Format: "text",
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
	}
}

// Load reads the YAML file at path on top of the defaults. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.expandPaths()
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if bin := os.Getenv("CORO_INSPECT_BABELTRACE"); bin != "" {
		c.Babeltrace = bin
	}
	if event := os.Getenv("CORO_INSPECT_EVENT"); event != "" {
		c.Event = event
	}
}

func (c *Config) expandPaths() {
	c.Cache.Dir = ExpandPath(c.Cache.Dir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// Validate checks enum-like fields.
func (c *Config) Validate() error {
	if c.Event == "" {
		return fmt.Errorf("beacon event name must not be empty")
	}
	if !contains(ValidReaders, c.Reader) {
		return fmt.Errorf("invalid reader: %s (valid: %v)", c.Reader, ValidReaders)
	}
	if !contains(ValidOutputs, c.Output) {
		return fmt.Errorf("invalid output format: %s (valid: %v)", c.Output, ValidOutputs)
	}
	if !contains(validFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, validFormats)
	}
	if _, err := c.DebounceDuration(); err != nil {
		return err
	}
	return nil
}

// DebounceDuration parses the watch debounce delay.
func (c *Config) DebounceDuration() (time.Duration, error) {
	if c.Watch.Debounce == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 0, fmt.Errorf("invalid watch debounce %q: %w", c.Watch.Debounce, err)
	}
	return d, nil
}

// ExpandPath resolves a leading ~/ and makes the path absolute.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
