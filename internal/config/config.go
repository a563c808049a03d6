// Package config loads the omnirenderd configuration from a YAML file,
// environment variables and command line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the renderer configuration.
type Config struct {
	Name    string `yaml:"name"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Backend string `yaml:"backend"`

	MPRIS    MPRISConfig    `yaml:"mpris"`
	Cast     CastConfig     `yaml:"cast"`
	Renderer RendererConfig `yaml:"renderer"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
}

// MPRISConfig configures the MPRIS backend.
type MPRISConfig struct {
	// Player is the D-Bus name of the player, e.g.
	// org.mpris.MediaPlayer2.mpv. The first player found is used if empty.
	Player       string        `yaml:"player"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// CastConfig configures the Google Cast backend.
type CastConfig struct {
	// Device is the friendly name of the Cast device. The first audio
	// capable device found is used if empty.
	Device           string        `yaml:"device"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
}

// RendererConfig configures the UPnP MediaRenderer.
type RendererConfig struct {
	AutoPlay            bool          `yaml:"autoplay"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	EventMinInterval    time.Duration `yaml:"event_min_interval"`
	SubscriptionTimeout time.Duration `yaml:"subscription_timeout"`
}

// PipelineConfig configures the media pipeline adapter.
type PipelineConfig struct {
	LiveStreamDuration time.Duration `yaml:"live_stream_duration"`
	Retry              RetryConfig   `yaml:"retry"`
	Cache              CacheConfig   `yaml:"cache"`
}

// RetryConfig is the retry policy for opening media.
type RetryConfig struct {
	Attempts    int           `yaml:"attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// CacheConfig configures the download-then-play fallback.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`

	// Format is either "console" or "json". The console format is used
	// when stderr is a terminal if empty.
	Format string `yaml:"format"`
}

// Load returns the configuration from the file at path, or from the
// first config file found in the standard locations if path is empty,
// with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: %s: %w", path, err)
	}

	return nil
}

// findConfigFile returns the first existing config file path.
// Search order: $XDG_CONFIG_HOME/omnirender/config.yaml,
// ~/.config/omnirender/config.yaml, /etc/omnirender/config.yaml
func findConfigFile() string {
	var paths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "omnirender", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "omnirender", "config.yaml"))
	}
	paths = append(paths, "/etc/omnirender/config.yaml")

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
