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

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "omnirender", cfg.Name)
	assert.Equal(t, 2278, cfg.Port)
	assert.Equal(t, BackendMPRIS, cfg.Backend)
	assert.Equal(t, time.Second, cfg.Renderer.PollInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.Renderer.EventMinInterval)
	assert.Equal(t, 1800*time.Second, cfg.Renderer.SubscriptionTimeout)
	assert.False(t, cfg.Renderer.AutoPlay)
	assert.Equal(t, time.Hour, cfg.Pipeline.LiveStreamDuration)
	assert.Equal(t, RetryConfig{3, 500 * time.Millisecond, 2 * time.Second}, cfg.Pipeline.Retry)
	assert.False(t, cfg.Pipeline.Cache.Enabled)
	assert.Equal(t, filepath.Join(os.TempDir(), "omnirender"), cfg.Pipeline.Cache.Dir)
	assert.Equal(t, "info", cfg.Log.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
name: Living Room
port: 8080
backend: gcast
cast:
  device: Kitchen speaker
renderer:
  autoplay: true
  event_min_interval: 500ms
pipeline:
  retry:
    attempts: 5
  cache:
    enabled: true
    dir: /var/cache/omnirender
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Living Room", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, BackendCast, cfg.Backend)
	assert.Equal(t, "Kitchen speaker", cfg.Cast.Device)
	assert.True(t, cfg.Renderer.AutoPlay)
	assert.Equal(t, 500*time.Millisecond, cfg.Renderer.EventMinInterval)
	assert.Equal(t, 5, cfg.Pipeline.Retry.Attempts)
	assert.True(t, cfg.Pipeline.Cache.Enabled)
	assert.Equal(t, "/var/cache/omnirender", cfg.Pipeline.Cache.Dir)

	// Unset values keep their defaults.
	assert.Equal(t, time.Second, cfg.Renderer.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.Retry.BaseBackoff)

	require.NoError(t, cfg.Validate())
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Name, cfg.Name)
}

func TestLoadUnknownField(t *testing.T) {
	_, err := Load(writeConfig(t, "nmae: typo\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPrecedence(t *testing.T) {
	path := writeConfig(t, `
name: from-file
port: 8080
backend: none
log:
  level: warn
`)

	t.Setenv("OMNIRENDER_NAME", "from-env")
	t.Setenv("OMNIRENDER_PORT", "9090")
	t.Setenv("OMNIRENDER_POLL_INTERVAL", "2s")
	t.Setenv("OMNIRENDER_AUTOPLAY", "true")
	t.Setenv("OMNIRENDER_RETRY_ATTEMPTS", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, BackendNone, cfg.Backend)
	assert.Equal(t, 2*time.Second, cfg.Renderer.PollInterval)
	assert.True(t, cfg.Renderer.AutoPlay)
	assert.Equal(t, 3, cfg.Pipeline.Retry.Attempts)
	assert.Equal(t, "warn", cfg.Log.Level)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--name", "from-flag", "-b", "mpris", "--log-level=debug"}))
	require.NoError(t, cfg.ApplyFlags(fs))

	assert.Equal(t, "from-flag", cfg.Name)
	assert.Equal(t, BackendMPRIS, cfg.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Flags left at their defaults do not override.
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Renderer.AutoPlay)

	assert.Equal(t, cfg.Host+":9090", cfg.Addr())
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"empty name":        func(c *Config) { c.Name = "" },
		"port":              func(c *Config) { c.Port = 70000 },
		"backend":           func(c *Config) { c.Backend = "alsa" },
		"poll interval":     func(c *Config) { c.Renderer.PollInterval = 0 },
		"event interval":    func(c *Config) { c.Renderer.EventMinInterval = 100 * time.Millisecond },
		"subscription":      func(c *Config) { c.Renderer.SubscriptionTimeout = 0 },
		"live duration":     func(c *Config) { c.Pipeline.LiveStreamDuration = 0 },
		"retry attempts":    func(c *Config) { c.Pipeline.Retry.Attempts = 0 },
		"retry backoff":     func(c *Config) { c.Pipeline.Retry.MaxBackoff = time.Millisecond },
		"cache without dir": func(c *Config) { c.Pipeline.Cache = CacheConfig{Enabled: true} },
		"log level":         func(c *Config) { c.Log.Level = "loud" },
		"log format":        func(c *Config) { c.Log.Format = "xml" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
