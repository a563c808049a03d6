package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// MinEventInterval is the lowest allowed EventMinInterval.
const MinEventInterval = 200 * time.Millisecond

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidConfig)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}

	switch c.Backend {
	case BackendMPRIS, BackendCast, BackendNone:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}

	if c.Renderer.PollInterval <= 0 {
		return fmt.Errorf("%w: renderer.poll_interval must be positive", ErrInvalidConfig)
	}
	if c.Renderer.EventMinInterval < MinEventInterval {
		return fmt.Errorf("%w: renderer.event_min_interval must be at least %s", ErrInvalidConfig, MinEventInterval)
	}
	if c.Renderer.SubscriptionTimeout <= 0 {
		return fmt.Errorf("%w: renderer.subscription_timeout must be positive", ErrInvalidConfig)
	}

	if c.Pipeline.LiveStreamDuration <= 0 {
		return fmt.Errorf("%w: pipeline.live_stream_duration must be positive", ErrInvalidConfig)
	}
	if r := c.Pipeline.Retry; r.Attempts < 1 || r.BaseBackoff < 0 || r.MaxBackoff < r.BaseBackoff {
		return fmt.Errorf("%w: pipeline.retry must have attempts >= 1 and 0 <= base_backoff <= max_backoff", ErrInvalidConfig)
	}
	if c.Pipeline.Cache.Enabled && c.Pipeline.Cache.Dir == "" {
		return fmt.Errorf("%w: pipeline.cache.dir must be set when the cache is enabled", ErrInvalidConfig)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalidConfig, c.Log.Format)
	}

	return nil
}
