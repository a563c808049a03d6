package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix of environment variables overriding the config
// file.
const EnvPrefix = "OMNIRENDER_"

// applyEnvOverrides applies environment variable overrides to the config.
// Malformed values are ignored.
func applyEnvOverrides(cfg *Config) {
	cfg.Name = envString("NAME", cfg.Name)
	cfg.Host = envString("HOST", cfg.Host)
	cfg.Port = envInt("PORT", cfg.Port)
	cfg.Backend = envString("BACKEND", cfg.Backend)

	// MPRIS
	cfg.MPRIS.Player = envString("MPRIS_PLAYER", cfg.MPRIS.Player)

	// Cast
	cfg.Cast.Device = envString("CAST_DEVICE", cfg.Cast.Device)
	cfg.Cast.DiscoveryTimeout = envDuration("CAST_DISCOVERY_TIMEOUT", cfg.Cast.DiscoveryTimeout)

	// Renderer
	cfg.Renderer.AutoPlay = envBool("AUTOPLAY", cfg.Renderer.AutoPlay)
	cfg.Renderer.PollInterval = envDuration("POLL_INTERVAL", cfg.Renderer.PollInterval)
	cfg.Renderer.EventMinInterval = envDuration("EVENT_MIN_INTERVAL", cfg.Renderer.EventMinInterval)
	cfg.Renderer.SubscriptionTimeout = envDuration("SUBSCRIPTION_TIMEOUT", cfg.Renderer.SubscriptionTimeout)

	// Pipeline
	cfg.Pipeline.LiveStreamDuration = envDuration("LIVE_STREAM_DURATION", cfg.Pipeline.LiveStreamDuration)
	cfg.Pipeline.Retry.Attempts = envInt("RETRY_ATTEMPTS", cfg.Pipeline.Retry.Attempts)
	cfg.Pipeline.Cache.Enabled = envBool("CACHE_ENABLED", cfg.Pipeline.Cache.Enabled)
	cfg.Pipeline.Cache.Dir = envString("CACHE_DIR", cfg.Pipeline.Cache.Dir)

	// Log
	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envString("LOG_FORMAT", cfg.Log.Format)
}

func envString(key, fallback string) string {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true") || val == "1"
}

func envDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
