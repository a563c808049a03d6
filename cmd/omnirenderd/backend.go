package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ericyan/omnirender"
	"github.com/ericyan/omnirender/gcast"
	"github.com/ericyan/omnirender/internal/config"
	"github.com/ericyan/omnirender/mpris"
	"github.com/ericyan/omnirender/pipeline"
)

// newBackend returns the configured backend. It returns a nil Backend for
// config.BackendNone.
func newBackend(ctx context.Context, cfg *config.Config) (omnirender.Backend, error) {
	switch cfg.Backend {
	case config.BackendMPRIS:
		b, err := mpris.NewBackend(cfg.MPRIS.Player, mpris.WithPollInterval(cfg.MPRIS.PollInterval))
		if err != nil {
			return nil, err
		}

		return b, nil
	case config.BackendCast:
		ctx, cancel := context.WithTimeout(ctx, cfg.Cast.DiscoveryTimeout)
		defer cancel()

		dev, err := gcast.Lookup(ctx, cfg.Cast.Device)
		if err != nil {
			return nil, err
		}
		log.Info().Stringer("device", dev).Msg("found Google Cast device")

		return gcast.NewBackend(dev, gcast.WithPollInterval(cfg.Cast.PollInterval)), nil
	default:
		return nil, nil
	}
}

func pipelineOptions(cfg *config.Config) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithLiveStreamDuration(cfg.Pipeline.LiveStreamDuration),
		pipeline.WithRetry(pipeline.RetryPolicy{
			Attempts:    cfg.Pipeline.Retry.Attempts,
			BaseBackoff: cfg.Pipeline.Retry.BaseBackoff,
			MaxBackoff:  cfg.Pipeline.Retry.MaxBackoff,
		}),
	}
	if c := cfg.Pipeline.Cache; c.Enabled {
		opts = append(opts, pipeline.WithCacheFallback(c.Dir, c.MaxBytes))
	}

	return opts
}
