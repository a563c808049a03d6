package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ericyan/omnirender"
	"github.com/ericyan/omnirender/pipeline"
)

var playCmd = &cobra.Command{
	Use:   "play URL",
	Short: "Play a media URL on the configured backend and exit when done",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	media, err := url.ParseRequestURI(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	if backend == nil {
		return errors.New("play requires a media backend")
	}

	tasks := make(chan func(), 16)
	post := func(f func()) {
		select {
		case tasks <- f:
		case <-ctx.Done():
		}
	}

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	handle := func(ev omnirender.Event) {
		switch ev.Type {
		case omnirender.EventPrepared:
			log.Info().Dur("duration", ev.Duration).Msg("media prepared")
		case omnirender.EventStateChanged:
			log.Info().Stringer("state", ev.State).Msg("playback state changed")
		case omnirender.EventCompleted:
			finish(nil)
		case omnirender.EventError:
			finish(ev.Err)
		}
	}

	pipe := pipeline.New(backend, post, handle, pipelineOptions(cfg)...)
	defer pipe.Release()

	if err := pipe.Load(media, nil); err != nil {
		return err
	}
	if err := pipe.Play(); err != nil {
		return err
	}

	log.Info().Str("media", media.String()).Str("device", backend.Name()).Msg("playing")

	for {
		select {
		case task := <-tasks:
			task()
		case err := <-done:
			if err != nil {
				return fmt.Errorf("playback failed: %w", err)
			}
			return nil
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}
