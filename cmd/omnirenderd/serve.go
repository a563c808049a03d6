package main

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ericyan/omnirender/upnp"
	"github.com/ericyan/omnirender/upnp/av"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MediaRenderer",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// logSink reports play requests that no backend could serve.
type logSink struct{}

func (logSink) OnPlayRequested(uri string) {
	log.Warn().Str("uri", uri).Msg("play requested without a media backend")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}

	name := cfg.Name
	if backend != nil && cfg.Name == "omnirender" {
		name = backend.Name() + " (DLNA)"
	}

	r := av.NewMediaRenderer(name, backend,
		av.WithSink(logSink{}),
		av.WithAutoPlay(cfg.Renderer.AutoPlay),
		av.WithPollInterval(cfg.Renderer.PollInterval),
		av.WithEventInterval(cfg.Renderer.EventMinInterval),
		av.WithPipelineOptions(pipelineOptions(cfg)...),
	)
	r.Device().SubscriptionTimeout = cfg.Renderer.SubscriptionTimeout

	srv, err := upnp.NewServer(r.Device(), cfg.Addr())
	if err != nil {
		return err
	}

	log.Info().Str("name", name).Str("addr", cfg.Addr()).Str("backend", cfg.Backend).Msg("starting renderer")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Run(ctx) })
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("stopping server")
		return srv.Close()
	})

	return g.Wait()
}
