// Package av implements a UPnP MediaRenderer:1 device on top of a media
// pipeline.
//
// Spec: http://upnp.org/specs/av/UPnP-av-MediaRenderer-v1-Device.pdf
package av

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ericyan/omnirender"
	"github.com/ericyan/omnirender/pipeline"
	"github.com/ericyan/omnirender/upnp"
	"github.com/ericyan/omnirender/upnp/internal/lastchange"
	"github.com/ericyan/omnirender/upnp/internal/soap"
)

// Default timer intervals.
const (
	DefaultPollInterval  = time.Second
	DefaultEventInterval = lastchange.MinInterval
)

// ErrNotRunning is returned for actions submitted while the renderer's
// coordination loop is not running.
var ErrNotRunning = errors.New("av: renderer not running")

// A Sink is told about playback requests the renderer cannot serve
// itself because it has no media backend.
type Sink interface {
	OnPlayRequested(uri string)
}

// Option configures a MediaRenderer.
type Option func(*MediaRenderer)

// WithSink registers the sink consulted when there is no backend.
func WithSink(s Sink) Option {
	return func(r *MediaRenderer) {
		r.sink = s
	}
}

// WithAutoPlay makes SetAVTransportURI start playback right away.
func WithAutoPlay(enabled bool) Option {
	return func(r *MediaRenderer) {
		r.autoPlay = enabled
	}
}

// WithPollInterval sets how often the playback position is refreshed.
func WithPollInterval(d time.Duration) Option {
	return func(r *MediaRenderer) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithEventInterval sets the minimum time between LastChange events.
// Intervals below 200ms are raised to 200ms.
func WithEventInterval(d time.Duration) Option {
	return func(r *MediaRenderer) {
		if d < lastchange.MinInterval {
			d = lastchange.MinInterval
		}
		r.eventInterval = d
	}
}

// WithPipelineOptions configures the media pipeline.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(r *MediaRenderer) {
		r.pipeOpts = append(r.pipeOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *MediaRenderer) {
		r.log = l
	}
}

// A MediaRenderer holds the AVTransport and RenderingControl state of
// instance 0 and drives the media pipeline. State is only mutated by
// tasks running on the coordination loop started by Run; readers take
// the read lock.
type MediaRenderer struct {
	dev  *upnp.Device
	avt  *upnp.Service
	rcs  *upnp.Service
	cm   *upnp.Service
	pipe *pipeline.Adapter
	sink Sink
	log  zerolog.Logger

	autoPlay      bool
	pollInterval  time.Duration
	eventInterval time.Duration
	pipeOpts      []pipeline.Option

	mu        sync.RWMutex
	transport Transport
	rendering Rendering

	avtChanges *lastchange.Accumulator
	rcsChanges *lastchange.Accumulator

	tasks   chan func()
	started chan struct{}
	stopped chan struct{}
}

// NewMediaRenderer returns a MediaRenderer named name playing media with
// backend. backend may be nil, in which case play requests are passed to
// the Sink.
func NewMediaRenderer(name string, backend omnirender.Backend, opts ...Option) *MediaRenderer {
	r := &MediaRenderer{
		dev:           upnp.NewDevice(name, "MediaRenderer", 1),
		log:           log.With().Str("component", "renderer").Logger(),
		pollInterval:  DefaultPollInterval,
		eventInterval: DefaultEventInterval,
		transport:     newTransport(),
		rendering:     newRendering(),
		tasks:         make(chan func(), 64),
		started:       make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.avtChanges = lastchange.New(lastchange.NamespaceAVT, lastchange.WithInterval(r.eventInterval))
	r.rcsChanges = lastchange.New(lastchange.NamespaceRCS,
		lastchange.WithInterval(r.eventInterval),
		lastchange.WithChannel("Master", "Volume", "Mute"),
	)

	r.pipe = pipeline.New(backend, r.post, r.handleEvent,
		append([]pipeline.Option{pipeline.WithLogger(log.With().Str("component", "pipeline").Logger())}, r.pipeOpts...)...)
	r.pipe.SetVolume(r.rendering.level())

	r.avt = r.avTransport()
	r.rcs = r.renderingControl()
	r.cm = connectionManager()

	r.dev.RegisterService(r.avt)
	r.dev.RegisterService(r.rcs)
	r.dev.RegisterService(r.cm)

	return r
}

// Device returns the UPnP device serving the renderer.
func (r *MediaRenderer) Device() *upnp.Device {
	return r.dev
}

// Transport returns a copy of the current transport state.
func (r *MediaRenderer) Transport() Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.transport
}

// Rendering returns a copy of the current rendering control state.
func (r *MediaRenderer) Rendering() Rendering {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.rendering
}

// Run runs the coordination loop until ctx is done. The media pipeline
// is released before Run returns. Run must not be called more than once.
func (r *MediaRenderer) Run(ctx context.Context) error {
	select {
	case <-r.started:
		return errors.New("av: renderer already started")
	default:
	}
	close(r.started)
	defer close(r.stopped)

	poll := time.NewTicker(r.pollInterval)
	flush := time.NewTicker(r.eventInterval)

	r.log.Info().
		Str("udn", r.dev.UDN()).
		Dur("poll_interval", r.pollInterval).
		Dur("event_interval", r.eventInterval).
		Msg("renderer started")

	for {
		select {
		case task := <-r.tasks:
			task()
		case <-poll.C:
			r.poll()
		case <-flush.C:
			r.flush()
		case <-ctx.Done():
			poll.Stop()
			flush.Stop()
			r.pipe.Release()
			r.log.Info().Msg("renderer stopped")
			return nil
		}
	}
}

// post schedules f on the coordination loop. Tasks posted after the loop
// stopped are dropped.
func (r *MediaRenderer) post(f func()) {
	select {
	case r.tasks <- f:
	case <-r.stopped:
	}
}

// do runs f on the coordination loop and waits for it to complete.
func (r *MediaRenderer) do(ctx context.Context, f func()) error {
	select {
	case <-r.started:
	default:
		return ErrNotRunning
	}

	done := make(chan struct{})
	task := func() {
		f()
		close(done)
	}

	select {
	case r.tasks <- task:
	case <-r.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-r.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrNotRunning
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mutation returns an action handler that runs fn on the coordination
// loop after validating the InstanceID argument.
func (r *MediaRenderer) mutation(invalidID *soap.Error, fn upnp.ActionFunc) upnp.ActionFunc {
	return func(req *soap.Request, resp *soap.Response) {
		if !validInstance(req) {
			resp.Error = invalidID
			return
		}

		out := &soap.Response{Action: resp.Action}
		if err := r.do(req.Context(), func() { fn(req, out) }); err != nil {
			r.log.Warn().Err(err).Str("action", req.Action.Name).Msg("action not executed")
			resp.Error = soap.ErrActionFailed
			return
		}

		resp.Args = out.Args
		resp.Error = out.Error
	}
}

// query returns an action handler that runs fn directly after validating
// the InstanceID argument. fn must only read state under the read lock.
func query(invalidID *soap.Error, fn upnp.ActionFunc) upnp.ActionFunc {
	return func(req *soap.Request, resp *soap.Response) {
		if !validInstance(req) {
			resp.Error = invalidID
			return
		}

		fn(req, resp)
	}
}

func validInstance(req *soap.Request) bool {
	id, _ := req.Arg("InstanceID")
	return id == "0"
}

// poll refreshes the transport state from the pipeline.
func (r *MediaRenderer) poll() {
	if !r.pipe.Loaded() {
		return
	}

	state, wantPlay := r.pipe.State(), r.pipe.WantsPlay()
	pos, dur := r.pipe.Position(), r.pipe.Duration()

	r.updateTransport(func(t *Transport) {
		switch state {
		case omnirender.Playing:
			t.State = Playing
		case omnirender.Paused:
			t.State = PausedPlayback
		case omnirender.Stopped:
			t.State = Stopped
		case omnirender.Buffering:
			if wantPlay {
				t.State = Transitioning
			}
		}
		if dur > 0 {
			t.TrackDuration = dur
			t.MediaDuration = dur
		}
		if (state == omnirender.Playing || state == omnirender.Paused) && t.State != Stopped {
			t.setPosition(pos)
		}
	})
}

// flush publishes the accumulated changes of both services.
func (r *MediaRenderer) flush() {
	if payload, ok := r.avtChanges.Flush(); ok {
		r.avt.Publish(upnp.Property{Name: "LastChange", Value: string(payload)})
	}
	if payload, ok := r.rcsChanges.Flush(); ok {
		r.rcs.Publish(upnp.Property{Name: "LastChange", Value: string(payload)})
	}
}
