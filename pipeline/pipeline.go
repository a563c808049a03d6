// Package pipeline drives media players on behalf of a renderer. All
// methods of Adapter must be called from the single goroutine that runs
// the functions passed to the post callback; player events are marshaled
// onto that goroutine as well.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ericyan/omnirender"
)

// DefaultLiveStreamDuration is reported for media without a known
// duration.
const DefaultLiveStreamDuration = time.Hour

// Errors returned by the Adapter.
var (
	ErrNoBackend = errors.New("pipeline: no backend")
	ErrNoMedia   = errors.New("pipeline: no media loaded")
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithRetry sets the policy for opening media.
func WithRetry(p RetryPolicy) Option {
	return func(a *Adapter) {
		a.retry = p
	}
}

// WithLiveStreamDuration sets the duration reported for media without a
// known duration.
func WithLiveStreamDuration(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.live = d
		}
	}
}

// WithCacheFallback enables downloading media into dir when all attempts
// to stream it failed. Cached files are deleted when the media is
// released.
func WithCacheFallback(dir string, maxBytes int64) Option {
	return func(a *Adapter) {
		a.cache = newCache(dir, maxBytes)
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Adapter) {
		a.log = l
	}
}

// An Adapter owns at most one media player at a time and translates
// renderer commands into player calls.
type Adapter struct {
	backend omnirender.Backend
	post    func(func())
	handle  func(omnirender.Event)

	retry RetryPolicy
	live  time.Duration
	cache *cache
	log   zerolog.Logger

	gen        uint64
	player     omnirender.MediaPlayer
	cancel     context.CancelFunc
	media      *url.URL
	cacheFiles []string

	state    omnirender.PlaybackState
	position time.Duration
	duration time.Duration

	wantPlay    bool
	pendingSeek *time.Duration
	volume      *float64
}

// New returns an Adapter for backend. post must run the given function
// on the coordination goroutine; handle receives the events of the
// current player on that goroutine. backend may be nil, in which case
// Load fails with ErrNoBackend.
func New(backend omnirender.Backend, post func(func()), handle func(omnirender.Event), opts ...Option) *Adapter {
	a := &Adapter{
		backend: backend,
		post:    post,
		handle:  handle,
		retry:   DefaultRetryPolicy,
		live:    DefaultLiveStreamDuration,
		log:     log.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Available reports whether the adapter has a backend to play media with.
func (a *Adapter) Available() bool {
	return a.backend != nil
}

// Loaded reports whether media has been loaded, whether or not its
// player is open yet.
func (a *Adapter) Loaded() bool {
	return a.media != nil
}

// Ready reports whether the player of the loaded media is open.
func (a *Adapter) Ready() bool {
	return a.player != nil
}

// WantsPlay reports whether playback was requested and not paused or
// stopped since.
func (a *Adapter) WantsPlay() bool {
	return a.wantPlay
}

// Media returns the loaded media, if any.
func (a *Adapter) Media() *url.URL {
	return a.media
}

// State returns the last known playback state.
func (a *Adapter) State() omnirender.PlaybackState {
	return a.state
}

// Position returns the last known playback position.
func (a *Adapter) Position() time.Duration {
	return a.position
}

// Duration returns the duration of the loaded media, or zero if it is not
// known yet.
func (a *Adapter) Duration() time.Duration {
	return a.duration
}

// Load releases the current player and starts opening media with a new
// one. The player is opened asynchronously; failures are reported as an
// EventError once the retry policy and cache fallback are exhausted.
func (a *Adapter) Load(media *url.URL, metadata omnirender.MediaMetadata) error {
	a.Release()

	if a.backend == nil {
		return ErrNoBackend
	}

	a.gen++
	gen := a.gen

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.media = media
	a.state = omnirender.Buffering

	a.log.Info().Str("media", media.String()).Uint64("gen", gen).Msg("loading media")

	go a.open(ctx, gen, media, metadata)

	return nil
}

func (a *Adapter) open(ctx context.Context, gen uint64, media *url.URL, metadata omnirender.MediaMetadata) {
	emit := func(ev omnirender.Event) {
		a.post(func() { a.dispatch(gen, ev) })
	}

	var cached string
	p, err := a.openWithRetry(ctx, media, metadata, emit)
	if err != nil && a.cache != nil && ctx.Err() == nil {
		a.log.Warn().Err(err).Str("media", media.String()).Msg("streaming failed, trying cache fallback")

		cached, err = a.cache.fetch(ctx, media)
		if err == nil {
			p, err = a.backend.Open(ctx, &url.URL{Scheme: "file", Path: cached}, metadata, emit)
		}
	}

	a.post(func() { a.opened(gen, p, cached, err) })
}

func (a *Adapter) openWithRetry(ctx context.Context, media *url.URL, metadata omnirender.MediaMetadata, emit omnirender.EventFunc) (omnirender.MediaPlayer, error) {
	var lastErr error

	attempts := a.retry.attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		p, err := a.backend.Open(ctx, media, metadata, emit)
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		a.log.Warn().Err(err).Int("attempt", attempt).Int("attempts", attempts).Msg("failed to open media")

		if attempt < attempts {
			delay := backoffForAttempt(a.retry.BaseBackoff, a.retry.MaxBackoff, attempt)
			if err := waitForBackoff(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("open %s: %w", media, lastErr)
}

func (a *Adapter) opened(gen uint64, p omnirender.MediaPlayer, cached string, err error) {
	if gen != a.gen {
		if p != nil {
			if err := p.Release(); err != nil {
				a.log.Warn().Err(err).Msg("failed to release stale player")
			}
		}
		if cached != "" {
			os.Remove(cached)
		}
		return
	}

	if cached != "" {
		a.cacheFiles = append(a.cacheFiles, cached)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}

		a.log.Error().Err(err).Msg("giving up on media")
		if a.cancel != nil {
			a.cancel()
			a.cancel = nil
		}
		a.media = nil
		a.wantPlay = false
		a.pendingSeek = nil
		a.state = omnirender.Stopped
		a.handle(omnirender.Failed(err))
		return
	}

	a.player = p

	if a.volume != nil {
		a.exec("set volume", func(p omnirender.MediaPlayer) error { return p.SetVolumeLevel(*a.volume) })
	}
	if a.pendingSeek != nil {
		pos := *a.pendingSeek
		a.pendingSeek = nil
		a.exec("seek", func(p omnirender.MediaPlayer) error { return p.SeekTo(pos) })
	}
	if a.wantPlay {
		a.state = omnirender.Playing
		a.exec("play", omnirender.MediaPlayer.Play)
	}
}

func (a *Adapter) dispatch(gen uint64, ev omnirender.Event) {
	if gen != a.gen {
		a.log.Debug().Stringer("event", ev.Type).Uint64("gen", gen).Msg("dropping event of released player")
		return
	}

	switch ev.Type {
	case omnirender.EventPrepared:
		if ev.Duration <= 0 {
			ev.Duration = a.live
		}
		a.duration = ev.Duration
	case omnirender.EventProgress:
		if ev.Position < 0 {
			ev.Position = 0
		}
		a.position = ev.Position
	case omnirender.EventStateChanged:
		a.state = ev.State
	case omnirender.EventBuffering:
		if ev.Percent < 100 {
			a.state = omnirender.Buffering
		} else if a.wantPlay {
			a.state = omnirender.Playing
		}
	case omnirender.EventCompleted:
		a.state = omnirender.Stopped
		a.wantPlay = false
	case omnirender.EventError:
		a.state = omnirender.Stopped
		a.wantPlay = false
		a.log.Error().Err(ev.Err).Msg("playback error")
	}

	a.handle(ev)
}

// exec runs a command against the current player and logs failures.
func (a *Adapter) exec(name string, cmd func(omnirender.MediaPlayer) error) {
	if a.player == nil {
		return
	}

	if err := cmd(a.player); err != nil {
		a.log.Warn().Err(err).Str("command", name).Msg("player command failed")
	}
}

// Play starts or resumes playback, as soon as the player is open.
func (a *Adapter) Play() error {
	if a.media == nil {
		return ErrNoMedia
	}

	a.wantPlay = true
	if a.player != nil {
		a.state = omnirender.Playing
		a.exec("play", omnirender.MediaPlayer.Play)
	}

	return nil
}

// Pause pauses playback.
func (a *Adapter) Pause() error {
	if a.media == nil {
		return ErrNoMedia
	}

	a.wantPlay = false
	if a.player != nil {
		a.state = omnirender.Paused
		a.exec("pause", omnirender.MediaPlayer.Pause)
	}

	return nil
}

// Stop stops playback and keeps the player for a later Play.
func (a *Adapter) Stop() error {
	if a.media == nil {
		return ErrNoMedia
	}

	a.wantPlay = false
	a.pendingSeek = nil
	if a.player != nil {
		a.state = omnirender.Stopped
		a.exec("stop", omnirender.MediaPlayer.Stop)
	}

	return nil
}

// SeekTo moves the playback position, as soon as the player is open.
func (a *Adapter) SeekTo(pos time.Duration) error {
	if a.media == nil {
		return ErrNoMedia
	}

	a.position = pos
	if a.player == nil {
		a.pendingSeek = &pos
		return nil
	}

	a.exec("seek", func(p omnirender.MediaPlayer) error { return p.SeekTo(pos) })
	return nil
}

// SetVolume sets the output level between 0 and 1. The level is kept
// across loads.
func (a *Adapter) SetVolume(level float64) {
	switch {
	case level < 0:
		level = 0
	case level > 1:
		level = 1
	}

	a.volume = &level
	a.exec("set volume", func(p omnirender.MediaPlayer) error { return p.SetVolumeLevel(level) })
}

// Release stops and releases the current player, cancels an open in
// progress and deletes cached files. Events of the released player are
// ignored from now on.
func (a *Adapter) Release() {
	a.gen++

	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}

	if a.player != nil {
		if err := a.player.Release(); err != nil {
			a.log.Warn().Err(err).Msg("failed to release player")
		}
		a.player = nil
	}

	for _, f := range a.cacheFiles {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.log.Warn().Err(err).Str("file", f).Msg("failed to remove cached media")
		}
	}
	a.cacheFiles = nil

	a.media = nil
	a.state = omnirender.Idle
	a.position = 0
	a.duration = 0
	a.wantPlay = false
	a.pendingSeek = nil
}
