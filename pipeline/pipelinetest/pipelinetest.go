// Package pipelinetest provides an in-memory media backend for tests.
package pipelinetest

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/ericyan/omnirender"
)

// ErrOpen is returned by Backend.Open for injected failures.
var ErrOpen = errors.New("pipelinetest: open failed")

// Backend is a fake omnirender.Backend recording every player it opens.
type Backend struct {
	// FailOpens is the number of Open calls that fail before one succeeds.
	FailOpens int

	// OpenFunc, if set, is consulted before every Open. A non-nil error
	// fails the call.
	OpenFunc func(media *url.URL) error

	// Gate, if set, blocks Open until a value is received or the context
	// is done.
	Gate chan struct{}

	DeviceName string

	mu      sync.Mutex
	opens   []*url.URL
	players []*Player
}

// Name implements omnirender.Backend.
func (b *Backend) Name() string {
	if b.DeviceName == "" {
		return "fake"
	}

	return b.DeviceName
}

// Open implements omnirender.Backend.
func (b *Backend) Open(ctx context.Context, media *url.URL, metadata omnirender.MediaMetadata, emit omnirender.EventFunc) (omnirender.MediaPlayer, error) {
	if b.Gate != nil {
		select {
		case <-b.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.opens = append(b.opens, media)

	if b.OpenFunc != nil {
		if err := b.OpenFunc(media); err != nil {
			return nil, err
		}
	}
	if b.FailOpens > 0 {
		b.FailOpens--
		return nil, ErrOpen
	}

	p := &Player{media: media, metadata: metadata, emit: emit, volume: -1}
	b.players = append(b.players, p)

	return p, nil
}

// Opens returns the media of every Open call, failed ones included.
func (b *Backend) Opens() []*url.URL {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]*url.URL(nil), b.opens...)
}

// Players returns the players opened so far.
func (b *Backend) Players() []*Player {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]*Player(nil), b.players...)
}

// Last returns the most recently opened player, or nil.
func (b *Backend) Last() *Player {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.players) == 0 {
		return nil
	}

	return b.players[len(b.players)-1]
}

// Player is a fake omnirender.MediaPlayer.
type Player struct {
	media    *url.URL
	metadata omnirender.MediaMetadata
	emit     omnirender.EventFunc

	mu       sync.Mutex
	calls    []string
	volume   float64
	position time.Duration
	released bool
}

// Media returns the media the player was opened with.
func (p *Player) Media() *url.URL {
	return p.media
}

// Metadata returns the metadata the player was opened with.
func (p *Player) Metadata() omnirender.MediaMetadata {
	return p.metadata
}

// Emit delivers ev as if it came from the underlying player.
func (p *Player) Emit(ev omnirender.Event) {
	p.emit(ev)
}

func (p *Player) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return errors.New("pipelinetest: player released")
	}
	p.calls = append(p.calls, call)

	return nil
}

// Calls returns the names of the commands received so far.
func (p *Player) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.calls...)
}

// Released reports whether Release was called.
func (p *Player) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.released
}

// Volume returns the last volume level set, or -1.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.volume
}

// Position returns the last position sought to.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.position
}

// Play implements omnirender.PlaybackController.
func (p *Player) Play() error { return p.record("play") }

// Pause implements omnirender.PlaybackController.
func (p *Player) Pause() error { return p.record("pause") }

// Stop implements omnirender.PlaybackController.
func (p *Player) Stop() error { return p.record("stop") }

// SeekTo implements omnirender.PlaybackController.
func (p *Player) SeekTo(pos time.Duration) error {
	if err := p.record("seek"); err != nil {
		return err
	}

	p.mu.Lock()
	p.position = pos
	p.mu.Unlock()

	return nil
}

// SetVolumeLevel implements omnirender.VolumeController.
func (p *Player) SetVolumeLevel(level float64) error {
	if err := p.record("volume"); err != nil {
		return err
	}

	p.mu.Lock()
	p.volume = level
	p.mu.Unlock()

	return nil
}

// Release implements omnirender.MediaPlayer.
func (p *Player) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.released = true

	return nil
}

// Loop is a serial executor standing in for a renderer's coordination
// goroutine.
type Loop struct {
	tasks chan func()
	done  chan struct{}
}

// NewLoop starts a Loop. Stop it with Close.
func NewLoop() *Loop {
	l := &Loop{tasks: make(chan func(), 64), done: make(chan struct{})}
	go func() {
		for {
			select {
			case f := <-l.tasks:
				f()
			case <-l.done:
				return
			}
		}
	}()

	return l
}

// Post schedules f on the loop. It is dropped once the loop is closed.
func (l *Loop) Post(f func()) {
	select {
	case l.tasks <- f:
	case <-l.done:
	}
}

// Do runs f on the loop and waits for it to return.
func (l *Loop) Do(f func()) {
	ch := make(chan struct{})
	l.Post(func() {
		f()
		close(ch)
	})

	select {
	case <-ch:
	case <-l.done:
	}
}

// Close stops the loop.
func (l *Loop) Close() {
	close(l.done)
}
