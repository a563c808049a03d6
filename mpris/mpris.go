// Package mpris plays media with a desktop media player through its
// MPRIS D-Bus interface.
//
// https://specifications.freedesktop.org/mpris-spec/latest/
package mpris

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ericyan/omnirender"
)

// D-Bus names of the MPRIS interfaces.
const (
	BusNamePrefix       = "org.mpris.MediaPlayer2"
	ObjectPath          = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	PlayerInterface     = "org.mpris.MediaPlayer2.Player"
	PropertiesInterface = "org.freedesktop.DBus.Properties"
)

// DefaultPollInterval is how often the playback position is queried.
const DefaultPollInterval = time.Second

// ErrNoPlayer is returned when no MPRIS player is on the session bus.
var ErrNoPlayer = errors.New("mpris: no player instance found")

// Discover returns the bus names of the MPRIS players on conn.
func Discover(conn *dbus.Conn) ([]string, error) {
	var names []string
	err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	if err != nil {
		return nil, err
	}

	var dests []string
	for _, name := range names {
		if strings.HasPrefix(name, BusNamePrefix+".") {
			dests = append(dests, name)
		}
	}

	if len(dests) == 0 {
		return nil, ErrNoPlayer
	}

	return dests, nil
}

// busObject is the subset of dbus.BusObject used by players.
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
	GetProperty(p string) (dbus.Variant, error)
}

// Option configures a Backend.
type Option func(*Backend)

// WithPollInterval sets how often the playback position is queried.
func WithPollInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.poll = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) {
		b.log = l
	}
}

// Backend opens media with an MPRIS player. Only one media is open at a
// time; opening another replaces the track of the same player.
type Backend struct {
	conn *dbus.Conn
	dest string
	poll time.Duration
	log  zerolog.Logger
}

// NewBackend connects to the session bus and returns a Backend using the
// player with bus name dest, or the first player found if dest is empty.
func NewBackend(dest string, opts ...Option) (*Backend, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("mpris: %w", err)
	}

	if dest == "" {
		dests, err := Discover(conn)
		if err != nil {
			return nil, err
		}
		dest = dests[0]
	}

	b := &Backend{
		conn: conn,
		dest: dest,
		poll: DefaultPollInterval,
		log:  log.With().Str("component", "mpris").Str("dest", dest).Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Name returns the bus name of the player.
func (b *Backend) Name() string {
	return b.dest
}

// Open implements omnirender.Backend.
func (b *Backend) Open(ctx context.Context, media *url.URL, metadata omnirender.MediaMetadata, emit omnirender.EventFunc) (omnirender.MediaPlayer, error) {
	obj := b.conn.Object(b.dest, ObjectPath)

	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(ObjectPath),
		dbus.WithMatchInterface(PropertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := b.conn.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("mpris: subscribe: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	b.conn.Signal(signals)

	p := newPlayer(obj, emit, b.log)
	p.unsubscribe = func() {
		b.conn.RemoveSignal(signals)
		b.conn.RemoveMatchSignal(match...)
	}

	if err := p.open(ctx, media); err != nil {
		p.unsubscribe()
		return nil, err
	}

	go p.watch(signals)
	go p.pollPosition(b.poll)

	return p, nil
}

// Player controls the media opened in an MPRIS player.
type Player struct {
	obj  busObject
	emit omnirender.EventFunc
	log  zerolog.Logger

	done        chan struct{}
	release     sync.Once
	unsubscribe func()

	mu       sync.Mutex
	trackID  dbus.ObjectPath
	status   string
	stopping bool
}

func newPlayer(obj busObject, emit omnirender.EventFunc, logger zerolog.Logger) *Player {
	return &Player{
		obj:     obj,
		emit:    emit,
		log:     logger,
		done:    make(chan struct{}),
		trackID: noTrack,
	}
}

func (p *Player) call(ctx context.Context, method string, args ...interface{}) error {
	call := p.obj.CallWithContext(ctx, PlayerInterface+"."+method, 0, args...)
	if call.Err != nil {
		return fmt.Errorf("mpris: %s: %w", method, call.Err)
	}

	return nil
}

func (p *Player) open(ctx context.Context, media *url.URL) error {
	if err := p.call(ctx, "OpenUri", media.String()); err != nil {
		return err
	}

	if v, err := p.obj.GetProperty(PlayerInterface + ".Metadata"); err == nil {
		if m, ok := v.Value().(map[string]dbus.Variant); ok {
			p.handleChanged(map[string]dbus.Variant{"Metadata": dbus.MakeVariant(m)})
		}
	}

	return nil
}

// watch handles PropertiesChanged signals until the player is released.
func (p *Player) watch(signals <-chan *dbus.Signal) {
	for {
		select {
		case <-p.done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig.Path != ObjectPath || sig.Name != PropertiesInterface+".PropertiesChanged" || len(sig.Body) < 2 {
				continue
			}
			if iface, _ := sig.Body[0].(string); iface != PlayerInterface {
				continue
			}
			if changed, ok := sig.Body[1].(map[string]dbus.Variant); ok {
				p.handleChanged(changed)
			}
		}
	}
}

// handleChanged translates changed player properties into events.
func (p *Player) handleChanged(changed map[string]dbus.Variant) {
	if v, ok := changed["Metadata"]; ok {
		if m, ok := v.Value().(map[string]dbus.Variant); ok {
			md := Metadata(m)

			p.mu.Lock()
			p.trackID = md.TrackID()
			p.mu.Unlock()

			p.log.Debug().Str("title", md.Title()).Dur("length", md.Length()).Msg("metadata changed")
			p.emit(omnirender.Prepared(md.Length()))
		}
	}

	if v, ok := changed["PlaybackStatus"]; ok {
		status, _ := v.Value().(string)

		p.mu.Lock()
		prev := p.status
		stopping := p.stopping
		p.status = status
		p.stopping = false
		p.mu.Unlock()

		switch status {
		case "Playing":
			p.emit(omnirender.StateChanged(omnirender.Playing))
		case "Paused":
			p.emit(omnirender.StateChanged(omnirender.Paused))
		case "Stopped":
			if prev == "Playing" && !stopping {
				p.emit(omnirender.Completed())
			} else {
				p.emit(omnirender.StateChanged(omnirender.Stopped))
			}
		default:
			p.log.Warn().Str("status", status).Msg("unknown playback status")
		}
	}
}

// pollPosition emits the playback position while playing, as MPRIS
// players do not signal position changes.
func (p *Player) pollPosition(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.mu.Lock()
			playing := p.status == "Playing"
			p.mu.Unlock()
			if !playing {
				continue
			}

			if pos, ok := p.position(); ok {
				p.emit(omnirender.Progress(pos))
			}
		}
	}
}

func (p *Player) position() (time.Duration, bool) {
	v, err := p.obj.GetProperty(PlayerInterface + ".Position")
	if err != nil {
		p.log.Debug().Err(err).Msg("failed to read position")
		return 0, false
	}

	us, ok := v.Value().(int64)
	if !ok {
		return 0, false
	}

	return time.Duration(us) * time.Microsecond, true
}

// Play starts or resumes playback.
func (p *Player) Play() error {
	return p.call(context.Background(), "Play")
}

// Pause pauses playback of the current content.
func (p *Player) Pause() error {
	return p.call(context.Background(), "Pause")
}

// Stop stops the playback and resets the playback position.
func (p *Player) Stop() error {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	return p.call(context.Background(), "Stop")
}

// SeekTo sets the current playback position to pos.
func (p *Player) SeekTo(pos time.Duration) error {
	p.mu.Lock()
	trackID := p.trackID
	p.mu.Unlock()

	return p.call(context.Background(), "SetPosition", trackID, pos.Microseconds())
}

// SetVolumeLevel sets the Volume property of the player.
func (p *Player) SetVolumeLevel(level float64) error {
	call := p.obj.CallWithContext(context.Background(), PropertiesInterface+".Set", 0,
		PlayerInterface, "Volume", dbus.MakeVariant(level))
	if call.Err != nil {
		return fmt.Errorf("mpris: set volume: %w", call.Err)
	}

	return nil
}

// Release stops playback and stops listening to the player.
func (p *Player) Release() error {
	var err error
	p.release.Do(func() {
		err = p.Stop()
		close(p.done)
		if p.unsubscribe != nil {
			p.unsubscribe()
		}
	})

	return err
}
