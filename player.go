package omnirender

import (
	"context"
	"net/url"
	"time"
)

// PlaybackState is the state of a media player as reported by its backend.
type PlaybackState int

// Playback states.
const (
	Idle PlaybackState = iota
	Buffering
	Playing
	Paused
	Stopped
)

// String returns the name of the playback state.
func (s PlaybackState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Buffering:
		return "buffering"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MediaMetadata describes a media artefact.
type MediaMetadata interface {
	Title() string
	Subtitle() string
	ImageURL() *url.URL
}

// EventType identifies the kind of an Event.
type EventType int

// Event types emitted by media players.
const (
	EventPrepared EventType = iota + 1
	EventProgress
	EventStateChanged
	EventCompleted
	EventError
	EventBuffering
)

// String returns the name of the event type.
func (t EventType) String() string {
	switch t {
	case EventPrepared:
		return "prepared"
	case EventProgress:
		return "progress"
	case EventStateChanged:
		return "state_changed"
	case EventCompleted:
		return "completed"
	case EventError:
		return "error"
	case EventBuffering:
		return "buffering"
	default:
		return "unknown"
	}
}

// An Event is an asynchronous notification from a media player. Only the
// field matching Type is meaningful.
type Event struct {
	Type     EventType
	Duration time.Duration
	Position time.Duration
	State    PlaybackState
	Percent  int
	Err      error
}

// Prepared returns an event reporting that the media is ready and has
// the given duration. A zero duration means the duration is unknown.
func Prepared(d time.Duration) Event {
	return Event{Type: EventPrepared, Duration: d}
}

// Progress returns an event reporting the playback position.
func Progress(pos time.Duration) Event {
	return Event{Type: EventProgress, Position: pos}
}

// StateChanged returns an event reporting a new playback state.
func StateChanged(s PlaybackState) Event {
	return Event{Type: EventStateChanged, State: s}
}

// Completed returns an event reporting the end of the media.
func Completed() Event {
	return Event{Type: EventCompleted}
}

// Failed returns an event reporting a playback error.
func Failed(err error) Event {
	return Event{Type: EventError, Err: err}
}

// BufferingProgress returns an event reporting the buffer fill level.
func BufferingProgress(percent int) Event {
	return Event{Type: EventBuffering, Percent: percent}
}

// EventFunc receives events from a media player. It may be called from
// any goroutine.
type EventFunc func(Event)

// PlaybackController provides methods for controlling media playback.
type PlaybackController interface {
	Play() error
	Pause() error
	Stop() error
	SeekTo(pos time.Duration) error
}

// VolumeController provides methods for adjusting volume settings. The
// level ranges from 0 to 1.
type VolumeController interface {
	SetVolumeLevel(level float64) error
}

// MediaPlayer controls the playback of a single loaded media.
type MediaPlayer interface {
	PlaybackController
	VolumeController

	// Release stops playback and frees the underlying player. The player
	// must not be used afterwards.
	Release() error
}

// A Backend opens media players.
type Backend interface {
	// Name returns a human readable name of the output device.
	Name() string

	// Open hands the media to the underlying player and returns once the
	// player accepted it. Events are delivered to emit until the player
	// is released.
	Open(ctx context.Context, media *url.URL, metadata MediaMetadata, emit EventFunc) (MediaPlayer, error)
}
