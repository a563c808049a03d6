package gcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ericyan/omnirender"
	"github.com/ericyan/omnirender/gcast/internal/castv2"
)

// Media player states reported in MEDIA_STATUS.
const (
	PlayerStateIdle      = "IDLE"
	PlayerStatePlaying   = "PLAYING"
	PlayerStatePaused    = "PAUSED"
	PlayerStateBuffering = "BUFFERING"

	// playerStateStopped is a paused player that was stopped by the sender.
	playerStateStopped = "STOPPED"
)

// Reasons for a media player to become idle.
const (
	IdleReasonCancelled   = "CANCELLED"
	IdleReasonInterrupted = "INTERRUPTED"
	IdleReasonFinished    = "FINISHED"
	IdleReasonError       = "ERROR"
)

// ErrPlaybackFailed is reported when the receiver stops with an error.
var ErrPlaybackFailed = errors.New("gcast: playback failed")

// A Sender is a sender app instance that controls media playback on the
// receiver. Its ID, which should be unique, is used to identify itself
// when communicating with the receiver.
type Sender struct {
	ID string

	r    *Receiver
	app  *ReceiverApplication
	emit omnirender.EventFunc
	log  zerolog.Logger

	done        chan struct{}
	release     sync.Once
	unsubscribe func()

	mu             sync.Mutex
	mediaSessionID int
	playerState    string
	duration       float64
	stopped        bool
}

func newSender(id string, r *Receiver, app *ReceiverApplication, emit omnirender.EventFunc, logger zerolog.Logger) *Sender {
	return &Sender{
		ID:   id,
		r:    r,
		app:  app,
		emit: emit,
		log:  logger,
		done: make(chan struct{}),

		duration: -1,
	}
}

// watch handles status broadcasts until the sender is released.
func (s *Sender) watch(statuses <-chan *castv2.Msg) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-statuses:
			if msg.Namespace != castv2.NamespaceMedia {
				continue
			}

			ms := new(MediaStatus)
			if err := json.Unmarshal([]byte(msg.Payload), ms); err != nil {
				s.log.Warn().Err(err).Msg("malformed media status")
				continue
			}
			s.updateMediaStatus(ms)
		}
	}
}

// poll asks for media status at the given interval, as receivers only
// broadcast on state changes.
func (s *Sender) poll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			playing := s.playerState == PlayerStatePlaying
			s.mu.Unlock()

			if playing {
				if err := s.r.RequestMediaStatus(s.ID, s.app); err != nil {
					s.log.Debug().Err(err).Msg("failed to request media status")
				}
			}
		}
	}
}

// updateMediaStatus translates a MEDIA_STATUS message into events.
func (s *Sender) updateMediaStatus(ms *MediaStatus) {
	for _, sess := range ms.Status {
		var events []omnirender.Event

		s.mu.Lock()
		if s.mediaSessionID != 0 && sess.MediaSessionID != s.mediaSessionID {
			s.mu.Unlock()
			continue
		}
		s.mediaSessionID = sess.MediaSessionID

		// The media element will only be returned if it has changed.
		if sess.Media != nil && sess.Media.Duration != s.duration {
			s.duration = sess.Media.Duration
			events = append(events, omnirender.Prepared(seconds(sess.Media.Duration)))
		}

		state := sess.PlayerState
		if s.stopped && state == PlayerStatePaused {
			state = playerStateStopped
		}
		prev := s.playerState
		s.playerState = state
		s.mu.Unlock()

		if state == PlayerStatePlaying || state == PlayerStatePaused {
			events = append(events, omnirender.Progress(seconds(sess.CurrentTime)))
		}

		if state != prev {
			switch state {
			case PlayerStatePlaying:
				events = append(events, omnirender.StateChanged(omnirender.Playing))
			case PlayerStatePaused:
				events = append(events, omnirender.StateChanged(omnirender.Paused))
			case PlayerStateBuffering:
				events = append(events, omnirender.StateChanged(omnirender.Buffering))
			case playerStateStopped:
				events = append(events, omnirender.StateChanged(omnirender.Stopped))
			case PlayerStateIdle:
				switch sess.IdleReason {
				case IdleReasonFinished:
					events = append(events, omnirender.Completed())
				case IdleReasonError:
					events = append(events, omnirender.Failed(ErrPlaybackFailed))
				default:
					events = append(events, omnirender.StateChanged(omnirender.Stopped))
				}
			}
		}

		for _, ev := range events {
			s.emit(ev)
		}
	}
}

func (s *Sender) setStopped(stopped bool) {
	s.mu.Lock()
	s.stopped = stopped
	s.mu.Unlock()
}

func (s *Sender) session() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mediaSessionID == 0 {
		return 0, ErrReceiverNotReady
	}

	return s.mediaSessionID, nil
}

// Play starts or resumes playback.
func (s *Sender) Play() error {
	id, err := s.session()
	if err != nil {
		return err
	}

	s.setStopped(false)
	return s.r.Play(s.ID, s.app, id)
}

// Pause pauses playback of the current content.
func (s *Sender) Pause() error {
	id, err := s.session()
	if err != nil {
		return err
	}

	s.setStopped(false)
	return s.r.Pause(s.ID, s.app, id)
}

// Stop stops the playback. The media session stays open so that Play
// restarts the content.
func (s *Sender) Stop() error {
	id, err := s.session()
	if err != nil {
		return err
	}

	s.setStopped(true)
	if err := s.r.Pause(s.ID, s.app, id); err != nil {
		return err
	}

	return s.r.Seek(s.ID, s.app, id, 0)
}

// SeekTo sets the current playback position to pos.
func (s *Sender) SeekTo(pos time.Duration) error {
	id, err := s.session()
	if err != nil {
		return err
	}

	return s.r.Seek(s.ID, s.app, id, pos.Seconds())
}

// SetVolumeLevel sets the receiver volume.
func (s *Sender) SetVolumeLevel(level float64) error {
	return s.r.SetVolume(level)
}

// Release stops the media session and closes the connection to the
// receiver.
func (s *Sender) Release() error {
	var err error
	s.release.Do(func() {
		if id, serr := s.session(); serr == nil {
			err = s.r.Stop(s.ID, s.app, id)
		}

		close(s.done)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}

		if cerr := s.r.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("gcast: close: %w", cerr)
		}
	})

	return err
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
