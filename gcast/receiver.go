package gcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ericyan/omnirender/gcast/internal/castv2"
)

// Common receiver app IDs.
const (
	DefaultReceiverAppID = "CC1AD845"
	YouTubeReceiverAppID = "233637DE"
)

// Errors returned by the Receiver.
var (
	ErrReceiverNotReady = errors.New("gcast: receiver not ready")
	ErrLoadFailed       = errors.New("gcast: load failed")
)

// ReceiverApplication represents an instance of receiver application.
type ReceiverApplication struct {
	AppID               string              `json:"appId"`
	Name                string              `json:"displayName"`
	IconURL             string              `json:"iconUrl"`
	StatusText          string              `json:"statusText"`
	IsIdleScreen        bool                `json:"isIdleScreen"`
	SupportedNamespaces []map[string]string `json:"namespaces"`
	SessionID           string              `json:"sessionId"`
	TransportID         string              `json:"transportId"`
}

// ReceiverVolume represents the volume of the receiver device.
type ReceiverVolume struct {
	ControlType  string   `json:"controlType,omitempty"`
	Level        *float64 `json:"level,omitempty"`
	Muted        *bool    `json:"muted,omitempty"`
	StepInterval float64  `json:"stepInterval,omitempty"`
}

// ReceiverStatus represents the devices status of the receiver.
type ReceiverStatus struct {
	castv2.Header
	Status struct {
		Applications []*ReceiverApplication `json:"applications,omitempty"`
		Volume       *ReceiverVolume        `json:"volume"`
	} `json:"status"`
}

// Application returns the application with the given ID, if running.
func (rs *ReceiverStatus) Application(appID string) *ReceiverApplication {
	for _, app := range rs.Status.Applications {
		if app.AppID == appID {
			return app
		}
	}

	return nil
}

// MediaInformation represents a media stream.
//
// Ref: https://developers.google.com/cast/docs/reference/messages#MediaInformation
type MediaInformation struct {
	ContentID   string        `json:"contentId"`
	ContentType string        `json:"contentType"`
	StreamType  string        `json:"streamType"`
	Metadata    MediaMetadata `json:"metadata,omitempty"`
	Duration    float64       `json:"duration,omitempty"`
}

// MediaSession represents the current status of a single session.
type MediaSession struct {
	MediaSessionID         int               `json:"mediaSessionId"`
	Media                  *MediaInformation `json:"media,omitempty"`
	PlaybackRate           float32           `json:"playbackRate"`
	PlayerState            string            `json:"playerState"`
	IdleReason             string            `json:"idleReason,omitempty"`
	CurrentTime            float64           `json:"currentTime"`
	SupportedMediaCommands int               `json:"supportedMediaCommands"`
}

// MediaStatus represents the current status of the media artifact with
// respect to the session.
//
// https://developers.google.com/cast/docs/reference/messages#MediaStatus
type MediaStatus struct {
	castv2.Header
	Status []*MediaSession `json:"status"`
}

// Receiver represents a Google Cast device reachable over a channel.
type Receiver struct {
	ch *castv2.Channel

	mu  sync.Mutex
	app *ReceiverApplication
	vol *ReceiverVolume
}

// NewReceiver returns a Receiver using ch.
func NewReceiver(ch *castv2.Channel) *Receiver {
	return &Receiver{ch: ch}
}

func (r *Receiver) updateReceiverStatus(msg *castv2.Msg) (*ReceiverStatus, error) {
	rs := new(ReceiverStatus)
	if err := json.Unmarshal([]byte(msg.Payload), rs); err != nil {
		return nil, fmt.Errorf("gcast: receiver status: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if apps := rs.Status.Applications; len(apps) > 0 {
		r.app = apps[0]
	} else {
		r.app = nil
	}
	if rs.Status.Volume != nil {
		r.vol = rs.Status.Volume
	}

	return rs, nil
}

func (r *Receiver) platformRequest(ctx context.Context, req castv2.Request) (*ReceiverStatus, error) {
	msg, err := r.ch.Request(ctx, castv2.PlatformSenderID, castv2.PlatformReceiverID, castv2.NamespaceReceiver, req)
	if err != nil {
		return nil, err
	}

	return r.updateReceiverStatus(msg)
}

// GetStatus requests the receiver status.
func (r *Receiver) GetStatus(ctx context.Context) (*ReceiverStatus, error) {
	return r.platformRequest(ctx, castv2.NewRequest(castv2.TypeGetStatus))
}

// Application returns the current running receiver application, if any.
func (r *Receiver) Application() *ReceiverApplication {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.app
}

// Volume returns the receiver volume, if known.
func (r *Receiver) Volume() *ReceiverVolume {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.vol
}

// Launch starts the receiver application unless it is running already,
// and returns it.
func (r *Receiver) Launch(ctx context.Context, appID string) (*ReceiverApplication, error) {
	if app := r.Application(); app != nil && app.AppID == appID {
		return app, nil
	}

	req := &struct {
		castv2.Header
		AppID string `json:"appId"`
	}{}

	req.Type = castv2.TypeLaunch
	req.AppID = appID

	rs, err := r.platformRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	app := rs.Application(appID)
	if app == nil || app.IsIdleScreen {
		return nil, ErrReceiverNotReady
	}

	return app, nil
}

// SetVolume sets the receiver volume level between 0 and 1.
func (r *Receiver) SetVolume(level float64) error {
	req := &struct {
		castv2.Header
		Volume *ReceiverVolume `json:"volume"`
	}{}

	req.Type = castv2.TypeSetVolume
	req.Volume = &ReceiverVolume{Level: &level}

	return r.ch.Send(castv2.PlatformSenderID, castv2.PlatformReceiverID, castv2.NamespaceReceiver, req)
}

// Load loads new content into the media player of app and returns the
// resulting media session.
//
// Ref: https://developers.google.com/cast/docs/reference/messages#Load
func (r *Receiver) Load(ctx context.Context, senderID string, app *ReceiverApplication, media *MediaInformation) (*MediaStatus, error) {
	req := &struct {
		castv2.Header
		Media    *MediaInformation `json:"media"`
		Autoplay bool              `json:"autoplay"`
	}{}

	req.Type = castv2.TypeLoad
	req.Media = media

	msg, err := r.ch.Request(ctx, senderID, app.TransportID, castv2.NamespaceMedia, req)
	if err != nil {
		return nil, err
	}

	ms := new(MediaStatus)
	if err := json.Unmarshal([]byte(msg.Payload), ms); err != nil {
		return nil, fmt.Errorf("gcast: media status: %w", err)
	}
	if ms.Type != castv2.TypeMediaStatus {
		return nil, fmt.Errorf("%w: %s", ErrLoadFailed, ms.Type)
	}

	return ms, nil
}

type mediaRequest struct {
	castv2.Header
	MediaSessionID int      `json:"mediaSessionId"`
	CurrentTime    *float64 `json:"currentTime,omitempty"`
}

func (r *Receiver) mediaCommand(senderID string, app *ReceiverApplication, msgType string, sessionID int, pos *float64) error {
	req := &mediaRequest{MediaSessionID: sessionID, CurrentTime: pos}
	req.Type = msgType

	return r.ch.Send(senderID, app.TransportID, castv2.NamespaceMedia, req)
}

// RequestMediaStatus asks the media player of app to broadcast its
// status.
func (r *Receiver) RequestMediaStatus(senderID string, app *ReceiverApplication) error {
	return r.ch.Send(senderID, app.TransportID, castv2.NamespaceMedia, castv2.NewRequest(castv2.TypeGetStatus))
}

// Play begins playback of the loaded media content from the current
// playback position.
//
// https://developers.google.com/cast/docs/reference/messages#Play
func (r *Receiver) Play(senderID string, app *ReceiverApplication, sessionID int) error {
	return r.mediaCommand(senderID, app, castv2.TypePlay, sessionID, nil)
}

// Pause pauses playback of the current content.
//
// https://developers.google.com/cast/docs/reference/messages#Pause
func (r *Receiver) Pause(senderID string, app *ReceiverApplication, sessionID int) error {
	return r.mediaCommand(senderID, app, castv2.TypePause, sessionID, nil)
}

// Stop stops the playback and unload the current content
//
// https://developers.google.com/cast/docs/reference/messages#Stop
func (r *Receiver) Stop(senderID string, app *ReceiverApplication, sessionID int) error {
	return r.mediaCommand(senderID, app, castv2.TypeStop, sessionID, nil)
}

// Seek sets the current playback position to pos, which is the number
// of seconds since beginning of content
func (r *Receiver) Seek(senderID string, app *ReceiverApplication, sessionID int, pos float64) error {
	return r.mediaCommand(senderID, app, castv2.TypeSeek, sessionID, &pos)
}

// Close closes the connection to the receiver.
func (r *Receiver) Close() error {
	return r.ch.Close()
}
