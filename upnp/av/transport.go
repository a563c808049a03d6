package av

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericyan/omnirender"
	"github.com/ericyan/omnirender/upnp"
	"github.com/ericyan/omnirender/upnp/internal/lastchange"
	"github.com/ericyan/omnirender/upnp/internal/soap"
	"github.com/ericyan/omnirender/upnp/internal/types"
)

// Action-specific errors defined in AVTransport:1 service spec.
var (
	ErrTransitionNotAvailable = &soap.Error{Code: 701, Description: "Transition not available"}
	ErrSeekModeNotSupported   = &soap.Error{Code: 710, Description: "Seek mode not supported"}
	ErrIllegalSeekTarget      = &soap.Error{Code: 711, Description: "Illegal seek target"}
	ErrPlaySpeedNotSupported  = &soap.Error{Code: 717, Description: "Play speed not supported"}
	ErrInvalidInstanceID      = &soap.Error{Code: 718, Description: "Invalid InstanceID"}
)

// TransportState is the value of the TransportState state variable.
type TransportState string

// Transport states.
const (
	Stopped        TransportState = "STOPPED"
	Playing        TransportState = "PLAYING"
	PausedPlayback TransportState = "PAUSED_PLAYBACK"
	Transitioning  TransportState = "TRANSITIONING"
	NoMediaPresent TransportState = "NO_MEDIA_PRESENT"
)

// TransportStatus is the value of the TransportStatus state variable.
type TransportStatus string

// Transport statuses.
const (
	StatusOK            TransportStatus = "OK"
	StatusErrorOccurred TransportStatus = "ERROR_OCCURRED"
)

// Transport is the AVTransport state of instance 0. A zero duration means
// the duration is unknown.
type Transport struct {
	State  TransportState
	Status TransportStatus
	Speed  string

	URI             string
	URIMetadata     string
	NextURI         string
	NextURIMetadata string

	Track          int
	NumberOfTracks int

	TrackDuration time.Duration
	MediaDuration time.Duration
	RelTime       time.Duration
	AbsTime       time.Duration
}

func newTransport() Transport {
	return Transport{
		State:  NoMediaPresent,
		Status: StatusOK,
		Speed:  "1",
	}
}

// setPosition sets both positions, clamped to the track duration if known.
func (t *Transport) setPosition(pos time.Duration) {
	if pos < 0 {
		pos = 0
	}
	if t.TrackDuration > 0 && pos > t.TrackDuration {
		pos = t.TrackDuration
	}

	t.RelTime = pos
	t.AbsTime = pos
}

// Actions returns the transport actions available in the current state.
func (t *Transport) Actions() []string {
	switch t.State {
	case Stopped:
		return []string{"Play", "Seek"}
	case Playing:
		return []string{"Pause", "Stop", "Seek"}
	case PausedPlayback:
		return []string{"Play", "Stop", "Seek"}
	case Transitioning:
		return []string{"Pause", "Stop"}
	default:
		return nil
	}
}

func (t *Transport) storageMedium() string {
	if t.URI == "" {
		return "NONE"
	}

	return "NETWORK"
}

// vars returns the evented state variables in LastChange order.
func (t *Transport) vars() []lastchange.Var {
	return []lastchange.Var{
		{Name: "TransportState", Value: string(t.State)},
		{Name: "TransportStatus", Value: string(t.Status)},
		{Name: "TransportPlaySpeed", Value: t.Speed},
		{Name: "NumberOfTracks", Value: strconv.Itoa(t.NumberOfTracks)},
		{Name: "CurrentTrack", Value: strconv.Itoa(t.Track)},
		{Name: "CurrentTrackDuration", Value: types.FormatDuration(t.TrackDuration)},
		{Name: "CurrentMediaDuration", Value: types.FormatDuration(t.MediaDuration)},
		{Name: "CurrentTrackURI", Value: t.URI},
		{Name: "CurrentTrackMetaData", Value: t.URIMetadata},
		{Name: "AVTransportURI", Value: t.URI},
		{Name: "AVTransportURIMetaData", Value: t.URIMetadata},
		{Name: "NextAVTransportURI", Value: t.NextURI},
		{Name: "NextAVTransportURIMetaData", Value: t.NextURIMetadata},
		{Name: "CurrentTransportActions", Value: strings.Join(t.Actions(), ",")},
		{Name: "PlaybackStorageMedium", Value: t.storageMedium()},
		{Name: "CurrentPlayMode", Value: "NORMAL"},
	}
}

// updateTransport applies f to the transport state in one locked section
// and records the evented variables it changed.
func (r *MediaRenderer) updateTransport(f func(t *Transport)) {
	r.mu.Lock()
	before := r.transport.vars()
	f(&r.transport)
	after := r.transport.vars()
	for i, v := range after {
		if v.Value != before[i].Value {
			r.avtChanges.Record(v.Name, v.Value)
		}
	}
	r.mu.Unlock()
}

func (r *MediaRenderer) avTransportSnapshot() []upnp.Property {
	t := r.Transport()
	payload := r.avtChanges.Snapshot(t.vars())

	return []upnp.Property{{Name: "LastChange", Value: string(payload)}}
}

// setURI replaces the current track. It runs on the coordination loop.
func (r *MediaRenderer) setURI(uri, metadata string) {
	r.pipe.Release()

	r.updateTransport(func(t *Transport) {
		t.URI = uri
		t.URIMetadata = metadata
		t.Status = StatusOK
		t.TrackDuration = 0
		t.MediaDuration = 0
		t.setPosition(0)

		if uri == "" {
			t.State = NoMediaPresent
			t.Track = 0
			t.NumberOfTracks = 0
			return
		}

		t.State = Stopped
		t.Track = 1
		t.NumberOfTracks = 1
	})

	r.log.Info().Str("uri", uri).Str("title", titleOf(metadata)).Msg("transport URI set")

	if uri != "" && r.autoPlay {
		r.play("1")
	}
}

// play starts playback of the current track. It runs on the coordination
// loop.
func (r *MediaRenderer) play(speed string) *soap.Error {
	rat, err := types.ParseRat(speed)
	if err != nil {
		return ErrPlaySpeedNotSupported
	}

	t := r.Transport()
	if t.URI == "" {
		r.log.Warn().Msg("play requested without media")
		return nil
	}

	r.updateTransport(func(t *Transport) {
		t.State = Playing
		t.Speed = rat.String()
	})

	if !r.pipe.Available() {
		if r.sink != nil {
			r.sink.OnPlayRequested(t.URI)
		} else {
			r.log.Warn().Str("uri", t.URI).Msg("no backend to play media with")
		}
		return nil
	}

	if !r.pipe.Loaded() || r.pipe.Media().String() != t.URI {
		if err := r.load(t.URI, t.URIMetadata); err != nil {
			r.log.Error().Err(err).Str("uri", t.URI).Msg("failed to load media")
			r.fail()
			return nil
		}
	}

	if err := r.pipe.Play(); err != nil {
		r.log.Error().Err(err).Msg("failed to play media")
	}

	return nil
}

func (r *MediaRenderer) load(uri, metadata string) error {
	media, err := url.Parse(uri)
	if err != nil {
		return err
	}

	var md omnirender.MediaMetadata
	if metadata != "" {
		m := new(types.Metadata)
		if err := m.UnmarshalText([]byte(metadata)); err != nil {
			r.log.Warn().Err(err).Msg("ignoring malformed metadata")
		} else {
			md = m
		}
	}

	return r.pipe.Load(media, md)
}

func (r *MediaRenderer) pause() *soap.Error {
	t := r.Transport()
	if t.State != Playing && t.State != Transitioning {
		return ErrTransitionNotAvailable
	}

	r.updateTransport(func(t *Transport) {
		t.State = PausedPlayback
	})

	if r.pipe.Loaded() {
		if err := r.pipe.Pause(); err != nil {
			r.log.Error().Err(err).Msg("failed to pause media")
		}
	}

	return nil
}

func (r *MediaRenderer) stop() {
	r.updateTransport(func(t *Transport) {
		if t.State != NoMediaPresent {
			t.State = Stopped
		}
	})

	if r.pipe.Loaded() {
		if err := r.pipe.Stop(); err != nil {
			r.log.Error().Err(err).Msg("failed to stop media")
		}
	}
}

func (r *MediaRenderer) seek(unit, target string) *soap.Error {
	if unit != "REL_TIME" && unit != "ABS_TIME" {
		return ErrSeekModeNotSupported
	}
	if !types.IsDuration(target) {
		return ErrIllegalSeekTarget
	}

	var pos time.Duration
	r.updateTransport(func(t *Transport) {
		t.setPosition(types.ParseDuration(target))
		pos = t.RelTime
	})

	if r.pipe.Loaded() {
		if err := r.pipe.SeekTo(pos); err != nil {
			r.log.Error().Err(err).Msg("failed to seek")
		}
	}

	return nil
}

// fail records a playback failure.
func (r *MediaRenderer) fail() {
	r.updateTransport(func(t *Transport) {
		t.State = Stopped
		t.Status = StatusErrorOccurred
	})
}

// handleEvent applies a pipeline event to the transport state. It runs on
// the coordination loop.
func (r *MediaRenderer) handleEvent(ev omnirender.Event) {
	switch ev.Type {
	case omnirender.EventPrepared:
		r.updateTransport(func(t *Transport) {
			t.TrackDuration = ev.Duration
			t.MediaDuration = ev.Duration
			t.setPosition(t.RelTime)
		})
	case omnirender.EventProgress:
		r.updateTransport(func(t *Transport) {
			switch t.State {
			case Playing, PausedPlayback, Transitioning:
				t.setPosition(ev.Position)
			}
		})
	case omnirender.EventStateChanged:
		r.updateTransport(func(t *Transport) {
			switch ev.State {
			case omnirender.Playing:
				t.State = Playing
			case omnirender.Paused:
				t.State = PausedPlayback
			case omnirender.Stopped:
				t.State = Stopped
			case omnirender.Buffering:
				t.State = Transitioning
			}
		})
	case omnirender.EventBuffering:
		r.updateTransport(func(t *Transport) {
			switch {
			case ev.Percent < 100 && t.State == Playing:
				t.State = Transitioning
			case ev.Percent >= 100 && t.State == Transitioning:
				t.State = Playing
			}
		})
	case omnirender.EventCompleted:
		r.log.Info().Msg("end of media")
		r.updateTransport(func(t *Transport) {
			t.State = Stopped
		})
	case omnirender.EventError:
		r.log.Error().Err(ev.Err).Msg("pipeline error")
		r.fail()
	}
}

func titleOf(metadata string) string {
	if metadata == "" {
		return ""
	}

	m := new(types.Metadata)
	if err := m.UnmarshalText([]byte(metadata)); err != nil {
		return ""
	}

	return m.Title()
}

// avTransport returns the AVTransport service of the renderer.
//
// Spec: http://upnp.org/specs/av/UPnP-av-AVTransport-v1-Service.pdf
func (r *MediaRenderer) avTransport() *upnp.Service {
	svc := upnp.NewService("AVTransport", 1)
	svc.EnableEvents(r.avTransportSnapshot)

	svc.RegisterAction("SetAVTransportURI", r.mutation(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		uri, ok := req.Arg("CurrentURI")
		if !ok {
			resp.Error = soap.ErrInvalidArgs
			return
		}
		uri = strings.TrimSpace(uri)
		if _, err := url.Parse(uri); err != nil {
			r.log.Warn().Err(err).Str("uri", uri).Msg("invalid transport URI")
			resp.Error = soap.ErrInvalidArgs
			return
		}

		metadata, _ := req.Arg("CurrentURIMetaData")
		r.setURI(uri, metadata)
	}))

	svc.RegisterAction("SetNextAVTransportURI", r.mutation(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		uri, ok := req.Arg("NextURI")
		if !ok {
			resp.Error = soap.ErrInvalidArgs
			return
		}

		metadata, _ := req.Arg("NextURIMetaData")
		r.updateTransport(func(t *Transport) {
			t.NextURI = strings.TrimSpace(uri)
			t.NextURIMetadata = metadata
		})
	}))

	svc.RegisterAction("GetMediaInfo", query(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		t := r.Transport()

		resp.Set("NrTracks", strconv.Itoa(t.NumberOfTracks))
		resp.Set("MediaDuration", types.FormatDuration(t.MediaDuration))
		resp.Set("CurrentURI", t.URI)
		resp.Set("CurrentURIMetaData", t.URIMetadata)
		resp.Set("NextURI", t.NextURI)
		resp.Set("NextURIMetaData", t.NextURIMetadata)
		resp.Set("PlayMedium", t.storageMedium())
		resp.Set("RecordMedium", "NOT_IMPLEMENTED")
		resp.Set("WriteStatus", "NOT_IMPLEMENTED")
	}))

	svc.RegisterAction("GetTransportInfo", query(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		r.mu.Lock()
		t := r.transport
		reset := t.Status == StatusErrorOccurred
		if reset {
			r.transport.Status = StatusOK
			r.avtChanges.Record("TransportStatus", string(StatusOK))
		}
		r.mu.Unlock()

		resp.Set("CurrentTransportState", string(t.State))
		resp.Set("CurrentTransportStatus", string(t.Status))
		resp.Set("CurrentSpeed", t.Speed)
	}))

	svc.RegisterAction("GetPositionInfo", query(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		t := r.Transport()

		resp.Set("Track", strconv.Itoa(t.Track))
		resp.Set("TrackDuration", types.FormatDuration(t.TrackDuration))
		resp.Set("TrackMetaData", t.URIMetadata)
		resp.Set("TrackURI", t.URI)
		resp.Set("RelTime", types.FormatDuration(t.RelTime))
		resp.Set("AbsTime", types.FormatDuration(t.AbsTime))
		resp.Set("RelCount", strconv.Itoa(int(t.RelTime.Seconds())))
		resp.Set("AbsCount", strconv.Itoa(int(t.AbsTime.Seconds())))
	}))

	svc.RegisterAction("GetDeviceCapabilities", query(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		resp.Set("PlayMedia", "NETWORK")
		resp.Set("RecMedia", "NOT_IMPLEMENTED")
		resp.Set("RecQualityModes", "NOT_IMPLEMENTED")
	}))

	svc.RegisterAction("GetTransportSettings", query(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		resp.Set("PlayMode", "NORMAL")
		resp.Set("RecQualityMode", "NOT_IMPLEMENTED")
	}))

	svc.RegisterAction("GetCurrentTransportActions", query(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		t := r.Transport()
		resp.Set("Actions", strings.Join(t.Actions(), ","))
	}))

	svc.RegisterAction("Play", r.mutation(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		speed, ok := req.Arg("Speed")
		if !ok {
			speed = "1"
		}

		resp.Error = r.play(speed)
	}))

	svc.RegisterAction("Pause", r.mutation(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		resp.Error = r.pause()
	}))

	svc.RegisterAction("Stop", r.mutation(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		r.stop()
	}))

	svc.RegisterAction("Seek", r.mutation(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		unit, _ := req.Arg("Unit")
		target, _ := req.Arg("Target")

		resp.Error = r.seek(unit, target)
	}))

	svc.RegisterAction("Next", query(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		resp.Error = ErrTransitionNotAvailable
	}))

	svc.RegisterAction("Previous", query(ErrInvalidInstanceID, func(req *soap.Request, resp *soap.Response) {
		resp.Error = ErrTransitionNotAvailable
	}))

	return svc
}
