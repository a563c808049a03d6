package gcast

import (
	"context"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ericyan/omnirender"
	"github.com/ericyan/omnirender/gcast/internal/castv2"
)

// DefaultPollInterval is how often a playing receiver is asked for its
// media status.
const DefaultPollInterval = time.Second

// Stream types of MediaInformation.
const (
	StreamTypeBuffered = "BUFFERED"
	StreamTypeLive     = "LIVE"
)

const defaultContentType = "application/octet-stream"

// mediaTypes covers the formats supported by the default media receiver,
// which are missing from most system MIME tables.
//
// Ref: https://developers.google.com/cast/docs/media
var mediaTypes = map[string]string{
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".oga":  "audio/ogg",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".wav":  "audio/wav",
	".webm": "video/webm",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".m3u8": "application/x-mpegURL",
	".mpd":  "application/dash+xml",
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithPollInterval sets how often media status is requested while
// playing.
func WithPollInterval(d time.Duration) BackendOption {
	return func(b *Backend) {
		if d > 0 {
			b.poll = d
		}
	}
}

// WithLogger sets the logger of the backend and its senders.
func WithLogger(logger zerolog.Logger) BackendOption {
	return func(b *Backend) {
		b.log = logger
	}
}

// WithSenderID sets the ID prefix used to identify senders to the
// receiver.
func WithSenderID(id string) BackendOption {
	return func(b *Backend) {
		b.senderID = id
	}
}

// Backend plays media on a Google Cast device. Each opened player has its
// own connection to the receiver.
type Backend struct {
	addr     string
	name     string
	senderID string
	poll     time.Duration
	log      zerolog.Logger

	dial func(ctx context.Context, addr string) (*castv2.Channel, error)
}

// NewBackend returns a Backend for the given device.
func NewBackend(dev *DeviceInfo, opts ...BackendOption) *Backend {
	b := &Backend{
		addr:     dev.TCPAddr().String(),
		name:     dev.Name,
		senderID: "sender-omnirender",
		poll:     DefaultPollInterval,
		log:      log.With().Str("component", "gcast").Logger(),
		dial:     castv2.Dial,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Name returns the friendly name of the Cast device.
func (b *Backend) Name() string {
	return b.name
}

// Open connects to the receiver, launches the default media receiver and
// loads media into it. Playback does not start until Play is called.
func (b *Backend) Open(ctx context.Context, media *url.URL, metadata omnirender.MediaMetadata, emit omnirender.EventFunc) (omnirender.MediaPlayer, error) {
	ch, err := b.dial(ctx, b.addr)
	if err != nil {
		return nil, err
	}

	s, err := b.open(ctx, ch, media, metadata, emit)
	if err != nil {
		ch.Close()
		return nil, err
	}

	return s, nil
}

func (b *Backend) open(ctx context.Context, ch *castv2.Channel, media *url.URL, metadata omnirender.MediaMetadata, emit omnirender.EventFunc) (*Sender, error) {
	r := NewReceiver(ch)

	app, err := r.Launch(ctx, DefaultReceiverAppID)
	if err != nil {
		return nil, err
	}

	id := b.senderID + "-" + uuid.NewString()[:8]
	s := newSender(id, r, app, emit, b.log.With().Str("sender", id).Logger())

	statuses := make(chan *castv2.Msg, 16)
	s.unsubscribe = ch.Subscribe(statuses)

	ms, err := r.Load(ctx, id, app, &MediaInformation{
		ContentID:   media.String(),
		ContentType: contentType(media),
		StreamType:  StreamTypeBuffered,
		Metadata:    newMediaMetadata(metadata),
	})
	if err != nil {
		s.unsubscribe()
		return nil, err
	}

	b.log.Info().Str("media", media.String()).Str("sender", id).Msg("media loaded")

	s.updateMediaStatus(ms)

	go s.watch(statuses)
	go s.poll(b.poll)

	return s, nil
}

func contentType(media *url.URL) string {
	ext := strings.ToLower(path.Ext(media.Path))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}

	return defaultContentType
}
