package mpris

import (
	"net/url"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// noTrack is the track id of a player without a current track.
const noTrack = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")

// Metadata is a mapping from metadata attribute names to values.
//
// https://www.freedesktop.org/wiki/Specifications/mpris-spec/metadata/
type Metadata map[string]dbus.Variant

// TrackID returns the mpris:trackid, or the NoTrack path if there is none.
func (m Metadata) TrackID() dbus.ObjectPath {
	v, ok := m["mpris:trackid"]
	if !ok {
		return noTrack
	}

	switch id := v.Value().(type) {
	case dbus.ObjectPath:
		return id
	case string:
		return dbus.ObjectPath(id)
	default:
		return noTrack
	}
}

func (m Metadata) str(key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}

	switch s := v.Value().(type) {
	case string:
		return s
	case []string:
		return strings.Join(s, ", ")
	default:
		return strings.Trim(v.String(), `"`)
	}
}

// Title returns the descriptive title of the content.
func (m Metadata) Title() string {
	return m.str("xesam:title")
}

// Subtitle returns the descriptive subtitle of the content. Usually,
// the name of the album.
func (m Metadata) Subtitle() string {
	return m.str("xesam:album")
}

// Length returns the duration of the media, or zero if it is unknown.
// Players disagree on the integer type of mpris:length.
func (m Metadata) Length() time.Duration {
	v, ok := m["mpris:length"]
	if !ok {
		return 0
	}

	var us int64
	switch n := v.Value().(type) {
	case int64:
		us = n
	case uint64:
		us = int64(n)
	case int32:
		us = int64(n)
	case uint32:
		us = int64(n)
	default:
		return 0
	}

	return time.Duration(us) * time.Microsecond
}

func (m Metadata) url(key string) *url.URL {
	s := m.str(key)
	if s == "" {
		return nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil
	}

	return u
}

// MediaURL returns the URL of the media content.
func (m Metadata) MediaURL() *url.URL {
	return m.url("xesam:url")
}

// ImageURL returns the URL of the image.
func (m Metadata) ImageURL() *url.URL {
	return m.url("mpris:artUrl")
}
