package gcast

import (
	"net/url"

	"github.com/ericyan/omnirender"
)

// Metadata types of a media.
const (
	GenericMetadata = 0
	MovieMetadata   = 1
	MusicMetadata   = 3
)

// MediaMetadata represents a generic media artifact.
//
// Ref: https://developers.google.com/cast/docs/reference/messages#GenericMediaMetadata
//      https://developers.google.com/cast/docs/reference/messages#Image
type MediaMetadata map[string]interface{}

// newMediaMetadata converts md into Cast metadata, or returns nil if md
// is nil.
func newMediaMetadata(md omnirender.MediaMetadata) MediaMetadata {
	if md == nil {
		return nil
	}

	m := MediaMetadata{
		"metadataType": GenericMetadata,
		"title":        md.Title(),
	}
	if s := md.Subtitle(); s != "" {
		m["subtitle"] = s
	}
	if u := md.ImageURL(); u != nil {
		m["images"] = []interface{}{
			map[string]interface{}{"url": u.String()},
		}
	}

	return m
}

// Title returns the descriptive title of the content.
func (m MediaMetadata) Title() string {
	s, _ := m["title"].(string)
	return s
}

// Subtitle returns the descriptive subtitle of the content.
func (m MediaMetadata) Subtitle() string {
	s, _ := m["subtitle"].(string)
	return s
}

// ImageURL returns the URL of the image.
func (m MediaMetadata) ImageURL() *url.URL {
	images, _ := m["images"].([]interface{})
	if len(images) == 0 {
		return nil
	}

	img, _ := images[0].(map[string]interface{})
	raw, _ := img["url"].(string)
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}

	return u
}
