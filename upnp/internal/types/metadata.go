package types

import (
	"errors"
	"net/url"

	"github.com/ericyan/omnirender/upnp/internal/didl"
)

// Metadata implements the omnirender.MediaMetadata interface.
type Metadata struct {
	title       string
	subtitle    string
	class       string
	contentType string
	image       *url.URL
}

// Title returns the descriptive title of the content.
func (m *Metadata) Title() string {
	return m.title
}

// Subtitle returns the descriptive subtitle of the content, which is
// the album or artist for music tracks.
func (m *Metadata) Subtitle() string {
	return m.subtitle
}

// ImageURL returns the URL of the image.
func (m *Metadata) ImageURL() *url.URL {
	return m.image
}

// Class returns the upnp:class of the item.
func (m *Metadata) Class() string {
	return m.class
}

// ContentType returns the MIME type advertised for the first resource.
func (m *Metadata) ContentType() string {
	return m.contentType
}

// UnmarshalText fills the Struct with media metadata described in the
// DIDL-Lite XML fragment.
func (m *Metadata) UnmarshalText(data []byte) error {
	doc, err := didl.Parse(data)
	if err != nil {
		return err
	}
	if len(doc.Items) == 0 {
		return errors.New("didl: no item")
	}

	item := &doc.Items[0]

	m.title = item.Value(didl.NamespaceDC, "title")
	m.class = item.Value(didl.NamespaceUPnP, "class")

	m.subtitle = item.Value(didl.NamespaceUPnP, "album")
	if m.subtitle == "" {
		m.subtitle = item.Value(didl.NamespaceUPnP, "artist")
	}
	if m.subtitle == "" {
		m.subtitle = item.Value(didl.NamespaceDC, "creator")
	}

	if art := item.Value(didl.NamespaceUPnP, "albumArtURI"); art != "" {
		if u, err := url.Parse(art); err == nil {
			m.image = u
		}
	}

	if len(item.Resources) > 0 {
		m.contentType = item.Resources[0].ContentType()
	}

	return nil
}
