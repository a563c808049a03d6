package types

import "testing"

const metadataTestCase = `<?xml version="1.0" encoding="UTF-8"?>
<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">
  <item id="1" parentID="-1" restricted="1">
    <dc:title>WALL-E</dc:title>
    <dc:creator>Pixar</dc:creator>
    <upnp:class>object.item.videoItem.movie</upnp:class>
    <upnp:genre>Unknown</upnp:genre>
    <upnp:albumArtURI>http://x/poster.jpg</upnp:albumArtURI>
    <upnp:storageMedium>UNKNOWN</upnp:storageMedium>
    <upnp:writeStatus>UNKNOWN</upnp:writeStatus>
    <res protocolInfo="http-get:*:video/mp4:*">http://x/video.mp4</res>
  </item>
</DIDL-Lite>`

func TestMetadata(t *testing.T) {
	m := new(Metadata)
	if err := m.UnmarshalText([]byte(metadataTestCase)); err != nil {
		t.Fatal(err)
	}

	if m.Title() != "WALL-E" {
		t.Errorf("Unexpected title: '%s'", m.Title())
	}
	if m.Subtitle() != "Pixar" {
		t.Errorf("Unexpected subtitle: '%s'", m.Subtitle())
	}
	if m.Class() != "object.item.videoItem.movie" {
		t.Errorf("Unexpected class: '%s'", m.Class())
	}
	if m.ContentType() != "video/mp4" {
		t.Errorf("Unexpected content type: '%s'", m.ContentType())
	}
	if u := m.ImageURL(); u == nil || u.String() != "http://x/poster.jpg" {
		t.Errorf("Unexpected image URL: %v", u)
	}
}

func TestMetadataEmptyDocument(t *testing.T) {
	m := new(Metadata)
	if err := m.UnmarshalText([]byte(`<DIDL-Lite></DIDL-Lite>`)); err == nil {
		t.Error("expected error for document without items")
	}
}
