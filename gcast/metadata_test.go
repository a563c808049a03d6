package gcast

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackInfo struct {
	title, subtitle string
	image           *url.URL
}

func (ti trackInfo) Title() string      { return ti.title }
func (ti trackInfo) Subtitle() string   { return ti.subtitle }
func (ti trackInfo) ImageURL() *url.URL { return ti.image }

func TestNewMediaMetadata(t *testing.T) {
	assert.Nil(t, newMediaMetadata(nil))

	img, _ := url.Parse("http://192.168.1.2/cover.jpg")
	md := newMediaMetadata(trackInfo{"Song", "Artist", img})

	assert.Equal(t, "Song", md.Title())
	assert.Equal(t, "Artist", md.Subtitle())
	assert.Equal(t, img, md.ImageURL())

	data, err := json.Marshal(md)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"metadataType": 0,
		"title": "Song",
		"subtitle": "Artist",
		"images": [{"url": "http://192.168.1.2/cover.jpg"}]
	}`, string(data))
}

func TestMediaMetadataFromReceiver(t *testing.T) {
	var md MediaMetadata
	require.NoError(t, json.Unmarshal([]byte(`{
		"metadataType": 3,
		"title": "Track",
		"images": [{"url": "http://example.com/a.png", "width": 64}]
	}`), &md))

	assert.Equal(t, "Track", md.Title())
	assert.Equal(t, "", md.Subtitle())
	assert.Equal(t, "http://example.com/a.png", md.ImageURL().String())

	assert.Nil(t, MediaMetadata{"title": 42}.ImageURL())
	assert.Equal(t, "", MediaMetadata{"title": 42}.Title())
}
