package gcast

import (
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
)

func TestParseEntry(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		Port:     8009,
		AddrIPv4: []net.IP{net.IPv4(192, 168, 1, 10)},
		Text: []string{
			"id=4f0c1d3e9b8a4c2d8e7f6a5b4c3d2e1f",
			"md=Chromecast",
			"fn=Living Room",
			"ca=4101",
			"broken",
		},
	}

	dev := parseEntry(entry)

	assert.Equal(t, uuid.MustParse("4f0c1d3e-9b8a-4c2d-8e7f-6a5b4c3d2e1f"), dev.UUID)
	assert.Equal(t, "Living Room", dev.Name)
	assert.Equal(t, "Chromecast", dev.Model)
	assert.Equal(t, "192.168.1.10:8009", dev.TCPAddr().String())
	assert.Equal(t, "Living Room (Chromecast) at 192.168.1.10:8009", dev.String())
	assert.Nil(t, dev.IPv6)

	assert.Equal(t, []DeviceCapability{VideoOut, AudioOut}, dev.Capabilities())
	assert.True(t, dev.CapableOf(VideoOut, AudioOut))
	assert.False(t, dev.CapableOf(AudioOut, AudioIn))
}

func TestParseEntryBadCapabilities(t *testing.T) {
	dev := parseEntry(&zeroconf.ServiceEntry{Text: []string{"ca=oops"}})

	assert.Empty(t, dev.Capabilities())
	assert.True(t, dev.CapableOf())
	assert.False(t, dev.CapableOf(AudioOut))
}

func TestDeviceCapabilityString(t *testing.T) {
	assert.Equal(t, "audio_out", AudioOut.String())
	assert.Equal(t, "multizone_group", MultizoneGroup.String())
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "64", DeviceCapability(64).String())
}
