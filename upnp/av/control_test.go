package av

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericyan/omnirender/pipeline/pipelinetest"
)

func TestVolume(t *testing.T) {
	backend := &pipelinetest.Backend{}
	r := newTestRenderer(t, backend)

	requireOK(t, avt(r, "SetAVTransportURI", "CurrentURI", testURI))
	requireOK(t, avt(r, "Play", "Speed", "1"))
	require.Eventually(t, func() bool {
		p := backend.Last()
		return p != nil && len(p.Calls()) == 2
	}, time.Second, 5*time.Millisecond)
	p := backend.Last()

	resp := rcs(r, "SetVolume", "DesiredVolume", "101")
	require.NotNil(t, resp.Error)
	assert.Equal(t, 601, resp.Error.Code)

	resp = rcs(r, "SetVolume", "DesiredVolume", "-1")
	require.NotNil(t, resp.Error)
	assert.Equal(t, 601, resp.Error.Code)

	resp = rcs(r, "SetVolume", "DesiredVolume", "loud")
	require.NotNil(t, resp.Error)
	assert.Equal(t, 402, resp.Error.Code)

	resp = rcs(r, "SetVolume", "Channel", "LF", "DesiredVolume", "10")
	require.NotNil(t, resp.Error)
	assert.Equal(t, 402, resp.Error.Code)
	assert.Equal(t, DefaultVolume, r.Rendering().Volume)

	requireOK(t, rcs(r, "SetVolume", "DesiredVolume", "30"))
	assert.Equal(t, "30", rcs(r, "GetVolume").Get("CurrentVolume"))
	assert.InDelta(t, 0.3, p.Volume(), 1e-9)
}

func TestMute(t *testing.T) {
	backend := &pipelinetest.Backend{}
	r := newTestRenderer(t, backend)

	requireOK(t, avt(r, "SetAVTransportURI", "CurrentURI", testURI))
	requireOK(t, avt(r, "Play", "Speed", "1"))
	require.Eventually(t, func() bool {
		p := backend.Last()
		return p != nil && len(p.Calls()) == 2
	}, time.Second, 5*time.Millisecond)
	p := backend.Last()

	requireOK(t, rcs(r, "SetVolume", "DesiredVolume", "70"))

	requireOK(t, rcs(r, "SetMute", "DesiredMute", "1"))
	assert.Equal(t, "1", rcs(r, "GetMute").Get("CurrentMute"))
	assert.Equal(t, "70", rcs(r, "GetVolume").Get("CurrentVolume"))
	assert.Zero(t, p.Volume())

	requireOK(t, rcs(r, "SetMute", "DesiredMute", "false"))
	assert.Equal(t, "0", rcs(r, "GetMute").Get("CurrentMute"))
	assert.InDelta(t, 0.7, p.Volume(), 1e-9)

	resp := rcs(r, "SetMute", "DesiredMute", "maybe")
	require.NotNil(t, resp.Error)
	assert.Equal(t, 402, resp.Error.Code)
}

func TestSetVolumeWhileMuted(t *testing.T) {
	backend := &pipelinetest.Backend{}
	r := newTestRenderer(t, backend)

	requireOK(t, avt(r, "SetAVTransportURI", "CurrentURI", testURI))
	requireOK(t, avt(r, "Play", "Speed", "1"))
	require.Eventually(t, func() bool {
		p := backend.Last()
		return p != nil && len(p.Calls()) == 2
	}, time.Second, 5*time.Millisecond)
	p := backend.Last()

	requireOK(t, rcs(r, "SetMute", "DesiredMute", "1"))
	assert.Zero(t, p.Volume())

	requireOK(t, rcs(r, "SetVolume", "DesiredVolume", "30"))
	assert.Equal(t, "30", rcs(r, "GetVolume").Get("CurrentVolume"))
	assert.Equal(t, "1", rcs(r, "GetMute").Get("CurrentMute"))
	assert.Zero(t, p.Volume())

	requireOK(t, rcs(r, "SetMute", "DesiredMute", "0"))
	assert.InDelta(t, 0.3, p.Volume(), 1e-9)
}

func TestVolumeKeptAcrossLoads(t *testing.T) {
	backend := &pipelinetest.Backend{}
	r := newTestRenderer(t, backend)

	requireOK(t, rcs(r, "SetVolume", "DesiredVolume", "20"))
	requireOK(t, rcs(r, "SetMute", "DesiredMute", "yes"))

	requireOK(t, avt(r, "SetAVTransportURI", "CurrentURI", testURI))
	requireOK(t, avt(r, "Play", "Speed", "1"))
	require.Eventually(t, func() bool {
		p := backend.Last()
		return p != nil && len(p.Calls()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, backend.Last().Volume())

	requireOK(t, rcs(r, "SetMute", "DesiredMute", "no"))
	assert.InDelta(t, 0.2, backend.Last().Volume(), 1e-9)
}

func TestPresets(t *testing.T) {
	r := newTestRenderer(t, &pipelinetest.Backend{})

	assert.Equal(t, "FactoryDefaults", rcs(r, "ListPresets").Get("CurrentPresetNameList"))

	requireOK(t, rcs(r, "SetVolume", "DesiredVolume", "90"))
	requireOK(t, rcs(r, "SetMute", "DesiredMute", "1"))

	resp := rcs(r, "SelectPreset", "PresetName", "Loud")
	require.NotNil(t, resp.Error)
	assert.Equal(t, 701, resp.Error.Code)

	requireOK(t, rcs(r, "SelectPreset", "PresetName", "FactoryDefaults"))
	assert.Equal(t, Rendering{Volume: DefaultVolume}, r.Rendering())
}

func TestRenderingLastChange(t *testing.T) {
	r := newTestRenderer(t, &pipelinetest.Backend{})

	requireOK(t, rcs(r, "SetVolume", "DesiredVolume", "10"))
	requireOK(t, rcs(r, "SetVolume", "DesiredVolume", "15"))
	requireOK(t, rcs(r, "SetMute", "DesiredMute", "1"))

	payload, ok := r.rcsChanges.Flush()
	require.True(t, ok)
	assert.Equal(t,
		`<Event xmlns="urn:schemas-upnp-org:metadata-1-0/RCS/"><InstanceID val="0">`+
			`<Volume channel="Master" val="15"></Volume>`+
			`<Mute channel="Master" val="1"></Mute>`+
			`</InstanceID></Event>`,
		string(payload))

	props := r.renderingControlSnapshot()
	require.Len(t, props, 1)
	assert.Contains(t, props[0].Value, `<PresetNameList val="FactoryDefaults">`)
}
