package lastchange

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestFlushEncodesPendingChanges(t *testing.T) {
	clock := newClock()
	acc := New(NamespaceAVT, WithClock(clock.now))

	acc.Record("TransportState", "PLAYING")
	acc.Record("CurrentTrackDuration", "00:02:05")

	payload, ok := acc.Flush()
	require.True(t, ok)
	assert.Equal(t,
		`<Event xmlns="urn:schemas-upnp-org:metadata-1-0/AVT/"><InstanceID val="0">`+
			`<TransportState val="PLAYING"></TransportState>`+
			`<CurrentTrackDuration val="00:02:05"></CurrentTrackDuration>`+
			`</InstanceID></Event>`,
		string(payload))
	assert.Zero(t, acc.Pending())
}

func TestFlushLastWriteWins(t *testing.T) {
	acc := New(NamespaceAVT, WithClock(newClock().now))

	acc.Record("TransportState", "TRANSITIONING")
	acc.Record("RelativeTimePosition", "00:00:01")
	acc.Record("TransportState", "PLAYING")

	assert.Equal(t, 2, acc.Pending())

	payload, ok := acc.Flush()
	require.True(t, ok)
	assert.Contains(t, string(payload), `<TransportState val="PLAYING">`)
	assert.NotContains(t, string(payload), "TRANSITIONING")
	assert.Less(t,
		strings.Index(string(payload), "TransportState"),
		strings.Index(string(payload), "RelativeTimePosition"))
}

func TestFlushEmptyDoesNotTransmit(t *testing.T) {
	acc := New(NamespaceAVT, WithClock(newClock().now))

	payload, ok := acc.Flush()
	assert.False(t, ok)
	assert.Nil(t, payload)
}

func TestFlushRateLimited(t *testing.T) {
	clock := newClock()
	acc := New(NamespaceAVT, WithClock(clock.now))

	acc.Record("TransportState", "PLAYING")
	_, ok := acc.Flush()
	require.True(t, ok)

	clock.advance(50 * time.Millisecond)
	_, ok = acc.Flush()
	assert.False(t, ok, "second flush without changes must be empty")

	acc.Record("TransportState", "PAUSED_PLAYBACK")
	clock.advance(50 * time.Millisecond)
	_, ok = acc.Flush()
	assert.False(t, ok, "flush within the minimum interval must be held back")
	assert.Equal(t, 1, acc.Pending())

	clock.advance(MinInterval)
	payload, ok := acc.Flush()
	require.True(t, ok)
	assert.Contains(t, string(payload), `<TransportState val="PAUSED_PLAYBACK">`)

	clock.advance(time.Second)
	_, ok = acc.Flush()
	assert.False(t, ok)
}

func TestWithIntervalClampsToMinimum(t *testing.T) {
	clock := newClock()
	acc := New(NamespaceAVT, WithClock(clock.now), WithInterval(10*time.Millisecond))

	acc.Record("A", "1")
	_, ok := acc.Flush()
	require.True(t, ok)

	acc.Record("A", "2")
	clock.advance(100 * time.Millisecond)
	_, ok = acc.Flush()
	assert.False(t, ok)

	clock.advance(100 * time.Millisecond)
	_, ok = acc.Flush()
	assert.True(t, ok)
}

func TestChannelVariables(t *testing.T) {
	acc := New(NamespaceRCS, WithClock(newClock().now), WithChannel("Master", "Volume", "Mute"))

	acc.Record("Volume", "50")
	acc.Record("PresetNameList", "FactoryDefaults")

	payload, ok := acc.Flush()
	require.True(t, ok)
	assert.Equal(t,
		`<Event xmlns="urn:schemas-upnp-org:metadata-1-0/RCS/"><InstanceID val="0">`+
			`<Volume channel="Master" val="50"></Volume>`+
			`<PresetNameList val="FactoryDefaults"></PresetNameList>`+
			`</InstanceID></Event>`,
		string(payload))
}

func TestSnapshotLeavesPendingSetAlone(t *testing.T) {
	acc := New(NamespaceRCS, WithChannel("Master", "Mute"))
	acc.Record("Volume", "10")

	snap := acc.Snapshot([]Var{{Name: "Mute", Value: "0"}, {Name: "Volume", Value: "10", Channel: "Master"}})
	assert.Contains(t, string(snap), `<Mute channel="Master" val="0">`)
	assert.Contains(t, string(snap), `<Volume channel="Master" val="10">`)
	assert.Equal(t, 1, acc.Pending())
}

func TestValuesAreEscaped(t *testing.T) {
	acc := New(NamespaceAVT)
	acc.Record("AVTransportURIMetaData", `<DIDL-Lite a="b"/>`)

	payload, ok := acc.Flush()
	require.True(t, ok)
	assert.Contains(t, string(payload), `val="&lt;DIDL-Lite a=&#34;b&#34;/&gt;"`)
}
