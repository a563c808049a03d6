package scpd

import (
	"encoding/xml"
	"io"
	"testing"

	"github.com/rakyll/statik/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type description struct {
	Actions []struct {
		Name string `xml:"name"`
	} `xml:"actionList>action"`
	Vars []struct {
		Name       string `xml:"name"`
		SendEvents string `xml:"sendEvents,attr"`
	} `xml:"serviceStateTable>stateVariable"`
}

func load(t *testing.T, name string) *description {
	t.Helper()

	hfs, err := fs.New()
	require.NoError(t, err)

	f, err := hfs.Open(name)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)

	desc := new(description)
	require.NoError(t, xml.Unmarshal(data, desc))
	return desc
}

func names(desc *description) []string {
	var out []string
	for _, a := range desc.Actions {
		out = append(out, a.Name)
	}
	return out
}

func TestServiceDescriptions(t *testing.T) {
	avt := load(t, "/AVTransport.xml")
	assert.Subset(t, names(avt), []string{
		"SetAVTransportURI", "Play", "Pause", "Stop", "Seek",
		"GetTransportInfo", "GetMediaInfo", "GetPositionInfo",
	})

	rcs := load(t, "/RenderingControl.xml")
	assert.Subset(t, names(rcs), []string{"GetVolume", "SetVolume", "GetMute", "SetMute"})

	cm := load(t, "/ConnectionManager.xml")
	assert.Subset(t, names(cm), []string{"GetProtocolInfo", "GetCurrentConnectionIDs", "GetCurrentConnectionInfo"})
}

func TestOnlyLastChangeIsEvented(t *testing.T) {
	for _, name := range []string{"/AVTransport.xml", "/RenderingControl.xml"} {
		for _, v := range load(t, name).Vars {
			if v.Name == "LastChange" {
				assert.Equal(t, "yes", v.SendEvents, name)
			} else {
				assert.Equal(t, "no", v.SendEvents, "%s %s", name, v.Name)
			}
		}
	}
}

func TestMissingFile(t *testing.T) {
	hfs, err := fs.New()
	require.NoError(t, err)

	_, err = hfs.Open("/Missing.xml")
	assert.Error(t, err)
}
