package av

import (
	"strconv"
	"strings"

	"github.com/ericyan/omnirender/upnp"
	"github.com/ericyan/omnirender/upnp/internal/lastchange"
	"github.com/ericyan/omnirender/upnp/internal/soap"
)

// Action-specific errors defined in RenderingControl:1 service spec.
var (
	ErrInvalidPresetName        = &soap.Error{Code: 701, Description: "Invalid Name"}
	ErrInvalidRenderingInstance = &soap.Error{Code: 702, Description: "Invalid InstanceID"}
)

// DefaultVolume is the volume of the FactoryDefaults preset.
const DefaultVolume = 50

const (
	masterChannel  = "Master"
	factoryPreset  = "FactoryDefaults"
	maxVolumeLevel = 100
)

// Rendering is the RenderingControl state of instance 0. Muting never
// changes Volume.
type Rendering struct {
	Volume int
	Mute   bool
}

func newRendering() Rendering {
	return Rendering{Volume: DefaultVolume}
}

// level returns the effective output level between 0 and 1.
func (rc Rendering) level() float64 {
	if rc.Mute {
		return 0
	}

	return float64(rc.Volume) / maxVolumeLevel
}

func (rc Rendering) vars() []lastchange.Var {
	return []lastchange.Var{
		{Name: "Volume", Value: strconv.Itoa(rc.Volume)},
		{Name: "Mute", Value: formatBool(rc.Mute)},
		{Name: "PresetNameList", Value: factoryPreset},
	}
}

func (r *MediaRenderer) renderingControlSnapshot() []upnp.Property {
	rc := r.Rendering()
	payload := r.rcsChanges.Snapshot(rc.vars())

	return []upnp.Property{{Name: "LastChange", Value: string(payload)}}
}

// updateRendering applies f to the rendering state, records the changed
// variables and forwards the effective level to the pipeline.
func (r *MediaRenderer) updateRendering(f func(rc *Rendering)) {
	r.mu.Lock()
	before := r.rendering
	f(&r.rendering)
	after := r.rendering
	if after.Volume != before.Volume {
		r.rcsChanges.Record("Volume", strconv.Itoa(after.Volume))
	}
	if after.Mute != before.Mute {
		r.rcsChanges.Record("Mute", formatBool(after.Mute))
	}
	r.mu.Unlock()

	if after.level() != before.level() {
		r.pipe.SetVolume(after.level())
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}

	return strconv.ParseBool(strings.TrimSpace(s))
}

func formatBool(b bool) string {
	if b {
		return "1"
	}

	return "0"
}

func validChannel(req *soap.Request) bool {
	ch, _ := req.Arg("Channel")
	return ch == masterChannel
}

// renderingControl returns the RenderingControl service of the renderer.
//
// Spec: http://upnp.org/specs/av/UPnP-av-RenderingControl-v1-Service.pdf
func (r *MediaRenderer) renderingControl() *upnp.Service {
	svc := upnp.NewService("RenderingControl", 1)
	svc.EnableEvents(r.renderingControlSnapshot)

	svc.RegisterAction("ListPresets", query(ErrInvalidRenderingInstance, func(req *soap.Request, resp *soap.Response) {
		resp.Set("CurrentPresetNameList", factoryPreset)
	}))

	svc.RegisterAction("SelectPreset", r.mutation(ErrInvalidRenderingInstance, func(req *soap.Request, resp *soap.Response) {
		if name, _ := req.Arg("PresetName"); name != factoryPreset {
			resp.Error = ErrInvalidPresetName
			return
		}

		r.updateRendering(func(rc *Rendering) {
			*rc = newRendering()
		})
	}))

	svc.RegisterAction("GetVolume", query(ErrInvalidRenderingInstance, func(req *soap.Request, resp *soap.Response) {
		if !validChannel(req) {
			resp.Error = soap.ErrInvalidArgs
			return
		}

		resp.Set("CurrentVolume", strconv.Itoa(r.Rendering().Volume))
	}))

	svc.RegisterAction("SetVolume", r.mutation(ErrInvalidRenderingInstance, func(req *soap.Request, resp *soap.Response) {
		if !validChannel(req) {
			resp.Error = soap.ErrInvalidArgs
			return
		}

		desired, _ := req.Arg("DesiredVolume")
		vol, err := strconv.Atoi(strings.TrimSpace(desired))
		if err != nil {
			resp.Error = soap.ErrInvalidArgs
			return
		}
		if vol < 0 || vol > maxVolumeLevel {
			resp.Error = soap.ErrArgValueOutOfRange
			return
		}

		r.updateRendering(func(rc *Rendering) {
			rc.Volume = vol
		})
	}))

	svc.RegisterAction("GetMute", query(ErrInvalidRenderingInstance, func(req *soap.Request, resp *soap.Response) {
		if !validChannel(req) {
			resp.Error = soap.ErrInvalidArgs
			return
		}

		resp.Set("CurrentMute", formatBool(r.Rendering().Mute))
	}))

	svc.RegisterAction("SetMute", r.mutation(ErrInvalidRenderingInstance, func(req *soap.Request, resp *soap.Response) {
		if !validChannel(req) {
			resp.Error = soap.ErrInvalidArgs
			return
		}

		desired, _ := req.Arg("DesiredMute")
		mute, err := parseBool(desired)
		if err != nil {
			resp.Error = soap.ErrInvalidArgs
			return
		}

		r.updateRendering(func(rc *Rendering) {
			rc.Mute = mute
		})
	}))

	return svc
}
