package av

import (
	"strings"

	"github.com/ericyan/omnirender/upnp"
	"github.com/ericyan/omnirender/upnp/internal/soap"
)

// ErrInvalidConnectionReference is returned for connection IDs other
// than 0.
var ErrInvalidConnectionReference = &soap.Error{Code: 706, Description: "Invalid connection reference"}

// sinkProtocols lists the formats accepted by the renderer.
var sinkProtocols = []string{
	"http-get:*:audio/mpeg:*",
	"http-get:*:audio/mp4:*",
	"http-get:*:audio/aac:*",
	"http-get:*:audio/flac:*",
	"http-get:*:audio/x-flac:*",
	"http-get:*:audio/ogg:*",
	"http-get:*:audio/wav:*",
	"http-get:*:audio/x-wav:*",
	"http-get:*:audio/L16:*",
	"http-get:*:video/mp4:*",
	"http-get:*:video/webm:*",
	"http-get:*:video/x-matroska:*",
	"http-get:*:image/jpeg:*",
	"http-get:*:image/png:*",
}

func sinkProtocolInfo() string {
	return strings.Join(sinkProtocols, ",")
}

// connectionManager returns the ConnectionManager service of a renderer
// with the single connection 0.
//
// Spec: http://upnp.org/specs/av/UPnP-av-ConnectionManager-v1-Service.pdf
func connectionManager() *upnp.Service {
	svc := upnp.NewService("ConnectionManager", 1)
	svc.EnableEvents(func() []upnp.Property {
		return []upnp.Property{
			{Name: "SourceProtocolInfo", Value: ""},
			{Name: "SinkProtocolInfo", Value: sinkProtocolInfo()},
			{Name: "CurrentConnectionIDs", Value: "0"},
		}
	})

	svc.RegisterAction("GetProtocolInfo", func(req *soap.Request, resp *soap.Response) {
		resp.Set("Source", "")
		resp.Set("Sink", sinkProtocolInfo())
	})

	svc.RegisterAction("GetCurrentConnectionIDs", func(req *soap.Request, resp *soap.Response) {
		resp.Set("ConnectionIDs", "0")
	})

	svc.RegisterAction("GetCurrentConnectionInfo", func(req *soap.Request, resp *soap.Response) {
		if id, _ := req.Arg("ConnectionID"); id != "0" {
			resp.Error = ErrInvalidConnectionReference
			return
		}

		resp.Set("RcsID", "0")
		resp.Set("AVTransportID", "0")
		resp.Set("ProtocolInfo", "")
		resp.Set("PeerConnectionManager", "")
		resp.Set("PeerConnectionID", "-1")
		resp.Set("Direction", "Input")
		resp.Set("Status", "OK")
	})

	return svc
}
