package upnp

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"text/template"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rakyll/statik/fs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ericyan/omnirender/upnp/internal/gena"
	_ "github.com/ericyan/omnirender/upnp/internal/scpd"
	"github.com/ericyan/omnirender/upnp/internal/soap"
	"github.com/ericyan/omnirender/upnp/internal/ssdp"
)

func init() {
	chi.RegisterMethod("SUBSCRIBE")
	chi.RegisterMethod("UNSUBSCRIBE")
}

type Device struct {
	Name    string
	Type    string
	Version uint

	// SubscriptionTimeout is granted to subscribers that do not ask for
	// a specific timeout.
	SubscriptionTimeout time.Duration

	uuid     uuid.UUID
	services map[string]*Service
	router   chi.Router
	scpd     http.FileSystem
	log      zerolog.Logger
}

func NewDevice(name, deviceType string, ver uint) *Device {
	dev := &Device{
		Name:    name,
		Type:    deviceType,
		Version: ver,

		SubscriptionTimeout: gena.DefaultTimeout,

		uuid:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(name+deviceType)),
		services: make(map[string]*Service),
		log:      log.With().Str("component", "upnp").Logger(),
	}

	scpd, err := fs.New()
	if err != nil {
		dev.log.Error().Err(err).Msg("service descriptions unavailable")
	}
	dev.scpd = scpd

	r := chi.NewRouter()
	r.Use(dev.logRequests)
	r.Use(middleware.Recoverer)
	r.Get("/", dev.serveDescription)
	r.Get("/services/{svc}", dev.serveSCPD)
	r.Post("/services/{svc}", dev.serveControl)
	r.MethodFunc("SUBSCRIBE", "/services/{svc}/events", dev.serveSubscribe)
	r.MethodFunc("UNSUBSCRIBE", "/services/{svc}/events", dev.serveUnsubscribe)
	dev.router = r

	return dev
}

func (dev *Device) RegisterService(svc *Service) {
	if svc != nil {
		dev.services[svc.Type] = svc
	}
}

func (dev *Device) UDN() string {
	return "uuid:" + dev.uuid.String()
}

func (dev *Device) URN() string {
	return "urn:schemas-upnp-org:device:" + dev.Type + ":" + strconv.Itoa(int(dev.Version))
}

func (dev *Device) Services() map[string]*Service {
	return dev.services
}

func (dev *Device) ServiceURNs() []string {
	urns := make([]string, 0, len(dev.services))
	for _, svc := range dev.services {
		urns = append(urns, svc.URN())
	}
	sort.Strings(urns)

	return urns
}

// Start starts the event publishers of all evented services.
func (dev *Device) Start() error {
	for _, svc := range dev.services {
		if svc.events == nil {
			continue
		}
		if err := svc.events.Start(); err != nil {
			return err
		}
	}

	return nil
}

// Close drops all event subscriptions.
func (dev *Device) Close() error {
	for _, svc := range dev.services {
		if svc.events != nil {
			svc.events.Stop()
		}
	}

	return nil
}

func (dev *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dev.router.ServeHTTP(w, r)
}

func (dev *Device) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		dev.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Str("soapaction", r.Header.Get("SOAPAction")).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (dev *Device) service(w http.ResponseWriter, r *http.Request) (*Service, bool) {
	st := chi.URLParam(r, "svc")

	svc, ok := dev.services[st]
	if !ok {
		dev.log.Debug().Str("service", st).Msg("service not found")
		http.NotFound(w, r)
		return nil, false
	}

	return svc, true
}

func (dev *Device) serveDescription(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	if err := dev.writeDevice(w); err != nil {
		dev.log.Error().Err(err).Msg("failed to write device description")
	}
}

func (dev *Device) serveSCPD(w http.ResponseWriter, r *http.Request) {
	svc, ok := dev.service(w, r)
	if !ok {
		return
	}

	if dev.scpd == nil {
		http.NotFound(w, r)
		return
	}

	filename := "/" + svc.Type + ".xml"
	f, err := dev.scpd.Open(filename)
	if err != nil {
		dev.log.Error().Err(err).Str("file", filename).Msg("service description not found")
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	http.ServeContent(w, r, filename, time.Time{}, f)
}

func (dev *Device) serveControl(w http.ResponseWriter, r *http.Request) {
	svc, ok := dev.service(w, r)
	if !ok {
		return
	}

	var resp *soap.Response
	req, err := soap.ParseHTTPRequest(r)
	if err != nil {
		dev.log.Warn().Err(err).Str("service", svc.Type).Msg("malformed control request")
		resp = &soap.Response{Error: soap.ErrInvalidAction}
	} else {
		resp = svc.HandleRequest(req)
		if resp.Error != nil {
			dev.log.Info().Str("action", req.Action.Name).Int("code", resp.Error.Code).Msg(resp.Error.Description)
		}
	}

	if err := resp.WriteHTTP(w); err != nil {
		dev.log.Error().Err(err).Msg("failed to write control response")
	}
}

func (dev *Device) serveSubscribe(w http.ResponseWriter, r *http.Request) {
	svc, ok := dev.service(w, r)
	if !ok {
		return
	}
	if !svc.Evented() {
		http.Error(w, "Service not evented", http.StatusMethodNotAllowed)
		return
	}

	timeout := dev.SubscriptionTimeout
	if h := r.Header.Get("TIMEOUT"); h != "" {
		timeout = gena.ParseTimeout(h)
	}

	if sid := r.Header.Get("SID"); sid != "" {
		if r.Header.Get("CALLBACK") != "" || r.Header.Get("NT") != "" {
			http.Error(w, "Incompatible header fields", http.StatusBadRequest)
			return
		}

		granted, err := svc.events.Renew(sid, timeout)
		if err != nil {
			http.Error(w, err.Error(), http.StatusPreconditionFailed)
			return
		}

		dev.writeSubscription(w, sid, granted)
		return
	}

	if r.Header.Get("NT") != "upnp:event" {
		http.Error(w, "Invalid NT", http.StatusPreconditionFailed)
		return
	}

	callbacks, err := gena.ParseCallback(r.Header.Get("CALLBACK"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
		return
	}

	var initial []Property
	if svc.initial != nil {
		initial = svc.initial()
	}

	grant, err := svc.events.Subscribe(callbacks, timeout, initial)
	if err != nil {
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
		return
	}

	dev.writeSubscription(w, grant.SID, grant.Timeout)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	grant.Release()
}

func (dev *Device) writeSubscription(w http.ResponseWriter, sid string, timeout time.Duration) {
	w.Header().Set("DATE", time.Now().UTC().Format(http.TimeFormat))
	w.Header().Set("SERVER", ssdp.ServerName)
	w.Header().Set("SID", sid)
	w.Header().Set("TIMEOUT", gena.FormatTimeout(timeout))
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func (dev *Device) serveUnsubscribe(w http.ResponseWriter, r *http.Request) {
	svc, ok := dev.service(w, r)
	if !ok {
		return
	}
	if !svc.Evented() {
		http.Error(w, "Service not evented", http.StatusMethodNotAllowed)
		return
	}

	sid := r.Header.Get("SID")
	if sid == "" {
		http.Error(w, "Missing SID", http.StatusPreconditionFailed)
		return
	}
	if r.Header.Get("CALLBACK") != "" || r.Header.Get("NT") != "" {
		http.Error(w, "Incompatible header fields", http.StatusBadRequest)
		return
	}

	if err := svc.events.Unsubscribe(sid); err != nil {
		if errors.Is(err, gena.ErrSubscriptionNotFound) {
			http.Error(w, err.Error(), http.StatusPreconditionFailed)
			return
		}

		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Location returns the URL of the device description served at addr.
func Location(addr string) *url.URL {
	return &url.URL{Scheme: "http", Host: addr, Path: "/"}
}

const deviceTemplate = `<?xml version="1.0" encoding="utf-8" standalone="yes"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion>
    <major>1</major>
    <minor>0</minor>
  </specVersion>
  <device>
    <deviceType>{{.URN}}</deviceType>
    <UDN>{{.UDN}}</UDN>
    <friendlyName>{{escape .Name}}</friendlyName>
    <manufacturer>Eric Yan</manufacturer>
    <manufacturerURL>https://ericyan.me/</manufacturerURL>
    <modelName>Omnirender</modelName>
    <modelDescription>DLNA media renderer written in Go</modelDescription>
    <modelNumber>0.2</modelNumber>
    <modelURL>http://github.com/ericyan/omnirender</modelURL>
    <dlna:X_DLNADOC xmlns:dlna="urn:schemas-dlna-org:device-1-0">DMR-1.50</dlna:X_DLNADOC>
    <serviceList>
    {{- range $path, $svc := .Services }}
      <service>
        <serviceType>{{$svc.URN}}</serviceType>
        <serviceId>urn:upnp-org:serviceId:{{$svc.Type}}</serviceId>
        <controlURL>/services/{{$path}}</controlURL>
        <eventSubURL>/services/{{$path}}/events</eventSubURL>
        <SCPDURL>/services/{{$path}}</SCPDURL>
      </service>
    {{- end}}
    </serviceList>
  </device>
</root>`

var deviceTpl = template.Must(template.New("device").Funcs(template.FuncMap{
	"escape": template.HTMLEscapeString,
}).Parse(deviceTemplate))

func (dev *Device) writeDevice(w io.Writer) error {
	return deviceTpl.Execute(w, dev)
}
