package upnp

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ericyan/omnirender/upnp/internal/gena"
	"github.com/ericyan/omnirender/upnp/internal/soap"
)

// ActionFunc handles a SOAP action. It reads the input arguments from req
// and sets the output arguments, in contract order, or an error on resp.
type ActionFunc func(req *soap.Request, resp *soap.Response)

// Property is an evented state variable and its value.
type Property = gena.Property

type Service struct {
	Type    string
	Version uint

	actions map[string]ActionFunc

	events  *gena.Publisher
	initial func() []Property
}

func NewService(serviceType string, ver uint) *Service {
	return &Service{
		Type:    serviceType,
		Version: ver,
		actions: make(map[string]ActionFunc),
	}
}

func (svc *Service) URN() string {
	return "urn:schemas-upnp-org:service:" + svc.Type + ":" + strconv.Itoa(int(svc.Version))
}

func (svc *Service) RegisterAction(name string, handler ActionFunc) {
	svc.actions[name] = handler
}

// Actions returns the names of the registered actions in sorted order.
func (svc *Service) Actions() []string {
	names := make([]string, 0, len(svc.actions))
	for name := range svc.actions {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (svc *Service) HandleRequest(req *soap.Request) *soap.Response {
	resp := new(soap.Response)
	resp.Action = req.Action

	if !strings.HasPrefix(req.Action.Namespace, "urn:schemas-upnp-org:service:"+svc.Type+":") {
		resp.Error = soap.ErrInvalidAction
		return resp
	}

	handler, ok := svc.actions[req.Action.Name]
	if !ok {
		resp.Error = soap.ErrInvalidAction
		return resp
	}

	handler(req, resp)
	return resp
}

// EnableEvents makes the service evented. The initial function returns
// the complete set of evented variables sent to each new subscriber.
func (svc *Service) EnableEvents(initial func() []Property, opts ...gena.Option) {
	svc.events = gena.NewPublisher(opts...)
	svc.initial = initial
}

// Evented reports whether the service accepts event subscriptions.
func (svc *Service) Evented() bool {
	return svc.events != nil
}

// Publish sends an event to all subscribers. It is a no-op for services
// without eventing.
func (svc *Service) Publish(props ...Property) {
	if svc.events == nil {
		return
	}

	svc.events.Publish(props...)
}

// Subscribers returns the number of active event subscriptions.
func (svc *Service) Subscribers() int {
	if svc.events == nil {
		return 0
	}

	return svc.events.Len()
}
