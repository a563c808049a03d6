// Package lastchange accumulates evented state variable changes into
// LastChange payloads.
//
// Spec: http://upnp.org/specs/av/UPnP-av-AVTransport-v1-Service.pdf (2.3.1)
package lastchange

import (
	"encoding/xml"
	"sync"
	"time"
)

// Event namespaces of the AVTransport and RenderingControl services.
const (
	NamespaceAVT = "urn:schemas-upnp-org:metadata-1-0/AVT/"
	NamespaceRCS = "urn:schemas-upnp-org:metadata-1-0/RCS/"
)

// MinInterval is the minimum time between two flushes.
const MinInterval = 200 * time.Millisecond

// Var is an evented state variable and its value.
type Var struct {
	Name    string
	Value   string
	Channel string
}

// An Accumulator records state variable changes and flushes them as a
// LastChange payload at a bounded rate.
type Accumulator struct {
	mu sync.Mutex

	namespace  string
	instanceID string
	interval   time.Duration
	channels   map[string]string
	now        func() time.Time

	pending   []Var
	index     map[string]int
	lastFlush time.Time
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithInterval sets the minimum time between flushes. Values below
// MinInterval are raised to MinInterval.
func WithInterval(d time.Duration) Option {
	return func(a *Accumulator) {
		if d < MinInterval {
			d = MinInterval
		}
		a.interval = d
	}
}

// WithChannel marks the named variables as per-channel, so that they are
// encoded with the given channel attribute.
func WithChannel(channel string, names ...string) Option {
	return func(a *Accumulator) {
		for _, name := range names {
			a.channels[name] = channel
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) {
		a.now = now
	}
}

// New returns an Accumulator producing events in the given namespace for
// instance 0.
func New(namespace string, opts ...Option) *Accumulator {
	a := &Accumulator{
		namespace:  namespace,
		instanceID: "0",
		interval:   MinInterval,
		channels:   make(map[string]string),
		now:        time.Now,
		index:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Record merges a change into the pending set. Within one flush window
// the last value recorded for a variable wins, while the variable keeps
// the position of its first change.
func (a *Accumulator) Record(name, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if i, ok := a.index[name]; ok {
		a.pending[i].Value = value
		return
	}

	a.index[name] = len(a.pending)
	a.pending = append(a.pending, Var{Name: name, Value: value, Channel: a.channels[name]})
}

// Pending returns the number of variables waiting to be flushed.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.pending)
}

// Flush returns the pending changes as a LastChange payload and clears
// them. It returns false without clearing anything if there are no
// changes or the minimum interval since the previous flush has not
// elapsed yet.
func (a *Accumulator) Flush() ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pending) == 0 {
		return nil, false
	}

	now := a.now()
	if !a.lastFlush.IsZero() && now.Sub(a.lastFlush) < a.interval {
		return nil, false
	}

	payload := encode(a.namespace, a.instanceID, a.pending)

	a.pending = nil
	a.index = make(map[string]int)
	a.lastFlush = now

	return payload, true
}

// Snapshot encodes a complete list of variables, typically the full
// current state sent as the initial event to a new subscriber. It does
// not affect the pending set.
func (a *Accumulator) Snapshot(vars []Var) []byte {
	full := make([]Var, len(vars))
	for i, v := range vars {
		if v.Channel == "" {
			v.Channel = a.channels[v.Name]
		}
		full[i] = v
	}

	return encode(a.namespace, a.instanceID, full)
}

type event struct {
	XMLName   xml.Name `xml:"Event"`
	Namespace string   `xml:"xmlns,attr"`
	Instance  instance `xml:"InstanceID"`
}

type instance struct {
	Val  string `xml:"val,attr"`
	Vars []variable
}

type variable struct {
	XMLName xml.Name
	Channel string `xml:"channel,attr,omitempty"`
	Val     string `xml:"val,attr"`
}

func encode(namespace, instanceID string, vars []Var) []byte {
	ev := event{
		Namespace: namespace,
		Instance: instance{
			Val:  instanceID,
			Vars: make([]variable, len(vars)),
		},
	}
	for i, v := range vars {
		ev.Instance.Vars[i] = variable{
			XMLName: xml.Name{Local: v.Name},
			Channel: v.Channel,
			Val:     v.Value,
		}
	}

	// Marshalling plain strings into attributes cannot fail.
	data, _ := xml.Marshal(ev)
	return data
}
