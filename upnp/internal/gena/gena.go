// Package gena implements the publisher side of UPnP eventing.
//
// Spec: http://upnp.org/specs/arch/UPnP-arch-DeviceArchitecture-v1.0.pdf (4)
package gena

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Subscription timeouts.
const (
	DefaultTimeout = 1800 * time.Second
	MinTimeout     = 60 * time.Second
	MaxTimeout     = 86400 * time.Second
)

const (
	queueSize      = 16
	notifyTimeout  = 5 * time.Second
	sweepSchedule  = "@every 30s"
	propertySetXML = `<?xml version="1.0" encoding="utf-8"?>` + "\n"
)

// Errors returned by the Publisher.
var (
	ErrSubscriptionNotFound = errors.New("gena: subscription not found")
	ErrInvalidCallback      = errors.New("gena: invalid callback")
)

// Property is an evented state variable and its value.
type Property struct {
	Name  string
	Value string
}

type subscription struct {
	sid       string
	callbacks []*url.URL
	timeout   time.Duration
	expires   time.Time

	seq     uint32
	queue   chan []byte
	release chan struct{}
	done    chan struct{}
}

// A Grant is the result of a successful subscription.
type Grant struct {
	SID     string
	Timeout time.Duration

	once    sync.Once
	release chan struct{}
}

// Release starts event delivery to the subscriber, beginning with the
// initial event. It should be called after the SUBSCRIBE response has
// been sent.
func (g *Grant) Release() {
	g.once.Do(func() { close(g.release) })
}

// A Publisher manages the subscriptions of one service and delivers
// events to them. Every subscription has its own delivery queue, so a
// slow or unreachable subscriber does not delay the others.
type Publisher struct {
	mu   sync.Mutex
	subs map[string]*subscription

	client *http.Client
	now    func() time.Time
	cron   *cron.Cron
	log    zerolog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithHTTPClient sets the client used to send NOTIFY requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) {
		p.client = c
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Publisher) {
		p.log = l
	}
}

// NewPublisher returns a Publisher without subscriptions.
func NewPublisher(opts ...Option) *Publisher {
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = notifyTimeout

	p := &Publisher{
		subs:   make(map[string]*subscription),
		client: client,
		now:    time.Now,
		log:    log.With().Str("component", "gena").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start schedules the periodic removal of expired subscriptions.
func (p *Publisher) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(sweepSchedule, p.sweep); err != nil {
		return err
	}
	c.Start()

	p.mu.Lock()
	p.cron = c
	p.mu.Unlock()

	return nil
}

// Stop cancels the expiry schedule and drops all subscriptions.
func (p *Publisher) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	for sid, s := range p.subs {
		close(s.done)
		delete(p.subs, sid)
	}
	p.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Subscribe adds a subscription delivering to the given callback URLs,
// which are tried in order for each event. The initial properties are
// queued as the first event (SEQ 0); delivery starts when the returned
// Grant is released.
func (p *Publisher) Subscribe(callbacks []*url.URL, timeout time.Duration, initial []Property) (*Grant, error) {
	if len(callbacks) == 0 {
		return nil, ErrInvalidCallback
	}
	for _, cb := range callbacks {
		if cb.Scheme != "http" || cb.Host == "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCallback, cb)
		}
	}

	timeout = clampTimeout(timeout)
	s := &subscription{
		sid:       "uuid:" + uuid.New().String(),
		callbacks: callbacks,
		timeout:   timeout,
		expires:   p.now().Add(timeout),
		queue:     make(chan []byte, queueSize),
		release:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.queue <- propertySet(initial)

	p.mu.Lock()
	p.subs[s.sid] = s
	p.mu.Unlock()

	go p.deliver(s)

	p.log.Info().Str("sid", s.sid).Str("callback", callbacks[0].String()).Dur("timeout", timeout).Msg("subscribed")

	return &Grant{SID: s.sid, Timeout: timeout, release: s.release}, nil
}

// Renew extends an existing subscription and returns the granted
// timeout.
func (p *Publisher) Renew(sid string, timeout time.Duration) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.subs[sid]
	if !ok || p.now().After(s.expires) {
		return 0, ErrSubscriptionNotFound
	}

	s.timeout = clampTimeout(timeout)
	s.expires = p.now().Add(s.timeout)

	return s.timeout, nil
}

// Unsubscribe cancels a subscription.
func (p *Publisher) Unsubscribe(sid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.subs[sid]
	if !ok {
		return ErrSubscriptionNotFound
	}

	close(s.done)
	delete(p.subs, sid)

	p.log.Info().Str("sid", sid).Msg("unsubscribed")

	return nil
}

// Len returns the number of active subscriptions.
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.subs)
}

// Publish queues an event for every active subscription. An event is
// dropped for a subscriber whose queue is full.
func (p *Publisher) Publish(props ...Property) {
	body := propertySet(props)
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.subs {
		if now.After(s.expires) {
			continue
		}

		select {
		case s.queue <- body:
		default:
			p.log.Warn().Str("sid", s.sid).Msg("event queue full, dropping event")
		}
	}
}

func (p *Publisher) sweep() {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for sid, s := range p.subs {
		if now.After(s.expires) {
			close(s.done)
			delete(p.subs, sid)

			p.log.Info().Str("sid", sid).Msg("subscription expired")
		}
	}
}

func (p *Publisher) deliver(s *subscription) {
	select {
	case <-s.release:
	case <-s.done:
		return
	}

	for {
		select {
		case <-s.done:
			return
		case body := <-s.queue:
			p.notify(s, body)

			if s.seq == math.MaxUint32 {
				s.seq = 1
			} else {
				s.seq++
			}
		}
	}
}

func (p *Publisher) notify(s *subscription, body []byte) {
	var lastErr error
	for _, cb := range s.callbacks {
		err := p.send(cb, s.sid, s.seq, body)
		if err == nil {
			return
		}

		lastErr = err
		p.log.Debug().Err(err).Str("sid", s.sid).Str("callback", cb.String()).Msg("callback failed")
	}

	p.log.Warn().Err(lastErr).Str("sid", s.sid).Uint32("seq", s.seq).Msg("event delivery failed")
}

func (p *Publisher) send(cb *url.URL, sid string, seq uint32, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "NOTIFY", cb.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("NTS", "upnp:propchange")
	req.Header.Set("SID", sid)
	req.Header.Set("SEQ", strconv.FormatUint(uint64(seq), 10))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify request: %w", err)
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify failed: %s", resp.Status)
	}

	return nil
}

type propertyValue struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type property struct {
	Value propertyValue
}

type propertyset struct {
	XMLName    xml.Name   `xml:"e:propertyset"`
	Namespace  string     `xml:"xmlns:e,attr"`
	Properties []property `xml:"e:property"`
}

func propertySet(props []Property) []byte {
	ps := propertyset{
		Namespace:  "urn:schemas-upnp-org:event-1-0",
		Properties: make([]property, len(props)),
	}
	for i, prop := range props {
		ps.Properties[i] = property{propertyValue{XMLName: xml.Name{Local: prop.Name}, Value: prop.Value}}
	}

	data, _ := xml.Marshal(ps)
	return append([]byte(propertySetXML), data...)
}

// ParseTimeout parses a TIMEOUT header such as "Second-1800". Missing or
// malformed values yield DefaultTimeout, and "Second-infinite" yields
// MaxTimeout.
func ParseTimeout(header string) time.Duration {
	v, ok := strings.CutPrefix(strings.TrimSpace(header), "Second-")
	if !ok {
		return DefaultTimeout
	}
	if strings.EqualFold(v, "infinite") {
		return MaxTimeout
	}

	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return DefaultTimeout
	}

	return clampTimeout(time.Duration(n) * time.Second)
}

// FormatTimeout returns the TIMEOUT header value for d.
func FormatTimeout(d time.Duration) string {
	return "Second-" + strconv.Itoa(int(d/time.Second))
}

// ParseCallback parses a CALLBACK header holding one or more URLs in
// angle brackets.
func ParseCallback(header string) ([]*url.URL, error) {
	var urls []*url.URL

	rest := strings.TrimSpace(header)
	for rest != "" {
		if rest[0] != '<' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCallback, header)
		}

		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCallback, header)
		}

		u, err := url.Parse(rest[1:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
		}
		if u.Scheme == "http" && u.Host != "" {
			urls = append(urls, u)
		}

		rest = strings.TrimSpace(rest[end+1:])
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCallback, header)
	}

	return urls, nil
}

func clampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultTimeout
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	default:
		return d
	}
}
