// Package ssdp advertises a UPnP root device on the local network.
//
// Spec: http://upnp.org/specs/arch/UPnP-arch-DeviceArchitecture-v1.0.pdf (1)
package ssdp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	MulticastIPv4Addr     = "239.255.255.250:1900"
	MTU                   = 8192
	AliveInterval         = 15 * time.Minute
	CacheControlDirective = "max-age=1800"
	ServerName            = runtime.GOOS + "/" + runtime.GOARCH + " UPnP/1.0 omnirender/0.2"
)

// Errors returned when handling discovery requests.
var (
	ErrUnsupportedMethod = errors.New("ssdp: unsupported method")
	ErrBadRequest        = errors.New("ssdp: bad request")
	ErrNoMatch           = errors.New("ssdp: no matching search target")
)

type Device interface {
	// Returns the Unique Device Name, which will be the prefix of the USN
	// header field in all discovery messages.
	UDN() string
	// Returns the URN of the device.
	URN() string
	// Returns the URNs of all services provided by the device.
	ServiceURNs() []string
}

type Server struct {
	dev    Device
	loc    *url.URL
	addr   *net.UDPAddr
	bootID string
	log    zerolog.Logger

	mu     sync.Mutex
	conn   net.PacketConn
	done   chan struct{}
	closed bool
}

// NewServer returns a SSDP server for the given device that announces
// the URL to its UPnP description.
func NewServer(dev Device, loc *url.URL) (*Server, error) {
	addr, err := net.ResolveUDPAddr("udp4", MulticastIPv4Addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		dev:    dev,
		loc:    loc,
		addr:   addr,
		bootID: strconv.FormatInt(time.Now().Unix(), 10),
		log:    log.With().Str("component", "ssdp").Logger(),
		done:   make(chan struct{}),
	}, nil
}

func (srv *Server) ListenAndServe() error {
	conn, err := net.ListenMulticastUDP("udp4", nil, srv.addr)
	if err != nil {
		return err
	}
	conn.SetReadBuffer(MTU)

	return srv.Serve(conn)
}

// Serve announces the device and answers search requests received on
// conn until the server is closed.
func (srv *Server) Serve(conn net.PacketConn) error {
	srv.mu.Lock()
	if srv.closed {
		srv.mu.Unlock()
		return net.ErrClosed
	}
	srv.conn = conn
	srv.mu.Unlock()

	srv.log.Info().Str("addr", conn.LocalAddr().String()).Msg("SSDP server listening")

	if err := srv.sendNotification("ssdp:alive"); err != nil {
		srv.log.Warn().Err(err).Msg("failed to announce device")
	}
	go srv.keepalive()

	buf := make([]byte, MTU)
	for {
		n, raddr, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-srv.done:
				return nil
			default:
			}

			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}

			return err
		}

		req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(buf[:n])))
		if err != nil {
			srv.log.Debug().Err(err).Msg("failed to parse request")
			continue
		}

		if err := srv.handleRequest(req, raddr); err != nil && !errors.Is(err, ErrUnsupportedMethod) {
			srv.log.Debug().Err(err).Str("from", raddr.String()).Msg("failed to handle request")
		}
	}
}

func (srv *Server) keepalive() {
	ticker := time.NewTicker(AliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-srv.done:
			return
		case <-ticker.C:
			if err := srv.sendNotification("ssdp:alive"); err != nil {
				srv.log.Warn().Err(err).Msg("failed to renew announcement")
			}
		}
	}
}

// Close sends ssdp:byebye and stops the server.
func (srv *Server) Close() error {
	srv.mu.Lock()
	if srv.closed {
		srv.mu.Unlock()
		return nil
	}
	srv.closed = true
	close(srv.done)
	conn := srv.conn
	srv.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := srv.sendNotification("ssdp:byebye"); err != nil {
		srv.log.Warn().Err(err).Msg("failed to send byebye")
	}

	return conn.Close()
}

// capabilities returns the notification types of the device, mapped to
// their USNs, in announcement order.
func (srv *Server) capabilities() [][2]string {
	udn := srv.dev.UDN()
	caps := [][2]string{
		{"upnp:rootdevice", udn + "::upnp:rootdevice"},
		{udn, udn},
		{srv.dev.URN(), udn + "::" + srv.dev.URN()},
	}
	for _, urn := range srv.dev.ServiceURNs() {
		caps = append(caps, [2]string{urn, udn + "::" + urn})
	}

	return caps
}

func (srv *Server) commonHeader() http.Header {
	return http.Header{
		"CACHE-CONTROL":     []string{CacheControlDirective},
		"LOCATION":          []string{srv.loc.String()},
		"SERVER":            []string{ServerName},
		"BOOTID.UPNP.ORG":   []string{srv.bootID},
		"CONFIGID.UPNP.ORG": []string{"1"},
	}
}

func (srv *Server) sendNotification(nts string) error {
	switch nts {
	case "ssdp:alive", "ssdp:byebye":
	default:
		return fmt.Errorf("invalid NTS: %s", nts)
	}

	srv.mu.Lock()
	conn := srv.conn
	srv.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}

	for _, c := range srv.capabilities() {
		req := &http.Request{
			Method:     "NOTIFY",
			URL:        &url.URL{Opaque: "*"},
			ProtoMajor: 1,
			ProtoMinor: 1,
			Host:       MulticastIPv4Addr,
			Header:     srv.commonHeader(),
		}
		if nts == "ssdp:byebye" {
			req.Header = http.Header{"BOOTID.UPNP.ORG": []string{srv.bootID}}
		}

		req.Header.Set("NTS", nts)
		req.Header.Set("NT", c[0])
		req.Header.Set("USN", c[1])

		buf := new(bytes.Buffer)
		req.Write(buf)

		if _, err := conn.WriteTo(buf.Bytes(), srv.addr); err != nil {
			return err
		}
	}

	return nil
}

func (srv *Server) handleRequest(req *http.Request, raddr net.Addr) error {
	if req.Method != "M-SEARCH" {
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
	}

	if man := req.Header.Get("MAN"); man != `"ssdp:discover"` {
		return fmt.Errorf("%w: unexpected MAN %s", ErrBadRequest, man)
	}

	st := req.Header.Get("ST")
	if st == "" {
		return fmt.Errorf("%w: ST is empty", ErrBadRequest)
	}

	srv.log.Debug().Str("from", raddr.String()).Str("st", st).Msg("received M-SEARCH")

	srv.mu.Lock()
	conn := srv.conn
	srv.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}

	n := 0
	for _, c := range srv.capabilities() {
		if st != c[0] && st != "ssdp:all" {
			continue
		}

		resp := &http.Response{
			StatusCode:    http.StatusOK,
			ProtoMajor:    1,
			ProtoMinor:    1,
			Header:        srv.commonHeader(),
			ContentLength: -1,
			Uncompressed:  true,
		}

		resp.Header.Set("DATE", time.Now().UTC().Format(http.TimeFormat))
		resp.Header.Set("EXT", "")
		resp.Header.Set("ST", c[0])
		resp.Header.Set("USN", c[1])

		buf := new(bytes.Buffer)
		resp.Write(buf)

		if _, err := conn.WriteTo(buf.Bytes(), raddr); err != nil {
			return err
		}

		n++
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoMatch, st)
	}

	return nil
}
