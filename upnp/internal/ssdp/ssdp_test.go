package ssdp

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDevice struct{}

func (testDevice) UDN() string { return "uuid:00000000-0000-0000-0000-000000000001" }
func (testDevice) URN() string { return "urn:schemas-upnp-org:device:MediaRenderer:1" }
func (testDevice) ServiceURNs() []string {
	return []string{"urn:schemas-upnp-org:service:AVTransport:1"}
}

func newTestServer(t *testing.T) (*Server, net.PacketConn) {
	t.Helper()

	loc, _ := url.Parse("http://127.0.0.1:2278/")
	srv, err := NewServer(testDevice{}, loc)
	require.NoError(t, err)

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	srv.conn = conn

	client, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return srv, client
}

func search(t *testing.T, st string) *http.Request {
	t.Helper()

	raw := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 1\r\n" +
		"ST: " + st + "\r\n\r\n"

	req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	return req
}

func readResponses(t *testing.T, conn net.PacketConn) []*http.Response {
	t.Helper()

	var out []*http.Response
	buf := make([]byte, MTU)
	for {
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return out
		}

		resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(buf[:n])), nil)
		require.NoError(t, err)
		out = append(out, resp)
	}
}

func TestSearchAll(t *testing.T) {
	srv, client := newTestServer(t)

	require.NoError(t, srv.handleRequest(search(t, "ssdp:all"), client.LocalAddr()))

	resps := readResponses(t, client)
	require.Len(t, resps, 4)

	var sts []string
	for _, resp := range resps {
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "http://127.0.0.1:2278/", resp.Header.Get("LOCATION"))
		sts = append(sts, resp.Header.Get("ST"))
	}
	assert.Equal(t, []string{
		"upnp:rootdevice",
		"uuid:00000000-0000-0000-0000-000000000001",
		"urn:schemas-upnp-org:device:MediaRenderer:1",
		"urn:schemas-upnp-org:service:AVTransport:1",
	}, sts)
}

func TestSearchService(t *testing.T) {
	srv, client := newTestServer(t)

	require.NoError(t, srv.handleRequest(search(t, "urn:schemas-upnp-org:service:AVTransport:1"), client.LocalAddr()))

	resps := readResponses(t, client)
	require.Len(t, resps, 1)
	assert.Equal(t,
		"uuid:00000000-0000-0000-0000-000000000001::urn:schemas-upnp-org:service:AVTransport:1",
		resps[0].Header.Get("USN"))
}

func TestSearchErrors(t *testing.T) {
	srv, client := newTestServer(t)

	err := srv.handleRequest(search(t, "urn:schemas-upnp-org:service:ContentDirectory:1"), client.LocalAddr())
	assert.ErrorIs(t, err, ErrNoMatch)

	req := search(t, "ssdp:all")
	req.Header.Set("MAN", "discover")
	assert.ErrorIs(t, srv.handleRequest(req, client.LocalAddr()), ErrBadRequest)

	req = search(t, "ssdp:all")
	req.Method = "NOTIFY"
	assert.ErrorIs(t, srv.handleRequest(req, client.LocalAddr()), ErrUnsupportedMethod)
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.NoError(t, srv.Close())
	assert.NoError(t, srv.Close())
}
