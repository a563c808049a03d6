package soap

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const avt = "urn:schemas-upnp-org:service:AVTransport:1"

func newRequest(t *testing.T, soapAction, body string) *http.Request {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/services/AVTransport", strings.NewReader(body))
	r.Header.Set("SOAPAction", soapAction)
	return r
}

const setURIBody = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
  <s:Body>
    <u:SetAVTransportURI xmlns:u="urn:schemas-upnp-org:service:AVTransport:1">
      <InstanceID>0</InstanceID>
      <CurrentURI>http://x/video.mp4?a=1&amp;b=2</CurrentURI>
      <CurrentURIMetaData>&lt;DIDL-Lite&gt;&lt;/DIDL-Lite&gt;</CurrentURIMetaData>
    </u:SetAVTransportURI>
  </s:Body>
</s:Envelope>`

func TestParseHTTPRequest(t *testing.T) {
	req, err := ParseHTTPRequest(newRequest(t, `"`+avt+`#SetAVTransportURI"`, setURIBody))
	require.NoError(t, err)

	assert.Equal(t, &Action{avt, "SetAVTransportURI"}, req.Action)
	assert.Equal(t, "0", req.Args["InstanceID"])
	assert.Equal(t, "http://x/video.mp4?a=1&b=2", req.Args["CurrentURI"])

	md, ok := req.Arg("CurrentURIMetaData")
	assert.True(t, ok)
	assert.Equal(t, "<DIDL-Lite></DIDL-Lite>", md)

	_, ok = req.Arg("NextURI")
	assert.False(t, ok)
}

func TestParseHTTPRequestUnquotedAction(t *testing.T) {
	req, err := ParseHTTPRequest(newRequest(t, avt+"#SetAVTransportURI", setURIBody))
	require.NoError(t, err)
	assert.Equal(t, "SetAVTransportURI", req.Action.Name)
}

func TestParseHTTPRequestMalformed(t *testing.T) {
	cases := map[string]struct {
		action string
		body   string
	}{
		"missing action":  {"", setURIBody},
		"no fragment":     {`"` + avt + `"`, setURIBody},
		"action mismatch": {`"` + avt + `#Play"`, setURIBody},
		"broken body":     {`"` + avt + `#SetAVTransportURI"`, "<s:Envelope>"},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHTTPRequest(newRequest(t, c.action, c.body))
			assert.True(t, errors.Is(err, ErrMalformedRequest), "got %v", err)
		})
	}
}

func TestResponseKeepsArgumentOrder(t *testing.T) {
	resp := &Response{Action: &Action{avt, "GetTransportInfo"}}
	resp.Set("CurrentTransportState", "PLAYING")
	resp.Set("CurrentTransportStatus", "OK")
	resp.Set("CurrentSpeed", "1")
	resp.Set("CurrentTransportState", "STOPPED")

	buf := new(bytes.Buffer)
	require.NoError(t, resp.WriteTo(buf))
	out := buf.String()

	assert.Contains(t, out, `<u:GetTransportInfoResponse xmlns:u="`+avt+`">`)
	state := strings.Index(out, "<CurrentTransportState>STOPPED</CurrentTransportState>")
	status := strings.Index(out, "<CurrentTransportStatus>OK</CurrentTransportStatus>")
	speed := strings.Index(out, "<CurrentSpeed>1</CurrentSpeed>")
	require.True(t, state >= 0 && status >= 0 && speed >= 0, out)
	assert.True(t, state < status && status < speed, out)
	assert.NotContains(t, out, "Fault")
	assert.Equal(t, "STOPPED", resp.Get("CurrentTransportState"))
}

func TestResponseEscapesValues(t *testing.T) {
	resp := &Response{Action: &Action{avt, "GetMediaInfo"}}
	resp.Set("CurrentURIMetaData", `<DIDL-Lite xmlns="a"/>`)

	buf := new(bytes.Buffer)
	require.NoError(t, resp.WriteTo(buf))
	assert.Contains(t, buf.String(), "<CurrentURIMetaData>&lt;DIDL-Lite xmlns=&#34;a&#34;/&gt;</CurrentURIMetaData>")
}

func TestWriteHTTPFault(t *testing.T) {
	resp := &Response{Action: &Action{avt, "Seek"}, Error: &Error{711, "Illegal seek target"}}
	resp.Set("Ignored", "x")

	rec := httptest.NewRecorder()
	require.NoError(t, resp.WriteHTTP(rec))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<faultcode>s:Client</faultcode>")
	assert.Contains(t, body, "<errorCode>711</errorCode>")
	assert.Contains(t, body, "<errorDescription>Illegal seek target</errorDescription>")
	assert.NotContains(t, body, "SeekResponse")
	assert.NotContains(t, body, "Ignored")
}

func TestWriteHTTPSuccess(t *testing.T) {
	resp := &Response{Action: &Action{avt, "Play"}}

	rec := httptest.NewRecorder()
	require.NoError(t, resp.WriteHTTP(rec))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/xml")
	assert.Contains(t, rec.Body.String(), "<u:PlayResponse")
}
