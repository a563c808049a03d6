// Package soap implements the subset of SOAP 1.1 used by UPnP control.
package soap

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/template"
)

type Action struct {
	Namespace string
	Name      string
}

// An Error represents an UPnP DCP specific error.
type Error struct {
	Code        int
	Description string
}

// Error implements the error interface
func (err *Error) Error() string {
	return strconv.Itoa(err.Code) + " " + err.Description
}

// UPnP defined error codes
var (
	ErrInvalidAction        = &Error{401, "Invalid Action"}
	ErrInvalidArgs          = &Error{402, "Invalid Args"}
	ErrActionFailed         = &Error{501, "Action Failed"}
	ErrArgValueInvalid      = &Error{600, "Argument Value Invalid"}
	ErrArgValueOutOfRange   = &Error{601, "Argument Value Out of Range"}
	ErrActionNotImplemented = &Error{602, "Optional Action Not Implemented"}
	ErrOutOfMemory          = &Error{603, "Out of Memory"}
	ErrInterventionRequired = &Error{604, "Human Intervention Required"}
	ErrArgTooLong           = &Error{605, "String Argument Too Long"}
)

// ErrMalformedRequest is returned when a control request cannot be
// parsed.
var ErrMalformedRequest = errors.New("soap: malformed request")

type Request struct {
	Action *Action
	Args   map[string]string

	ctx context.Context
}

// Context returns the context of the underlying HTTP request, or the
// background context if there is none.
func (req *Request) Context() context.Context {
	if req.ctx == nil {
		return context.Background()
	}

	return req.ctx
}

// WithContext returns a shallow copy of req using ctx.
func (req *Request) WithContext(ctx context.Context) *Request {
	r := *req
	r.ctx = ctx
	return &r
}

// Arg returns the named input argument and whether it was present.
func (req *Request) Arg(name string) (string, bool) {
	v, ok := req.Args[name]
	return v, ok
}

func ParseHTTPRequest(r *http.Request) (*Request, error) {
	action, err := parseAction(r.Header.Get("SOAPAction"))
	if err != nil {
		return nil, err
	}

	args, err := parseArgs(r.Body, action)
	if err != nil {
		return nil, err
	}

	return &Request{Action: action, Args: args, ctx: r.Context()}, nil
}

func parseAction(s string) (*Action, error) {
	action := strings.TrimSpace(s)
	if unquoted, err := strconv.Unquote(action); err == nil {
		action = unquoted
	}

	ns, name, ok := strings.Cut(action, "#")
	if !ok || ns == "" || name == "" {
		return nil, fmt.Errorf("%w: SOAPAction %q", ErrMalformedRequest, s)
	}

	return &Action{ns, name}, nil
}

type envelope struct {
	Body struct {
		Action struct {
			XMLName xml.Name
			Args    []struct {
				XMLName xml.Name
				Value   string `xml:",chardata"`
			} `xml:",any"`
		} `xml:",any"`
	} `xml:"Body"`
}

func parseArgs(r io.Reader, action *Action) (map[string]string, error) {
	var env envelope
	if err := xml.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	if got := env.Body.Action.XMLName; got.Local != action.Name || got.Space != action.Namespace {
		return nil, fmt.Errorf("%w: body %s#%s does not match SOAPAction", ErrMalformedRequest, got.Space, got.Local)
	}

	args := make(map[string]string, len(env.Body.Action.Args))
	for _, arg := range env.Body.Action.Args {
		args[arg.XMLName.Local] = arg.Value
	}

	return args, nil
}

// Arg is a named output argument.
type Arg struct {
	Name  string
	Value string
}

// A Response holds the output arguments of an action in the order they
// will be written, or the error it failed with.
type Response struct {
	Action *Action
	Args   []Arg
	Error  *Error
}

// Set appends an output argument, or replaces its value if it has been
// set already.
func (resp *Response) Set(name, value string) {
	for i := range resp.Args {
		if resp.Args[i].Name == name {
			resp.Args[i].Value = value
			return
		}
	}

	resp.Args = append(resp.Args, Arg{name, value})
}

// Get returns the value of an output argument.
func (resp *Response) Get(name string) string {
	for _, arg := range resp.Args {
		if arg.Name == name {
			return arg.Value
		}
	}

	return ""
}

const responseTemplate = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
  <s:Body>
  {{- with .Error }}
    <s:Fault>
      <faultcode>s:Client</faultcode>
      <faultstring>UPnPError</faultstring>
      <detail>
        <UPnPError xmlns="urn:schemas-upnp-org:control-1-0">
          <errorCode>{{.Code}}</errorCode>
          <errorDescription>{{escape .Description}}</errorDescription>
        </UPnPError>
      </detail>
    </s:Fault>
  {{- else }}
    <u:{{.Action.Name}}Response xmlns:u="{{.Action.Namespace}}">
    {{- range .Args }}
      <{{.Name}}>{{escape .Value}}</{{.Name}}>
    {{- end}}
    </u:{{.Action.Name}}Response>
  {{- end }}
  </s:Body>
</s:Envelope>
`

var tpl = template.Must(template.New("response").Funcs(template.FuncMap{
	"escape": func(s string) (string, error) {
		b := new(strings.Builder)
		if err := xml.EscapeText(b, []byte(s)); err != nil {
			return "", err
		}

		return b.String(), nil
	},
}).Parse(responseTemplate))

func (resp *Response) WriteTo(w io.Writer) error {
	return tpl.Execute(w, resp)
}

// WriteHTTP writes the response envelope with the status code required
// by UPnP: 200 on success and 500 on faults.
func (resp *Response) WriteHTTP(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.Header().Set("EXT", "")

	if resp.Error != nil {
		w.WriteHeader(http.StatusInternalServerError)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	return resp.WriteTo(w)
}
