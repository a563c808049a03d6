// Package castv2 provides a low-level implementation of Google Cast V2
// protocol.
package castv2

import (
	"errors"
	"fmt"
)

// Sender and receiver IDs to use for platform messages.
const (
	PlatformSenderID   = "sender-0"
	PlatformReceiverID = "receiver-0"
)

// Reserved message namespaces for internal messages.
const (
	NamespaceConnection = "urn:x-cast:com.google.cast.tp.connection"
	NamespaceHeartbeat  = "urn:x-cast:com.google.cast.tp.heartbeat"
	NamespaceReceiver   = "urn:x-cast:com.google.cast.receiver"
	NamespaceMedia      = "urn:x-cast:com.google.cast.media"
)

// Cast application protocol message types.
const (
	TypeConnect        = "CONNECT"
	TypeClose          = "CLOSE"
	TypePing           = "PING"
	TypePong           = "PONG"
	TypeGetStatus      = "GET_STATUS"
	TypeReceiverStatus = "RECEIVER_STATUS"
	TypeMediaStatus    = "MEDIA_STATUS"
	TypeLaunch         = "LAUNCH"
	TypeLoad           = "LOAD"
	TypeLoadFailed     = "LOAD_FAILED"
	TypePlay           = "PLAY"
	TypePause          = "PAUSE"
	TypeStop           = "STOP"
	TypeSeek           = "SEEK"
	TypeSetVolume      = "SET_VOLUME"
)

// ErrBinaryPayload is returned for messages with binary payloads, which
// are not used by the namespaces implemented here.
var ErrBinaryPayload = errors.New("castv2: unsupported binary payload")

// Msg is a Cast V2 protocol data unit with textual payload.
type Msg struct {
	SourceID      string
	DestinationID string
	Namespace     string
	Payload       string
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (m *Msg) UnmarshalBinary(data []byte) error {
	cm := new(castMessage)
	if err := cm.unmarshal(data); err != nil {
		return err
	}

	m.SourceID = cm.SourceID
	m.DestinationID = cm.DestinationID
	m.Namespace = cm.Namespace
	m.Payload = cm.PayloadUTF8

	if cm.PayloadType != PayloadString {
		return ErrBinaryPayload
	}

	return nil
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (m *Msg) MarshalBinary() ([]byte, error) {
	cm := &castMessage{
		ProtocolVersion: ProtocolVersion,
		SourceID:        m.SourceID,
		DestinationID:   m.DestinationID,
		Namespace:       m.Namespace,
		PayloadType:     PayloadString,
		PayloadUTF8:     m.Payload,
	}

	return cm.marshal()
}

// String implements the fmt.Stringer interface.
func (m *Msg) String() string {
	return fmt.Sprintf("%s -> %s [%s] %s", m.SourceID, m.DestinationID, m.Namespace, m.Payload)
}

// Header contains the required fields in most payload types.
type Header struct {
	RequestID uint64 `json:"requestId,omitempty"`
	Type      string `json:"type"`
}

// SetRequestID sets the requestId header.
func (h *Header) SetRequestID(id uint64) {
	h.RequestID = id
}

// Request represents a request payload.
type Request interface {
	SetRequestID(id uint64)
}

// NewRequest returns a new request of given type.
func NewRequest(reqType string) Request {
	return &Header{Type: reqType}
}
