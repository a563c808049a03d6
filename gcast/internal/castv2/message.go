package castv2

import (
	"errors"
	"fmt"

	"github.com/gogo/protobuf/proto"
)

// ProtocolVersion is the only CastMessage protocol version in use.
const ProtocolVersion = 0 // CASTV2_1_0

// Payload types of a CastMessage.
const (
	PayloadString = 0
	PayloadBinary = 1
)

// Field numbers of extensions.api.cast_channel.CastMessage.
const (
	fieldProtocolVersion = 1
	fieldSourceID        = 2
	fieldDestinationID   = 3
	fieldNamespace       = 4
	fieldPayloadType     = 5
	fieldPayloadUTF8     = 6
	fieldPayloadBinary   = 7
)

// Wire types used by CastMessage.
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

var errTruncated = errors.New("castv2: truncated message")

// castMessage mirrors the CastMessage protobuf:
//
//	message CastMessage {
//	  required ProtocolVersion protocol_version = 1;
//	  required string source_id = 2;
//	  required string destination_id = 3;
//	  required string namespace = 4;
//	  required PayloadType payload_type = 5;
//	  optional string payload_utf8 = 6;
//	  optional bytes payload_binary = 7;
//	}
type castMessage struct {
	ProtocolVersion uint64
	SourceID        string
	DestinationID   string
	Namespace       string
	PayloadType     uint64
	PayloadUTF8     string
	PayloadBinary   []byte
}

func (m *castMessage) marshal() ([]byte, error) {
	b := proto.NewBuffer(nil)

	varint := func(field int, v uint64) error {
		if err := b.EncodeVarint(uint64(field<<3 | wireVarint)); err != nil {
			return err
		}
		return b.EncodeVarint(v)
	}
	str := func(field int, s string) error {
		if err := b.EncodeVarint(uint64(field<<3 | wireBytes)); err != nil {
			return err
		}
		return b.EncodeStringBytes(s)
	}

	if err := varint(fieldProtocolVersion, m.ProtocolVersion); err != nil {
		return nil, err
	}
	if err := str(fieldSourceID, m.SourceID); err != nil {
		return nil, err
	}
	if err := str(fieldDestinationID, m.DestinationID); err != nil {
		return nil, err
	}
	if err := str(fieldNamespace, m.Namespace); err != nil {
		return nil, err
	}
	if err := varint(fieldPayloadType, m.PayloadType); err != nil {
		return nil, err
	}

	switch m.PayloadType {
	case PayloadString:
		if err := str(fieldPayloadUTF8, m.PayloadUTF8); err != nil {
			return nil, err
		}
	case PayloadBinary:
		if err := b.EncodeVarint(uint64(fieldPayloadBinary<<3 | wireBytes)); err != nil {
			return nil, err
		}
		if err := b.EncodeRawBytes(m.PayloadBinary); err != nil {
			return nil, err
		}
	}

	return b.Bytes(), nil
}

func (m *castMessage) unmarshal(data []byte) error {
	*m = castMessage{}

	for len(data) > 0 {
		key, n := proto.DecodeVarint(data)
		if n == 0 {
			return errTruncated
		}
		data = data[n:]

		field, wire := int(key>>3), int(key&7)
		switch wire {
		case wireVarint:
			v, n := proto.DecodeVarint(data)
			if n == 0 {
				return errTruncated
			}
			data = data[n:]

			switch field {
			case fieldProtocolVersion:
				m.ProtocolVersion = v
			case fieldPayloadType:
				m.PayloadType = v
			}
		case wireBytes:
			l, n := proto.DecodeVarint(data)
			if n == 0 || uint64(len(data)-n) < l {
				return errTruncated
			}
			v := data[n : n+int(l)]
			data = data[n+int(l):]

			switch field {
			case fieldSourceID:
				m.SourceID = string(v)
			case fieldDestinationID:
				m.DestinationID = string(v)
			case fieldNamespace:
				m.Namespace = string(v)
			case fieldPayloadUTF8:
				m.PayloadUTF8 = string(v)
			case fieldPayloadBinary:
				m.PayloadBinary = append([]byte(nil), v...)
			}
		case wireFixed64:
			if len(data) < 8 {
				return errTruncated
			}
			data = data[8:]
		case wireFixed32:
			if len(data) < 4 {
				return errTruncated
			}
			data = data[4:]
		default:
			return fmt.Errorf("castv2: unsupported wire type %d", wire)
		}
	}

	return nil
}
