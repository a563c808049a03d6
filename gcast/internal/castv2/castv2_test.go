package castv2

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgBinary(t *testing.T) {
	msg := &Msg{
		SourceID:      PlatformSenderID,
		DestinationID: PlatformReceiverID,
		Namespace:     NamespaceReceiver,
		Payload:       `{"type":"GET_STATUS","requestId":1}`,
	}

	data, err := msg.MarshalBinary()
	require.NoError(t, err)

	// protocol_version = CASTV2_1_0
	assert.Equal(t, []byte{0x08, 0x00, 0x12, 0x08}, data[:4])
	assert.Equal(t, "sender-0", string(data[4:12]))

	got := new(Msg)
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, msg, got)

	assert.ErrorIs(t, new(Msg).UnmarshalBinary(data[:len(data)-3]), errTruncated)
}

func TestMsgBinaryPayload(t *testing.T) {
	cm := &castMessage{
		SourceID:      "receiver-0",
		DestinationID: "sender-0",
		Namespace:     "urn:x-cast:com.google.cast.tp.deviceauth",
		PayloadType:   PayloadBinary,
		PayloadBinary: []byte{0xde, 0xad},
	}
	data, err := cm.marshal()
	require.NoError(t, err)

	got := new(castMessage)
	require.NoError(t, got.unmarshal(data))
	assert.Equal(t, cm, got)

	assert.ErrorIs(t, new(Msg).UnmarshalBinary(data), ErrBinaryPayload)
}

// fakeReceiver is the device end of a piped connection.
type fakeReceiver struct {
	t    *testing.T
	conn net.Conn
}

func (r *fakeReceiver) read() *Msg {
	r.t.Helper()

	var n uint32
	require.NoError(r.t, binary.Read(r.conn, binary.BigEndian, &n))
	buf := make([]byte, n)
	_, err := io.ReadFull(r.conn, buf)
	require.NoError(r.t, err)

	msg := new(Msg)
	require.NoError(r.t, msg.UnmarshalBinary(buf))

	return msg
}

func (r *fakeReceiver) write(msg *Msg) {
	r.t.Helper()

	data, err := msg.MarshalBinary()
	require.NoError(r.t, err)
	require.NoError(r.t, binary.Write(r.conn, binary.BigEndian, uint32(len(data))))
	_, err = r.conn.Write(data)
	require.NoError(r.t, err)
}

func header(t *testing.T, msg *Msg) Header {
	t.Helper()

	var h Header
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &h))

	return h
}

func TestChannel(t *testing.T) {
	local, remote := net.Pipe()
	c := NewChannel(local)
	dev := &fakeReceiver{t, remote}

	statuses := make(chan *Msg, 4)
	unsubscribe := c.Subscribe(statuses)
	defer unsubscribe()

	type result struct {
		msg *Msg
		err error
	}
	results := make(chan result, 1)
	go func() {
		msg, err := c.Request(context.Background(), PlatformSenderID, PlatformReceiverID, NamespaceReceiver, NewRequest(TypeGetStatus))
		results <- result{msg, err}
	}()

	connect := dev.read()
	assert.Equal(t, NamespaceConnection, connect.Namespace)
	assert.Equal(t, TypeConnect, header(t, connect).Type)

	req := dev.read()
	h := header(t, req)
	assert.Equal(t, TypeGetStatus, h.Type)
	assert.NotZero(t, h.RequestID)

	dev.write(&Msg{
		SourceID:      PlatformReceiverID,
		DestinationID: PlatformSenderID,
		Namespace:     NamespaceReceiver,
		Payload:       `{"type":"RECEIVER_STATUS","requestId":` + jsonUint(h.RequestID) + `,"status":{}}`,
	})

	res := <-results
	require.NoError(t, res.err)
	assert.Equal(t, TypeReceiverStatus, header(t, res.msg).Type)

	dev.write(&Msg{
		SourceID:      PlatformReceiverID,
		DestinationID: PlatformSenderID,
		Namespace:     NamespaceHeartbeat,
		Payload:       `{"type":"PING"}`,
	})
	pong := dev.read()
	assert.Equal(t, NamespaceHeartbeat, pong.Namespace)
	assert.Equal(t, TypePong, header(t, pong).Type)

	dev.write(&Msg{
		SourceID:      "web-1",
		DestinationID: "*",
		Namespace:     NamespaceMedia,
		Payload:       `{"type":"MEDIA_STATUS","requestId":0,"status":[]}`,
	})
	select {
	case msg := <-statuses:
		assert.Equal(t, TypeMediaStatus, header(t, msg).Type)
	case <-time.After(time.Second):
		t.Fatal("no status broadcast")
	}
	assert.Empty(t, statuses)

	closed := make(chan *Msg, 1)
	go func() { closed <- dev.read() }()
	require.NoError(t, c.Close())
	assert.Equal(t, TypeClose, header(t, <-closed).Type)
	assert.True(t, c.IsClosed())

	_, err := c.Request(context.Background(), PlatformSenderID, PlatformReceiverID, NamespaceReceiver, NewRequest(TypeGetStatus))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannelRequestCanceled(t *testing.T) {
	local, remote := net.Pipe()
	c := NewChannel(local)
	defer c.Close()
	dev := &fakeReceiver{t, remote}
	defer remote.Close()

	go func() {
		dev.read()
		dev.read()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Request(ctx, PlatformSenderID, PlatformReceiverID, NamespaceReceiver, NewRequest(TypeGetStatus))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelConnectionLost(t *testing.T) {
	local, remote := net.Pipe()
	c := NewChannel(local)

	remote.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func jsonUint(v uint64) string {
	data, _ := json.Marshal(v)
	return string(data)
}
