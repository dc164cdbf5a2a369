// Package transport implements the client side of the connection: a
// multiplexed transport that carries many concurrent calls over one TCP
// connection, and a pool that hands transports out per server address.
//
// Multiplexing works by sequence number. Every request gets a unique seq and
// a private response channel; a single receive loop reads frames off the
// connection and routes each response to the channel registered under its
// seq. Responses may arrive in any order.
package transport

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/udduke/ribbon/wire"
)

// Transport manages one multiplexed connection.
type Transport struct {
	conn    net.Conn
	codec   wire.CodecType
	seq     uint32     // monotonically increasing, guarded by sending
	pending sync.Map   // seq -> chan *wire.Message
	sending sync.Mutex // serializes frame writes; interleaved writes corrupt the stream
	closed  sync.Once
}

// HeartbeatInterval is how often an idle transport probes the server so
// middleboxes and the peer keep the connection open.
const HeartbeatInterval = 30 * time.Second

// New wraps conn and starts the receive and heartbeat loops.
func New(conn net.Conn, codec wire.CodecType) *Transport {
	t := &Transport{
		conn:  conn,
		codec: codec,
	}
	go t.recvLoop()
	go t.heartbeatLoop(HeartbeatInterval)
	return t
}

// Dial connects to addr and returns a ready transport.
func Dial(addr string, codec wire.CodecType) (*Transport, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn, codec), nil
}

// Send serializes args and sends them as one request. It returns the
// sequence number and the channel that will receive the response.
func (t *Transport) Send(serviceMethod string, args any) (uint32, <-chan *wire.Message, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return 0, nil, err
	}
	return t.SendMessage(&wire.Message{
		ServiceMethod: serviceMethod,
		Payload:       payload,
	})
}

// SendMessage writes one request frame for a pre-built envelope.
//
// The response channel is registered before the frame is written: the
// receive loop may route the response before SendMessage returns.
func (t *Transport) SendMessage(msg *wire.Message) (uint32, <-chan *wire.Message, error) {
	t.sending.Lock()
	defer t.sending.Unlock()

	t.seq++
	seq := t.seq

	body, err := wire.GetCodec(t.codec).Encode(msg)
	if err != nil {
		return 0, nil, err
	}

	header := wire.Header{
		Codec:   t.codec,
		MsgType: wire.MsgRequest,
		Seq:     seq,
		BodyLen: uint32(len(body)),
	}

	respChan := make(chan *wire.Message, 1) // buffered so recvLoop never blocks
	t.pending.Store(seq, respChan)

	if err := wire.WriteFrame(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}
	return seq, respChan, nil
}

// recvLoop is the single reader for the connection. TCP is a byte stream, so
// frame parsing must be sequential; parallelism happens per response after
// routing.
func (t *Transport) recvLoop() {
	for {
		header, body, err := wire.ReadFrame(t.conn)
		if err != nil {
			t.failPending(err)
			return
		}

		resp := wire.Message{}
		if err := wire.GetCodec(header.Codec).Decode(body, &resp); err != nil {
			resp = wire.Message{Error: err.Error()}
		}

		if ch, ok := t.pending.LoadAndDelete(header.Seq); ok {
			ch.(chan *wire.Message) <- &resp
		}
	}
}

// failPending wakes every waiting caller with the connection error so none
// of them blocks forever on a dead connection.
func (t *Transport) failPending(err error) {
	t.pending.Range(func(key, value any) bool {
		value.(chan *wire.Message) <- &wire.Message{Error: err.Error()}
		t.pending.Delete(key)
		return true
	})
}

// heartbeatLoop writes empty heartbeat frames until the connection breaks.
func (t *Transport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		header := &wire.Header{MsgType: wire.MsgHeartbeat, Codec: t.codec}
		t.sending.Lock()
		err := wire.WriteFrame(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			return
		}
	}
}

// Conn exposes the underlying connection.
func (t *Transport) Conn() net.Conn {
	return t.conn
}

// Close tears the connection down; recvLoop then fails all pending calls.
func (t *Transport) Close() error {
	var err error
	t.closed.Do(func() { err = t.conn.Close() })
	return err
}
