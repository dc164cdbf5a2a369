package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic bytes "rbn" identify a frame, rejecting stray connections (e.g. an
// HTTP client hitting the RPC port) before any body is read.
const (
	magic0  byte = 'r'
	magic1  byte = 'b'
	magic2  byte = 'n'
	version byte = 0x01

	// HeaderSize is 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) +
	// 4 (seq) + 4 (bodyLen).
	HeaderSize = 14
)

// MsgType distinguishes request, response, and heartbeat frames.
type MsgType byte

const (
	MsgRequest   MsgType = 0
	MsgResponse  MsgType = 1
	MsgHeartbeat MsgType = 2 // keepalive probe, no body
)

// Header is the fixed-size frame header.
type Header struct {
	Codec   CodecType
	MsgType MsgType
	Seq     uint32 // matches a response to its request on a multiplexed conn
	BodyLen uint32
}

// WriteFrame writes one complete frame (header + body) to w. When several
// goroutines share the writer the caller must serialize WriteFrame calls,
// otherwise bytes of different frames interleave and corrupt the stream.
func WriteFrame(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize)
	buf[0], buf[1], buf[2] = magic0, magic1, magic2
	buf[3] = version
	buf[4] = byte(h.Codec)
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one complete frame from r, validating magic, version and
// the type fields. io.ReadFull guarantees whole-header and whole-body reads
// even when the stream delivers them in pieces.
func ReadFrame(r io.Reader) (*Header, []byte, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, err
	}

	if buf[0] != magic0 || buf[1] != magic1 || buf[2] != magic2 {
		return nil, nil, fmt.Errorf("wire: bad magic %x", buf[0:3])
	}
	if buf[3] != version {
		return nil, nil, fmt.Errorf("wire: unsupported version %d", buf[3])
	}
	if ct := CodecType(buf[4]); ct != CodecJSON && ct != CodecBinary {
		return nil, nil, fmt.Errorf("wire: unsupported codec %d", buf[4])
	}
	mt := MsgType(buf[5])
	if mt != MsgRequest && mt != MsgResponse && mt != MsgHeartbeat {
		return nil, nil, fmt.Errorf("wire: unsupported message type %d", buf[5])
	}

	h := &Header{
		Codec:   CodecType(buf[4]),
		MsgType: mt,
		Seq:     binary.BigEndian.Uint32(buf[6:10]),
		BodyLen: binary.BigEndian.Uint32(buf[10:14]),
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	return h, body, nil
}
