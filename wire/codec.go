package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// CodecType selects the serialization format of a Message body.
type CodecType byte

const (
	CodecJSON   CodecType = 0
	CodecBinary CodecType = 1
)

// ParseCodecType maps a config value ("json", "binary") to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "json":
		return CodecJSON, nil
	case "binary":
		return CodecBinary, nil
	default:
		return 0, fmt.Errorf("wire: unknown codec %q", name)
	}
}

// Codec serializes a Message envelope to bytes and back.
type Codec interface {
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte, msg *Message) error
	Type() CodecType
}

// GetCodec returns the codec for the given type. Unknown types fall back to
// JSON, matching the zero value of CodecType.
func GetCodec(t CodecType) Codec {
	if t == CodecBinary {
		return binaryCodec{}
	}
	return jsonCodec{}
}

// jsonCodec serializes the envelope with encoding/json. Readable and
// cross-language at the cost of size and reflection overhead.
type jsonCodec struct{}

func (jsonCodec) Encode(msg *Message) ([]byte, error) { return json.Marshal(msg) }
func (jsonCodec) Decode(data []byte, msg *Message) error {
	return json.Unmarshal(data, msg)
}
func (jsonCodec) Type() CodecType { return CodecJSON }

// binaryCodec serializes the envelope as length-prefixed fields:
//
//	u16 len(ServiceMethod) | ServiceMethod | u32 len(Payload) | Payload | u16 len(Error) | Error
type binaryCodec struct{}

func (binaryCodec) Encode(msg *Message) ([]byte, error) {
	total := 2 + len(msg.ServiceMethod) + 4 + len(msg.Payload) + 2 + len(msg.Error)
	buf := make([]byte, total)

	off := 0
	binary.BigEndian.PutUint16(buf[off:], uint16(len(msg.ServiceMethod)))
	off += 2
	off += copy(buf[off:], msg.ServiceMethod)

	binary.BigEndian.PutUint32(buf[off:], uint32(len(msg.Payload)))
	off += 4
	off += copy(buf[off:], msg.Payload)

	binary.BigEndian.PutUint16(buf[off:], uint16(len(msg.Error)))
	off += 2
	copy(buf[off:], msg.Error)
	return buf, nil
}

func (binaryCodec) Decode(data []byte, msg *Message) error {
	off := 0
	n, err := readLen16(data, off)
	if err != nil {
		return err
	}
	off += 2
	if off+n > len(data) {
		return errShortMessage
	}
	msg.ServiceMethod = string(data[off : off+n])
	off += n

	if off+4 > len(data) {
		return errShortMessage
	}
	pn := int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	if off+pn > len(data) {
		return errShortMessage
	}
	msg.Payload = make([]byte, pn)
	copy(msg.Payload, data[off:off+pn])
	off += pn

	n, err = readLen16(data, off)
	if err != nil {
		return err
	}
	off += 2
	if off+n > len(data) {
		return errShortMessage
	}
	msg.Error = string(data[off : off+n])
	return nil
}

func (binaryCodec) Type() CodecType { return CodecBinary }

var errShortMessage = errors.New("wire: truncated binary message")

func readLen16(data []byte, off int) (int, error) {
	if off+2 > len(data) {
		return 0, errShortMessage
	}
	return int(binary.BigEndian.Uint16(data[off:])), nil
}
