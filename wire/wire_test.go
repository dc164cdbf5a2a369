package wire

import (
	"bytes"
	"strings"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	header := Header{
		Codec:   CodecJSON,
		MsgType: MsgRequest,
		Seq:     12345,
		BodyLen: 11,
	}
	body := []byte("hello world")

	var buf bytes.Buffer
	if err := WriteFrame(&buf, &header, body); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	got, gotBody, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if got.Codec != header.Codec {
		t.Errorf("Codec mismatch: got %d, want %d", got.Codec, header.Codec)
	}
	if got.MsgType != header.MsgType {
		t.Errorf("MsgType mismatch: got %d, want %d", got.MsgType, header.MsgType)
	}
	if got.Seq != header.Seq {
		t.Errorf("Seq mismatch: got %d, want %d", got.Seq, header.Seq)
	}
	if !bytes.Equal(gotBody, body) {
		t.Errorf("body mismatch: got %q, want %q", gotBody, body)
	}
}

func TestReadFrameBadMagic(t *testing.T) {
	frame := []byte{
		0x00, 0x00, 0x00, // wrong magic
		version,
		byte(CodecJSON),
		byte(MsgRequest),
		0, 0, 0, 1, // seq
		0, 0, 0, 0, // bodyLen
	}
	_, _, err := ReadFrame(bytes.NewReader(frame))
	if err == nil {
		t.Fatal("expected error for bad magic, got nil")
	}
	if !strings.Contains(err.Error(), "bad magic") {
		t.Errorf("error should mention bad magic, got: %v", err)
	}
}

func TestReadFrameBadVersion(t *testing.T) {
	frame := []byte{
		magic0, magic1, magic2,
		0xFF, // wrong version
		byte(CodecJSON),
		byte(MsgRequest),
		0, 0, 0, 1,
		0, 0, 0, 0,
	}
	_, _, err := ReadFrame(bytes.NewReader(frame))
	if err == nil {
		t.Fatal("expected error for bad version, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported version") {
		t.Errorf("error should mention unsupported version, got: %v", err)
	}
}

func TestHeartbeatFrameEmptyBody(t *testing.T) {
	header := Header{Codec: CodecJSON, MsgType: MsgHeartbeat, Seq: 7}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, &header, nil); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	got, body, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if got.MsgType != MsgHeartbeat {
		t.Errorf("MsgType mismatch: got %d, want %d", got.MsgType, MsgHeartbeat)
	}
	if len(body) != 0 {
		t.Errorf("expected empty body, got %d bytes", len(body))
	}
}

func TestFrameLargeBody(t *testing.T) {
	body := make([]byte, 1024*1024)
	for i := range body {
		body[i] = byte(i % 256)
	}
	header := Header{
		Codec:   CodecBinary,
		MsgType: MsgRequest,
		Seq:     999,
		BodyLen: uint32(len(body)),
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, &header, body); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	_, gotBody, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(gotBody, body) {
		t.Error("large body mismatch")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	original := &Message{
		ServiceMethod: "ArithService.Add",
		Payload:       []byte(`{"a":1,"b":2}`),
		Error:         "boom",
	}

	for _, ct := range []CodecType{CodecJSON, CodecBinary} {
		c := GetCodec(ct)
		data, err := c.Encode(original)
		if err != nil {
			t.Fatalf("codec %d Encode failed: %v", ct, err)
		}

		var decoded Message
		if err := c.Decode(data, &decoded); err != nil {
			t.Fatalf("codec %d Decode failed: %v", ct, err)
		}
		if decoded.ServiceMethod != original.ServiceMethod {
			t.Errorf("codec %d ServiceMethod mismatch: got %s", ct, decoded.ServiceMethod)
		}
		if string(decoded.Payload) != string(original.Payload) {
			t.Errorf("codec %d Payload mismatch: got %s", ct, decoded.Payload)
		}
		if decoded.Error != original.Error {
			t.Errorf("codec %d Error mismatch: got %s", ct, decoded.Error)
		}
	}
}

func TestBinaryCodecTruncated(t *testing.T) {
	c := GetCodec(CodecBinary)
	data, err := c.Encode(&Message{ServiceMethod: "Arith.Add", Payload: []byte("xyz")})
	if err != nil {
		t.Fatal(err)
	}

	var decoded Message
	if err := c.Decode(data[:len(data)-2], &decoded); err == nil {
		t.Fatal("expected error for truncated message, got nil")
	}
}

func TestParseCodecType(t *testing.T) {
	if ct, err := ParseCodecType("json"); err != nil || ct != CodecJSON {
		t.Fatalf("json: got %v, %v", ct, err)
	}
	if ct, err := ParseCodecType("binary"); err != nil || ct != CodecBinary {
		t.Fatalf("binary: got %v, %v", ct, err)
	}
	if _, err := ParseCodecType("protobuf"); err == nil {
		t.Fatal("expected error for unknown codec name")
	}
}
