package server

import (
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/udduke/ribbon/wire"
)

type GreetArgs struct {
	Name string `json:"name"`
}

type GreetReply struct {
	Greeting string `json:"greeting"`
}

type Greeter struct{}

func (g *Greeter) Hello(args *GreetArgs, reply *GreetReply) error {
	reply.Greeting = "hello " + args.Name
	return nil
}

type bare struct{}

func (b *bare) NotRPCShaped() {}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer()
	if err := srv.Register(&Greeter{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	go srv.Serve("tcp", "127.0.0.1:0", "", nil)
	t.Cleanup(func() { srv.Shutdown(time.Second) })

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv, srv.Addr().String()
}

// call writes one raw request frame and reads the response frame back.
func call(t *testing.T, conn net.Conn, seq uint32, serviceMethod string, args any) *wire.Message {
	t.Helper()
	payload, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	codec := wire.GetCodec(wire.CodecJSON)
	body, err := codec.Encode(&wire.Message{ServiceMethod: serviceMethod, Payload: payload})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	header := wire.Header{
		Codec:   wire.CodecJSON,
		MsgType: wire.MsgRequest,
		Seq:     seq,
		BodyLen: uint32(len(body)),
	}
	if err := wire.WriteFrame(conn, &header, body); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	respHeader, respBody, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if respHeader.Seq != seq {
		t.Fatalf("response seq = %d, want %d", respHeader.Seq, seq)
	}
	if respHeader.MsgType != wire.MsgResponse {
		t.Fatalf("response type = %d", respHeader.MsgType)
	}
	resp := &wire.Message{}
	if err := codec.Decode(respBody, resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestServeDispatch(t *testing.T) {
	_, addr := startServer(t)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	resp := call(t, conn, 1, "Greeter.Hello", &GreetArgs{Name: "world"})
	if resp.Error != "" {
		t.Fatalf("error = %s", resp.Error)
	}
	var reply GreetReply
	if err := json.Unmarshal(resp.Payload, &reply); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if reply.Greeting != "hello world" {
		t.Fatalf("greeting = %q", reply.Greeting)
	}
}

func TestServeUnknownTargets(t *testing.T) {
	_, addr := startServer(t)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cases := []struct {
		method string
		want   string
	}{
		{"Nope.Hello", "unknown service"},
		{"Greeter.Nope", "unknown method"},
		{"Greeter", "invalid service method"},
	}
	for i, tc := range cases {
		resp := call(t, conn, uint32(i+1), tc.method, &GreetArgs{})
		if !strings.Contains(resp.Error, tc.want) {
			t.Errorf("%s: error = %q, want %q", tc.method, resp.Error, tc.want)
		}
	}
}

func TestServeSkipsHeartbeats(t *testing.T) {
	_, addr := startServer(t)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hb := wire.Header{Codec: wire.CodecJSON, MsgType: wire.MsgHeartbeat}
	if err := wire.WriteFrame(conn, &hb, nil); err != nil {
		t.Fatalf("write heartbeat: %v", err)
	}

	// The connection is still usable for a real request.
	resp := call(t, conn, 7, "Greeter.Hello", &GreetArgs{Name: "after-heartbeat"})
	if resp.Error != "" {
		t.Fatalf("error = %s", resp.Error)
	}
}

func TestRegisterRejectsBadReceivers(t *testing.T) {
	srv := NewServer()
	if err := srv.Register(Greeter{}); err == nil {
		t.Error("non-pointer receiver accepted")
	}
	if err := srv.Register(&bare{}); err == nil {
		t.Error("receiver with no RPC-shaped methods accepted")
	}
}

func TestShutdownStopsAccepting(t *testing.T) {
	srv, addr := startServer(t)
	if err := srv.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return // listener fully gone
	}
	// The listener may accept briefly during teardown, but the frame read
	// must fail rather than produce a response.
	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	hb := wire.Header{Codec: wire.CodecJSON, MsgType: wire.MsgRequest, Seq: 1}
	wire.WriteFrame(conn, &hb, nil)
	if _, _, err := wire.ReadFrame(conn); err == nil {
		t.Fatal("got a response from a shut-down server")
	}
	conn.Close()
}
