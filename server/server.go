// Package server implements the RPC server side of the library: service
// registration, the middleware chain, parallel request handling, discovery
// announcement, and graceful shutdown.
//
// Request pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → per request: go handleRequest (parallel)
//	    → codec decode → middleware chain → method dispatch → codec encode → write
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/udduke/ribbon/discovery"
	"github.com/udduke/ribbon/middleware"
	"github.com/udduke/ribbon/wire"
)

// registrationTTL is the discovery lease in seconds; keepalive renews it.
const registrationTTL = 10

// Server registers services and answers incoming calls.
type Server struct {
	services    map[string]*service
	listener    net.Listener
	wg          sync.WaitGroup // in-flight requests, drained on shutdown
	shutdown    atomic.Bool    // distinguishes intentional close from Accept failures
	middlewares []middleware.Middleware
	handler     middleware.Handler
	disc        discovery.Discovery // nil when not announcing
	advertise   string              // routable address announced to discovery
	log         *zap.Logger
}

// NewServer creates a server with no services registered.
func NewServer(opts ...Option) *Server {
	s := &Server{
		services: make(map[string]*service),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// Register exposes the receiver's RPC-shaped methods under its type name.
func (s *Server) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	s.services[svc.name] = svc
	return nil
}

// Use appends a middleware. Middlewares wrap dispatch in registration order.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Serve listens on address and accepts connections until Shutdown.
//
// advertiseAddr is what gets announced to discovery (a routable host:port —
// the listen address ":0"-style forms resolve uselessly for peers). Pass a
// nil disc to skip announcement.
func (s *Server) Serve(network, address, advertiseAddr string, disc discovery.Discovery) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listener = listener

	// Build the chain once at startup, not per request.
	s.handler = middleware.Chain(s.middlewares...)(s.dispatch)

	s.advertise = advertiseAddr
	if disc != nil {
		s.disc = disc
		for name := range s.services {
			if err := disc.Register(name, discovery.ServiceInstance{Addr: advertiseAddr}, registrationTTL); err != nil {
				s.log.Warn("discovery registration failed",
					zap.String("service", name), zap.Error(err))
			}
		}
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Addr returns the bound listen address, useful with ":0" listeners.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleConn reads frames sequentially (a TCP stream has one valid parse
// position) and fans each request out to its own goroutine. All goroutines
// on the connection share one write mutex so response frames never
// interleave.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	writeMu := &sync.Mutex{}
	for {
		header, body, err := wire.ReadFrame(conn)
		if err != nil {
			return // closed or protocol violation
		}
		if header.MsgType == wire.MsgHeartbeat {
			continue
		}
		go s.handleRequest(header, body, conn, writeMu)
	}
}

func (s *Server) handleRequest(header *wire.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	s.wg.Add(1)
	defer s.wg.Done()

	codec := wire.GetCodec(header.Codec)
	req := wire.Message{}
	if err := codec.Decode(body, &req); err != nil {
		s.log.Warn("undecodable request body", zap.Error(err))
		return
	}

	resp := s.handler(context.Background(), &req)

	out, err := codec.Encode(resp)
	if err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
		return
	}
	replyHeader := wire.Header{
		Codec:   header.Codec,
		MsgType: wire.MsgResponse,
		Seq:     header.Seq, // same seq, so the client routes it to its caller
		BodyLen: uint32(len(out)),
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := wire.WriteFrame(conn, &replyHeader, out); err != nil {
		s.log.Warn("failed to write response", zap.Error(err))
	}
}

// dispatch is the innermost handler: look up the service method, rebuild its
// argument value from the payload, invoke it via reflection, and serialize
// the reply.
func (s *Server) dispatch(_ context.Context, req *wire.Message) *wire.Message {
	parts := strings.Split(req.ServiceMethod, ".")
	if len(parts) != 2 {
		return &wire.Message{ServiceMethod: req.ServiceMethod, Error: "invalid service method format"}
	}

	svc, ok := s.services[parts[0]]
	if !ok {
		return &wire.Message{ServiceMethod: req.ServiceMethod, Error: fmt.Sprintf("unknown service %q", parts[0])}
	}
	spec, ok := svc.methods[parts[1]]
	if !ok {
		return &wire.Message{ServiceMethod: req.ServiceMethod, Error: fmt.Sprintf("unknown method %q", parts[1])}
	}

	argv := reflect.New(spec.argType)
	replyv := reflect.New(spec.replyType)
	if err := json.Unmarshal(req.Payload, argv.Interface()); err != nil {
		return &wire.Message{ServiceMethod: req.ServiceMethod, Error: err.Error()}
	}

	callErr := svc.call(spec, argv, replyv)

	payload, err := json.Marshal(replyv.Interface())
	if err != nil {
		return &wire.Message{ServiceMethod: req.ServiceMethod, Error: err.Error()}
	}
	resp := &wire.Message{ServiceMethod: req.ServiceMethod, Payload: payload}
	if callErr != nil {
		resp.Error = callErr.Error()
	}
	return resp
}

// Shutdown stops the server gracefully: deregister from discovery first so
// clients stop routing here, then close the listener, then wait for
// in-flight requests up to the timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.disc != nil {
		for name := range s.services {
			if err := s.disc.Deregister(name, s.advertise); err != nil {
				s.log.Warn("discovery deregistration failed",
					zap.String("service", name), zap.Error(err))
			}
		}
	}

	// Flag before close: otherwise the Accept error races the flag and
	// Serve reports a spurious failure.
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for in-flight requests")
	}
}
