package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/udduke/ribbon/config"
	"github.com/udduke/ribbon/loadbalance"
	"github.com/udduke/ribbon/middleware"
	"github.com/udduke/ribbon/transport"
	"github.com/udduke/ribbon/wire"
)

// RPCClient is the default client implementation. It is constructed bare and
// initialized from configuration, then optionally handed a load balancer —
// the two capability paths the factory drives.
//
// Per-call flow: pick a target address (balancer first, "server.address"
// fallback), borrow a transport from that address's pool, send, wait. The
// whole path is wrapped in the middleware chain built from config: logging,
// then rate limiting, then a per-call timeout, then retry innermost so each
// retry attempt gets its own timeout budget.
type RPCClient struct {
	mu       sync.Mutex
	name     string
	codec    wire.CodecType
	poolSize int
	direct   string // target when no balancer is bound
	balancer loadbalance.Balancer
	pools    map[string]*transport.Pool
	handler  middleware.Handler
	log      *zap.Logger
}

// NewRPCClient creates an uninitialized client. InitWithConfig must run
// before Call; the factory guarantees that ordering.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		codec:    wire.CodecJSON,
		poolSize: 4,
		pools:    make(map[string]*transport.Pool),
		log:      zap.NewNop(),
	}
}

// SetLogger replaces the no-op logger. Call before InitWithConfig so the
// middleware chain picks it up.
func (c *RPCClient) SetLogger(log *zap.Logger) {
	if log != nil {
		c.log = log
	}
}

// InitWithConfig reads the wire codec, pool sizing, the direct address, and
// the middleware settings, then builds the call chain.
func (c *RPCClient) InitWithConfig(cfg config.ClientConfig) error {
	codec, err := wire.ParseCodecType(config.String(cfg, config.KeyCodec, "json"))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.name = cfg.Name()
	c.codec = codec
	c.poolSize = config.Int(cfg, config.KeyPoolSize, 4)
	if c.poolSize < 1 {
		c.poolSize = 1
	}
	c.direct = config.String(cfg, config.KeyServerAddress, "")

	var chain []middleware.Middleware
	chain = append(chain, middleware.Logging(c.log))
	if rps := config.Float(cfg, config.KeyRateLimit, 0); rps > 0 {
		burst := config.Int(cfg, config.KeyRateBurst, 1)
		chain = append(chain, middleware.RateLimit(rps, burst))
	}
	if timeout := config.Duration(cfg, config.KeyRequestTimeout, 0); timeout > 0 {
		chain = append(chain, middleware.Timeout(timeout))
	}
	if retries := config.Int(cfg, config.KeyMaxRetries, 0); retries > 0 {
		delay := config.Duration(cfg, config.KeyRetryDelay, 50*time.Millisecond)
		chain = append(chain, middleware.Retry(retries, delay, c.log))
	}
	c.handler = middleware.Chain(chain...)(c.send)
	return nil
}

// SetLoadBalancer binds the balancer. The factory calls this at most once
// per client; a bound balancer is never replaced.
func (c *RPCClient) SetLoadBalancer(lb loadbalance.Balancer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balancer == nil {
		c.balancer = lb
	}
}

// LoadBalancer returns the bound balancer, nil when none was provisioned.
func (c *RPCClient) LoadBalancer() loadbalance.Balancer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balancer
}

// Call invokes serviceMethod through the middleware chain and unmarshals the
// response payload into reply.
func (c *RPCClient) Call(ctx context.Context, serviceMethod string, args, reply any) error {
	if parts := strings.Split(serviceMethod, "."); len(parts) != 2 {
		return fmt.Errorf("client: invalid service method %q, want \"Service.Method\"", serviceMethod)
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return errors.New("client: not initialized, missing InitWithConfig")
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return err
	}

	resp := handler(ctx, &wire.Message{ServiceMethod: serviceMethod, Payload: payload})
	if resp.Error != "" {
		return fmt.Errorf("client: call %s: %s", serviceMethod, resp.Error)
	}
	if reply == nil {
		return nil
	}
	return json.Unmarshal(resp.Payload, reply)
}

// send is the innermost handler: resolve a target, borrow a transport, write
// the request and wait for its routed response.
func (c *RPCClient) send(ctx context.Context, req *wire.Message) *wire.Message {
	fail := func(err error) *wire.Message {
		return &wire.Message{ServiceMethod: req.ServiceMethod, Error: err.Error()}
	}

	addr, err := c.target(req.ServiceMethod)
	if err != nil {
		return fail(err)
	}

	pool := c.pool(addr)
	t, err := pool.Get()
	if err != nil {
		return fail(err)
	}

	_, respChan, err := t.SendMessage(req)
	if err != nil {
		pool.Put(t, true)
		return fail(err)
	}

	select {
	case resp := <-respChan:
		pool.Put(t, false)
		return resp
	case <-ctx.Done():
		// The response slot on this transport is now orphaned; retire the
		// transport rather than let a late frame confuse a future borrower.
		pool.Put(t, true)
		return fail(ctx.Err())
	}
}

// target picks the destination address for one call. The affinity key handed
// to the balancer is the service method, so hash rules keep a method pinned
// to an instance.
func (c *RPCClient) target(serviceMethod string) (string, error) {
	c.mu.Lock()
	lb := c.balancer
	direct := c.direct
	c.mu.Unlock()

	if lb != nil {
		instance, err := lb.ChooseServer(serviceMethod)
		if err != nil {
			return "", err
		}
		return instance.Addr, nil
	}
	if direct != "" {
		return direct, nil
	}
	return "", fmt.Errorf("client: %q has no load balancer and no %s configured", c.name, config.KeyServerAddress)
}

func (c *RPCClient) pool(addr string) *transport.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[addr]
	if !ok {
		p = transport.NewPool(addr, c.poolSize, c.codec)
		c.pools[addr] = p
	}
	return p
}

// Close shuts every transport pool and the balancer's watcher when the
// balancer owns one.
func (c *RPCClient) Close() error {
	c.mu.Lock()
	pools := c.pools
	c.pools = make(map[string]*transport.Pool)
	lb := c.balancer
	c.mu.Unlock()

	for _, p := range pools {
		p.Close()
	}
	if closer, ok := lb.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
