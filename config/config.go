// Package config provides named client configuration for the library.
//
// A ClientConfig is an opaque bundle of key/value settings identified by a
// client name. Settings come from three layers, later layers winning:
//
//  1. Built-in defaults (see Defaults)
//  2. A YAML file: a "defaults" section plus one section per client name
//  3. Environment variables: RIBBON_{NAME}_{KEY}, dots replaced by underscores
//
// Configs are resolved once per name through Resolver and shared by every
// component built for that name.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Keys recognized by the built-in components. Pluggable implementations are
// free to define their own keys on top of these.
const (
	KeyClientImpl      = "client.impl"          // implementation ID of the client to construct
	KeyBalancerImpl    = "loadbalancer.impl"    // implementation ID of the load balancer
	KeyBalancerEnabled = "loadbalancer.enabled" // auto-provision a load balancer on RegisterClient
	KeyBalancerRule    = "loadbalancer.rule"    // selection rule: roundrobin, weighted, hash
	KeyServers         = "servers"              // static server list ("host:port,host:port")
	KeyEtcdEndpoints   = "etcd.endpoints"       // etcd endpoints for dynamic discovery
	KeyServerAddress   = "server.address"       // direct address when no balancer is bound
	KeyCodec           = "codec"                // wire codec: json or binary
	KeyPoolSize        = "transport.poolsize"   // transports kept per server address
	KeyRequestTimeout  = "request.timeout"      // per-call timeout, 0 disables
	KeyMaxRetries      = "retry.max"            // retries after the first attempt, 0 disables
	KeyRetryDelay      = "retry.delay"          // base delay for exponential backoff
	KeyRateLimit       = "ratelimit.rps"        // client-side request rate, 0 disables
	KeyRateBurst       = "ratelimit.burst"      // token bucket burst size
)

// EnvFile names the environment variable holding the YAML config file path.
const EnvFile = "RIBBON_CONFIG"

// ClientConfig is the named settings bundle handed to every pluggable
// implementation. LoadProperties is the side-effecting initialization step:
// it pulls in defaults, file sections and environment overrides for the name.
type ClientConfig interface {
	// Name returns the client name this config was loaded for.
	Name() string

	// LoadProperties loads the settings for the given name. Called exactly
	// once, by the Resolver, right after construction.
	LoadProperties(name string) error

	// Get returns the raw value for key.
	Get(key string) (any, bool)

	// Set overrides a single key. Safe for concurrent use.
	Set(key string, value any)
}

// Aware is the configuration-initializable capability. Implementations that
// declare it are constructed with their zero-arg constructor and then handed
// the config through InitWithConfig. This is the preferred construction path
// for every pluggable type in this library.
type Aware interface {
	InitWithConfig(cfg ClientConfig) error
}

// Defaults returns a fresh copy of the built-in default settings.
func Defaults() map[string]any {
	return map[string]any{
		KeyClientImpl:      "rpc",
		KeyBalancerImpl:    "dynamic",
		KeyBalancerEnabled: true,
		KeyBalancerRule:    "roundrobin",
		KeyCodec:           "json",
		KeyPoolSize:        4,
		KeyRetryDelay:      "50ms",
	}
}

// Properties is the default ClientConfig implementation: a mutex-guarded map
// layered from defaults, an optional YAML file, and environment variables.
type Properties struct {
	mu   sync.RWMutex
	name string
	file string
	data map[string]any
}

// NewProperties creates an empty Properties. The YAML file path is taken from
// the RIBBON_CONFIG environment variable if set.
func NewProperties() *Properties {
	return &Properties{
		file: os.Getenv(EnvFile),
		data: make(map[string]any),
	}
}

// NewPropertiesFromFile creates a Properties bound to an explicit YAML file.
func NewPropertiesFromFile(path string) *Properties {
	return &Properties{
		file: path,
		data: make(map[string]any),
	}
}

// Name returns the client name passed to LoadProperties.
func (p *Properties) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// Get returns the raw value for key.
func (p *Properties) Get(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.data[key]
	return v, ok
}

// Set overrides a single key.
func (p *Properties) Set(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
}

// LoadProperties layers defaults, the YAML file (its "defaults" section, then
// the section matching name) and environment overrides into the map.
func (p *Properties) LoadProperties(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.name = name
	merged := Defaults()

	if p.file != "" {
		sections, err := loadFile(p.file)
		if err != nil {
			return err
		}
		for k, v := range sections["defaults"] {
			merged[k] = v
		}
		for k, v := range sections[name] {
			merged[k] = v
		}
	}

	// Environment overrides: RIBBON_{NAME}_{KEY}, e.g. RIBBON_SVCA_RETRY_MAX.
	prefix := envPrefix(name)
	for _, kv := range os.Environ() {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 || !strings.HasPrefix(kv[:eq], prefix) {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(kv[len(prefix):eq], "_", "."))
		merged[key] = kv[eq+1:]
	}

	// Explicit Set calls made before LoadProperties win over every layer.
	for k, v := range p.data {
		merged[k] = v
	}
	p.data = merged
	return nil
}

func envPrefix(name string) string {
	n := strings.ToUpper(name)
	n = strings.Map(func(r rune) rune {
		if r == '.' || r == '-' {
			return '_'
		}
		return r
	}, n)
	return "RIBBON_" + n + "_"
}

// loadFile parses the YAML file into per-client sections. Scalar top-level
// entries are ignored; only mapping sections are meaningful.
func loadFile(path string) (map[string]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc map[string]map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return doc, nil
}

// String returns the string value for key, or def if missing.
// Non-string scalars are formatted with %v so env overrides stay usable.
func String(cfg ClientConfig, key, def string) string {
	v, ok := cfg.Get(key)
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Bool returns the boolean value for key, or def if missing or unparseable.
// String values go through strconv.ParseBool.
func Bool(cfg ClientConfig, key string, def bool) bool {
	v, ok := cfg.Get(key)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

// Int returns the integer value for key, or def if missing or unparseable.
func Int(cfg ClientConfig, key string, def int) int {
	v, ok := cfg.Get(key)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return def
}

// Float returns the float64 value for key, or def if missing or unparseable.
func Float(cfg ClientConfig, key string, def float64) float64 {
	v, ok := cfg.Get(key)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return def
}

// Duration returns the duration value for key, or def if missing.
// Strings are parsed with time.ParseDuration; bare numbers mean seconds.
func Duration(cfg ClientConfig, key string, def time.Duration) time.Duration {
	v, ok := cfg.Get(key)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case time.Duration:
		return val
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case float64:
		return time.Duration(val * float64(time.Second))
	}
	return def
}

// Strings returns the string-slice value for key, or def if missing.
// Accepts []string, []any of strings, or a comma-separated string.
func Strings(cfg ClientConfig, key string, def []string) []string {
	v, ok := cfg.Get(key)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	case string:
		if val == "" {
			return def
		}
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return def
}
