// Package monitor receives notifications about objects the provisioning
// factory creates. Sinks are strictly best-effort: the factory logs and
// discards their errors, because a monitoring hiccup must never block a
// working client or balancer from being provisioned.
package monitor

import (
	"fmt"

	"go.uber.org/zap"
)

// Sink is notified of each constructed object under a stable label
// ("Client_{name}", "LoadBalancer_{name}").
type Sink interface {
	RegisterObject(label string, obj any) error
}

// NopSink ignores every registration. It is the factory default.
type NopSink struct{}

func (NopSink) RegisterObject(string, any) error { return nil }

// LogSink records registrations to a logger.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a sink writing to log.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) RegisterObject(label string, obj any) error {
	s.log.Info("object registered",
		zap.String("label", label),
		zap.String("type", fmt.Sprintf("%T", obj)))
	return nil
}
