package monitor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelSink counts registrations through an OpenTelemetry meter, labeled by
// the registration label so dashboards can tell clients from balancers.
type OTelSink struct {
	registrations metric.Int64Counter
}

// NewOTelSink builds a sink on the globally configured meter provider.
func NewOTelSink() (*OTelSink, error) {
	meter := otel.Meter("ribbon")
	registrations, err := meter.Int64Counter("ribbon.factory.registrations",
		metric.WithDescription("Objects registered by the provisioning factory"),
	)
	if err != nil {
		return nil, err
	}
	return &OTelSink{registrations: registrations}, nil
}

func (s *OTelSink) RegisterObject(label string, _ any) error {
	s.registrations.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("label", label)))
	return nil
}
