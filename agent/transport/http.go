package transport

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/agent/protocol/a2a"
)

// HTTPTransport delivers to remote specialists over the a2a HTTP surface.
type HTTPTransport struct {
	client *a2a.Client
	config Config
	tracer trace.Tracer
	logger *zap.Logger

	// deliveries is exported over OTLP when telemetry is on.
	deliveries metric.Float64Histogram
}

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport(client *a2a.Client, config Config, logger *zap.Logger) *HTTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()
	if client == nil {
		cc := a2a.DefaultClientConfig()
		cc.ProtocolVersion = config.ProtocolVersion
		client = a2a.NewClient(cc, logger)
	}
	t := &HTTPTransport{
		client: client,
		config: config,
		tracer: otel.Tracer("a2abus/transport"),
		logger: logger.With(zap.String("component", "http_transport")),
	}
	h, err := otel.Meter("a2abus/transport").Float64Histogram("a2abus.transport.delivery.duration",
		metric.WithDescription("Duration of HTTP deliveries to specialists"),
		metric.WithUnit("s"),
	)
	if err != nil {
		t.logger.Warn("delivery histogram unavailable", zap.Error(err))
	}
	t.deliveries = h
	return t
}

func (t *HTTPTransport) recordDelivery(ctx context.Context, to string, elapsed time.Duration, err error) {
	if t.deliveries == nil {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	t.deliveries.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("a2a.to", to),
		attribute.String("outcome", outcome),
	))
}

// Deliver implements Transport.
func (t *HTTPTransport) Deliver(ctx context.Context, address string, msg *a2a.Message) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.DeliveryTimeout)
	defer cancel()

	ctx, span := t.tracer.Start(ctx, "transport.deliver", trace.WithAttributes(
		attribute.String("a2a.message_id", msg.ID),
		attribute.String("a2a.to", msg.ToAgent),
		attribute.String("a2a.type", msg.Type.String()),
	))
	defer span.End()

	start := time.Now()
	raw, err := t.client.Deliver(ctx, address, a2a.NewEnvelope(msg, t.config.ProtocolVersion))
	t.recordDelivery(ctx, msg.ToAgent, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.Debug("delivery failed",
			zap.String("message_id", msg.ID),
			zap.String("address", address),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	return raw, nil
}

// Probe implements Transport.
func (t *HTTPTransport) Probe(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.ProbeTimeout)
	defer cancel()

	ctx, span := t.tracer.Start(ctx, "transport.probe", trace.WithAttributes(
		attribute.String("a2a.address", address),
	))
	defer span.End()

	if err := t.client.CheckHealth(ctx, address); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
