package websocket

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// hubMetrics are the hub's OpenTelemetry instruments.
type hubMetrics struct {
	connections metric.Int64Counter
	active      metric.Int64UpDownCounter
	messages    metric.Int64Counter
	dropped     metric.Int64Counter
}

func newHubMetrics(meter metric.Meter) (*hubMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("websocket")
	}
	m := &hubMetrics{}
	var err error
	if m.connections, err = meter.Int64Counter("websocket_connections_total",
		metric.WithDescription("WebSocket clients registered")); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter("websocket_clients_active",
		metric.WithDescription("Currently connected WebSocket clients")); err != nil {
		return nil, err
	}
	if m.messages, err = meter.Int64Counter("websocket_messages_sent_total",
		metric.WithDescription("Messages queued to clients by event type")); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("websocket_clients_dropped_total",
		metric.WithDescription("Clients disconnected because their send buffer was full")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *hubMetrics) connected(ctx context.Context) {
	m.connections.Add(ctx, 1)
	m.active.Add(ctx, 1)
}

func (m *hubMetrics) disconnected(ctx context.Context, reason string) {
	m.active.Add(ctx, -1)
	if reason == "slow" {
		m.dropped.Add(ctx, 1)
	}
}

func (m *hubMetrics) sent(ctx context.Context, eventType string, n int) {
	m.messages.Add(ctx, int64(n), metric.WithAttributes(attribute.String("event_type", eventType)))
}
