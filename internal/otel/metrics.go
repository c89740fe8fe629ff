package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tpik"

// Metrics holds the picker's metric instruments.
// All methods are nil-safe so callers can run without telemetry.
type Metrics struct {
	GatewayCalls    metric.Int64Counter
	Refreshes       metric.Int64Counter
	RefreshDuration metric.Float64Histogram
	Selections      metric.Int64Counter
	FavoriteToggles metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.GatewayCalls, err = meter.Int64Counter("gateway.calls",
		metric.WithDescription("Multiplexer commands issued, partitioned by op and result"))
	if err != nil {
		return nil, err
	}

	m.Refreshes, err = meter.Int64Counter("picker.refreshes",
		metric.WithDescription("Session list refreshes"))
	if err != nil {
		return nil, err
	}

	m.RefreshDuration, err = meter.Float64Histogram("picker.refresh.duration",
		metric.WithDescription("Wall-clock time of a session list refresh"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	m.Selections, err = meter.Int64Counter("picker.selections",
		metric.WithDescription("Sessions handed off to the multiplexer, partitioned by action"))
	if err != nil {
		return nil, err
	}

	m.FavoriteToggles, err = meter.Int64Counter("favorites.toggles",
		metric.WithDescription("Favorite toggles, partitioned by resulting state"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordGatewayCall records one multiplexer command.
func (m *Metrics) RecordGatewayCall(ctx context.Context, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GatewayCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

// RecordRefresh records a refresh and its duration.
func (m *Metrics) RecordRefresh(ctx context.Context, d time.Duration, sessions int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("sessions", sessions))
	m.Refreshes.Add(ctx, 1, attrs)
	m.RefreshDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// RecordSelection records a hand-off to the multiplexer (attach, switch, create, template, tree).
func (m *Metrics) RecordSelection(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.Selections.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordFavoriteToggle records a favorite toggle.
func (m *Metrics) RecordFavoriteToggle(ctx context.Context, favorite bool) {
	if m == nil {
		return
	}
	m.FavoriteToggles.Add(ctx, 1, metric.WithAttributes(attribute.Bool("favorite", favorite)))
}
