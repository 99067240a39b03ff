package rig

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/rigsync/internal/rig"

type metrics struct {
	created   metric.Int64Counter
	destroyed metric.Int64Counter
	synced    metric.Int64Counter
	errors    metric.Int64Counter
	live      metric.Int64ObservableGauge

	// mirrors arena.len() for the gauge callback, which runs off the frame loop
	liveCount atomic.Int64
}

// newMetrics registers the synchronizer instruments. A nil provider uses the
// global one (no-op unless configured).
func newMetrics(provider metric.MeterProvider) (*metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	m := provider.Meter(instrumentationName)
	mt := &metrics{}

	var err error

	mt.created, err = m.Int64Counter(
		"rig.representations.created",
		metric.WithDescription("Representations instantiated for newly tracked bodies"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating created counter: %w", err)
	}

	mt.destroyed, err = m.Int64Counter(
		"rig.representations.destroyed",
		metric.WithDescription("Representations destroyed after their body stopped being tracked"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating destroyed counter: %w", err)
	}

	mt.synced, err = m.Int64Counter(
		"rig.frames.synced",
		metric.WithDescription("Body node syncs completed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating synced counter: %w", err)
	}

	mt.errors, err = m.Int64Counter(
		"rig.sync.errors",
		metric.WithDescription("Body syncs that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating errors counter: %w", err)
	}

	mt.live, err = m.Int64ObservableGauge(
		"rig.representations.live",
		metric.WithDescription("Representations currently owned"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating live gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mt.live, mt.liveCount.Load())
			return nil
		},
		mt.live,
	)
	if err != nil {
		return nil, fmt.Errorf("registering live callback: %w", err)
	}

	return mt, nil
}
