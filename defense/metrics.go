package defense

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/skyshield/skyshield/defense"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// engineMetrics holds the OTel instruments published by the engine.
// With no SDK installed these are no-ops, so the engine can always
// record without caring whether metrics are wired up.
type engineMetrics struct {
	interceptorsFired   metric.Int64Counter
	interceptorsExpired metric.Int64Counter
	threatsDestroyed    metric.Int64Counter
	threatsLeaked       metric.Int64Counter
	detonations         metric.Int64Counter
	allocEfficiency     metric.Float64Gauge
	cacheSize           metric.Int64Gauge
}

func newEngineMetrics() (*engineMetrics, error) {
	m := meter()
	em := &engineMetrics{}

	var err error

	em.interceptorsFired, err = m.Int64Counter(
		"engine.interceptors.fired",
		metric.WithDescription("Total interceptors launched"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fired counter: %w", err)
	}

	em.interceptorsExpired, err = m.Int64Counter(
		"engine.interceptors.expired",
		metric.WithDescription("Interceptors lost to flight timeout, ground impact or self-destruct"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating expired counter: %w", err)
	}

	em.threatsDestroyed, err = m.Int64Counter(
		"engine.threats.destroyed",
		metric.WithDescription("Threats destroyed by interceptors"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating destroyed counter: %w", err)
	}

	em.threatsLeaked, err = m.Int64Counter(
		"engine.threats.leaked",
		metric.WithDescription("Threats that reached the ground unintercepted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating leaked counter: %w", err)
	}

	em.detonations, err = m.Int64Counter(
		"engine.detonations",
		metric.WithDescription("Proximity detonations adjudicated, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating detonations counter: %w", err)
	}

	em.allocEfficiency, err = m.Float64Gauge(
		"engine.allocation.efficiency",
		metric.WithDescription("Priority-weighted fraction of threats covered by the last allocation pass"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating efficiency gauge: %w", err)
	}

	em.cacheSize, err = m.Int64Gauge(
		"engine.solution_cache.size",
		metric.WithDescription("Entries currently held by the interception solution cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache size gauge: %w", err)
	}

	return em, nil
}

func (em *engineMetrics) recordDetonation(ctx context.Context, outcome string) {
	em.detonations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
