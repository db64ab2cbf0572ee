package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "staysense"

// Instruments holds the scoring core's counters. Methods are safe on a nil
// receiver so components can run without telemetry.
type Instruments struct {
	spotsCreated    metric.Int64Counter
	spotFallback    metric.Int64Counter
	signalsAccepted metric.Int64Counter
	signalsRejected metric.Int64Counter
	scoresComputed  metric.Int64Counter
}

var (
	defaultOnce sync.Once
	defaultInst *Instruments
)

// Default returns instruments bound to the global meter provider. Until a
// host installs a provider the counters are no-ops.
func Default() *Instruments {
	defaultOnce.Do(func() {
		defaultInst = New(otel.Meter(meterName))
	})
	return defaultInst
}

func New(meter metric.Meter) *Instruments {
	spots, _ := meter.Int64Counter("staysense_spots_created_total")
	fallback, _ := meter.Int64Counter("staysense_spot_fallback_total")
	accepted, _ := meter.Int64Counter("staysense_signals_accepted_total")
	rejected, _ := meter.Int64Counter("staysense_signals_rejected_total")
	scores, _ := meter.Int64Counter("staysense_scores_computed_total")
	return &Instruments{
		spotsCreated:    spots,
		spotFallback:    fallback,
		signalsAccepted: accepted,
		signalsRejected: rejected,
		scoresComputed:  scores,
	}
}

func (i *Instruments) SpotCreated(ctx context.Context, usedFallback bool) {
	if i == nil {
		return
	}
	i.spotsCreated.Add(ctx, 1)
	if usedFallback {
		i.spotFallback.Add(ctx, 1)
	}
}

func (i *Instruments) SignalAccepted(ctx context.Context, signalType string) {
	if i == nil {
		return
	}
	i.signalsAccepted.Add(ctx, 1, metric.WithAttributes(attribute.String("type", signalType)))
}

func (i *Instruments) SignalRejected(ctx context.Context, reason string) {
	if i == nil {
		return
	}
	i.signalsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (i *Instruments) ScoreComputed(ctx context.Context, category string) {
	if i == nil {
		return
	}
	i.scoresComputed.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}
