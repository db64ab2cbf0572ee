package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNilInstrumentsAreNoops(t *testing.T) {
	var inst *Instruments
	ctx := context.Background()
	inst.SpotCreated(ctx, true)
	inst.SignalAccepted(ctx, "calm")
	inst.SignalRejected(ctx, "daily_limit")
	inst.ScoreComputed(ctx, "green")
}

func TestDefaultIsShared(t *testing.T) {
	if Default() == nil || Default() != Default() {
		t.Fatal("expected one shared default instrument set")
	}
}

func TestCountersRecord(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	inst := New(provider.Meter(meterName))
	inst.SpotCreated(ctx, false)
	inst.SpotCreated(ctx, true)
	inst.SignalAccepted(ctx, "calm")
	inst.SignalRejected(ctx, "cooldown_active")
	inst.SignalRejected(ctx, "cooldown_active")
	inst.SignalRejected(ctx, "daily_limit")
	inst.ScoreComputed(ctx, "yellow")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	tests := []struct {
		name  string
		key   string
		value string
		want  int64
	}{
		{name: "staysense_spots_created_total", want: 2},
		{name: "staysense_spot_fallback_total", want: 1},
		{name: "staysense_signals_accepted_total", key: "type", value: "calm", want: 1},
		{name: "staysense_signals_rejected_total", key: "reason", value: "cooldown_active", want: 2},
		{name: "staysense_signals_rejected_total", key: "reason", value: "daily_limit", want: 1},
		{name: "staysense_scores_computed_total", key: "category", value: "yellow", want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name+"/"+tc.value, func(t *testing.T) {
			if got := counterValue(rm, tc.name, tc.key, tc.value); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

// counterValue sums the data points of the named counter, restricted to
// points whose key attribute equals value when key is set.
func counterValue(rm metricdata.ResourceMetrics, name, key, value string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if key != "" {
					v, ok := dp.Attributes.Value(attribute.Key(key))
					if !ok || v.AsString() != value {
						continue
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}
