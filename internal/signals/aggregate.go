package signals

import (
	"context"
	"fmt"
	"math"
	"time"

	"staysense/internal/score"
)

// Decay returns the weight of a signal ageDays old: 1 at age zero, halving
// every halfLifeDays.
func Decay(ageDays, halfLifeDays float64) float64 {
	if ageDays <= 0 {
		return 1
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}

type Aggregator struct {
	Store  Store
	Params Params
}

// Aggregate sums decayed signal contributions per type for spotID as seen at
// at, dropping totals below the noise floor.
func (a *Aggregator) Aggregate(ctx context.Context, spotID string, at time.Time) ([]score.Factor, error) {
	since := at.AddDate(0, 0, -a.Params.LookbackDays)
	rows, err := a.Store.SignalsSince(ctx, spotID, since)
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}
	return Sum(rows, at, a.Params), nil
}

// Sum is the pure part of Aggregate.
func Sum(rows []Signal, at time.Time, p Params) []score.Factor {
	totals := make(map[Type]float64, len(Types))
	for _, sig := range rows {
		bucket, ok := p.Buckets[sig.Type]
		if !ok {
			continue
		}
		age := math.Max(0, at.Sub(sig.Timestamp).Hours()/24)
		if age > bucket.WindowDays {
			continue
		}
		totals[sig.Type] += bucket.Base * Decay(age, bucket.HalfLifeDays)
	}

	var factors []score.Factor
	for _, t := range Types {
		total := totals[t]
		if math.Abs(total) < p.NoiseFloor {
			continue
		}
		factors = append(factors, score.Factor{
			Key:    "community_" + string(t),
			Label:  p.Buckets[t].Label,
			Points: total,
			Source: "community",
		})
	}
	return factors
}
