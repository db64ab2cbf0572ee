package engine

import (
	"math"
	"time"

	"staysense/internal/storage"
)

// SourceHealth reports the freshest and stalest import ages, rounded to two
// decimals, and the sources older than StaleAfter.
func SourceHealth(states []storage.SourceState, now time.Time) Health {
	h := Health{StaleSources: []string{}}
	if len(states) == 0 {
		return h
	}

	freshest := math.Inf(1)
	stalest := math.Inf(-1)
	for _, s := range states {
		age := math.Max(0, now.Sub(s.ImportedAt).Hours())
		freshest = math.Min(freshest, age)
		stalest = math.Max(stalest, age)
		if age > StaleAfter.Hours() {
			h.StaleSources = append(h.StaleSources, s.Name)
		}
	}
	f := round2(freshest)
	st := round2(stalest)
	h.FreshestAgeHours = &f
	h.StalestAgeHours = &st
	h.HasData = true
	return h
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
