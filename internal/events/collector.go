package events

import (
	"context"
	"fmt"
	"math"
	"time"

	"staysense/internal/geo"
	"staysense/internal/score"
	"staysense/internal/temporal"
)

type Type string

const (
	TypeMarket       Type = "market"
	TypeWaste        Type = "waste"
	TypeEvent        Type = "event"
	TypeConstruction Type = "construction"
)

func ValidType(v string) bool {
	switch Type(v) {
	case TypeMarket, TypeWaste, TypeEvent, TypeConstruction:
		return true
	}
	return false
}

var labels = map[Type]string{
	TypeWaste:        "Morning waste collection",
	TypeMarket:       "Morning market",
	TypeEvent:        "Local event",
	TypeConstruction: "Construction site",
}

// Event is a scheduled local activity over [Start, End).
type Event struct {
	ID           string
	Type         Type
	Lat          float64
	Lon          float64
	Start        time.Time
	End          time.Time
	RiskModifier int
	Source       string
}

// Source returns events whose interval touches [from, to], optionally
// restricted to a bounding box.
type Source interface {
	EventsOverlapping(ctx context.Context, from, to time.Time, bounds *geo.Rect) ([]Event, error)
}

type Params struct {
	RadiusMeters float64       `yaml:"radius_meters"`
	MorningSpan  time.Duration `yaml:"morning_span"`
}

func DefaultParams() Params {
	return Params{RadiusMeters: 1000, MorningSpan: 4 * time.Hour}
}

type Collector struct {
	Source Source
	Params Params
}

// Collect returns one factor per distinct event near (lat, lon) that overlaps
// the morning after nightEnd.
func (c *Collector) Collect(ctx context.Context, lat, lon float64, nightEnd time.Time) ([]score.Factor, error) {
	morning := temporal.MorningRange(nightEnd, c.Params.MorningSpan)

	var bounds *geo.Rect
	if rect, ok := geo.BoundingRect(lat, lon, c.Params.RadiusMeters); ok {
		bounds = &rect
	}
	candidates, err := c.Source.EventsOverlapping(ctx, morning.Start, morning.End, bounds)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	var factors []score.Factor
	seen := make(map[dedupeKey]struct{})
	for _, ev := range candidates {
		if !Overlaps(ev, morning) {
			continue
		}
		if geo.HaversineMeters(lat, lon, ev.Lat, ev.Lon) > c.Params.RadiusMeters {
			continue
		}
		key := keyFor(ev)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		factors = append(factors, score.Factor{
			Key:    "event_" + string(ev.Type),
			Label:  Label(ev.Type),
			Points: float64(ev.RiskModifier),
			Source: ev.Source,
		})
	}
	return factors, nil
}

// Overlaps reports whether ev touches r, counting shared endpoints.
func Overlaps(ev Event, r temporal.Window) bool {
	return !ev.Start.After(r.End) && !ev.End.Before(r.Start)
}

func Label(t Type) string {
	if l, ok := labels[t]; ok {
		return l
	}
	return "Local activity"
}

// dedupeKey collapses near-identical rows imported from several sources.
type dedupeKey struct {
	typ      Type
	modifier int
	start    int64
	end      int64
	lat      float64
	lon      float64
}

func keyFor(ev Event) dedupeKey {
	return dedupeKey{
		typ:      ev.Type,
		modifier: ev.RiskModifier,
		start:    ev.Start.Unix(),
		end:      ev.End.Unix(),
		lat:      round4(ev.Lat),
		lon:      round4(ev.Lon),
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
