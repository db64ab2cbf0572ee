package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"staysense/internal/config"
	"staysense/internal/events"
	"staysense/internal/geo"
	"staysense/internal/score"
	"staysense/internal/signals"
	"staysense/internal/spot"
	"staysense/internal/storage"
	"staysense/internal/telemetry"
	"staysense/internal/temporal"
	"staysense/internal/tuning"
)

const (
	RegionLabel = "DE-NW (Pilot: Kreis Mettmann)"
	Attribution = "Map data: OpenStreetMap contributors (ODbL)"

	// StaleAfter is the import age beyond which a source is reported stale.
	StaleAfter = 24 * time.Hour
)

// ErrOutOfBounds is returned for coordinates outside the service region.
var ErrOutOfBounds = errors.New("lat_lon_out_of_bounds")

// Store is everything the engine reads and writes.
type Store interface {
	spot.Store
	geo.FeatureSource
	events.Source
	signals.Store
	SourceStates(ctx context.Context) ([]storage.SourceState, error)
}

type Options struct {
	Region   config.Box
	Location *time.Location
	Calendar *temporal.Calendar
	Now      func() time.Time
	Metrics  *telemetry.Instruments
}

type Engine struct {
	resolver   *spot.Resolver
	collector  *events.Collector
	aggregator *signals.Aggregator
	sources    Store
	calendar   *temporal.Calendar
	weights    score.Weights
	version    string
	region     config.Box
	loc        *time.Location
	now        func() time.Time
	metrics    *telemetry.Instruments

	// staleYears holds years already reported as missing from the calendar.
	staleYears sync.Map
}

func New(store Store, profile tuning.Profile, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Calendar == nil {
		opts.Calendar = temporal.DefaultCalendar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.Default()
	}
	if opts.Region == (config.Box{}) {
		opts.Region = config.Box{MinLat: 47.0, MinLon: 5.0, MaxLat: 55.5, MaxLon: 16.0}
	}

	classifier := geo.NewClassifier(store, profile.Geo, profile.Reference)
	resolver := spot.NewResolver(store, classifier)
	resolver.Metrics = opts.Metrics
	resolver.Now = opts.Now

	return &Engine{
		resolver:   resolver,
		collector:  &events.Collector{Source: store, Params: profile.Events},
		aggregator: &signals.Aggregator{Store: store, Params: profile.Signals},
		sources:    store,
		calendar:   opts.Calendar,
		weights:    profile.Score,
		version:    profile.Version,
		region:     opts.Region,
		loc:        opts.Location,
		now:        opts.Now,
		metrics:    opts.Metrics,
	}
}

type NightWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Source struct {
	Name        string    `json:"source_name"`
	ImportedAt  time.Time `json:"imported_at"`
	RecordCount int       `json:"record_count"`
	Notes       string    `json:"notes"`
}

// Health summarizes import ages in hours. Ages are nil without data.
type Health struct {
	FreshestAgeHours *float64 `json:"freshest_age_hours"`
	StalestAgeHours  *float64 `json:"stalest_age_hours"`
	StaleSources     []string `json:"stale_sources"`
	HasData          bool     `json:"has_data"`
}

type Meta struct {
	DataUpdatedAt        time.Time `json:"data_updated_at"`
	Region               string    `json:"region"`
	Attribution          string    `json:"attribution"`
	Sources              []Source  `json:"sources"`
	Health               Health    `json:"health"`
	UsedFallback         bool      `json:"used_fallback_pois"`
	HolidayCalendarStale bool      `json:"holiday_calendar_stale"`
	TuningVersion        string    `json:"tuning_version"`
}

type Result struct {
	SpotID      string         `json:"spot_id"`
	Score       int            `json:"score"`
	Category    score.Category `json:"category"`
	Reasons     []string       `json:"reasons"`
	Factors     []score.Factor `json:"factors"`
	NightWindow NightWindow    `json:"night_window"`
	Meta        Meta           `json:"meta"`
}

// Score computes the safety score for parking at (lat, lon) during the night
// that contains or follows at. A zero at means now.
func (e *Engine) Score(ctx context.Context, lat, lon float64, at time.Time) (Result, error) {
	if !e.region.Contains(lat, lon) {
		return Result{}, ErrOutOfBounds
	}
	now := e.now().UTC().Truncate(time.Second)
	if at.IsZero() {
		at = now
	}

	sp, err := e.resolver.Resolve(ctx, lat, lon)
	if err != nil {
		return Result{}, err
	}

	states, err := e.sources.SourceStates(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load source states: %w", err)
	}

	window := temporal.NightWindow(at, e.loc)
	year := window.Start.Year()
	stale := !e.calendar.Covers(year)
	if stale {
		if _, seen := e.staleYears.LoadOrStore(year, struct{}{}); !seen {
			slog.Warn("holiday calendar does not cover year",
				"year", year,
				"region", e.calendar.Region,
			)
		}
	}

	eventFactors, err := e.collector.Collect(ctx, lat, lon, window.End)
	if err != nil {
		return Result{}, fmt.Errorf("collect events: %w", err)
	}
	communityFactors, err := e.aggregator.Aggregate(ctx, sp.ID, at)
	if err != nil {
		return Result{}, fmt.Errorf("aggregate signals: %w", err)
	}

	composed := score.Compose(score.Input{
		AreaType:         sp.AreaType,
		PoliceMeters:     sp.PoliceMeters,
		HospitalMeters:   sp.HospitalMeters,
		WeekendOrHoliday: e.calendar.IsWeekendOrHoliday(window.Start),
		EventFactors:     eventFactors,
		CommunityFactors: communityFactors,
	}, e.weights)
	e.metrics.ScoreComputed(ctx, string(composed.Category))

	sources := make([]Source, 0, len(states))
	for _, s := range states {
		sources = append(sources, Source{Name: s.Name, ImportedAt: s.ImportedAt, RecordCount: s.RecordCount, Notes: s.Notes})
	}

	return Result{
		SpotID:      sp.ID,
		Score:       composed.Score,
		Category:    composed.Category,
		Reasons:     composed.Reasons,
		Factors:     composed.Factors,
		NightWindow: NightWindow{Start: window.Start.UTC(), End: window.End.UTC()},
		Meta: Meta{
			DataUpdatedAt:        now,
			Region:               RegionLabel,
			Attribution:          Attribution,
			Sources:              sources,
			Health:               SourceHealth(states, now),
			UsedFallback:         sp.UsedFallback,
			HolidayCalendarStale: stale,
			TuningVersion:        e.version,
		},
	}, nil
}
