package spot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"staysense/internal/geo"
	"staysense/internal/telemetry"
)

const idPrefix = "staysense:"

// Spot is a persisted parking location. Attributes are computed once, on
// first sight, and never change afterwards.
type Spot struct {
	ID             string
	Lat            float64
	Lon            float64
	AreaType       geo.AreaType
	RoadType       geo.RoadType
	PoliceMeters   int
	FireMeters     int
	HospitalMeters int
	UsedFallback   bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Store interface {
	GetSpot(ctx context.Context, id string) (Spot, bool, error)
	// InsertSpotIfAbsent stores s unless a spot with the same id exists and
	// reports whether a row was written.
	InsertSpotIfAbsent(ctx context.Context, s Spot) (bool, error)
}

// ID returns the stable identifier of the grid cell containing (lat, lon).
// Coordinates are rounded to four decimal places (roughly 11 m).
func ID(lat, lon float64) string {
	key := idPrefix + fmt.Sprintf("%.4f:%.4f", lat, lon)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(key)).String()
}

type Resolver struct {
	Store      Store
	Classifier *geo.Classifier
	Metrics    *telemetry.Instruments
	Now        func() time.Time
}

func NewResolver(store Store, classifier *geo.Classifier) *Resolver {
	return &Resolver{Store: store, Classifier: classifier, Metrics: telemetry.Default()}
}

// Resolve returns the spot for (lat, lon), creating it if this cell has never
// been seen. Concurrent callers for the same cell all get the persisted row.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) (Spot, error) {
	id := ID(lat, lon)
	existing, ok, err := r.Store.GetSpot(ctx, id)
	if err != nil {
		return Spot{}, fmt.Errorf("get spot %s: %w", id, err)
	}
	if ok {
		return existing, nil
	}

	candidate, err := r.build(ctx, id, lat, lon)
	if err != nil {
		return Spot{}, err
	}
	inserted, err := r.Store.InsertSpotIfAbsent(ctx, candidate)
	if err != nil {
		return Spot{}, fmt.Errorf("insert spot %s: %w", id, err)
	}
	if inserted {
		r.Metrics.SpotCreated(ctx, candidate.UsedFallback)
		slog.Info("spot created",
			"spot_id", id,
			"area", candidate.AreaType,
			"road", candidate.RoadType,
			"used_fallback", candidate.UsedFallback,
		)
	}

	persisted, ok, err := r.Store.GetSpot(ctx, id)
	if err != nil {
		return Spot{}, fmt.Errorf("reread spot %s: %w", id, err)
	}
	if !ok {
		return Spot{}, fmt.Errorf("spot %s missing after insert", id)
	}
	return persisted, nil
}

func (r *Resolver) build(ctx context.Context, id string, lat, lon float64) (Spot, error) {
	area, err := r.Classifier.ClassifyArea(ctx, lat, lon)
	if err != nil {
		return Spot{}, err
	}
	road, err := r.Classifier.ClassifyRoad(ctx, lat, lon)
	if err != nil {
		return Spot{}, err
	}

	s := Spot{ID: id, Lat: lat, Lon: lon, AreaType: area, RoadType: road}
	targets := []struct {
		poi geo.POIType
		dst *int
	}{
		{geo.POIPolice, &s.PoliceMeters},
		{geo.POIFire, &s.FireMeters},
		{geo.POIHospital, &s.HospitalMeters},
	}
	for _, t := range targets {
		d, err := r.Classifier.Nearest(ctx, lat, lon, t.poi)
		if err != nil {
			return Spot{}, err
		}
		*t.dst = d.Meters
		s.UsedFallback = s.UsedFallback || d.Fallback
	}

	now := r.now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	return s, nil
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
