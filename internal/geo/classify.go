package geo

import (
	"context"
	"fmt"
	"math"
)

// FeatureSource exposes imported reference features.
type FeatureSource interface {
	POIs(ctx context.Context, poiType POIType) ([]Point, error)
	Zones(ctx context.Context) ([]Zone, error)
	Roads(ctx context.Context) ([]Road, error)
}

// Distance is a nearest-feature lookup result in whole meters.
type Distance struct {
	Meters   int
	Fallback bool
}

type Classifier struct {
	Source     FeatureSource
	Thresholds Thresholds
	Reference  Reference
}

func NewClassifier(source FeatureSource, thresholds Thresholds, reference Reference) *Classifier {
	return &Classifier{Source: source, Thresholds: thresholds, Reference: reference}
}

// ClassifyArea picks the nearest non-residential zone category within the
// live threshold, or the fallback threshold when no zones have been imported.
// Any imported zone, residential included, counts as live data.
func (c *Classifier) ClassifyArea(ctx context.Context, lat, lon float64) (AreaType, error) {
	zones, err := c.Source.Zones(ctx)
	if err != nil {
		return "", fmt.Errorf("load zones: %w", err)
	}

	best := AreaResidential
	bestDist := math.Inf(1)
	live := len(zones) > 0
	for _, z := range zones {
		if !isClassifiedArea(z.Type) {
			continue
		}
		if d := HaversineMeters(lat, lon, z.Lat, z.Lon); d < bestDist {
			bestDist = d
			best = z.Type
		}
	}
	if live {
		if bestDist <= c.Thresholds.AreaLiveMeters {
			return best, nil
		}
		return AreaResidential, nil
	}

	for _, area := range classifiedAreas {
		d, ok := NearestMeters(lat, lon, c.Reference.Zones[area])
		if !ok {
			continue
		}
		d = math.Floor(d)
		if d < bestDist {
			bestDist = d
			best = area
		}
	}
	if bestDist <= c.Thresholds.AreaFallbackMeters {
		return best, nil
	}
	return AreaResidential, nil
}

// ClassifyRoad returns the type of the nearest imported road point, or a
// coarse primary/residential split against the fallback main-road table.
func (c *Classifier) ClassifyRoad(ctx context.Context, lat, lon float64) (RoadType, error) {
	roads, err := c.Source.Roads(ctx)
	if err != nil {
		return "", fmt.Errorf("load roads: %w", err)
	}

	if len(roads) > 0 {
		best := RoadUnknown
		bestDist := math.Inf(1)
		for _, r := range roads {
			if d := HaversineMeters(lat, lon, r.Lat, r.Lon); d < bestDist {
				bestDist = d
				best = r.Type
			}
		}
		if bestDist <= c.Thresholds.RoadLiveMeters {
			return best, nil
		}
		return RoadUnknown, nil
	}

	d, ok := NearestMeters(lat, lon, c.Reference.MainRoads)
	if ok && math.Floor(d) < c.Thresholds.RoadFallbackMeters {
		return RoadPrimary, nil
	}
	return RoadResidential, nil
}

// Nearest returns the distance to the closest stored POI of poiType. Without
// stored POIs it uses the fallback table, and without that the default
// distance; both cases set Fallback.
func (c *Classifier) Nearest(ctx context.Context, lat, lon float64, poiType POIType) (Distance, error) {
	points, err := c.Source.POIs(ctx, poiType)
	if err != nil {
		return Distance{}, fmt.Errorf("load %s pois: %w", poiType, err)
	}
	if d, ok := NearestMeters(lat, lon, points); ok {
		return Distance{Meters: int(d)}, nil
	}
	if d, ok := NearestMeters(lat, lon, c.Reference.POIs[poiType]); ok {
		return Distance{Meters: int(d), Fallback: true}, nil
	}
	return Distance{Meters: c.Thresholds.DefaultNearestMeters, Fallback: true}, nil
}

func isClassifiedArea(t AreaType) bool {
	for _, a := range classifiedAreas {
		if a == t {
			return true
		}
	}
	return false
}
