package geo

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const EarthRadiusMeters = 6371000

type Point struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// HaversineMeters calculates the great-circle distance between two points in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// NearestMeters returns the smallest distance from (lat, lon) to any of points.
// ok is false when points is empty.
func NearestMeters(lat, lon float64, points []Point) (dist float64, ok bool) {
	if len(points) == 0 {
		return 0, false
	}
	dist = HaversineMeters(lat, lon, points[0].Lat, points[0].Lon)
	for _, p := range points[1:] {
		if d := HaversineMeters(lat, lon, p.Lat, p.Lon); d < dist {
			dist = d
		}
	}
	return dist, true
}

// Rect is a lat/lon bounding box in degrees.
type Rect struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// BoundingRect returns a box that contains every point within radius meters
// of (lat, lon). ok is false when the box wraps the antimeridian; callers
// should skip range filtering then.
func BoundingRect(lat, lon, radiusMeters float64) (Rect, bool) {
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	bound := s2.CapFromCenterAngle(center, s1.Angle(radiusMeters/EarthRadiusMeters)).RectBound()
	if bound.Lng.IsInverted() || bound.Lng.IsFull() {
		return Rect{}, false
	}
	lo, hi := bound.Lo(), bound.Hi()
	return Rect{
		MinLat: lo.Lat.Degrees(),
		MinLon: lo.Lng.Degrees(),
		MaxLat: hi.Lat.Degrees(),
		MaxLon: hi.Lng.Degrees(),
	}, true
}

func (r Rect) Contains(lat, lon float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}
