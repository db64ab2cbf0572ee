package geo

// AreaType is the land-use category of a spot's surroundings.
type AreaType string

const (
	AreaResidential AreaType = "residential"
	AreaIndustrial  AreaType = "industrial"
	AreaCommercial  AreaType = "commercial"
	AreaParking     AreaType = "parking"
	AreaNature      AreaType = "nature"
)

// RoadType is the category of the nearest main road.
type RoadType string

const (
	RoadResidential RoadType = "residential"
	RoadPrimary     RoadType = "primary"
	RoadSecondary   RoadType = "secondary"
	RoadService     RoadType = "service"
	RoadUnknown     RoadType = "unknown"
)

// POIType is an emergency-service category.
type POIType string

const (
	POIPolice   POIType = "police"
	POIFire     POIType = "fire"
	POIHospital POIType = "hospital"
)

// Zone is a reference land-use point.
type Zone struct {
	Type AreaType
	Lat  float64
	Lon  float64
}

// Road is a reference road point.
type Road struct {
	Type RoadType
	Lat  float64
	Lon  float64
}

// classifiedAreas are the zone categories that can win area classification.
// Residential is the background category and never wins on distance.
var classifiedAreas = []AreaType{AreaIndustrial, AreaCommercial, AreaNature, AreaParking}

func ValidAreaType(v string) bool {
	switch AreaType(v) {
	case AreaResidential, AreaIndustrial, AreaCommercial, AreaParking, AreaNature:
		return true
	}
	return false
}

func ValidRoadType(v string) bool {
	switch RoadType(v) {
	case RoadResidential, RoadPrimary, RoadSecondary, RoadService, RoadUnknown:
		return true
	}
	return false
}

func ValidPOIType(v string) bool {
	switch POIType(v) {
	case POIPolice, POIFire, POIHospital:
		return true
	}
	return false
}

// Thresholds holds the classification distances in meters.
type Thresholds struct {
	AreaLiveMeters       float64 `yaml:"area_live_meters"`
	AreaFallbackMeters   float64 `yaml:"area_fallback_meters"`
	RoadLiveMeters       float64 `yaml:"road_live_meters"`
	RoadFallbackMeters   float64 `yaml:"road_fallback_meters"`
	DefaultNearestMeters int     `yaml:"default_nearest_meters"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		AreaLiveMeters:       500,
		AreaFallbackMeters:   400,
		RoadLiveMeters:       300,
		RoadFallbackMeters:   250,
		DefaultNearestMeters: 5000,
	}
}

// Reference is the curated fallback table used when no live reference data
// has been imported for a category.
type Reference struct {
	POIs      map[POIType][]Point  `yaml:"pois"`
	Zones     map[AreaType][]Point `yaml:"zones"`
	MainRoads []Point              `yaml:"main_roads"`
}

// DefaultReference returns the pilot region table (Kreis Mettmann).
func DefaultReference() Reference {
	return Reference{
		POIs: map[POIType][]Point{
			POIPolice: {
				{Lat: 51.2507, Lon: 6.9751}, // Mettmann
				{Lat: 51.2965, Lon: 6.8494}, // Ratingen
				{Lat: 51.3398, Lon: 7.0438}, // Velbert
			},
			POIFire: {
				{Lat: 51.2518, Lon: 6.9800},
				{Lat: 51.2937, Lon: 6.8568},
				{Lat: 51.3314, Lon: 7.0540},
			},
			POIHospital: {
				{Lat: 51.2556, Lon: 6.9723},
				{Lat: 51.2891, Lon: 6.8457},
				{Lat: 51.3321, Lon: 7.0403},
			},
		},
		Zones: map[AreaType][]Point{
			AreaIndustrial: {{Lat: 51.2348, Lon: 6.9902}, {Lat: 51.3022, Lon: 6.8340}},
			AreaCommercial: {{Lat: 51.2512, Lon: 6.9878}, {Lat: 51.2934, Lon: 6.8541}},
			AreaNature:     {{Lat: 51.2715, Lon: 6.9440}, {Lat: 51.3188, Lon: 7.0274}},
			AreaParking:    {{Lat: 51.2499, Lon: 6.9831}},
		},
		MainRoads: []Point{
			{Lat: 51.2524, Lon: 6.9921},
			{Lat: 51.2951, Lon: 6.8615},
		},
	}
}
