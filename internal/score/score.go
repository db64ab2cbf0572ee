package score

import (
	"fmt"
	"math"
	"sort"

	"staysense/internal/geo"
)

const (
	Base       = 100
	MaxReasons = 4
)

// Factor is one signed contribution to a score.
type Factor struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Points float64 `json:"points"`
	Source string  `json:"source"`
}

// Reason renders a factor as "label (+N)".
func (f Factor) Reason() string {
	return fmt.Sprintf("%s (%+.0f)", f.Label, f.Points)
}

type Category string

const (
	Green  Category = "green"
	Yellow Category = "yellow"
	Red    Category = "red"
)

// Weights are the static factor magnitudes and category cut-offs.
type Weights struct {
	Area               map[geo.AreaType]float64 `yaml:"area"`
	PoliceNearMeters   int                      `yaml:"police_near_meters"`
	PoliceNearPoints   float64                  `yaml:"police_near_points"`
	HospitalNearMeters int                      `yaml:"hospital_near_meters"`
	HospitalNearPoints float64                  `yaml:"hospital_near_points"`
	WeekendPoints      float64                  `yaml:"weekend_points"`
	WeekdayPoints      float64                  `yaml:"weekday_points"`
	GreenMin           int                      `yaml:"green_min"`
	YellowMin          int                      `yaml:"yellow_min"`
}

func DefaultWeights() Weights {
	return Weights{
		Area: map[geo.AreaType]float64{
			geo.AreaResidential: -10,
			geo.AreaIndustrial:  10,
			geo.AreaCommercial:  6,
			geo.AreaParking:     -5,
			geo.AreaNature:      8,
		},
		PoliceNearMeters:   200,
		PoliceNearPoints:   -15,
		HospitalNearMeters: 200,
		HospitalNearPoints: -10,
		WeekendPoints:      -10,
		WeekdayPoints:      5,
		GreenMin:           70,
		YellowMin:          45,
	}
}

var areaLabels = map[geo.AreaType]string{
	geo.AreaResidential: "Residential area",
	geo.AreaIndustrial:  "Industrial area",
	geo.AreaCommercial:  "Commercial area",
	geo.AreaParking:     "Parking lot surroundings",
	geo.AreaNature:      "Close to nature",
}

// Input is everything gathered for one spot and night.
type Input struct {
	AreaType         geo.AreaType
	PoliceMeters     int
	HospitalMeters   int
	WeekendOrHoliday bool
	EventFactors     []Factor
	CommunityFactors []Factor
}

type Result struct {
	Score    int
	Category Category
	Reasons  []string
	// Factors holds the top-ranked factors behind Reasons.
	Factors []Factor
}

// Compose merges all factors into a clamped score, category and the top
// reasons by absolute magnitude.
func Compose(in Input, w Weights) Result {
	factors := make([]Factor, 0, 4+len(in.EventFactors)+len(in.CommunityFactors))
	factors = append(factors, AreaFactor(in.AreaType, w))

	if in.PoliceMeters < w.PoliceNearMeters {
		factors = append(factors, Factor{
			Key:    "dist_police",
			Label:  fmt.Sprintf("Police within %dm", w.PoliceNearMeters),
			Points: w.PoliceNearPoints,
			Source: "osm",
		})
	}
	if in.HospitalMeters < w.HospitalNearMeters {
		factors = append(factors, Factor{
			Key:    "dist_hospital",
			Label:  fmt.Sprintf("Hospital within %dm", w.HospitalNearMeters),
			Points: w.HospitalNearPoints,
			Source: "osm",
		})
	}

	if in.WeekendOrHoliday {
		factors = append(factors, Factor{Key: "time_weekend", Label: "Weekend or holiday", Points: w.WeekendPoints, Source: "time"})
	} else {
		factors = append(factors, Factor{Key: "time_weekday", Label: "Weeknight", Points: w.WeekdayPoints, Source: "time"})
	}

	factors = append(factors, in.EventFactors...)
	factors = append(factors, in.CommunityFactors...)

	raw := float64(Base)
	for _, f := range factors {
		raw += f.Points
	}
	s := Clamp(raw)

	top := TopFactors(factors, MaxReasons)
	reasons := make([]string, 0, len(top))
	for _, f := range top {
		reasons = append(reasons, f.Reason())
	}

	return Result{
		Score:    s,
		Category: Categorize(s, w),
		Reasons:  reasons,
		Factors:  top,
	}
}

// AreaFactor returns the modifier for an area type; unknown types score 0.
func AreaFactor(area geo.AreaType, w Weights) Factor {
	label, ok := areaLabels[area]
	if !ok {
		return Factor{Key: "area", Label: "Surroundings", Points: 0, Source: "osm"}
	}
	return Factor{Key: "area", Label: label, Points: w.Area[area], Source: "osm"}
}

// Clamp rounds half to even and bounds the result to [0, 100].
func Clamp(raw float64) int {
	v := math.RoundToEven(raw)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

func Categorize(score int, w Weights) Category {
	switch {
	case score >= w.GreenMin:
		return Green
	case score >= w.YellowMin:
		return Yellow
	default:
		return Red
	}
}

// TopFactors returns up to n factors ordered by descending absolute points.
// Equal magnitudes keep their input order.
func TopFactors(factors []Factor, n int) []Factor {
	sorted := make([]Factor, len(factors))
	copy(sorted, factors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Points) > math.Abs(sorted[j].Points)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
