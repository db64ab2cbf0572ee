package signals

import (
	"context"
	"time"
)

type Type string

const (
	TypeKnock  Type = "knock"
	TypeNoise  Type = "noise"
	TypeCalm   Type = "calm"
	TypePolice Type = "police"
)

// Types is the fixed aggregation order.
var Types = []Type{TypeKnock, TypeNoise, TypeCalm, TypePolice}

func ValidType(v string) bool {
	for _, t := range Types {
		if string(t) == v {
			return true
		}
	}
	return false
}

// Signal is one persisted community report.
type Signal struct {
	ID           string
	SpotID       string
	Type         Type
	HashedDevice string
	Timestamp    time.Time
	DayBucket    string
}

// GuardResult reports the outcome of a guarded insert. Prior is set when a
// signal from the same device inside the cooldown blocked the insert.
type GuardResult struct {
	Inserted bool
	Prior    time.Time
}

// Store is the persistence the aggregator and gate need.
type Store interface {
	SpotExists(ctx context.Context, spotID string) (bool, error)
	SignalsSince(ctx context.Context, spotID string, since time.Time) ([]Signal, error)
	// InsertSignalGuarded atomically checks for a signal from the same spot
	// and device at or after cooldownStart and inserts sig only if none
	// exists and the (spot, device, day) slot is free.
	InsertSignalGuarded(ctx context.Context, sig Signal, cooldownStart time.Time) (GuardResult, error)
}

// Bucket holds the decay parameters for one signal type.
type Bucket struct {
	Base         float64 `yaml:"base"`
	HalfLifeDays float64 `yaml:"half_life_days"`
	WindowDays   float64 `yaml:"window_days"`
	Label        string  `yaml:"label"`
}

type Params struct {
	Buckets        map[Type]Bucket `yaml:"buckets"`
	LookbackDays   int             `yaml:"lookback_days"`
	NoiseFloor     float64         `yaml:"noise_floor"`
	CooldownHours  int             `yaml:"cooldown_hours"`
	MinTokenLength int             `yaml:"min_token_length"`
	MaxClockSkew   time.Duration   `yaml:"max_clock_skew"`
}

func DefaultParams() Params {
	return Params{
		Buckets: map[Type]Bucket{
			TypeKnock:  {Base: -25, HalfLifeDays: 10, WindowDays: 30, Label: "Knocking reported"},
			TypeNoise:  {Base: -15, HalfLifeDays: 7, WindowDays: 14, Label: "Noise reported"},
			TypeCalm:   {Base: 10, HalfLifeDays: 7, WindowDays: 14, Label: "Reported calm"},
			TypePolice: {Base: -18, HalfLifeDays: 10, WindowDays: 30, Label: "Police check reported"},
		},
		LookbackDays:   30,
		NoiseFloor:     0.5,
		CooldownHours:  24,
		MinTokenLength: 16,
		MaxClockSkew:   5 * time.Minute,
	}
}

func (p Params) Cooldown() time.Duration {
	return time.Duration(p.CooldownHours) * time.Hour
}
