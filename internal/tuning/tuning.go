package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"staysense/internal/events"
	"staysense/internal/geo"
	"staysense/internal/score"
	"staysense/internal/signals"
)

// DefaultVersion identifies the built-in parameter set.
const DefaultVersion = "2026.1-mettmann"

// Profile is the versioned set of scoring parameters. Responses carry
// Version so a score can be traced to the numbers that produced it.
type Profile struct {
	Version   string         `yaml:"version"`
	Geo       geo.Thresholds `yaml:"geo"`
	Reference geo.Reference  `yaml:"reference"`
	Events    events.Params  `yaml:"events"`
	Signals   signals.Params `yaml:"signals"`
	Score     score.Weights  `yaml:"score"`
}

func Default() Profile {
	return Profile{
		Version:   DefaultVersion,
		Geo:       geo.DefaultThresholds(),
		Reference: geo.DefaultReference(),
		Events:    events.DefaultParams(),
		Signals:   signals.DefaultParams(),
		Score:     score.DefaultWeights(),
	}
}

// Load overlays the YAML document at path on the defaults. An empty path
// returns the defaults.
func Load(path string) (Profile, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read tuning profile: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Profile, error) {
	p := Default()
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("parse tuning profile: %w", err)
	}
	if err := p.mergeBuckets(raw); err != nil {
		return Profile{}, err
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

type bucketOverlay struct {
	Signals struct {
		Buckets map[signals.Type]yaml.Node `yaml:"buckets"`
	} `yaml:"signals"`
}

// mergeBuckets decodes each overridden signal bucket over its default so
// fields left out of the document keep their default values.
func (p *Profile) mergeBuckets(raw []byte) error {
	var overlay bucketOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse tuning profile: %w", err)
	}
	defaults := signals.DefaultParams().Buckets
	if p.Signals.Buckets == nil {
		p.Signals.Buckets = make(map[signals.Type]signals.Bucket, len(overlay.Signals.Buckets))
	}
	for t, node := range overlay.Signals.Buckets {
		b := defaults[t]
		if err := node.Decode(&b); err != nil {
			return fmt.Errorf("parse signal bucket %s: %w", t, err)
		}
		p.Signals.Buckets[t] = b
	}
	return nil
}

func (p Profile) Validate() error {
	if p.Version == "" {
		return errors.New("tuning: version required")
	}
	if p.Geo.AreaLiveMeters <= 0 || p.Geo.AreaFallbackMeters <= 0 ||
		p.Geo.RoadLiveMeters <= 0 || p.Geo.RoadFallbackMeters <= 0 {
		return errors.New("tuning: geo thresholds must be positive")
	}
	if p.Geo.DefaultNearestMeters <= 0 {
		return errors.New("tuning: default nearest distance must be positive")
	}
	if p.Events.RadiusMeters <= 0 || p.Events.MorningSpan <= 0 {
		return errors.New("tuning: event radius and morning span must be positive")
	}
	for _, t := range signals.Types {
		b, ok := p.Signals.Buckets[t]
		if !ok {
			return fmt.Errorf("tuning: missing signal bucket %s", t)
		}
		if b.HalfLifeDays <= 0 {
			return fmt.Errorf("tuning: signal bucket %s half life must be positive", t)
		}
		if b.WindowDays <= 0 {
			return fmt.Errorf("tuning: signal bucket %s window must be positive", t)
		}
	}
	if p.Signals.CooldownHours < 0 {
		return errors.New("tuning: cooldown hours must not be negative")
	}
	if p.Score.YellowMin > p.Score.GreenMin {
		return fmt.Errorf("tuning: yellow_min %d above green_min %d", p.Score.YellowMin, p.Score.GreenMin)
	}
	return nil
}
