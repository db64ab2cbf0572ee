package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// DevSalt is the placeholder device hashing secret. It is refused outside
// development.
const DevSalt = "change-me-in-production"

// Box is a lat/lon rectangle, inclusive on all edges.
type Box struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

func (b Box) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Config is the process configuration. SignalCooldownHours overrides the
// tuning profile when positive.
type Config struct {
	Env                 string
	DatabasePath        string
	ServerAddr          string
	ServerSalt          string
	SignalCooldownHours int
	TimeZone            string
	Location            *time.Location
	HolidaysPath        string
	TuningPath          string
	CORSOrigins         []string
	RegionBox           Box
	RequestTimeoutSec   int
}

func Load(path string) (Config, error) {
	cfg := Config{
		Env:               "development",
		ServerAddr:        ":8787",
		ServerSalt:        DevSalt,
		TimeZone:          "UTC",
		CORSOrigins:       []string{"*"},
		RegionBox:         Box{MinLat: 47.0, MinLon: 5.0, MaxLat: 55.5, MaxLon: 16.0},
		RequestTimeoutSec: 15,
	}

	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg.Env = strings.ToLower(getenv("STAYSENSE_ENV", cfg.Env))
	cfg.DatabasePath = getenv("STAYSENSE_DATABASE_PATH", "staysense.db")
	cfg.ServerAddr = getenv("STAYSENSE_SERVER_ADDR", cfg.ServerAddr)
	cfg.ServerSalt = getenv("STAYSENSE_SERVER_SALT", cfg.ServerSalt)
	cfg.TimeZone = getenv("STAYSENSE_TIMEZONE", cfg.TimeZone)
	cfg.HolidaysPath = os.Getenv("STAYSENSE_HOLIDAYS_PATH")
	cfg.TuningPath = os.Getenv("STAYSENSE_TUNING_PATH")
	if v := os.Getenv("STAYSENSE_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitAndTrim(v)
	}

	if v := os.Getenv("STAYSENSE_SIGNAL_COOLDOWN_HOURS"); v != "" {
		if err := parseInt(&cfg.SignalCooldownHours, v); err != nil {
			return Config{}, fmt.Errorf("STAYSENSE_SIGNAL_COOLDOWN_HOURS: %w", err)
		}
		if cfg.SignalCooldownHours < 0 {
			return Config{}, errors.New("STAYSENSE_SIGNAL_COOLDOWN_HOURS: must not be negative")
		}
	}
	if v := os.Getenv("STAYSENSE_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if err := parseInt(&cfg.RequestTimeoutSec, v); err != nil {
			return Config{}, fmt.Errorf("STAYSENSE_REQUEST_TIMEOUT_SECONDS: %w", err)
		}
	}
	if v := os.Getenv("STAYSENSE_REGION_BOX"); v != "" {
		box, err := parseBox(v)
		if err != nil {
			return Config{}, fmt.Errorf("STAYSENSE_REGION_BOX: %w", err)
		}
		cfg.RegionBox = box
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return Config{}, fmt.Errorf("STAYSENSE_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if cfg.ServerSalt == DevSalt && !cfg.IsDevelopment() {
		return Config{}, errors.New("STAYSENSE_SERVER_SALT: must be set outside development")
	}

	return cfg, nil
}

func (c Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "dev" || c.Env == "test"
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseInt(target *int, value string) error {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

// parseBox reads "minLat,minLon,maxLat,maxLon".
func parseBox(value string) (Box, error) {
	parts := splitAndTrim(value)
	if len(parts) != 4 {
		return Box{}, fmt.Errorf("expected 4 comma separated values, got %d", len(parts))
	}
	var nums [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Box{}, err
		}
		nums[i] = v
	}
	box := Box{MinLat: nums[0], MinLon: nums[1], MaxLat: nums[2], MaxLon: nums[3]}
	if box.MinLat > box.MaxLat || box.MinLon > box.MaxLon {
		return Box{}, errors.New("min exceeds max")
	}
	return box, nil
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
