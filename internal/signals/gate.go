package signals

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"staysense/internal/telemetry"
)

type Reason string

const (
	ReasonSpotIDRequired     Reason = "spot_id_required"
	ReasonInvalidSignalType  Reason = "invalid_signal_type"
	ReasonInvalidDeviceToken Reason = "invalid_device_token"
	ReasonUnknownSpot        Reason = "unknown_spot_id"
	ReasonCooldownActive     Reason = "cooldown_active"
	ReasonDailyLimit         Reason = "daily_limit"
)

// IsRateLimit reports whether r is a cooldown or uniqueness rejection rather
// than an input validation failure.
func (r Reason) IsRateLimit() bool {
	return r == ReasonCooldownActive || r == ReasonDailyLimit
}

type Submission struct {
	SpotID      string
	SignalType  string
	DeviceToken string
	Timestamp   time.Time
}

// Decision is the outcome of a submission. Rejections are decisions, not
// errors.
type Decision struct {
	Accepted      bool
	Reason        Reason
	NextAllowedAt time.Time
	CooldownHours int
}

func reject(reason Reason) Decision {
	return Decision{Reason: reason}
}

type Gate struct {
	Store   Store
	Secret  []byte
	Params  Params
	Now     func() time.Time
	Metrics *telemetry.Instruments
}

// Submit validates and records a community signal, enforcing the per-device
// cooldown and the one-per-day rule.
func (g *Gate) Submit(ctx context.Context, sub Submission) (Decision, error) {
	d, err := g.submit(ctx, sub)
	if err != nil {
		return Decision{}, err
	}
	if d.Accepted {
		g.Metrics.SignalAccepted(ctx, sub.SignalType)
	} else {
		g.Metrics.SignalRejected(ctx, string(d.Reason))
		slog.Debug("signal rejected", "spot_id", sub.SpotID, "reason", d.Reason)
	}
	return d, nil
}

func (g *Gate) submit(ctx context.Context, sub Submission) (Decision, error) {
	if sub.SpotID == "" {
		return reject(ReasonSpotIDRequired), nil
	}
	if !ValidType(sub.SignalType) {
		return reject(ReasonInvalidSignalType), nil
	}
	if len(sub.DeviceToken) < g.Params.MinTokenLength {
		return reject(ReasonInvalidDeviceToken), nil
	}

	now := g.now()
	ts := sub.Timestamp
	if ts.IsZero() || ts.After(now.Add(g.Params.MaxClockSkew)) {
		ts = now
	}
	ts = ts.UTC().Truncate(time.Second)

	exists, err := g.Store.SpotExists(ctx, sub.SpotID)
	if err != nil {
		return Decision{}, fmt.Errorf("check spot: %w", err)
	}
	if !exists {
		return reject(ReasonUnknownSpot), nil
	}

	cooldown := g.Params.Cooldown()
	sig := Signal{
		ID:           uuid.NewString(),
		SpotID:       sub.SpotID,
		Type:         Type(sub.SignalType),
		HashedDevice: HashDevice(g.Secret, sub.DeviceToken),
		Timestamp:    ts,
		DayBucket:    DayBucket(ts),
	}
	res, err := g.Store.InsertSignalGuarded(ctx, sig, ts.Add(-cooldown))
	if err != nil {
		return Decision{}, fmt.Errorf("insert signal: %w", err)
	}
	if !res.Prior.IsZero() {
		return Decision{Reason: ReasonCooldownActive, NextAllowedAt: res.Prior.Add(cooldown)}, nil
	}
	if !res.Inserted {
		return reject(ReasonDailyLimit), nil
	}
	return Decision{Accepted: true, CooldownHours: g.Params.CooldownHours}, nil
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// HashDevice keys the device token with the server secret so raw tokens are
// never stored.
func HashDevice(secret []byte, token string) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// DayBucket is the UTC calendar day of ts.
func DayBucket(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}
