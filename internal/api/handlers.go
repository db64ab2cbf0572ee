package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"staysense/internal/engine"
	"staysense/internal/signals"
)

const maxBodyBytes = 16 << 10

type ScoreHandler struct {
	Scorer Scorer
}

func (h *ScoreHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "invalid_query")
		return
	}
	at, err := parseTimestamp(q.Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query")
		return
	}

	res, err := h.Scorer.Score(r.Context(), lat, lon, at)
	if err != nil {
		if errors.Is(err, engine.ErrOutOfBounds) {
			writeError(w, http.StatusBadRequest, engine.ErrOutOfBounds.Error())
			return
		}
		slog.Error("score failed", "lat", lat, "lon", lon, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type signalRequest struct {
	SpotID      string `json:"spot_id"`
	SignalType  string `json:"signal_type"`
	DeviceToken string `json:"device_token"`
	Timestamp   string `json:"timestamp"`
}

type signalResponse struct {
	Accepted      bool   `json:"accepted"`
	Error         string `json:"error,omitempty"`
	NextAllowedAt string `json:"next_allowed_at,omitempty"`
	CooldownHours int    `json:"cooldown_hours,omitempty"`
}

type SignalHandler struct {
	Submitter Submitter
}

func (h *SignalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	var req signalRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}
	ts, err := parseTimestamp(req.Timestamp)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_timestamp")
		return
	}

	d, err := h.Submitter.Submit(r.Context(), signals.Submission{
		SpotID:      req.SpotID,
		SignalType:  req.SignalType,
		DeviceToken: req.DeviceToken,
		Timestamp:   ts,
	})
	if err != nil {
		slog.Error("signal submit failed", "spot_id", req.SpotID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	switch {
	case d.Accepted:
		writeJSON(w, http.StatusCreated, signalResponse{Accepted: true, CooldownHours: d.CooldownHours})
	case d.Reason.IsRateLimit():
		resp := signalResponse{Error: string(d.Reason)}
		if !d.NextAllowedAt.IsZero() {
			resp.NextAllowedAt = formatTime(d.NextAllowedAt)
		}
		writeJSON(w, http.StatusTooManyRequests, resp)
	default:
		writeError(w, http.StatusBadRequest, string(d.Reason))
	}
}

type HealthHandler struct {
	Sources SourceLister
	Now     func() time.Time
}

type healthResponse struct {
	Status  string          `json:"status"`
	Sources []engine.Source `json:"sources"`
	Health  engine.Health   `json:"health"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	states, err := h.Sources.SourceStates(r.Context())
	if err != nil {
		slog.Error("health check failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable")
		return
	}
	sources := make([]engine.Source, 0, len(states))
	for _, s := range states {
		sources = append(sources, engine.Source{Name: s.Name, ImportedAt: s.ImportedAt, RecordCount: s.RecordCount, Notes: s.Notes})
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Sources: sources,
		Health:  engine.SourceHealth(states, h.Now().UTC()),
	})
}

// parseTimestamp accepts RFC 3339 with or without a zone; zoneless values
// are UTC. Empty input yields the zero time.
func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", v, time.UTC)
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
