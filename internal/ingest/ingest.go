package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"staysense/internal/events"
	"staysense/internal/geo"
	"staysense/internal/storage"
)

type Store interface {
	ReplaceEvents(ctx context.Context, source string, evs []events.Event, notes string) error
	ReplaceReference(ctx context.Context, source string, set storage.ReferenceSet, notes string) error
}

// Ingestor loads local snapshots of open data events and reference features.
// Each import replaces everything previously stored for its source.
type Ingestor struct {
	Store Store
}

type Result struct {
	Source  string
	Rows    int
	Skipped int
}

var eventColumns = []string{"lat", "lon", "event_type", "start_datetime", "end_datetime", "risk_modifier"}

// ImportEventsCSV reads rows with the columns lat, lon, event_type,
// start_datetime, end_datetime, risk_modifier. Rows with unknown types or
// unparsable values are skipped.
func (i *Ingestor) ImportEventsCSV(ctx context.Context, r io.Reader, source, notes string) (Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for pos, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = pos
	}
	for _, col := range eventColumns {
		if _, ok := index[col]; !ok {
			return Result{}, fmt.Errorf("missing column %q", col)
		}
	}

	res := Result{Source: source}
	var evs []events.Event
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("read line %d: %w", line, err)
		}
		get := func(col string) string {
			return strings.TrimSpace(record[index[col]])
		}
		ev, err := parseEvent(source, get)
		if err != nil {
			slog.Debug("skip event row", "source", source, "line", line, "err", err)
			res.Skipped++
			continue
		}
		evs = append(evs, ev)
	}

	if err := i.Store.ReplaceEvents(ctx, source, evs, notes); err != nil {
		return Result{}, fmt.Errorf("store events: %w", err)
	}
	res.Rows = len(evs)
	slog.Info("events imported", "source", source, "rows", res.Rows, "skipped", res.Skipped)
	return res, nil
}

func parseEvent(source string, get func(string) string) (events.Event, error) {
	typ := strings.ToLower(get("event_type"))
	if !events.ValidType(typ) {
		return events.Event{}, fmt.Errorf("unknown event type %q", typ)
	}
	lat, err := strconv.ParseFloat(get("lat"), 64)
	if err != nil {
		return events.Event{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseFloat(get("lon"), 64)
	if err != nil {
		return events.Event{}, fmt.Errorf("lon: %w", err)
	}
	start, err := parseTime(get("start_datetime"))
	if err != nil {
		return events.Event{}, fmt.Errorf("start_datetime: %w", err)
	}
	end, err := parseTime(get("end_datetime"))
	if err != nil {
		return events.Event{}, fmt.Errorf("end_datetime: %w", err)
	}
	if !end.After(start) {
		return events.Event{}, errors.New("end not after start")
	}
	modifier := 0
	if v := get("risk_modifier"); v != "" {
		if modifier, err = strconv.Atoi(v); err != nil {
			return events.Event{}, fmt.Errorf("risk_modifier: %w", err)
		}
	}

	ev := events.Event{
		Type:         events.Type(typ),
		Lat:          lat,
		Lon:          lon,
		Start:        start,
		End:          end,
		RiskModifier: modifier,
		Source:       source,
	}
	ev.ID = EventID(ev)
	return ev, nil
}

// EventID is a stable hash of the event's source and content, so re-importing
// the same row yields the same id.
func EventID(ev events.Event) string {
	raw := fmt.Sprintf("%s:%s:%.6f:%.6f:%d:%d:%d",
		ev.Source, ev.Type, ev.Lat, ev.Lon, ev.Start.Unix(), ev.End.Unix(), ev.RiskModifier)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", v, time.UTC)
}

type referenceFile struct {
	POIs []struct {
		Category string  `yaml:"category"`
		Lat      float64 `yaml:"lat"`
		Lon      float64 `yaml:"lon"`
	} `yaml:"pois"`
	Zones []struct {
		Type string  `yaml:"type"`
		Lat  float64 `yaml:"lat"`
		Lon  float64 `yaml:"lon"`
	} `yaml:"zones"`
	Roads []struct {
		Type string  `yaml:"type"`
		Lat  float64 `yaml:"lat"`
		Lon  float64 `yaml:"lon"`
	} `yaml:"roads"`
}

// ImportReferenceYAML reads a snapshot of pois, zones and roads. Entries with
// unknown categories are skipped.
func (i *Ingestor) ImportReferenceYAML(ctx context.Context, r io.Reader, source, notes string) (Result, error) {
	var file referenceFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return Result{}, fmt.Errorf("parse reference snapshot: %w", err)
	}

	res := Result{Source: source}
	var set storage.ReferenceSet
	for _, p := range file.POIs {
		if !geo.ValidPOIType(p.Category) {
			res.Skipped++
			continue
		}
		set.POIs = append(set.POIs, storage.POI{Type: geo.POIType(p.Category), Lat: p.Lat, Lon: p.Lon, Source: source})
	}
	for _, z := range file.Zones {
		if !geo.ValidAreaType(z.Type) {
			res.Skipped++
			continue
		}
		set.Zones = append(set.Zones, geo.Zone{Type: geo.AreaType(z.Type), Lat: z.Lat, Lon: z.Lon})
	}
	for _, rd := range file.Roads {
		if !geo.ValidRoadType(rd.Type) || geo.RoadType(rd.Type) == geo.RoadUnknown {
			res.Skipped++
			continue
		}
		set.Roads = append(set.Roads, geo.Road{Type: geo.RoadType(rd.Type), Lat: rd.Lat, Lon: rd.Lon})
	}

	if err := i.Store.ReplaceReference(ctx, source, set, notes); err != nil {
		return Result{}, fmt.Errorf("store reference: %w", err)
	}
	res.Rows = len(set.POIs) + len(set.Zones) + len(set.Roads)
	slog.Info("reference imported", "source", source, "rows", res.Rows, "skipped", res.Skipped)
	return res, nil
}
