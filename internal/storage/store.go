package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"staysense/internal/events"
	"staysense/internal/geo"
	"staysense/internal/signals"
	"staysense/internal/spot"
)

type Store struct {
	db *sqlx.DB
}

// POI is an imported point of interest.
type POI struct {
	Type   geo.POIType
	Lat    float64
	Lon    float64
	Source string
}

// SourceState records the last import of one data source.
type SourceState struct {
	Name        string
	ImportedAt  time.Time
	RecordCount int
	Notes       string
}

func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes the signal transaction and keeps a :memory:
	// database shared across callers.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS spot (
	id TEXT PRIMARY KEY,
	lat DOUBLE PRECISION NOT NULL,
	lon DOUBLE PRECISION NOT NULL,
	area_type TEXT NOT NULL,
	road_type TEXT NOT NULL,
	dist_police_m INTEGER NOT NULL,
	dist_fire_m INTEGER NOT NULL,
	dist_hospital_m INTEGER NOT NULL,
	used_fallback INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS open_data_event (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	lat DOUBLE PRECISION NOT NULL,
	lon DOUBLE PRECISION NOT NULL,
	start_ts INTEGER NOT NULL,
	end_ts INTEGER NOT NULL,
	risk_modifier INTEGER NOT NULL,
	source TEXT NOT NULL,
	imported_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_open_data_event_time ON open_data_event (start_ts, end_ts);
CREATE TABLE IF NOT EXISTS community_signal (
	id TEXT PRIMARY KEY,
	spot_id TEXT NOT NULL REFERENCES spot (id),
	signal_type TEXT NOT NULL,
	hashed_device TEXT NOT NULL,
	ts INTEGER NOT NULL,
	day_bucket TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_community_signal_daily ON community_signal (spot_id, hashed_device, day_bucket);
CREATE INDEX IF NOT EXISTS idx_community_signal_spot_ts ON community_signal (spot_id, ts);
CREATE TABLE IF NOT EXISTS osm_poi (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	category TEXT NOT NULL,
	lat DOUBLE PRECISION NOT NULL,
	lon DOUBLE PRECISION NOT NULL,
	source TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_osm_poi_category ON osm_poi (category);
CREATE TABLE IF NOT EXISTS osm_zone (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	zone_type TEXT NOT NULL,
	lat DOUBLE PRECISION NOT NULL,
	lon DOUBLE PRECISION NOT NULL,
	source TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS osm_road (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	road_type TEXT NOT NULL,
	lat DOUBLE PRECISION NOT NULL,
	lon DOUBLE PRECISION NOT NULL,
	source TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS data_source_state (
	source TEXT PRIMARY KEY,
	imported_at INTEGER NOT NULL,
	record_count INTEGER NOT NULL,
	notes TEXT NOT NULL DEFAULT ''
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

type spotRow struct {
	ID             string  `db:"id"`
	Lat            float64 `db:"lat"`
	Lon            float64 `db:"lon"`
	AreaType       string  `db:"area_type"`
	RoadType       string  `db:"road_type"`
	PoliceMeters   int     `db:"dist_police_m"`
	FireMeters     int     `db:"dist_fire_m"`
	HospitalMeters int     `db:"dist_hospital_m"`
	UsedFallback   bool    `db:"used_fallback"`
	CreatedAt      int64   `db:"created_at"`
	UpdatedAt      int64   `db:"updated_at"`
}

func (r spotRow) spot() spot.Spot {
	return spot.Spot{
		ID:             r.ID,
		Lat:            r.Lat,
		Lon:            r.Lon,
		AreaType:       geo.AreaType(r.AreaType),
		RoadType:       geo.RoadType(r.RoadType),
		PoliceMeters:   r.PoliceMeters,
		FireMeters:     r.FireMeters,
		HospitalMeters: r.HospitalMeters,
		UsedFallback:   r.UsedFallback,
		CreatedAt:      time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:      time.Unix(r.UpdatedAt, 0).UTC(),
	}
}

func (s *Store) GetSpot(ctx context.Context, id string) (spot.Spot, bool, error) {
	var row spotRow
	err := s.db.GetContext(ctx, &row, `
SELECT id, lat, lon, area_type, road_type, dist_police_m, dist_fire_m, dist_hospital_m, used_fallback, created_at, updated_at
FROM spot
WHERE id = ?
`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return spot.Spot{}, false, nil
		}
		return spot.Spot{}, false, err
	}
	return row.spot(), true, nil
}

func (s *Store) InsertSpotIfAbsent(ctx context.Context, sp spot.Spot) (bool, error) {
	if sp.ID == "" {
		return false, errors.New("spot id required")
	}
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = time.Now()
	}
	if sp.UpdatedAt.IsZero() {
		sp.UpdatedAt = sp.CreatedAt
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO spot (id, lat, lon, area_type, road_type, dist_police_m, dist_fire_m, dist_hospital_m, used_fallback, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, sp.ID, sp.Lat, sp.Lon, string(sp.AreaType), string(sp.RoadType),
		sp.PoliceMeters, sp.FireMeters, sp.HospitalMeters, sp.UsedFallback,
		sp.CreatedAt.Unix(), sp.UpdatedAt.Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) SpotExists(ctx context.Context, spotID string) (bool, error) {
	var marker int
	err := s.db.GetContext(ctx, &marker, `
SELECT 1
FROM spot
WHERE id = ?
`, spotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) CountSpots(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM spot`); err != nil {
		return 0, err
	}
	return count, nil
}

type pointRow struct {
	Kind string  `db:"kind"`
	Lat  float64 `db:"lat"`
	Lon  float64 `db:"lon"`
}

func (s *Store) POIs(ctx context.Context, poiType geo.POIType) ([]geo.Point, error) {
	var rows []pointRow
	if err := s.db.SelectContext(ctx, &rows, `
SELECT category AS kind, lat, lon
FROM osm_poi
WHERE category = ?
`, string(poiType)); err != nil {
		return nil, err
	}
	points := make([]geo.Point, 0, len(rows))
	for _, r := range rows {
		points = append(points, geo.Point{Lat: r.Lat, Lon: r.Lon})
	}
	return points, nil
}

func (s *Store) Zones(ctx context.Context) ([]geo.Zone, error) {
	var rows []pointRow
	if err := s.db.SelectContext(ctx, &rows, `
SELECT zone_type AS kind, lat, lon
FROM osm_zone
`); err != nil {
		return nil, err
	}
	zones := make([]geo.Zone, 0, len(rows))
	for _, r := range rows {
		zones = append(zones, geo.Zone{Type: geo.AreaType(r.Kind), Lat: r.Lat, Lon: r.Lon})
	}
	return zones, nil
}

func (s *Store) Roads(ctx context.Context) ([]geo.Road, error) {
	var rows []pointRow
	if err := s.db.SelectContext(ctx, &rows, `
SELECT road_type AS kind, lat, lon
FROM osm_road
`); err != nil {
		return nil, err
	}
	roads := make([]geo.Road, 0, len(rows))
	for _, r := range rows {
		roads = append(roads, geo.Road{Type: geo.RoadType(r.Kind), Lat: r.Lat, Lon: r.Lon})
	}
	return roads, nil
}

func (s *Store) InsertPOI(ctx context.Context, p POI) error {
	if !geo.ValidPOIType(string(p.Type)) {
		return fmt.Errorf("unknown poi category %q", p.Type)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO osm_poi (category, lat, lon, source)
VALUES (?, ?, ?, ?)
`, string(p.Type), p.Lat, p.Lon, p.Source)
	return err
}

func (s *Store) InsertZone(ctx context.Context, z geo.Zone, source string) error {
	if !geo.ValidAreaType(string(z.Type)) {
		return fmt.Errorf("unknown zone type %q", z.Type)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO osm_zone (zone_type, lat, lon, source)
VALUES (?, ?, ?, ?)
`, string(z.Type), z.Lat, z.Lon, source)
	return err
}

func (s *Store) InsertRoad(ctx context.Context, r geo.Road, source string) error {
	if !geo.ValidRoadType(string(r.Type)) || r.Type == geo.RoadUnknown {
		return fmt.Errorf("unknown road type %q", r.Type)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO osm_road (road_type, lat, lon, source)
VALUES (?, ?, ?, ?)
`, string(r.Type), r.Lat, r.Lon, source)
	return err
}

type eventRow struct {
	ID           string  `db:"id"`
	Type         string  `db:"type"`
	Lat          float64 `db:"lat"`
	Lon          float64 `db:"lon"`
	Start        int64   `db:"start_ts"`
	End          int64   `db:"end_ts"`
	RiskModifier int     `db:"risk_modifier"`
	Source       string  `db:"source"`
}

func (s *Store) InsertEvent(ctx context.Context, ev events.Event) error {
	if ev.ID == "" {
		return errors.New("event id required")
	}
	if !events.ValidType(string(ev.Type)) {
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	if !ev.End.After(ev.Start) {
		return errors.New("event end must be after start")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO open_data_event (id, type, lat, lon, start_ts, end_ts, risk_modifier, source, imported_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	type = excluded.type,
	lat = excluded.lat,
	lon = excluded.lon,
	start_ts = excluded.start_ts,
	end_ts = excluded.end_ts,
	risk_modifier = excluded.risk_modifier,
	source = excluded.source,
	imported_at = excluded.imported_at
`, ev.ID, string(ev.Type), ev.Lat, ev.Lon, ev.Start.Unix(), ev.End.Unix(), ev.RiskModifier, ev.Source, time.Now().Unix())
	return err
}

func (s *Store) EventsOverlapping(ctx context.Context, from, to time.Time, bounds *geo.Rect) ([]events.Event, error) {
	query := `
SELECT id, type, lat, lon, start_ts, end_ts, risk_modifier, source
FROM open_data_event
WHERE start_ts <= ? AND end_ts >= ?
`
	args := []any{to.Unix(), from.Unix()}
	if bounds != nil {
		query += "AND lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?\n"
		args = append(args, bounds.MinLat, bounds.MaxLat, bounds.MinLon, bounds.MaxLon)
	}
	query += "ORDER BY start_ts, id"

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]events.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, events.Event{
			ID:           r.ID,
			Type:         events.Type(r.Type),
			Lat:          r.Lat,
			Lon:          r.Lon,
			Start:        time.Unix(r.Start, 0).UTC(),
			End:          time.Unix(r.End, 0).UTC(),
			RiskModifier: r.RiskModifier,
			Source:       r.Source,
		})
	}
	return out, nil
}

type signalRow struct {
	ID           string `db:"id"`
	SpotID       string `db:"spot_id"`
	Type         string `db:"signal_type"`
	HashedDevice string `db:"hashed_device"`
	Timestamp    int64  `db:"ts"`
	DayBucket    string `db:"day_bucket"`
}

func (r signalRow) signal() signals.Signal {
	return signals.Signal{
		ID:           r.ID,
		SpotID:       r.SpotID,
		Type:         signals.Type(r.Type),
		HashedDevice: r.HashedDevice,
		Timestamp:    time.Unix(r.Timestamp, 0).UTC(),
		DayBucket:    r.DayBucket,
	}
}

func (s *Store) SignalsSince(ctx context.Context, spotID string, since time.Time) ([]signals.Signal, error) {
	var rows []signalRow
	if err := s.db.SelectContext(ctx, &rows, `
SELECT id, spot_id, signal_type, hashed_device, ts, day_bucket
FROM community_signal
WHERE spot_id = ? AND ts >= ?
ORDER BY ts
`, spotID, since.Unix()); err != nil {
		return nil, err
	}
	out := make([]signals.Signal, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.signal())
	}
	return out, nil
}

func (s *Store) InsertSignalGuarded(ctx context.Context, sig signals.Signal, cooldownStart time.Time) (signals.GuardResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return signals.GuardResult{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var prior int64
	err = tx.GetContext(ctx, &prior, `
SELECT ts
FROM community_signal
WHERE spot_id = ? AND hashed_device = ? AND ts >= ?
ORDER BY ts DESC
LIMIT 1
`, sig.SpotID, sig.HashedDevice, cooldownStart.Unix())
	switch {
	case err == nil:
		return signals.GuardResult{Prior: time.Unix(prior, 0).UTC()}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return signals.GuardResult{}, err
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO community_signal (id, spot_id, signal_type, hashed_device, ts, day_bucket)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(spot_id, hashed_device, day_bucket) DO NOTHING
`, sig.ID, sig.SpotID, string(sig.Type), sig.HashedDevice, sig.Timestamp.Unix(), sig.DayBucket)
	if err != nil {
		return signals.GuardResult{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return signals.GuardResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return signals.GuardResult{}, err
	}
	return signals.GuardResult{Inserted: n > 0}, nil
}

func (s *Store) CountSignals(ctx context.Context, spotID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `
SELECT COUNT(*)
FROM community_signal
WHERE spot_id = ?
`, spotID); err != nil {
		return 0, err
	}
	return count, nil
}

type sourceStateRow struct {
	Name        string `db:"source"`
	ImportedAt  int64  `db:"imported_at"`
	RecordCount int    `db:"record_count"`
	Notes       string `db:"notes"`
}

func (s *Store) RecordSourceState(ctx context.Context, state SourceState) error {
	if state.Name == "" {
		return errors.New("source name required")
	}
	if state.ImportedAt.IsZero() {
		state.ImportedAt = time.Now()
	}
	return recordSourceState(ctx, s.db, state)
}

func (s *Store) SourceStates(ctx context.Context) ([]SourceState, error) {
	var rows []sourceStateRow
	if err := s.db.SelectContext(ctx, &rows, `
SELECT source, imported_at, record_count, notes
FROM data_source_state
ORDER BY imported_at DESC, source
`); err != nil {
		return nil, err
	}
	out := make([]SourceState, 0, len(rows))
	for _, r := range rows {
		out = append(out, SourceState{
			Name:        r.Name,
			ImportedAt:  time.Unix(r.ImportedAt, 0).UTC(),
			RecordCount: r.RecordCount,
			Notes:       r.Notes,
		})
	}
	return out, nil
}

// ReplaceEvents swaps all events of source for evs and records the import,
// in one transaction.
func (s *Store) ReplaceEvents(ctx context.Context, source string, evs []events.Event, notes string) error {
	if source == "" {
		return errors.New("source name required")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM open_data_event WHERE source = ?`, source); err != nil {
		return err
	}
	stmt, err := tx.PreparexContext(ctx, `
INSERT INTO open_data_event (id, type, lat, lon, start_ts, end_ts, risk_modifier, source, imported_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, ev := range evs {
		if _, err := stmt.ExecContext(ctx, ev.ID, string(ev.Type), ev.Lat, ev.Lon, ev.Start.Unix(), ev.End.Unix(), ev.RiskModifier, source, now.Unix()); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}
	if err := recordSourceState(ctx, tx, SourceState{Name: source, ImportedAt: now, RecordCount: len(evs), Notes: notes}); err != nil {
		return err
	}
	return tx.Commit()
}

// ReferenceSet is one snapshot of imported reference features.
type ReferenceSet struct {
	POIs  []POI
	Zones []geo.Zone
	Roads []geo.Road
}

// ReplaceReference swaps all reference features of source for set and
// records the import, in one transaction.
func (s *Store) ReplaceReference(ctx context.Context, source string, set ReferenceSet, notes string) error {
	if source == "" {
		return errors.New("source name required")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, table := range []string{"osm_poi", "osm_zone", "osm_road"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE source = ?`, source); err != nil {
			return err
		}
	}
	for _, p := range set.POIs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO osm_poi (category, lat, lon, source) VALUES (?, ?, ?, ?)`,
			string(p.Type), p.Lat, p.Lon, source); err != nil {
			return err
		}
	}
	for _, z := range set.Zones {
		if _, err := tx.ExecContext(ctx, `INSERT INTO osm_zone (zone_type, lat, lon, source) VALUES (?, ?, ?, ?)`,
			string(z.Type), z.Lat, z.Lon, source); err != nil {
			return err
		}
	}
	for _, r := range set.Roads {
		if _, err := tx.ExecContext(ctx, `INSERT INTO osm_road (road_type, lat, lon, source) VALUES (?, ?, ?, ?)`,
			string(r.Type), r.Lat, r.Lon, source); err != nil {
			return err
		}
	}
	count := len(set.POIs) + len(set.Zones) + len(set.Roads)
	if err := recordSourceState(ctx, tx, SourceState{Name: source, ImportedAt: time.Now(), RecordCount: count, Notes: notes}); err != nil {
		return err
	}
	return tx.Commit()
}

func recordSourceState(ctx context.Context, ex sqlx.ExecerContext, state SourceState) error {
	_, err := ex.ExecContext(ctx, `
INSERT INTO data_source_state (source, imported_at, record_count, notes)
VALUES (?, ?, ?, ?)
ON CONFLICT(source) DO UPDATE SET
	imported_at = excluded.imported_at,
	record_count = excluded.record_count,
	notes = excluded.notes
`, state.Name, state.ImportedAt.Unix(), state.RecordCount, state.Notes)
	return err
}
