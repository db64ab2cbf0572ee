package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"staysense/internal/events"
	"staysense/internal/geo"
	"staysense/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return store
}

const eventsCSV = `lat,lon,event_type,start_datetime,end_datetime,risk_modifier
51.25,6.97,market,2026-03-04T07:00:00Z,2026-03-04T12:00:00Z,-8
51.26,6.98,Waste,2026-03-04T06:00:00,2026-03-04T08:00:00,-5
51.27,6.99,parade,2026-03-04T06:00:00Z,2026-03-04T08:00:00Z,-3
51.28,7.00,construction,2026-03-04T09:00:00Z,2026-03-04T08:00:00Z,-4
`

func TestImportEventsCSV(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ing := &Ingestor{Store: store}

	res, err := ing.ImportEventsCSV(ctx, strings.NewReader(eventsCSV), "city_events", "events.csv")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Rows != 2 || res.Skipped != 2 {
		t.Fatalf("expected 2 rows and 2 skipped, got %+v", res)
	}

	from := time.Date(2026, 3, 4, 6, 0, 0, 0, time.UTC)
	evs, err := store.EventsOverlapping(ctx, from, from.Add(4*time.Hour), nil)
	if err != nil {
		t.Fatalf("events overlapping: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %+v", evs)
	}
	if evs[0].Type != events.TypeWaste || evs[0].Source != "city_events" {
		t.Fatalf("unexpected first event %+v", evs[0])
	}

	// re-import replaces the previous snapshot
	if _, err := ing.ImportEventsCSV(ctx, strings.NewReader(strings.Join(strings.Split(eventsCSV, "\n")[:2], "\n")), "city_events", "events.csv"); err != nil {
		t.Fatalf("reimport: %v", err)
	}
	evs, err = store.EventsOverlapping(ctx, from, from.Add(4*time.Hour), nil)
	if err != nil {
		t.Fatalf("events overlapping: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != events.TypeMarket {
		t.Fatalf("expected only the market after reimport, got %+v", evs)
	}

	states, err := store.SourceStates(ctx)
	if err != nil {
		t.Fatalf("source states: %v", err)
	}
	if len(states) != 1 || states[0].RecordCount != 1 || states[0].Notes != "events.csv" {
		t.Fatalf("unexpected source states %+v", states)
	}
}

func TestImportEventsCSVRequiresColumns(t *testing.T) {
	ing := &Ingestor{Store: openTestStore(t)}
	_, err := ing.ImportEventsCSV(context.Background(), strings.NewReader("lat,lon,event_type\n1,2,market\n"), "x", "")
	if err == nil || !strings.Contains(err.Error(), "start_datetime") {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestEventIDIsStable(t *testing.T) {
	ev := events.Event{
		Type:         events.TypeMarket,
		Lat:          51.25,
		Lon:          6.97,
		Start:        time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
		RiskModifier: -8,
		Source:       "city_events",
	}
	if EventID(ev) != EventID(ev) {
		t.Fatal("expected deterministic id")
	}
	other := ev
	other.Source = "other"
	if EventID(ev) == EventID(other) {
		t.Fatal("expected source to be part of the id")
	}
}

const referenceYAML = `
pois:
  - {category: police, lat: 51.2505, lon: 6.97}
  - {category: school, lat: 51.2505, lon: 6.97}
zones:
  - {type: industrial, lat: 51.251, lon: 6.97}
roads:
  - {type: primary, lat: 51.25, lon: 6.971}
  - {type: unknown, lat: 51.25, lon: 6.971}
`

func TestImportReferenceYAML(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ing := &Ingestor{Store: store}

	res, err := ing.ImportReferenceYAML(ctx, strings.NewReader(referenceYAML), "osm", "snapshot")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Rows != 3 || res.Skipped != 2 {
		t.Fatalf("expected 3 rows and 2 skipped, got %+v", res)
	}

	police, err := store.POIs(ctx, geo.POIPolice)
	if err != nil {
		t.Fatalf("pois: %v", err)
	}
	if len(police) != 1 {
		t.Fatalf("expected one police poi, got %+v", police)
	}
	zones, err := store.Zones(ctx)
	if err != nil {
		t.Fatalf("zones: %v", err)
	}
	if len(zones) != 1 || zones[0].Type != geo.AreaIndustrial {
		t.Fatalf("unexpected zones %+v", zones)
	}

	if _, err := ing.ImportReferenceYAML(ctx, strings.NewReader("pois: []\n"), "osm", "empty"); err != nil {
		t.Fatalf("reimport: %v", err)
	}
	zones, err = store.Zones(ctx)
	if err != nil {
		t.Fatalf("zones: %v", err)
	}
	if len(zones) != 0 {
		t.Fatalf("expected reimport to clear zones, got %+v", zones)
	}
}
