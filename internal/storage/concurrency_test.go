package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"staysense/internal/geo"
	"staysense/internal/signals"
	"staysense/internal/spot"
)

func openFileStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "staysense.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return store
}

func TestConcurrentSubmissionsFromOneDevice(t *testing.T) {
	ctx := context.Background()
	store := openFileStore(t)

	spotID := spot.ID(51.25, 6.97)
	if _, err := store.InsertSpotIfAbsent(ctx, spot.Spot{ID: spotID, Lat: 51.25, Lon: 6.97, AreaType: geo.AreaResidential, RoadType: geo.RoadUnknown}); err != nil {
		t.Fatalf("insert spot: %v", err)
	}

	now := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC)
	gate := &signals.Gate{
		Store:  store,
		Secret: []byte("test-secret"),
		Params: signals.DefaultParams(),
		Now:    func() time.Time { return now },
	}

	const n = 20
	decisions := make([]signals.Decision, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = gate.Submit(ctx, signals.Submission{
				SpotID:      spotID,
				SignalType:  "knock",
				DeviceToken: "device-token-0123456789",
				Timestamp:   now.Add(time.Duration(i) * time.Second),
			})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("submit %d: %v", i, errs[i])
		}
		if decisions[i].Accepted {
			accepted++
			continue
		}
		if !decisions[i].Reason.IsRateLimit() {
			t.Fatalf("submit %d: expected rate limit rejection, got %+v", i, decisions[i])
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted submission, got %d", accepted)
	}

	count, err := store.CountSignals(ctx, spotID)
	if err != nil {
		t.Fatalf("count signals: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stored signal, got %d", count)
	}
}

func TestConcurrentResolveCreatesOneSpot(t *testing.T) {
	ctx := context.Background()
	store := openFileStore(t)

	if err := store.InsertPOI(ctx, POI{Type: geo.POIPolice, Lat: 51.2501, Lon: 6.97, Source: "osm"}); err != nil {
		t.Fatalf("insert poi: %v", err)
	}
	classifier := geo.NewClassifier(store, geo.DefaultThresholds(), geo.DefaultReference())
	resolver := spot.NewResolver(store, classifier)

	const n = 16
	results := make([]spot.Spot, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = resolver.Resolve(ctx, 51.25, 6.97)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("resolve %d: %v", i, errs[i])
		}
		got, want := results[i], results[0]
		if got.ID != want.ID || got.PoliceMeters != want.PoliceMeters || !got.CreatedAt.Equal(want.CreatedAt) {
			t.Fatalf("resolve %d: %+v differs from %+v", i, got, want)
		}
	}

	count, err := store.CountSpots(ctx)
	if err != nil {
		t.Fatalf("count spots: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 spot, got %d", count)
	}
	if results[0].PoliceMeters != 11 {
		t.Fatalf("expected live police distance of 11m, got %+v", results[0])
	}
}
