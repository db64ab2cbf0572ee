package spot

import (
	"context"
	"sync"
	"testing"

	"staysense/internal/geo"
)

type memoryStore struct {
	mu      sync.Mutex
	spots   map[string]Spot
	inserts int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{spots: make(map[string]Spot)}
}

func (m *memoryStore) GetSpot(ctx context.Context, id string) (Spot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spots[id]
	return s, ok, nil
}

func (m *memoryStore) InsertSpotIfAbsent(ctx context.Context, s Spot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.spots[s.ID]; ok {
		return false, nil
	}
	m.spots[s.ID] = s
	m.inserts++
	return true, nil
}

type features struct {
	pois  map[geo.POIType][]geo.Point
	zones []geo.Zone
	roads []geo.Road
}

func (f *features) POIs(ctx context.Context, poiType geo.POIType) ([]geo.Point, error) {
	return f.pois[poiType], nil
}

func (f *features) Zones(ctx context.Context) ([]geo.Zone, error) {
	return f.zones, nil
}

func (f *features) Roads(ctx context.Context) ([]geo.Road, error) {
	return f.roads, nil
}

func TestIDIsStablePerCell(t *testing.T) {
	a := ID(51.25, 6.97)
	if a != ID(51.250001, 6.970004) {
		t.Fatalf("expected coordinates in the same cell to share an id")
	}
	if a == ID(51.2501, 6.97) {
		t.Fatalf("expected neighbouring cell to have a different id")
	}
	if len(a) != 36 {
		t.Fatalf("expected uuid string, got %q", a)
	}
}

func TestResolveCreatesWithLiveData(t *testing.T) {
	src := &features{
		pois: map[geo.POIType][]geo.Point{
			geo.POIPolice:   {{Lat: 51.2501, Lon: 6.97}},
			geo.POIFire:     {{Lat: 51.26, Lon: 6.97}},
			geo.POIHospital: {{Lat: 51.25, Lon: 6.98}},
		},
		zones: []geo.Zone{{Type: geo.AreaIndustrial, Lat: 51.2505, Lon: 6.97}},
		roads: []geo.Road{{Type: geo.RoadSecondary, Lat: 51.2502, Lon: 6.97}},
	}
	store := newMemoryStore()
	r := NewResolver(store, geo.NewClassifier(src, geo.DefaultThresholds(), geo.DefaultReference()))

	s, err := r.Resolve(context.Background(), 51.25, 6.97)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.AreaType != geo.AreaIndustrial {
		t.Fatalf("expected industrial, got %s", s.AreaType)
	}
	if s.RoadType != geo.RoadSecondary {
		t.Fatalf("expected secondary, got %s", s.RoadType)
	}
	if s.PoliceMeters != 11 {
		t.Fatalf("expected police at 11m, got %d", s.PoliceMeters)
	}
	if s.UsedFallback {
		t.Fatal("did not expect fallback with live data")
	}
	if s.CreatedAt.IsZero() {
		t.Fatal("expected created timestamp")
	}
}

func TestResolveUsesFallbackWithoutData(t *testing.T) {
	store := newMemoryStore()
	r := NewResolver(store, geo.NewClassifier(&features{}, geo.DefaultThresholds(), geo.DefaultReference()))

	s, err := r.Resolve(context.Background(), 51.25, 6.97)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !s.UsedFallback {
		t.Fatal("expected fallback flag without imported data")
	}
	if s.PoliceMeters <= 0 {
		t.Fatalf("expected positive fallback distance, got %d", s.PoliceMeters)
	}
}

func TestResolveFreezesAttributes(t *testing.T) {
	src := &features{}
	store := newMemoryStore()
	r := NewResolver(store, geo.NewClassifier(src, geo.DefaultThresholds(), geo.DefaultReference()))
	ctx := context.Background()

	first, err := r.Resolve(ctx, 51.25, 6.97)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	src.zones = []geo.Zone{{Type: geo.AreaIndustrial, Lat: 51.25, Lon: 6.97}}
	src.pois = map[geo.POIType][]geo.Point{geo.POIPolice: {{Lat: 51.25, Lon: 6.97}}}

	second, err := r.Resolve(ctx, 51.25003, 6.97002)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if second != first {
		t.Fatalf("expected frozen spot, got %+v then %+v", first, second)
	}
	if store.inserts != 1 {
		t.Fatalf("expected 1 insert, got %d", store.inserts)
	}
}

func TestResolveConcurrentCallersConverge(t *testing.T) {
	store := newMemoryStore()
	r := NewResolver(store, geo.NewClassifier(&features{}, geo.DefaultThresholds(), geo.DefaultReference()))

	const n = 16
	results := make([]Spot, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), 51.25, 6.97)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("resolve %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("resolve %d returned a different spot", i)
		}
	}
	if store.inserts != 1 {
		t.Fatalf("expected exactly one insert, got %d", store.inserts)
	}
}
