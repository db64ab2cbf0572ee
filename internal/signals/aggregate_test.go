package signals

import (
	"math"
	"testing"
	"time"
)

func TestDecay(t *testing.T) {
	for _, h := range []float64{1, 7, 10} {
		if got := Decay(0, h); got != 1 {
			t.Fatalf("Decay(0, %v) = %v; want 1", h, got)
		}
		if got := Decay(h, h); math.Abs(got-0.5) > 1e-12 {
			t.Fatalf("Decay(%v, %v) = %v; want 0.5", h, h, got)
		}
	}
	if got := Decay(-3, 7); got != 1 {
		t.Fatalf("expected negative age to count as fresh, got %v", got)
	}

	prev := Decay(0, 7)
	for age := 0.5; age <= 30; age += 0.5 {
		cur := Decay(age, 7)
		if cur >= prev {
			t.Fatalf("expected strictly decreasing decay at age %v: %v >= %v", age, cur, prev)
		}
		prev = cur
	}
}

func TestSum(t *testing.T) {
	at := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	days := func(n float64) time.Time { return at.Add(-time.Duration(n * 24 * float64(time.Hour))) }

	rows := []Signal{
		{Type: TypeKnock, Timestamp: days(10)},
		{Type: TypeKnock, Timestamp: days(0)},
		{Type: TypeCalm, Timestamp: days(20)}, // outside the 14 day window
		{Type: TypeNoise, Timestamp: days(7)},
		{Type: TypePolice, Timestamp: at.Add(2 * time.Hour)}, // after at counts as fresh
		{Type: Type("unknown"), Timestamp: days(1)},
	}

	factors := Sum(rows, at, DefaultParams())
	if len(factors) != 3 {
		t.Fatalf("expected 3 factors, got %+v", factors)
	}

	want := []struct {
		key    string
		points float64
	}{
		{"community_knock", -25 - 12.5},
		{"community_noise", -7.5},
		{"community_police", -18},
	}
	for i, w := range want {
		if factors[i].Key != w.key {
			t.Fatalf("factor %d: expected %s, got %s", i, w.key, factors[i].Key)
		}
		if math.Abs(factors[i].Points-w.points) > 1e-9 {
			t.Fatalf("factor %s: expected %v, got %v", w.key, w.points, factors[i].Points)
		}
		if factors[i].Source != "community" {
			t.Fatalf("factor %s: unexpected source %q", w.key, factors[i].Source)
		}
	}
}

func TestSumDropsTotalsBelowNoiseFloor(t *testing.T) {
	at := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	p := DefaultParams()
	p.Buckets[TypeCalm] = Bucket{Base: 1, HalfLifeDays: 1, WindowDays: 30, Label: "Reported calm"}

	factors := Sum([]Signal{{Type: TypeCalm, Timestamp: at.Add(-48 * time.Hour)}}, at, p)
	if len(factors) != 0 {
		t.Fatalf("expected 0.25 total to be dropped, got %+v", factors)
	}
}

func TestSumWindowBoundaryIsInclusive(t *testing.T) {
	at := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	factors := Sum([]Signal{{Type: TypeNoise, Timestamp: at.AddDate(0, 0, -14)}}, at, DefaultParams())
	if len(factors) != 1 {
		t.Fatalf("expected signal exactly 14 days old to count, got %+v", factors)
	}
}
