package geo

import (
	"math"
	"testing"
	"time"

	"pulse/internal/types"
)

func TestDistanceMeters_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantM     float64
		tolerance float64
	}{
		{
			name:      "same point is exactly zero",
			a:         types.Point{Lat: 48.8566, Lng: 2.3522},
			b:         types.Point{Lat: 48.8566, Lng: 2.3522},
			wantM:     0,
			tolerance: 0,
		},
		{
			name:      "one degree of longitude at the equator (~111km)",
			a:         types.Point{Lat: 0, Lng: 0},
			b:         types.Point{Lat: 0, Lng: 1},
			wantM:     111195,
			tolerance: 1000,
		},
		{
			name:      "Paris to null island (~5.8Mm)",
			a:         types.Point{Lat: 48.8566, Lng: 2.3522},
			b:         types.Point{Lat: 0, Lng: 0},
			wantM:     5.8e6,
			tolerance: 1e5,
		},
		{
			name:      "antipodal points (~half circumference)",
			a:         types.Point{Lat: 0, Lng: 0},
			b:         types.Point{Lat: 0, Lng: 180},
			wantM:     math.Pi * 6371000,
			tolerance: 1000,
		},
		{
			name:      "wraparound across the antimeridian",
			a:         types.Point{Lat: 0, Lng: 179.5},
			b:         types.Point{Lat: 0, Lng: -179.5},
			wantM:     111195,
			tolerance: 1500,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantM:     3944000,
			tolerance: 50000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if math.Abs(got-tt.wantM) > tt.tolerance {
				t.Errorf("DistanceMeters() = %f, want %f (±%f)", got, tt.wantM, tt.tolerance)
			}
		})
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	a := types.Point{Lat: 25.0, Lng: 121.0}
	b := types.Point{Lat: 26.0, Lng: 122.0}
	d1 := DistanceMeters(a, b)
	d2 := DistanceMeters(b, a)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("distance is not symmetric: %f vs %f", d1, d2)
	}
}

func TestDistanceMeters_TriangleInequality(t *testing.T) {
	a := types.Point{Lat: 48.85, Lng: 2.35}
	b := types.Point{Lat: 48.90, Lng: 2.40}
	c := types.Point{Lat: 48.80, Lng: 2.30}
	ab := DistanceMeters(a, b)
	bc := DistanceMeters(b, c)
	ac := DistanceMeters(a, c)
	// Spherical distances satisfy this up to floating point noise.
	if ac > ab+bc+1e-6 {
		t.Errorf("triangle inequality violated: %f > %f + %f", ac, ab, bc)
	}
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		meters float64
		want   string
	}{
		{0, "0m"},
		{1, "1m"},
		{150, "150m"},
		{999, "999m"},
		{1000, "1.0km"},
		{1250, "1.2km"},
		{1250.4, "1.3km"},
		{20015000, "20015.0km"},
	}
	for _, tt := range tests {
		if got := FormatDistance(tt.meters); got != tt.want {
			t.Errorf("FormatDistance(%v) = %q, want %q", tt.meters, got, tt.want)
		}
	}
}

func TestFormatTimeSince(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{time.Minute, "1 minutes"},
		{45 * time.Minute, "45 minutes"},
		{time.Hour, "1 hours"},
		{23*time.Hour + 59*time.Minute, "23 hours"},
		{24 * time.Hour, "1 days"},
		{72 * time.Hour, "3 days"},
	}
	for _, tt := range tests {
		if got := FormatTimeSince(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("FormatTimeSince(now-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}

func TestSortByDistance_StableOnTies(t *testing.T) {
	type entry struct {
		id   string
		dist float64
	}
	items := []entry{
		{"c", 5.0},
		{"a", 1.0},
		{"b", 1.0},
		{"d", 0.5},
	}
	SortByDistance(items, func(e entry) float64 { return e.dist })

	want := []string{"d", "a", "b", "c"}
	for i, w := range want {
		if items[i].id != w {
			t.Fatalf("position %d: got %s, want %s (%v)", i, items[i].id, w, items)
		}
	}
}
