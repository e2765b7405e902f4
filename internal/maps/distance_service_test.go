package maps

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"dashr/internal/types"
)

type stubMatrix struct {
	resp *maps.DistanceMatrixResponse
	err  error
}

func (s *stubMatrix) DistanceMatrix(_ context.Context, _ *maps.DistanceMatrixRequest) (*maps.DistanceMatrixResponse, error) {
	return s.resp, s.err
}

func TestHaversineKm_KnownDistancesServiceCases(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{"same point", types.Point{Lat: 25.033, Lng: 121.565}, types.Point{Lat: 25.033, Lng: 121.565}, 0, 0.001},
		{"Zurich HB to Zurich airport (~10km)", types.Point{Lat: 47.3779, Lng: 8.5403}, types.Point{Lat: 47.4502, Lng: 8.5618}, 8.2, 1.0},
		{"New York to Los Angeles (~3944km)", types.Point{Lat: 40.7128, Lng: -74.0060}, types.Point{Lat: 34.0522, Lng: -118.2437}, 3944, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("HaversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	a, b := types.Point{Lat: 25, Lng: 121}, types.Point{Lat: 26, Lng: 122}
	if d1, d2 := HaversineKm(a, b), HaversineKm(b, a); math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestDistanceKm_NoAPIKeyUsesGreatCircle(t *testing.T) {
	svc, err := NewDistanceService("", nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	a, b := types.Point{Lat: 47.37, Lng: 8.54}, types.Point{Lat: 47.38, Lng: 8.55}
	got, err := svc.DistanceKm(context.Background(), a, b)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if math.Abs(got-HaversineKm(a, b)) > 1e-9 {
		t.Fatalf("expected haversine distance, got %f", got)
	}
}

func TestDistanceKm_UsesMatrixMeters(t *testing.T) {
	svc := &DistanceService{client: &stubMatrix{resp: &maps.DistanceMatrixResponse{
		Rows: []maps.DistanceMatrixElementsRow{{Elements: []*maps.DistanceMatrixElement{{
			Status:   "OK",
			Distance: maps.Distance{Meters: 4200},
		}}}},
	}}, log: zap.NewNop()}
	got, err := svc.DistanceKm(context.Background(), types.Point{Lat: 1, Lng: 1}, types.Point{Lat: 1.01, Lng: 1.01})
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if got != 4.2 {
		t.Fatalf("expected 4.2km, got %f", got)
	}
}

func TestDistanceKm_MatrixErrorFallsBack(t *testing.T) {
	svc := &DistanceService{client: &stubMatrix{err: errors.New("quota")}, log: zap.NewNop()}
	a, b := types.Point{Lat: 1, Lng: 1}, types.Point{Lat: 1.01, Lng: 1.01}
	got, err := svc.DistanceKm(context.Background(), a, b)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if math.Abs(got-HaversineKm(a, b)) > 1e-9 {
		t.Fatalf("expected fallback distance, got %f", got)
	}
}

func TestDistanceKm_InvalidPoint(t *testing.T) {
	svc, _ := NewDistanceService("", nil)
	if _, err := svc.DistanceKm(context.Background(), types.Point{Lat: 100}, types.Point{}); err == nil {
		t.Fatal("expected error for invalid coordinates")
	}
}
