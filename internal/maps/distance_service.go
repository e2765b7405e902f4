// README: Driving distance via the Google Distance Matrix API with a great-circle fallback.
package maps

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"dashr/internal/types"
)

type matrixClient interface {
	DistanceMatrix(ctx context.Context, r *maps.DistanceMatrixRequest) (*maps.DistanceMatrixResponse, error)
}

// DistanceService measures venue-to-address distances used for delivery brackets.
type DistanceService struct {
	client matrixClient
	log    *zap.Logger
}

// NewDistanceService returns a service backed by Google Maps when apiKey is set,
// otherwise one that only computes great-circle distances.
func NewDistanceService(apiKey string, log *zap.Logger) (*DistanceService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if apiKey == "" {
		return &DistanceService{log: log}, nil
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &DistanceService{client: client, log: log}, nil
}

func (s *DistanceService) DistanceKm(ctx context.Context, from, to types.Point) (float64, error) {
	if !from.Valid() || !to.Valid() {
		return 0, fmt.Errorf("invalid coordinates %v -> %v", from, to)
	}
	if s.client == nil {
		return HaversineKm(from, to), nil
	}
	km, err := s.drivingKm(ctx, from, to)
	if err != nil {
		s.log.Warn("distance matrix failed, using great-circle distance", zap.Error(err))
		return HaversineKm(from, to), nil
	}
	return km, nil
}

func (s *DistanceService) drivingKm(ctx context.Context, from, to types.Point) (float64, error) {
	resp, err := s.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{latLng(from)},
		Destinations: []string{latLng(to)},
		Mode:         maps.TravelModeDriving,
	})
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return 0, fmt.Errorf("no route found")
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, fmt.Errorf("route status %s", el.Status)
	}
	return float64(el.Distance.Meters) / 1000.0, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
