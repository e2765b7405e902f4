// README: Driver service manages availability and keeps the GEO index in sync.
package driver

import (
	"context"

	"go.uber.org/zap"

	"dashr/internal/apperr"
	"dashr/internal/types"
)

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	SetAvailable(ctx context.Context, id types.ID, available bool) (bool, error)
	Busy(ctx context.Context, ids []types.ID) (map[types.ID]bool, error)
}

type GeoIndex interface {
	Online(ctx context.Context, driverID types.ID, pos types.Point) error
	Remove(ctx context.Context, driverID types.ID) error
}

type Service struct {
	store Repository
	geo   GeoIndex
	log   *zap.Logger
}

func NewService(store Repository, geo GeoIndex, log *zap.Logger) *Service {
	return &Service{store: store, geo: geo, log: log}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) SetAvailability(ctx context.Context, id types.ID, available bool) (*Driver, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	busyErr := apperr.Validation(apperr.DomainDriver, "cannot go offline with an active delivery")
	if !available && d.Busy() {
		return nil, busyErr
	}
	ok, err := s.store.SetAvailable(ctx, id, available)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, busyErr
	}
	d.IsAvailable = available

	if available && d.LastKnownLocation != nil {
		err = s.geo.Online(ctx, id, *d.LastKnownLocation)
	} else if !available {
		err = s.geo.Remove(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("driver availability changed", zap.String("driver_id", string(id)), zap.Bool("available", available))
	return d, nil
}

func (s *Service) Busy(ctx context.Context, ids []types.ID) (map[types.ID]bool, error) {
	return s.store.Busy(ctx, ids)
}
