// README: Location service applies driver position updates and answers proximity queries.
package location

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"dashr/internal/types"
)

var ErrInvalidPosition = errors.New("invalid position")

type Repository interface {
	SetGeo(ctx context.Context, id types.ID, pos types.Point) error
	RemoveGeo(ctx context.Context, id types.ID) error
	Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]NearbyDriver, error)
	SaveLast(ctx context.Context, u Update) (applied, available bool, err error)
}

// Tracker mirrors positions to a live-tracking backend. Optional.
type Tracker interface {
	Track(ctx context.Context, u Update, online bool) error
	Forget(ctx context.Context, driverID types.ID) error
}

type Service struct {
	store   Repository
	tracker Tracker
	log     *zap.Logger
	now     func() time.Time
}

func NewService(store Repository, tracker Tracker, log *zap.Logger) *Service {
	return &Service{store: store, tracker: tracker, log: log, now: time.Now}
}

// Update records a driver position. Updates older than the stored one are ignored and
// reported as not applied. Only available drivers are kept in the GEO index.
func (s *Service) Update(ctx context.Context, u Update) (bool, error) {
	if !u.Position.Valid() {
		return false, ErrInvalidPosition
	}
	if u.RecordedAt.IsZero() {
		u.RecordedAt = s.now()
	}
	applied, available, err := s.store.SaveLast(ctx, u)
	if err != nil {
		return false, err
	}
	if !applied {
		s.log.Debug("stale location ignored", zap.String("driver_id", string(u.DriverID)))
		return false, nil
	}
	if available {
		err = s.store.SetGeo(ctx, u.DriverID, u.Position)
	} else {
		err = s.store.RemoveGeo(ctx, u.DriverID)
	}
	if err != nil {
		return true, err
	}
	if s.tracker != nil {
		if err := s.tracker.Track(ctx, u, available); err != nil {
			s.log.Warn("tracking mirror failed", zap.String("driver_id", string(u.DriverID)), zap.Error(err))
		}
	}
	return true, nil
}

func (s *Service) Online(ctx context.Context, driverID types.ID, pos types.Point) error {
	return s.store.SetGeo(ctx, driverID, pos)
}

func (s *Service) Remove(ctx context.Context, driverID types.ID) error {
	if err := s.store.RemoveGeo(ctx, driverID); err != nil {
		return err
	}
	if s.tracker != nil {
		if err := s.tracker.Forget(ctx, driverID); err != nil {
			s.log.Warn("tracking forget failed", zap.String("driver_id", string(driverID)), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]NearbyDriver, error) {
	return s.store.Nearby(ctx, p, radiusKm, limit)
}
