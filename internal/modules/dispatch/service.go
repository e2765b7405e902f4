// README: Dispatch service broadcasts delivery requests to nearby drivers in expanding rounds.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dashr/internal/config"
	"dashr/internal/modules/delivery"
	"dashr/internal/modules/location"
	"dashr/internal/modules/order"
	"dashr/internal/tasks"
	"dashr/internal/types"
)

type Bookkeeper interface {
	State(ctx context.Context, orderID types.ID) (State, bool, error)
	RecordRound(ctx context.Context, orderID types.ID, st State) error
	Lock(ctx context.Context, orderID types.ID, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, orderID types.ID, token string) error
	Forget(ctx context.Context, orderID types.ID) error
}

type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	ListLookingForDriver(ctx context.Context, limit int) ([]*order.Order, error)
}

type Requests interface {
	CreateBatch(ctx context.Context, reqs []*delivery.Request) ([]*delivery.Request, error)
	SolicitedDrivers(ctx context.Context, orderID types.ID) ([]types.ID, error)
	ExpirePending(ctx context.Context, orderID types.ID, olderThan time.Time) (int64, error)
	CloseOpen(ctx context.Context, orderID types.ID) (int64, error)
}

type Locator interface {
	Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]location.NearbyDriver, error)
}

type BusyFilter interface {
	Busy(ctx context.Context, ids []types.ID) (map[types.ID]bool, error)
}

type DriverNotifier interface {
	DriverRequest(ctx context.Context, ev tasks.OrderEvent, requestID string)
}

// Recorder receives one call per dispatch round.
type Recorder interface {
	RoundDispatched(round, requests int)
}

type Deps struct {
	Store    Bookkeeper
	Orders   Orders
	Requests Requests
	Locator  Locator
	Drivers  BusyFilter
	Notifier DriverNotifier
	Metrics  Recorder
	Config   config.DispatchConfig
	Log      *zap.Logger
}

type Service struct {
	store    Bookkeeper
	orders   Orders
	requests Requests
	locator  Locator
	drivers  BusyFilter
	notifier DriverNotifier
	metrics  Recorder
	cfg      config.DispatchConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		store:    d.Store,
		orders:   d.Orders,
		requests: d.Requests,
		locator:  d.Locator,
		drivers:  d.Drivers,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		cfg:      d.Config,
		log:      d.Log,
		now:      time.Now,
	}
}

// Dispatch runs the first round for an order that just entered looking_for_driver.
// It is a no-op when the order was already dispatched, so redelivered tasks are harmless.
func (s *Service) Dispatch(ctx context.Context, orderID types.ID) error {
	return s.withLock(ctx, orderID, func() error {
		o, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != order.StatusLookingForDriver {
			return s.store.Forget(ctx, orderID)
		}
		_, seen, err := s.store.State(ctx, orderID)
		if err != nil || seen {
			return err
		}
		return s.dispatchRound(ctx, o, 0)
	})
}

// Forget clears bookkeeping once an order left looking_for_driver.
func (s *Service) Forget(ctx context.Context, orderID types.ID) error {
	return s.store.Forget(ctx, orderID)
}

// Close stops dispatch for an order that will never get a driver.
func (s *Service) Close(ctx context.Context, orderID types.ID) error {
	if _, err := s.requests.CloseOpen(ctx, orderID); err != nil {
		return err
	}
	return s.store.Forget(ctx, orderID)
}

func (s *Service) RunScheduler(ctx context.Context) {
	tick := s.cfg.Tick()
	if tick <= 0 {
		tick = 5 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick advances every order still looking for a driver: never-dispatched orders get their
// first round, orders whose round timed out get the next one.
func (s *Service) tick(ctx context.Context) {
	orders, err := s.orders.ListLookingForDriver(ctx, tickBatch)
	if err != nil {
		s.log.Error("list looking_for_driver orders failed", zap.Error(err))
		return
	}
	for _, o := range orders {
		if ctx.Err() != nil {
			return
		}
		o := o
		err := s.withLock(ctx, o.ID, func() error {
			return s.advance(ctx, o)
		})
		if err != nil {
			s.log.Warn("dispatch round failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		}
	}
}

func (s *Service) advance(ctx context.Context, o *order.Order) error {
	st, seen, err := s.store.State(ctx, o.ID)
	if err != nil {
		return err
	}
	if !seen {
		return s.dispatchRound(ctx, o, 0)
	}
	now := s.now()
	if now.Sub(st.DispatchedAt) < s.cfg.RequestTimeout() {
		return nil
	}
	expired, err := s.requests.ExpirePending(ctx, o.ID, now)
	if err != nil {
		return err
	}
	s.log.Debug("dispatch round timed out",
		zap.String("order_id", string(o.ID)),
		zap.Int("round", st.Round),
		zap.Int64("expired", expired),
	)
	return s.dispatchRound(ctx, o, st.Round+1)
}

func (s *Service) dispatchRound(ctx context.Context, o *order.Order, round int) error {
	radius := s.cfg.RadiusForRound(round)
	pickup := o.Data.Venue.Location

	solicited, err := s.requests.SolicitedDrivers(ctx, o.ID)
	if err != nil {
		return err
	}
	nearby, candidates, err := s.findCandidates(ctx, pickup, radius, solicited)
	if err != nil {
		return err
	}

	now := s.now()
	reqs := make([]*delivery.Request, 0, len(candidates))
	for _, c := range candidates {
		reqs = append(reqs, &delivery.Request{
			ID:             types.NewID(),
			OrderID:        o.ID,
			DriverID:       c.DriverID,
			Status:         delivery.StatusPending,
			DriverLocation: c.Position,
			Round:          round,
			CreatedAt:      now,
		})
	}
	created, err := s.requests.CreateBatch(ctx, reqs)
	if err != nil {
		return err
	}
	// The round is recorded even when nobody was found so the next one widens the radius.
	if err := s.store.RecordRound(ctx, o.ID, State{Round: round, DispatchedAt: now}); err != nil {
		return err
	}

	if s.notifier != nil {
		ev := order.TaskEvent(o, now)
		for _, r := range created {
			ev.DriverID = r.DriverID
			s.notifier.DriverRequest(ctx, ev, string(r.ID))
		}
	}
	if s.metrics != nil {
		s.metrics.RoundDispatched(round, len(created))
	}
	s.log.Info("dispatch round",
		zap.String("order_id", string(o.ID)),
		zap.Int("round", round),
		zap.Float64("radius_km", radius),
		zap.Int("nearby", len(nearby)),
		zap.Int("requests", len(created)),
	)
	return nil
}

// findCandidates pages the GEO query with a growing count until enough free drivers survive
// filtering or the radius holds no more drivers. Busy drivers stay in the index, so a fixed
// count could be filled by them alone.
func (s *Service) findCandidates(ctx context.Context, pickup types.Point, radius float64, solicited []types.ID) ([]location.NearbyDriver, []location.NearbyDriver, error) {
	limit := s.cfg.MaxCandidates * candidatePoolFactor
	if limit <= 0 {
		return nil, nil, nil
	}
	busy := map[types.ID]bool{}
	checked := map[types.ID]bool{}
	for {
		nearby, err := s.locator.Nearby(ctx, pickup, radius, limit)
		if err != nil {
			return nil, nil, err
		}
		var unchecked []types.ID
		for _, d := range nearby {
			if !checked[d.DriverID] {
				checked[d.DriverID] = true
				unchecked = append(unchecked, d.DriverID)
			}
		}
		if len(unchecked) > 0 {
			found, err := s.drivers.Busy(ctx, unchecked)
			if err != nil {
				return nil, nil, err
			}
			for id, b := range found {
				if b {
					busy[id] = true
				}
			}
		}
		candidates := selectCandidates(nearby, solicited, busy, s.cfg.MaxCandidates)
		if len(candidates) >= s.cfg.MaxCandidates || len(nearby) < limit {
			return nearby, candidates, nil
		}
		limit *= 2
	}
}

func (s *Service) withLock(ctx context.Context, orderID types.ID, fn func() error) error {
	token, ok, err := s.store.Lock(ctx, orderID, lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer func() {
		if err := s.store.Unlock(context.WithoutCancel(ctx), orderID, token); err != nil {
			s.log.Warn("release dispatch lock failed", zap.String("order_id", string(orderID)), zap.Error(err))
		}
	}()
	return fn()
}
