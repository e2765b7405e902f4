// README: Delivery service lets drivers answer the requests dispatch sent them.
package delivery

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"dashr/internal/apperr"
	"dashr/internal/modules/order"
	"dashr/internal/tasks"
	"dashr/internal/types"
)

var (
	ErrForbidden    = errors.New("delivery request belongs to another driver")
	ErrInvalidState = errors.New("delivery request is no longer pending")
	ErrConflict     = errors.New("order was already taken by another driver")
)

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Request, error)
	ListPendingByDriver(ctx context.Context, driverID types.ID) ([]*Request, error)
	Answer(ctx context.Context, id types.ID, status Status, at time.Time) (bool, error)
	Assign(ctx context.Context, r *Request, at time.Time) error
}

type OrderReader interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
}

// Forgetter drops dispatch bookkeeping for an order that found its driver.
type Forgetter interface {
	Forget(ctx context.Context, orderID types.ID) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, typ tasks.Type, payload any) error
}

type Service struct {
	store    Repository
	orders   OrderReader
	dispatch Forgetter
	tasks    Enqueuer
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store Repository, orders OrderReader, dispatch Forgetter, tasks Enqueuer, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		orders:   orders,
		dispatch: dispatch,
		tasks:    tasks,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) ListPending(ctx context.Context, driverID types.ID) ([]*Request, error) {
	return s.store.ListPendingByDriver(ctx, driverID)
}

func (s *Service) owned(ctx context.Context, driverID, requestID types.ID) (*Request, error) {
	r, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != driverID {
		return nil, ErrForbidden
	}
	return r, nil
}

// Accept assigns the request's order to the driver. Losing the race to another driver marks
// the request missed and returns ErrConflict.
func (s *Service) Accept(ctx context.Context, driverID, requestID types.ID) (*order.Order, error) {
	r, err := s.owned(ctx, driverID, requestID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, StatusAccepted) {
		return nil, ErrInvalidState
	}

	at := s.now()
	err = s.store.Assign(ctx, r, at)
	switch {
	case errors.Is(err, errDriverBusy):
		return nil, apperr.Validation(apperr.DomainDriver, "driver already has an active delivery")
	case errors.Is(err, errDriverOffline):
		return nil, apperr.Validation(apperr.DomainDriver, "driver must be online to accept a delivery")
	case errors.Is(err, errOrderTaken):
		if _, err := s.store.Answer(ctx, r.ID, StatusMissed, at); err != nil {
			s.log.Warn("mark request missed failed", zap.String("request_id", string(r.ID)), zap.Error(err))
		}
		return nil, ErrConflict
	case errors.Is(err, errNotPending):
		return nil, ErrInvalidState
	case err != nil:
		return nil, err
	}

	s.log.Info("driver assigned",
		zap.String("order_id", string(r.OrderID)),
		zap.String("driver_id", string(driverID)),
		zap.String("request_id", string(r.ID)),
	)
	if s.dispatch != nil {
		if err := s.dispatch.Forget(ctx, r.OrderID); err != nil {
			s.log.Warn("forget dispatch failed", zap.String("order_id", string(r.OrderID)), zap.Error(err))
		}
	}

	o, err := s.orders.Get(ctx, r.OrderID)
	if err != nil {
		return nil, err
	}
	if s.tasks != nil {
		if err := s.tasks.Enqueue(ctx, tasks.TypeNotifyOrderStatus, order.TaskEvent(o, at)); err != nil {
			s.log.Error("enqueue task failed", zap.String("type", string(tasks.TypeNotifyOrderStatus)), zap.Error(err))
		}
	}
	return o, nil
}

// Reject declines the request; dispatch never offers the order to this driver again.
func (s *Service) Reject(ctx context.Context, driverID, requestID types.ID) (*Request, error) {
	r, err := s.owned(ctx, driverID, requestID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, StatusRejected) {
		return nil, ErrInvalidState
	}
	at := s.now()
	ok, err := s.store.Answer(ctx, r.ID, StatusRejected, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}
	r.Status = StatusRejected
	r.RespondedAt = &at
	return r, nil
}
