// README: Order service implements checkout and the per-role state transitions.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dashr/internal/apperr"
	"dashr/internal/modules/payment"
	"dashr/internal/modules/pricing"
	"dashr/internal/modules/venue"
	"dashr/internal/tasks"
	"dashr/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("order not found")
	ErrConflict     = errors.New("order state conflict")
	ErrForbidden    = errors.New("not allowed to act on this order")
)

type Role string

const (
	RoleAdmin         Role = "admin"
	RoleCustomer      Role = "customer"
	RoleDriver        Role = "driver"
	RoleCompanyMember Role = "company_member"
)

// Actor is the authenticated caller.
type Actor struct {
	ID   types.ID
	Role Role
}

type Repository interface {
	Create(ctx context.Context, o *Order, p *payment.Payment, ev *Event) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	Transition(ctx context.Context, t Transition) (bool, error)
	ListByCustomer(ctx context.Context, customerID types.ID, limit int) ([]*Order, error)
	ListByVenue(ctx context.Context, venueID types.ID, limit int) ([]*Order, error)
	ListLookingForDriver(ctx context.Context, limit int) ([]*Order, error)
	Events(ctx context.Context, orderID types.ID) ([]Event, error)
	RedactCustomer(ctx context.Context, customerID types.ID) (int64, error)
}

type VenueReader interface {
	Get(ctx context.Context, id types.ID) (*venue.Venue, error)
	Items(ctx context.Context, venueID types.ID, ids []types.ID) ([]venue.Item, error)
	IsStaff(ctx context.Context, venueID, userID types.ID) (bool, error)
}

type Quoter interface {
	Quote(ctx context.Context, req pricing.QuoteRequest) (pricing.Quote, error)
}

type Distance interface {
	DistanceKm(ctx context.Context, from, to types.Point) (float64, error)
}

type Charger interface {
	Charge(ctx context.Context, cmd payment.ChargeCommand) (*payment.Payment, error)
	Void(ctx context.Context, p *payment.Payment) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, typ tasks.Type, payload any) error
}

// DispatchCloser stops dispatch for an order that left looking_for_driver without a driver.
type DispatchCloser interface {
	Close(ctx context.Context, orderID types.ID) error
}

// Recorder counts orders for metrics.
type Recorder interface {
	OrderCreated()
}

type Deps struct {
	Store    Repository
	Venues   VenueReader
	Pricing  Quoter
	Distance Distance
	Payments Charger
	Tasks    Enqueuer
	Dispatch DispatchCloser
	Metrics  Recorder
	Log      *zap.Logger
}

type Service struct {
	store    Repository
	venues   VenueReader
	pricing  Quoter
	distance Distance
	payments Charger
	tasks    Enqueuer
	dispatch DispatchCloser
	metrics  Recorder
	log      *zap.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		store:    d.Store,
		venues:   d.Venues,
		pricing:  d.Pricing,
		distance: d.Distance,
		payments: d.Payments,
		tasks:    d.Tasks,
		dispatch: d.Dispatch,
		metrics:  d.Metrics,
		log:      d.Log,
		now:      time.Now,
	}
}

type ItemQuantity struct {
	ItemID   types.ID
	Quantity int
}

type CreateCommand struct {
	Customer      Customer
	VenueID       types.ID
	Address       Address
	Items         []ItemQuantity
	Tip           int64
	PaymentMethod string
	Card          Card
}

const listLimit = 50

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.Customer.ID == "" || cmd.VenueID == "" {
		return nil, apperr.Validation(apperr.DomainOrder, "customer and venue are required")
	}
	if len(cmd.Items) == 0 {
		return nil, apperr.Validation(apperr.DomainOrder, "order must contain at least one item")
	}
	if !cmd.Address.Location.Valid() {
		return nil, apperr.Validation(apperr.DomainOrder, "delivery address has invalid coordinates")
	}

	v, err := s.venues.Get(ctx, cmd.VenueID)
	if errors.Is(err, venue.ErrNotFound) {
		return nil, apperr.Validation(apperr.DomainOrder, "venue %s does not exist", cmd.VenueID)
	}
	if err != nil {
		return nil, err
	}
	if !v.IsOpen {
		return nil, apperr.Validation(apperr.DomainOrder, "venue is closed")
	}

	lines, items, err := s.resolveItems(ctx, v.ID, cmd.Items)
	if err != nil {
		return nil, err
	}

	km, err := s.distance.DistanceKm(ctx, v.Location, cmd.Address.Location)
	if err != nil {
		return nil, fmt.Errorf("delivery distance: %w", err)
	}
	if km > v.DeliveryRadiusKm {
		return nil, apperr.Validation(apperr.DomainOrder, "delivery address is outside the delivery range")
	}
	quote, err := s.pricing.Quote(ctx, pricing.QuoteRequest{Lines: lines, DistanceKm: km, Tip: cmd.Tip})
	if err != nil {
		return nil, err
	}

	id := types.NewID()
	p, err := s.payments.Charge(ctx, payment.ChargeCommand{
		OrderID:       id,
		CustomerID:    cmd.Customer.ID,
		PaymentMethod: cmd.PaymentMethod,
		Quote:         quote,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	ident := IdentificationNotRequired
	if v.AgeRestricted {
		ident = IdentificationPending
	}
	o := &Order{
		ID:                   id,
		CustomerID:           cmd.Customer.ID,
		VenueID:              v.ID,
		PaymentID:            &p.ID,
		Status:               StatusPending,
		DeliveryStatus:       DeliveryPending,
		IdentificationStatus: ident,
		Data: Snapshot{
			Customer: cmd.Customer,
			Address:  cmd.Address,
			Venue:    VenueInfo{ID: v.ID, Name: v.Name, Address: v.Address, Location: v.Location},
			Items:    items,
			Card:     cmd.Card,
			Totals:   quote,
		},
		CreatedAt: now,
	}
	ev := &Event{
		OrderID:   id,
		Field:     FieldStatus,
		From:      string(StatusNone),
		To:        string(StatusPending),
		ActorType: ActorCustomer,
		ActorID:   &o.CustomerID,
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, o, p, ev); err != nil {
		if verr := s.payments.Void(ctx, p); verr != nil {
			s.log.Error("void after failed order insert", zap.String("order_id", string(id)), zap.Error(verr))
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order created",
		zap.String("order_id", string(id)),
		zap.String("venue_id", string(v.ID)),
		zap.Int64("total", quote.Total),
	)
	if s.metrics != nil {
		s.metrics.OrderCreated()
	}
	event := TaskEvent(o, now)
	s.enqueue(ctx, tasks.TypeStatsOrderCreated, event)
	s.enqueue(ctx, tasks.TypeNotifyOrderStatus, event)
	return o, nil
}

func (s *Service) resolveItems(ctx context.Context, venueID types.ID, req []ItemQuantity) ([]pricing.Line, []LineItem, error) {
	qty := make(map[types.ID]int, len(req))
	var ids []types.ID
	for _, r := range req {
		if r.Quantity <= 0 {
			return nil, nil, apperr.Validation(apperr.DomainOrder, "quantity for item %s must be positive", r.ItemID)
		}
		if _, seen := qty[r.ItemID]; !seen {
			ids = append(ids, r.ItemID)
		}
		qty[r.ItemID] += r.Quantity
	}

	found, err := s.venues.Items(ctx, venueID, ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[types.ID]venue.Item, len(found))
	for _, it := range found {
		byID[it.ID] = it
	}

	lines := make([]pricing.Line, 0, len(ids))
	items := make([]LineItem, 0, len(ids))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok || it.VenueID != venueID {
			return nil, nil, apperr.Validation(apperr.DomainOrder, "item %s is not on this venue's menu", id)
		}
		if !it.Available {
			return nil, nil, apperr.Validation(apperr.DomainOrder, "item %s is not available", it.Name)
		}
		lines = append(lines, pricing.Line{ItemID: string(id), Name: it.Name, UnitPrice: it.Price, Quantity: qty[id]})
		items = append(items, LineItem{ID: id, Name: it.Name, Price: it.Price, Quantity: qty[id]})
	}
	return lines, items, nil
}

// AcceptByVenue confirms a pending order and starts driver dispatch.
func (s *Service) AcceptByVenue(ctx context.Context, actor Actor, orderID types.ID) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.requireStaff(ctx, o, actor); err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusLookingForDriver) {
		return nil, ErrInvalidState
	}
	t := s.begin(o)
	t.Status = StatusLookingForDriver
	t.Stamp = StampLookingForDriver
	t.Events = append(t.Events, statusEvent(o, t.Status, ActorStaff, actor.ID, t.At))
	if err := s.commit(ctx, t); err != nil {
		return nil, err
	}

	updated, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	event := TaskEvent(updated, t.At)
	s.enqueue(ctx, tasks.TypeNotifyOrderStatus, event)
	s.enqueue(ctx, tasks.TypeDispatchOrder, event)
	return updated, nil
}

func (s *Service) RejectByVenue(ctx context.Context, actor Actor, orderID types.ID, reason string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.requireStaff(ctx, o, actor); err != nil {
		return nil, err
	}
	return s.reject(ctx, o, ActorStaff, actor.ID, reason)
}

func (s *Service) RejectByAdmin(ctx context.Context, actor Actor, orderID types.ID, reason string) (*Order, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.reject(ctx, o, ActorAdmin, actor.ID, reason)
}

// reject moves the order to rejected, refunds the full charge and stops any dispatch in flight.
func (s *Service) reject(ctx context.Context, o *Order, actorType string, actorID types.ID, reason string) (*Order, error) {
	if !CanTransition(o.Status, StatusRejected) {
		return nil, ErrInvalidState
	}
	t := s.begin(o)
	t.Status = StatusRejected
	t.Stamp = StampRejected
	if reason != "" {
		t.RejectionReason = &reason
	}
	t.Events = append(t.Events, statusEvent(o, t.Status, actorType, actorID, t.At))
	if err := s.commit(ctx, t); err != nil {
		return nil, err
	}

	if o.Status == StatusLookingForDriver && s.dispatch != nil {
		if err := s.dispatch.Close(ctx, o.ID); err != nil {
			s.log.Warn("close dispatch failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		}
	}

	updated, err := s.store.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("order rejected", zap.String("order_id", string(o.ID)), zap.String("by", actorType))
	s.enqueue(ctx, tasks.TypePaymentRefund, tasks.RefundPayload{
		OrderID: o.ID,
		Amount:  o.Data.Totals.Total,
		Reason:  "rejected",
	})
	event := TaskEvent(updated, t.At)
	s.enqueue(ctx, tasks.TypeStatsOrderRejected, event)
	s.enqueue(ctx, tasks.TypeNotifyOrderStatus, event)
	return updated, nil
}

func (s *Service) PickUp(ctx context.Context, actor Actor, orderID types.ID) (*Order, error) {
	o, err := s.driverOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusAccepted || !CanTransitionDelivery(o.DeliveryStatus, DeliveryOutForDelivery) {
		return nil, ErrInvalidState
	}
	t := s.begin(o)
	t.DeliveryStatus = DeliveryOutForDelivery
	t.Stamp = StampPickedUp
	t.Events = append(t.Events, deliveryEvent(o, t.DeliveryStatus, actor.ID, t.At))
	return s.finish(ctx, t, tasks.TypeNotifyOrderStatus)
}

// VerifyIdentification records the handover ID check. A failed check also fails the delivery.
func (s *Service) VerifyIdentification(ctx context.Context, actor Actor, orderID types.ID, verified bool) (*Order, error) {
	o, err := s.driverOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if !o.RequiresIdentification() {
		return nil, apperr.Validation(apperr.DomainOrder, "identification is not required for this order")
	}
	to := IdentificationVerified
	if !verified {
		to = IdentificationFailed
	}
	if o.DeliveryStatus != DeliveryOutForDelivery || !CanTransitionIdentification(o.IdentificationStatus, to) {
		return nil, ErrInvalidState
	}

	t := s.begin(o)
	t.IdentificationStatus = to
	t.Events = append(t.Events, &Event{
		OrderID:   o.ID,
		Field:     FieldIdentification,
		From:      string(o.IdentificationStatus),
		To:        string(to),
		ActorType: ActorDriver,
		ActorID:   &actor.ID,
		CreatedAt: t.At,
	})
	if verified {
		return s.finish(ctx, t)
	}
	reason := "identification failed"
	t.DeliveryStatus = DeliveryFailed
	t.Stamp = StampFailed
	t.FailureReason = &reason
	t.Events = append(t.Events, deliveryEvent(o, DeliveryFailed, actor.ID, t.At))
	return s.finish(ctx, t, tasks.TypeNotifyOrderStatus)
}

func (s *Service) Deliver(ctx context.Context, actor Actor, orderID types.ID) (*Order, error) {
	o, err := s.driverOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionDelivery(o.DeliveryStatus, DeliveryDelivered) {
		return nil, ErrInvalidState
	}
	if o.RequiresIdentification() && o.IdentificationStatus != IdentificationVerified {
		return nil, apperr.Validation(apperr.DomainOrder, "customer identification must be verified before delivery")
	}
	t := s.begin(o)
	t.DeliveryStatus = DeliveryDelivered
	t.Stamp = StampDelivered
	t.ReleaseDriver = o.DriverID
	t.Credit = &DriverCredit{DriverID: *o.DriverID, Fee: o.Data.Totals.DriverFee, Tip: o.Data.Totals.Tip, Completed: true}
	t.Events = append(t.Events, deliveryEvent(o, t.DeliveryStatus, actor.ID, t.At))
	return s.finish(ctx, t, tasks.TypeStatsOrderDelivered, tasks.TypeNotifyOrderStatus, tasks.TypeNotifyReceipt)
}

func (s *Service) Fail(ctx context.Context, actor Actor, orderID types.ID, reason string) (*Order, error) {
	o, err := s.driverOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionDelivery(o.DeliveryStatus, DeliveryFailed) {
		return nil, ErrInvalidState
	}
	if reason == "" {
		return nil, apperr.Validation(apperr.DomainDelivery, "a failure reason is required")
	}
	t := s.begin(o)
	t.DeliveryStatus = DeliveryFailed
	t.Stamp = StampFailed
	t.FailureReason = &reason
	t.Events = append(t.Events, deliveryEvent(o, t.DeliveryStatus, actor.ID, t.At))
	return s.finish(ctx, t, tasks.TypeNotifyOrderStatus)
}

// Return closes a failed delivery once the goods are back at the venue. The driver keeps the
// driver fee; the customer gets everything else back except the delivery fee.
func (s *Service) Return(ctx context.Context, actor Actor, orderID types.ID) (*Order, error) {
	o, err := s.driverOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionDelivery(o.DeliveryStatus, DeliveryReturned) {
		return nil, ErrInvalidState
	}
	t := s.begin(o)
	t.DeliveryStatus = DeliveryReturned
	t.Stamp = StampReturned
	t.ReleaseDriver = o.DriverID
	t.Credit = &DriverCredit{DriverID: *o.DriverID, Fee: o.Data.Totals.DriverFee}
	t.Events = append(t.Events, deliveryEvent(o, t.DeliveryStatus, actor.ID, t.At))
	updated, err := s.finish(ctx, t, tasks.TypeNotifyOrderStatus)
	if err != nil {
		return nil, err
	}
	totals := o.Data.Totals
	s.enqueue(ctx, tasks.TypePaymentRefund, tasks.RefundPayload{
		OrderID: o.ID,
		Amount:  ReturnRefund(totals),
		Reason:  "returned",
	})
	return updated, nil
}

// ReturnRefund is what a customer gets back for a returned order.
func ReturnRefund(q pricing.Quote) int64 {
	return q.Subtotal + q.ServiceFee + q.Tip
}

func (s *Service) Get(ctx context.Context, actor Actor, orderID types.ID) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, o, actor); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Events(ctx context.Context, actor Actor, orderID types.ID) ([]Event, error) {
	if _, err := s.Get(ctx, actor, orderID); err != nil {
		return nil, err
	}
	return s.store.Events(ctx, orderID)
}

func (s *Service) ListForCustomer(ctx context.Context, actor Actor) ([]*Order, error) {
	return s.store.ListByCustomer(ctx, actor.ID, listLimit)
}

func (s *Service) ListForVenue(ctx context.Context, actor Actor, venueID types.ID) ([]*Order, error) {
	if actor.Role != RoleAdmin {
		ok, err := s.venues.IsStaff(ctx, venueID, actor.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbidden
		}
	}
	return s.store.ListByVenue(ctx, venueID, listLimit)
}

func (s *Service) ListLookingForDriver(ctx context.Context, limit int) ([]*Order, error) {
	return s.store.ListLookingForDriver(ctx, limit)
}

func (s *Service) RedactCustomer(ctx context.Context, actor Actor, customerID types.ID) (int64, error) {
	if actor.Role != RoleAdmin {
		return 0, ErrForbidden
	}
	n, err := s.store.RedactCustomer(ctx, customerID)
	if err != nil {
		return 0, err
	}
	s.log.Info("customer redacted", zap.String("customer_id", string(customerID)), zap.Int64("orders", n))
	return n, nil
}

func (s *Service) driverOrder(ctx context.Context, actor Actor, orderID types.ID) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role != RoleDriver || !o.HasDriver(actor.ID) {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *Service) requireStaff(ctx context.Context, o *Order, actor Actor) error {
	ok, err := s.venues.IsStaff(ctx, o.VenueID, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *Service) requireViewer(ctx context.Context, o *Order, actor Actor) error {
	switch {
	case actor.Role == RoleAdmin:
		return nil
	case actor.Role == RoleCustomer && o.CustomerID == actor.ID:
		return nil
	case actor.Role == RoleDriver && o.HasDriver(actor.ID):
		return nil
	case actor.Role == RoleCompanyMember:
		return s.requireStaff(ctx, o, actor)
	}
	return ErrForbidden
}

func (s *Service) begin(o *Order) Transition {
	return Transition{
		OrderID:              o.ID,
		Version:              o.StatusVersion,
		Status:               o.Status,
		DeliveryStatus:       o.DeliveryStatus,
		IdentificationStatus: o.IdentificationStatus,
		At:                   s.now(),
	}
}

func (s *Service) commit(ctx context.Context, t Transition) error {
	ok, err := s.store.Transition(ctx, t)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// finish commits t, reloads the order and enqueues one task per type with the new state.
func (s *Service) finish(ctx context.Context, t Transition, follow ...tasks.Type) (*Order, error) {
	if err := s.commit(ctx, t); err != nil {
		return nil, err
	}
	updated, err := s.store.Get(ctx, t.OrderID)
	if err != nil {
		return nil, err
	}
	event := TaskEvent(updated, t.At)
	for _, typ := range follow {
		s.enqueue(ctx, typ, event)
	}
	return updated, nil
}

// enqueue never fails the caller: the state change is already committed.
func (s *Service) enqueue(ctx context.Context, typ tasks.Type, payload any) {
	if s.tasks == nil {
		return
	}
	if err := s.tasks.Enqueue(ctx, typ, payload); err != nil {
		s.log.Error("enqueue task failed", zap.String("type", string(typ)), zap.Error(err))
	}
}

func statusEvent(o *Order, to Status, actorType string, actorID types.ID, at time.Time) *Event {
	return &Event{
		OrderID:   o.ID,
		Field:     FieldStatus,
		From:      string(o.Status),
		To:        string(to),
		ActorType: actorType,
		ActorID:   &actorID,
		CreatedAt: at,
	}
}

func deliveryEvent(o *Order, to DeliveryStatus, driverID types.ID, at time.Time) *Event {
	return &Event{
		OrderID:   o.ID,
		Field:     FieldDelivery,
		From:      string(o.DeliveryStatus),
		To:        string(to),
		ActorType: ActorDriver,
		ActorID:   &driverID,
		CreatedAt: at,
	}
}

// TaskEvent is the task payload describing o as of at.
func TaskEvent(o *Order, at time.Time) tasks.OrderEvent {
	ev := tasks.OrderEvent{
		OrderID:        o.ID,
		VenueID:        o.VenueID,
		CustomerID:     o.CustomerID,
		Status:         string(o.Status),
		DeliveryStatus: string(o.DeliveryStatus),
		Amount:         o.Data.Totals.Total,
		Tip:            o.Data.Totals.Tip,
		At:             at,
	}
	if o.DriverID != nil {
		ev.DriverID = *o.DriverID
	}
	return ev
}
