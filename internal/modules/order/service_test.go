package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dashr/internal/apperr"
	"dashr/internal/config"
	"dashr/internal/modules/payment"
	"dashr/internal/modules/pricing"
	"dashr/internal/modules/venue"
	"dashr/internal/tasks"
	"dashr/internal/types"
)

// memStore mirrors the Postgres store's compare-and-set semantics.
type memStore struct {
	mu       sync.Mutex
	orders   map[types.ID]*Order
	payments map[types.ID]*payment.Payment
	events   []Event
	credits  []DriverCredit
	released []types.ID
	failNext error
}

func newMemStore() *memStore {
	return &memStore{orders: map[types.ID]*Order{}, payments: map[types.ID]*payment.Payment{}}
}

func (m *memStore) Create(_ context.Context, o *Order, p *payment.Payment, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	cp := *o
	m.orders[o.ID] = &cp
	m.payments[o.ID] = p
	m.events = append(m.events, *ev)
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) Transition(_ context.Context, t Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[t.OrderID]
	if o == nil || o.StatusVersion != t.Version {
		return false, nil
	}
	o.Status = t.Status
	o.DeliveryStatus = t.DeliveryStatus
	o.IdentificationStatus = t.IdentificationStatus
	o.StatusVersion++
	if t.RejectionReason != nil {
		o.RejectionReason = t.RejectionReason
	}
	if t.FailureReason != nil {
		o.FailureReason = t.FailureReason
	}
	if t.ReleaseDriver != nil {
		m.released = append(m.released, *t.ReleaseDriver)
	}
	if t.Credit != nil {
		m.credits = append(m.credits, *t.Credit)
	}
	for _, ev := range t.Events {
		m.events = append(m.events, *ev)
	}
	return true, nil
}

func (m *memStore) ListByCustomer(context.Context, types.ID, int) ([]*Order, error) { return nil, nil }
func (m *memStore) ListByVenue(context.Context, types.ID, int) ([]*Order, error) { return nil, nil }
func (m *memStore) ListLookingForDriver(context.Context, int) ([]*Order, error) { return nil, nil }

func (m *memStore) Events(_ context.Context, orderID types.ID) ([]Event, error) {
	var out []Event
	for _, e := range m.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) RedactCustomer(context.Context, types.ID) (int64, error) { return 0, nil }

// assign simulates the delivery module accepting a request.
func (m *memStore) assign(id, driverID types.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	o.Status = StatusAccepted
	o.DriverID = &driverID
	o.StatusVersion++
}

type memVenues struct {
	venues map[types.ID]*venue.Venue
	items  []venue.Item
	staff  map[types.ID]types.ID
}

func (m *memVenues) Get(_ context.Context, id types.ID) (*venue.Venue, error) {
	v, ok := m.venues[id]
	if !ok {
		return nil, venue.ErrNotFound
	}
	return v, nil
}

func (m *memVenues) Items(_ context.Context, venueID types.ID, ids []types.ID) ([]venue.Item, error) {
	var out []venue.Item
	for _, it := range m.items {
		for _, id := range ids {
			if it.ID == id && it.VenueID == venueID {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func (m *memVenues) IsStaff(_ context.Context, venueID, userID types.ID) (bool, error) {
	return m.staff[userID] == venueID, nil
}

type fixedDistance float64

func (d fixedDistance) DistanceKm(context.Context, types.Point, types.Point) (float64, error) {
	return float64(d), nil
}

type fakeCharger struct {
	err    error
	voided []types.ID
}

func (f *fakeCharger) Charge(_ context.Context, cmd payment.ChargeCommand) (*payment.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &payment.Payment{ID: "pay-" + cmd.OrderID, OrderID: cmd.OrderID, Amount: cmd.Quote.Total, ChargeID: "pi_" + string(cmd.OrderID)}, nil
}

func (f *fakeCharger) Void(_ context.Context, p *payment.Payment) error {
	f.voided = append(f.voided, p.OrderID)
	return nil
}

type enqueued struct {
	typ     tasks.Type
	payload any
}

type recordingTasks struct {
	mu  sync.Mutex
	all []enqueued
}

func (r *recordingTasks) Enqueue(_ context.Context, typ tasks.Type, payload any) error {
	r.mu.Lock()
	r.all = append(r.all, enqueued{typ, payload})
	r.mu.Unlock()
	return nil
}

func (r *recordingTasks) types() []tasks.Type {
	var out []tasks.Type
	for _, e := range r.all {
		out = append(out, e.typ)
	}
	return out
}

func (r *recordingTasks) refunds() []tasks.RefundPayload {
	var out []tasks.RefundPayload
	for _, e := range r.all {
		if p, ok := e.payload.(tasks.RefundPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

type recordingDispatch struct{ closed []types.ID }

func (r *recordingDispatch) Close(_ context.Context, id types.ID) error {
	r.closed = append(r.closed, id)
	return nil
}

type brackets []pricing.Bracket

func (b brackets) ListBrackets(context.Context) ([]pricing.Bracket, error) { return b, nil }

type fixture struct {
	svc      *Service
	store    *memStore
	venues   *memVenues
	charger  *fakeCharger
	tasks    *recordingTasks
	dispatch *recordingDispatch
}

var (
	staff    = Actor{ID: "staff-1", Role: RoleCompanyMember}
	admin    = Actor{ID: "admin-1", Role: RoleAdmin}
	customer = Actor{ID: "cust-1", Role: RoleCustomer}
	driverA  = Actor{ID: "drv-1", Role: RoleDriver}
)

func newFixture(t *testing.T, km float64) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		venues: &memVenues{
			venues: map[types.ID]*venue.Venue{
				"v1": {ID: "v1", Name: "Corner Bar", Location: types.Point{Lat: 52.52, Lng: 13.40}, DeliveryRadiusKm: 8, IsOpen: true},
				"v2": {ID: "v2", Name: "Wine Shop", Location: types.Point{Lat: 52.52, Lng: 13.40}, DeliveryRadiusKm: 8, IsOpen: true, AgeRestricted: true},
				"v3": {ID: "v3", Name: "Closed", DeliveryRadiusKm: 8},
			},
			items: []venue.Item{
				{ID: "ipa", VenueID: "v1", Name: "IPA", Price: 450, Available: true},
				{ID: "nachos", VenueID: "v1", Name: "Nachos", Price: 800, Available: false},
				{ID: "rioja", VenueID: "v2", Name: "Rioja", Price: 3000, Available: true},
			},
			staff: map[types.ID]types.ID{"staff-1": "v1", "staff-2": "v2"},
		},
		charger:  &fakeCharger{},
		tasks:    &recordingTasks{},
		dispatch: &recordingDispatch{},
	}
	pr := pricing.NewService(brackets{
		{StartsKm: 0, EndsKm: 2, DeliveryFee: 290, DriverFee: 400},
		{StartsKm: 2, EndsKm: 5, DeliveryFee: 490, DriverFee: 600},
		{StartsKm: 5, EndsKm: 10, DeliveryFee: 790, DriverFee: 900},
	}, config.PricingConfig{ServiceFeeRate: 0.05, ServiceFeeMin: 100, ServiceFeeMax: 500}, "EUR")
	f.svc = NewService(Deps{
		Store:    f.store,
		Venues:   f.venues,
		Pricing:  pr,
		Distance: fixedDistance(km),
		Payments: f.charger,
		Tasks:    f.tasks,
		Dispatch: f.dispatch,
		Log:      zap.NewNop(),
	})
	return f
}

func createCmd(venueID types.ID, items ...ItemQuantity) CreateCommand {
	return CreateCommand{
		Customer:      Customer{ID: customer.ID, Name: "Ana", Email: "ana@example.com"},
		VenueID:       venueID,
		Address:       Address{Street: "Oranienstr 1", City: "Berlin", Location: types.Point{Lat: 52.50, Lng: 13.42}},
		Items:         items,
		PaymentMethod: "pm_card_visa",
	}
}

func (f *fixture) mustCreate(t *testing.T, venueID types.ID, items ...ItemQuantity) *Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), createCmd(venueID, items...))
	require.NoError(t, err)
	return o
}

func requireValidation(t *testing.T, err error, domain string) {
	t.Helper()
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok, "expected validation error, got %v", err)
	assert.Equal(t, domain, ve.Domain)
}

func TestCreateComputesTotalsAndSnapshot(t *testing.T) {
	f := newFixture(t, 3.2)
	o := f.mustCreate(t, "v1", ItemQuantity{ItemID: "ipa", Quantity: 2}, ItemQuantity{ItemID: "ipa", Quantity: 1})

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, DeliveryPending, o.DeliveryStatus)
	assert.Equal(t, IdentificationNotRequired, o.IdentificationStatus)

	totals := o.Data.Totals
	assert.Equal(t, int64(1350), totals.Subtotal)
	assert.Equal(t, int64(100), totals.ServiceFee)
	assert.Equal(t, int64(490), totals.DeliveryFee)
	assert.Equal(t, int64(600), totals.DriverFee)
	assert.Equal(t, int64(1940), totals.Total)
	require.Len(t, o.Data.Items, 1)
	assert.Equal(t, 3, o.Data.Items[0].Quantity)
	assert.Equal(t, "Corner Bar", o.Data.Venue.Name)

	require.NotNil(t, o.PaymentID)
	assert.Equal(t, int64(1940), f.store.payments[o.ID].Amount)
	assert.Equal(t, []tasks.Type{tasks.TypeStatsOrderCreated, tasks.TypeNotifyOrderStatus}, f.tasks.types())

	events, _ := f.store.Events(context.Background(), o.ID)
	require.Len(t, events, 1)
	assert.Equal(t, string(StatusPending), events[0].To)
}

func TestCreateAgeRestrictedVenueRequiresIdentification(t *testing.T) {
	f := newFixture(t, 1)
	o := f.mustCreate(t, "v2", ItemQuantity{ItemID: "rioja", Quantity: 1})
	assert.Equal(t, IdentificationPending, o.IdentificationStatus)
	assert.True(t, o.RequiresIdentification())
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name   string
		km     float64
		cmd    CreateCommand
		domain string
	}{
		{"no items", 1, createCmd("v1"), apperr.DomainOrder},
		{"closed venue", 1, createCmd("v3", ItemQuantity{ItemID: "ipa", Quantity: 1}), apperr.DomainOrder},
		{"unknown venue", 1, createCmd("nope", ItemQuantity{ItemID: "ipa", Quantity: 1}), apperr.DomainOrder},
		{"unavailable item", 1, createCmd("v1", ItemQuantity{ItemID: "nachos", Quantity: 1}), apperr.DomainOrder},
		{"item from another venue", 1, createCmd("v1", ItemQuantity{ItemID: "rioja", Quantity: 1}), apperr.DomainOrder},
		{"zero quantity", 1, createCmd("v1", ItemQuantity{ItemID: "ipa", Quantity: 0}), apperr.DomainOrder},
		{"beyond venue radius", 9, createCmd("v1", ItemQuantity{ItemID: "ipa", Quantity: 1}), apperr.DomainOrder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.km)
			_, err := f.svc.Create(context.Background(), tc.cmd)
			requireValidation(t, err, tc.domain)
			assert.Empty(t, f.store.orders)
		})
	}
}

func TestCreateNegativeTipIsPaymentError(t *testing.T) {
	f := newFixture(t, 1)
	cmd := createCmd("v1", ItemQuantity{ItemID: "ipa", Quantity: 1})
	cmd.Tip = -50
	_, err := f.svc.Create(context.Background(), cmd)
	requireValidation(t, err, apperr.DomainPayment)
}

func TestCreateDeclinedCardPersistsNothing(t *testing.T) {
	f := newFixture(t, 1)
	f.charger.err = apperr.Validation(apperr.DomainPayment, "card was declined")

	_, err := f.svc.Create(context.Background(), createCmd("v1", ItemQuantity{ItemID: "ipa", Quantity: 1}))
	requireValidation(t, err, apperr.DomainPayment)
	assert.Empty(t, f.store.orders)
	assert.Empty(t, f.tasks.all)
}

func TestCreateVoidsChargeWhenInsertFails(t *testing.T) {
	f := newFixture(t, 1)
	f.store.failNext = errors.New("db down")

	_, err := f.svc.Create(context.Background(), createCmd("v1", ItemQuantity{ItemID: "ipa", Quantity: 1}))
	require.Error(t, err)
	assert.Len(t, f.charger.voided, 1)
	assert.Empty(t, f.tasks.all)
}

func TestVenueAcceptStartsDispatch(t *testing.T) {
	f := newFixture(t, 1)
	o := f.mustCreate(t, "v1", ItemQuantity{ItemID: "ipa", Quantity: 1})
	f.tasks.all = nil

	got, err := f.svc.AcceptByVenue(context.Background(), staff, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusLookingForDriver, got.Status)
	assert.Nil(t, got.DriverID, "an order cannot be accepted without a driver")
	assert.Equal(t, []tasks.Type{tasks.TypeNotifyOrderStatus, tasks.TypeDispatchOrder}, f.tasks.types())
}

func TestVenueAcceptRequiresStaffOfThatVenue(t *testing.T) {
	f := newFixture(t, 1)
	o := f.mustCreate(t, "v1", ItemQuantity{ItemID: "ipa", Quantity: 1})

	_, err := f.svc.AcceptByVenue(context.Background(), Actor{ID: "staff-2", Role: RoleCompanyMember}, o.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.AcceptByVenue(context.Background(), customer, o.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRejectTriggersFullRefund(t *testing.T) {
	f := newFixture(t, 1)
	o := f.mustCreate(t, "v1", ItemQuantity{ItemID: "ipa", Quantity: 2})
	f.tasks.all = nil

	got, err := f.svc.RejectByVenue(context.Background(), staff, o.ID, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, "out of stock", *got.RejectionReason)

	refunds := f.tasks.refunds()
	require.Len(t, refunds, 1)
	assert.Equal(t, o.Data.Totals.Total, refunds[0].Amount)
	assert.Contains(t, f.tasks.types(), tasks.TypeStatsOrderRejected)
	assert.Empty(t, f.dispatch.closed, "pending order has no dispatch to close")
}

func TestAdminRejectClosesDispatch(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	o := f.mustCreate(t, "v1", ItemQuantity{ItemID: "ipa", Quantity: 1})
	_, err := f.svc.AcceptByVenue(ctx, staff, o.ID)
	require.NoError(t, err)

	_, err = f.svc.RejectByAdmin(ctx, staff, o.ID, "fraud")
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.svc.RejectByAdmin(ctx, admin, o.ID, "fraud")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.Equal(t, []types.ID{o.ID}, f.dispatch.closed)
	assert.Len(t, f.tasks.refunds(), 1)
}

func TestRejectTerminalOrder(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	o := f.mustCreate(t, "v1", ItemQuantity{ItemID: "ipa", Quantity: 1})
	_, err := f.svc.RejectByVenue(ctx, staff, o.ID, "")
	require.NoError(t, err)

	_, err = f.svc.RejectByAdmin(ctx, admin, o.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.AcceptByVenue(ctx, staff, o.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func acceptedOrder(t *testing.T, f *fixture, venueID types.ID, item types.ID) *Order {
	t.Helper()
	o := f.mustCreate(t, venueID, ItemQuantity{ItemID: item, Quantity: 1})
	st := Actor{ID: "staff-1", Role: RoleCompanyMember}
	if venueID == "v2" {
		st.ID = "staff-2"
	}
	_, err := f.svc.AcceptByVenue(context.Background(), st, o.ID)
	require.NoError(t, err)
	f.store.assign(o.ID, driverA.ID)
	f.tasks.all = nil
	return o
}

func TestDeliveryHappyPath(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	o := acceptedOrder(t, f, "v1", "ipa")

	got, err := f.svc.PickUp(ctx, driverA, o.ID)
	require.NoError(t, err)
	assert.Equal(t, DeliveryOutForDelivery, got.DeliveryStatus)

	got, err = f.svc.Deliver(ctx, driverA, o.ID)
	require.NoError(t, err)
	assert.Equal(t, DeliveryDelivered, got.DeliveryStatus)

	assert.Equal(t, []types.ID{driverA.ID}, f.store.released)
	require.Len(t, f.store.credits, 1)
	assert.Equal(t, o.Data.Totals.DriverFee, f.store.credits[0].Fee)
	assert.True(t, f.store.credits[0].Completed)
	assert.Equal(t, []tasks.Type{
		tasks.TypeNotifyOrderStatus,
		tasks.TypeStatsOrderDelivered, tasks.TypeNotifyOrderStatus, tasks.TypeNotifyReceipt,
	}, f.tasks.types())
}

func TestOnlyAssignedDriverMovesDelivery(t *testing.T) {
	f := newFixture(t, 1)
	o := acceptedOrder(t, f, "v1", "ipa")

	_, err := f.svc.PickUp(context.Background(), Actor{ID: "drv-2", Role: RoleDriver}, o.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPickUpRequiresAcceptedOrder(t *testing.T) {
	f := newFixture(t, 1)
	o := f.mustCreate(t, "v1", ItemQuantity{ItemID: "ipa", Quantity: 1})
	d := driverA.ID
	f.store.orders[o.ID].DriverID = &d

	_, err := f.svc.PickUp(context.Background(), driverA, o.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDeliverRequiresVerifiedIdentification(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	o := acceptedOrder(t, f, "v2", "rioja")
	_, err := f.svc.PickUp(ctx, driverA, o.ID)
	require.NoError(t, err)

	_, err = f.svc.Deliver(ctx, driverA, o.ID)
	requireValidation(t, err, apperr.DomainOrder)

	got, err := f.svc.VerifyIdentification(ctx, driverA, o.ID, true)
	require.NoError(t, err)
	assert.Equal(t, IdentificationVerified, got.IdentificationStatus)

	got, err = f.svc.Deliver(ctx, driverA, o.ID)
	require.NoError(t, err)
	assert.Equal(t, DeliveryDelivered, got.DeliveryStatus)
}

func TestFailedIdentificationFailsDelivery(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	o := acceptedOrder(t, f, "v2", "rioja")
	_, err := f.svc.PickUp(ctx, driverA, o.ID)
	require.NoError(t, err)

	got, err := f.svc.VerifyIdentification(ctx, driverA, o.ID, false)
	require.NoError(t, err)
	assert.Equal(t, IdentificationFailed, got.IdentificationStatus)
	assert.Equal(t, DeliveryFailed, got.DeliveryStatus)
	require.NotNil(t, got.FailureReason)
}

func TestIdentificationNotRequired(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	o := acceptedOrder(t, f, "v1", "ipa")
	_, err := f.svc.PickUp(ctx, driverA, o.ID)
	require.NoError(t, err)

	_, err = f.svc.VerifyIdentification(ctx, driverA, o.ID, true)
	requireValidation(t, err, apperr.DomainOrder)
}

func TestFailThenReturnRefundsAllButDeliveryFee(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	o := acceptedOrder(t, f, "v1", "ipa")
	_, err := f.svc.PickUp(ctx, driverA, o.ID)
	require.NoError(t, err)

	_, err = f.svc.Fail(ctx, driverA, o.ID, "")
	requireValidation(t, err, apperr.DomainDelivery)

	got, err := f.svc.Fail(ctx, driverA, o.ID, "nobody home")
	require.NoError(t, err)
	assert.Equal(t, DeliveryFailed, got.DeliveryStatus)
	assert.Empty(t, f.store.released, "driver stays bound until the return")

	got, err = f.svc.Return(ctx, driverA, o.ID)
	require.NoError(t, err)
	assert.Equal(t, DeliveryReturned, got.DeliveryStatus)
	assert.Equal(t, []types.ID{driverA.ID}, f.store.released)

	refunds := f.tasks.refunds()
	require.Len(t, refunds, 1)
	totals := o.Data.Totals
	assert.Equal(t, totals.Total-totals.DeliveryFee, refunds[0].Amount)
	require.Len(t, f.store.credits, 1)
	assert.Equal(t, totals.DriverFee, f.store.credits[0].Fee)
	assert.Equal(t, int64(0), f.store.credits[0].Tip)
	assert.False(t, f.store.credits[0].Completed, "a return is paid but not counted as a delivery")
}

func TestDeliveredIsTerminal(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	o := acceptedOrder(t, f, "v1", "ipa")
	_, err := f.svc.PickUp(ctx, driverA, o.ID)
	require.NoError(t, err)
	_, err = f.svc.Deliver(ctx, driverA, o.ID)
	require.NoError(t, err)

	_, err = f.svc.Fail(ctx, driverA, o.ID, "late")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Return(ctx, driverA, o.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestGetAccessPolicy(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	o := acceptedOrder(t, f, "v1", "ipa")

	for _, a := range []Actor{admin, customer, driverA, staff} {
		_, err := f.svc.Get(ctx, a, o.ID)
		assert.NoError(t, err, "actor %s", a.ID)
	}
	for _, a := range []Actor{
		{ID: "cust-2", Role: RoleCustomer},
		{ID: "drv-2", Role: RoleDriver},
		{ID: "staff-2", Role: RoleCompanyMember},
		{ID: "cust-1", Role: RoleDriver},
	} {
		_, err := f.svc.Get(ctx, a, o.ID)
		assert.ErrorIs(t, err, ErrForbidden, "actor %s/%s", a.ID, a.Role)
	}
}

func TestConcurrentVenueAcceptSucceedsOnce(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	o := f.mustCreate(t, "v1", ItemQuantity{ItemID: "ipa", Quantity: 1})

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.AcceptByVenue(ctx, staff, o.ID)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, success)
}
