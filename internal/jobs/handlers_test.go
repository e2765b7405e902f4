package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dashr/internal/modules/order"
	"dashr/internal/modules/payment"
	"dashr/internal/modules/stats"
	"dashr/internal/notify"
	"dashr/internal/tasks"
	"dashr/internal/types"
)

type applied struct {
	taskID string
	incs   []stats.Increment
}

type fakeStats struct {
	calls []applied
	err   error
}

func (f *fakeStats) Apply(_ context.Context, taskID string, _ time.Time, incs []stats.Increment) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, applied{taskID: taskID, incs: incs})
	return nil
}

type fakeRefunder struct {
	orders []types.ID
	amount int64
}

func (f *fakeRefunder) Refund(_ context.Context, orderID types.ID, amount int64) (int64, error) {
	f.orders = append(f.orders, orderID)
	f.amount = amount
	return amount, nil
}

type fakeNotifier struct {
	statuses []tasks.OrderEvent
	receipts []notify.Receipt
	mailErr  error
}

func (f *fakeNotifier) OrderStatus(_ context.Context, ev tasks.OrderEvent) {
	f.statuses = append(f.statuses, ev)
}

func (f *fakeNotifier) Receipt(_ context.Context, r notify.Receipt) error {
	if f.mailErr != nil {
		return f.mailErr
	}
	f.receipts = append(f.receipts, r)
	return nil
}

type fakeOrders map[types.ID]*order.Order

func (f fakeOrders) Get(_ context.Context, id types.ID) (*order.Order, error) {
	o, ok := f[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

type fakePayments map[types.ID]*payment.Payment

func (f fakePayments) GetByOrder(_ context.Context, id types.ID) (*payment.Payment, error) {
	p, ok := f[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return p, nil
}

type fakeDispatcher struct{ orders []types.ID }

func (f *fakeDispatcher) Dispatch(_ context.Context, id types.ID) error {
	f.orders = append(f.orders, id)
	return nil
}

type observer struct{ outcomes []string }

func (o *observer) TaskDone(_ tasks.Type, outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

type harness struct {
	queue    *tasks.MemoryQueue
	pub      *tasks.Publisher
	worker   *tasks.Worker
	obs      *observer
	stats    *fakeStats
	refunds  *fakeRefunder
	notifier *fakeNotifier
	dispatch *fakeDispatcher
}

func newHarness(orders fakeOrders, payments fakePayments) *harness {
	h := &harness{
		queue:    tasks.NewMemoryQueue(3, time.Minute, 10*time.Millisecond),
		obs:      &observer{},
		stats:    &fakeStats{},
		refunds:  &fakeRefunder{},
		notifier: &fakeNotifier{},
		dispatch: &fakeDispatcher{},
	}
	h.pub = tasks.NewPublisher(h.queue)
	h.worker = tasks.NewWorker(h.queue, tasks.WorkerConfig{}, zap.NewNop(), h.obs)
	New(Deps{
		Stats:    h.stats,
		Refunds:  h.refunds,
		Notifier: h.notifier,
		Orders:   orders,
		Payments: payments,
		Dispatch: h.dispatch,
		Log:      zap.NewNop(),
	}).Register(h.worker)
	return h
}

// run publishes one task and processes it synchronously.
func (h *harness) run(t *testing.T, typ tasks.Type, payload any) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.pub.Enqueue(ctx, typ, payload))
	job, err := h.queue.Consume(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	h.worker.Process(ctx, job)
}

var created = tasks.OrderEvent{OrderID: "o1", VenueID: "v1", CustomerID: "c1", Status: "pending", Amount: 3840, Tip: 200, At: time.Now()}

func TestOrderCreatedStats(t *testing.T) {
	h := newHarness(nil, nil)
	h.run(t, tasks.TypeStatsOrderCreated, created)

	require.Len(t, h.stats.calls, 1)
	assert.NotEmpty(t, h.stats.calls[0].taskID)
	assert.Equal(t, stats.OrderCreated(created), h.stats.calls[0].incs)
	assert.Equal(t, []string{"ok"}, h.obs.outcomes)
}

func TestStatsFailureIsRetried(t *testing.T) {
	h := newHarness(nil, nil)
	h.stats.err = errors.New("db down")
	h.run(t, tasks.TypeStatsOrderDelivered, created)

	assert.Equal(t, []string{"failed"}, h.obs.outcomes)
	assert.Equal(t, 1, h.queue.Len(), "failed task stays queued for redelivery")
}

func TestRefundCountsRefundedAmount(t *testing.T) {
	h := newHarness(nil, nil)
	h.run(t, tasks.TypePaymentRefund, tasks.RefundPayload{OrderID: "o1", Amount: 3840, Reason: "rejected"})

	assert.Equal(t, []types.ID{"o1"}, h.refunds.orders)
	require.Len(t, h.stats.calls, 1)
	assert.Equal(t, stats.Refunded(3840), h.stats.calls[0].incs)
}

func TestBadPayloadIsDropped(t *testing.T) {
	h := newHarness(nil, nil)
	h.run(t, tasks.TypePaymentRefund, "not an object")

	assert.Empty(t, h.refunds.orders)
	assert.Equal(t, []string{"dropped"}, h.obs.outcomes)
	assert.Equal(t, 0, h.queue.Len())
}

func TestOrderStatusNotifies(t *testing.T) {
	h := newHarness(nil, nil)
	h.run(t, tasks.TypeNotifyOrderStatus, created)

	require.Len(t, h.notifier.statuses, 1)
	assert.Equal(t, types.ID("o1"), h.notifier.statuses[0].OrderID)
}

func TestDispatchOrder(t *testing.T) {
	h := newHarness(nil, nil)
	h.run(t, tasks.TypeDispatchOrder, created)
	assert.Equal(t, []types.ID{"o1"}, h.dispatch.orders)
}

func TestReceiptIsBuiltFromOrderAndPayment(t *testing.T) {
	orders := fakeOrders{"o1": {
		ID: "o1",
		Data: order.Snapshot{
			Customer: order.Customer{Name: "Ada", Email: "ada@example.com"},
			Venue:    order.VenueInfo{Name: "Corner Bar"},
			Items:    []order.LineItem{{Name: "Lager", Price: 450, Quantity: 2}},
		},
	}}
	payments := fakePayments{"o1": {OrderID: "o1", Subtotal: 900, ServiceFee: 100, DeliveryFee: 490, Tip: 200, Amount: 1690, Currency: "EUR"}}
	h := newHarness(orders, payments)

	h.run(t, tasks.TypeNotifyReceipt, created)

	require.Len(t, h.notifier.receipts, 1)
	r := h.notifier.receipts[0]
	assert.Equal(t, "ada@example.com", r.To)
	assert.Equal(t, "Corner Bar", r.VenueName)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, int64(900), r.Lines[0].Amount.Amount)
	assert.Equal(t, int64(1690), r.Total.Amount)
	assert.Equal(t, int64(0), r.Refunded.Amount)
}

func TestReceiptMailFailureIsRetried(t *testing.T) {
	orders := fakeOrders{"o1": {ID: "o1"}}
	payments := fakePayments{"o1": {OrderID: "o1", Amount: 100, Currency: "EUR"}}
	h := newHarness(orders, payments)
	h.notifier.mailErr = errors.New("smtp down")

	h.run(t, tasks.TypeNotifyReceipt, created)
	assert.Equal(t, []string{"failed"}, h.obs.outcomes)
}
