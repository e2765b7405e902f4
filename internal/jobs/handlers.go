// README: Task handlers binding queued order events to stats, refunds, notifications and dispatch.
package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dashr/internal/modules/order"
	"dashr/internal/modules/payment"
	"dashr/internal/modules/stats"
	"dashr/internal/notify"
	"dashr/internal/tasks"
	"dashr/internal/types"
)

type StatsApplier interface {
	Apply(ctx context.Context, taskID string, at time.Time, incs []stats.Increment) error
}

type Refunder interface {
	Refund(ctx context.Context, orderID types.ID, amount int64) (int64, error)
}

type Notifier interface {
	OrderStatus(ctx context.Context, ev tasks.OrderEvent)
	Receipt(ctx context.Context, r notify.Receipt) error
}

type OrderReader interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
}

type PaymentReader interface {
	GetByOrder(ctx context.Context, orderID types.ID) (*payment.Payment, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, orderID types.ID) error
}

type Deps struct {
	Stats    StatsApplier
	Refunds  Refunder
	Notifier Notifier
	Orders   OrderReader
	Payments PaymentReader
	Dispatch Dispatcher
	Log      *zap.Logger
}

type Handlers struct {
	d Deps
}

func New(d Deps) *Handlers {
	return &Handlers{d: d}
}

// Register binds every task type to its handler on w.
func (h *Handlers) Register(w *tasks.Worker) {
	w.Handle(tasks.TypeStatsOrderCreated, h.statsHandler(stats.OrderCreated))
	w.Handle(tasks.TypeStatsOrderDelivered, h.statsHandler(stats.OrderDelivered))
	w.Handle(tasks.TypeStatsOrderRejected, h.statsHandler(stats.OrderRejected))
	w.Handle(tasks.TypePaymentRefund, h.Refund)
	w.Handle(tasks.TypeNotifyOrderStatus, h.OrderStatus)
	w.Handle(tasks.TypeNotifyReceipt, h.Receipt)
	w.Handle(tasks.TypeDispatchOrder, h.DispatchOrder)
}

func (h *Handlers) statsHandler(build func(tasks.OrderEvent) []stats.Increment) tasks.Handler {
	return func(ctx context.Context, t tasks.Task) error {
		var ev tasks.OrderEvent
		if err := t.Decode(&ev); err != nil {
			return fmt.Errorf("%w: %v", tasks.ErrUndecodable, err)
		}
		return h.d.Stats.Apply(ctx, t.ID, ev.At, build(ev))
	}
}

// Refund returns money to the customer, then counts the refunded amount once per task.
func (h *Handlers) Refund(ctx context.Context, t tasks.Task) error {
	var p tasks.RefundPayload
	if err := t.Decode(&p); err != nil {
		return fmt.Errorf("%w: %v", tasks.ErrUndecodable, err)
	}
	refunded, err := h.d.Refunds.Refund(ctx, p.OrderID, p.Amount)
	if err != nil {
		return err
	}
	h.d.Log.Info("refund task done",
		zap.String("order_id", string(p.OrderID)),
		zap.String("reason", p.Reason),
		zap.Int64("refunded", refunded),
	)
	return h.d.Stats.Apply(ctx, t.ID, t.CreatedAt, stats.Refunded(refunded))
}

func (h *Handlers) OrderStatus(ctx context.Context, t tasks.Task) error {
	var ev tasks.OrderEvent
	if err := t.Decode(&ev); err != nil {
		return fmt.Errorf("%w: %v", tasks.ErrUndecodable, err)
	}
	h.d.Notifier.OrderStatus(ctx, ev)
	return nil
}

// Receipt mails the customer a summary of the delivered order.
func (h *Handlers) Receipt(ctx context.Context, t tasks.Task) error {
	var ev tasks.OrderEvent
	if err := t.Decode(&ev); err != nil {
		return fmt.Errorf("%w: %v", tasks.ErrUndecodable, err)
	}
	o, err := h.d.Orders.Get(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	p, err := h.d.Payments.GetByOrder(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	return h.d.Notifier.Receipt(ctx, BuildReceipt(o, p))
}

func (h *Handlers) DispatchOrder(ctx context.Context, t tasks.Task) error {
	var ev tasks.OrderEvent
	if err := t.Decode(&ev); err != nil {
		return fmt.Errorf("%w: %v", tasks.ErrUndecodable, err)
	}
	return h.d.Dispatch.Dispatch(ctx, ev.OrderID)
}

func BuildReceipt(o *order.Order, p *payment.Payment) notify.Receipt {
	cur := p.Currency
	money := func(v int64) types.Money { return types.NewMoney(v, cur) }

	lines := make([]notify.ReceiptLine, 0, len(o.Data.Items))
	for _, it := range o.Data.Items {
		lines = append(lines, notify.ReceiptLine{
			Name:     it.Name,
			Quantity: it.Quantity,
			Amount:   money(it.Price * int64(it.Quantity)),
		})
	}
	return notify.Receipt{
		To:          o.Data.Customer.Email,
		Name:        o.Data.Customer.Name,
		OrderID:     string(o.ID),
		VenueName:   o.Data.Venue.Name,
		Lines:       lines,
		Subtotal:    money(p.Subtotal),
		ServiceFee:  money(p.ServiceFee),
		DeliveryFee: money(p.DeliveryFee),
		Tip:         money(p.Tip),
		Total:       money(p.Amount),
		Refunded:    money(p.RefundedAmount),
	}
}
