// README: Notifier fans order updates out to push, pub/sub and mail; delivery failures are logged.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dashr/internal/tasks"
)

type Pusher interface {
	Push(ctx context.Context, p Push) error
}

type StatusPublisher interface {
	PublishStatus(ctx context.Context, ev OrderStatusEvent) error
}

type Mailer interface {
	SendReceipt(ctx context.Context, r Receipt) error
}

// Notifier channels are optional; a nil channel is skipped.
type Notifier struct {
	pusher    Pusher
	publisher StatusPublisher
	mailer    Mailer
	log       *zap.Logger
}

func NewNotifier(pusher Pusher, publisher StatusPublisher, mailer Mailer, log *zap.Logger) *Notifier {
	return &Notifier{pusher: pusher, publisher: publisher, mailer: mailer, log: log}
}

func (n *Notifier) OrderStatus(ctx context.Context, ev tasks.OrderEvent) {
	if n.publisher != nil {
		err := n.publisher.PublishStatus(ctx, OrderStatusEvent{
			OrderID:        string(ev.OrderID),
			VenueID:        string(ev.VenueID),
			CustomerID:     string(ev.CustomerID),
			DriverID:       string(ev.DriverID),
			Status:         ev.Status,
			DeliveryStatus: ev.DeliveryStatus,
			Timestamp:      ev.At.Unix(),
		})
		if err != nil {
			n.log.Warn("status publish failed", zap.String("order_id", string(ev.OrderID)), zap.Error(err))
		}
	}
	if n.pusher == nil {
		return
	}
	for _, p := range statusPushes(ev) {
		if err := n.pusher.Push(ctx, p); err != nil {
			n.log.Warn("push failed", zap.String("topic", p.Topic), zap.Error(err))
		}
	}
}

// DriverRequest tells a driver a delivery request is waiting.
func (n *Notifier) DriverRequest(ctx context.Context, ev tasks.OrderEvent, requestID string) {
	if n.pusher == nil {
		return
	}
	err := n.pusher.Push(ctx, Push{
		Topic: DriverTopic(ev.DriverID),
		Title: "New delivery request",
		Body:  "A venue nearby has an order ready for pickup.",
		Data:  map[string]string{"order_id": string(ev.OrderID), "request_id": requestID},
	})
	if err != nil {
		n.log.Warn("driver push failed", zap.String("driver_id", string(ev.DriverID)), zap.Error(err))
	}
}

// Receipt returns the mail error so the task can be retried; push and pub/sub never fail the caller.
func (n *Notifier) Receipt(ctx context.Context, r Receipt) error {
	if n.mailer == nil || r.To == "" {
		return nil
	}
	return n.mailer.SendReceipt(ctx, r)
}

func statusPushes(ev tasks.OrderEvent) []Push {
	data := map[string]string{
		"order_id":        string(ev.OrderID),
		"status":          ev.Status,
		"delivery_status": ev.DeliveryStatus,
		"at":              ev.At.Format(time.RFC3339),
	}
	customer := func(title, body string) Push {
		return Push{Topic: UserTopic(ev.CustomerID), Title: title, Body: body, Data: data}
	}
	venue := func(title, body string) Push {
		return Push{Topic: VenueTopic(ev.VenueID), Title: title, Body: body, Data: data}
	}

	switch ev.DeliveryStatus {
	case "out_for_delivery":
		return []Push{customer("On the way", "Your order has been picked up.")}
	case "delivered":
		return []Push{customer("Delivered", "Enjoy your order!"), venue("Delivered", fmt.Sprintf("Order %s was delivered.", ev.OrderID))}
	case "failed":
		return []Push{customer("Delivery failed", "We could not deliver your order."), venue("Delivery failed", fmt.Sprintf("Order %s is coming back.", ev.OrderID))}
	case "returned":
		return []Push{customer("Order returned", "Your order was returned and refunded.")}
	}
	switch ev.Status {
	case "pending":
		return []Push{venue("New order", fmt.Sprintf("Order %s is waiting for confirmation.", ev.OrderID))}
	case "looking_for_driver":
		return []Push{customer("Order confirmed", "The venue is preparing your order.")}
	case "accepted":
		return []Push{customer("Driver assigned", "A driver is heading to the venue."), venue("Driver assigned", fmt.Sprintf("A driver accepted order %s.", ev.OrderID))}
	case "rejected":
		return []Push{customer("Order rejected", "Your order was rejected and will be refunded.")}
	}
	return nil
}
