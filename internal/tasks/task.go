// README: Background task envelope, task types and their payloads.
package tasks

import (
	"encoding/json"
	"errors"
	"time"

	"dashr/internal/types"
)

type Type string

// ErrUndecodable marks a payload no retry can fix; the worker drops such tasks.
var ErrUndecodable = errors.New("undecodable task payload")

const (
	TypeStatsOrderCreated   Type = "stats.order_created"
	TypeStatsOrderDelivered Type = "stats.order_delivered"
	TypeStatsOrderRejected  Type = "stats.order_rejected"
	TypePaymentRefund       Type = "payment.refund"
	TypeNotifyOrderStatus   Type = "notify.order_status"
	TypeNotifyReceipt       Type = "notify.receipt"
	TypeDispatchOrder       Type = "dispatch.order"
)

// Task is the JSON envelope published on the queue. ID is stable across redeliveries.
type Task struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func (t Task) Decode(v any) error {
	return json.Unmarshal(t.Payload, v)
}

// OrderEvent describes an order at the moment it changed state.
type OrderEvent struct {
	OrderID        types.ID  `json:"order_id"`
	VenueID        types.ID  `json:"venue_id"`
	CustomerID     types.ID  `json:"customer_id"`
	DriverID       types.ID  `json:"driver_id,omitempty"`
	Status         string    `json:"status"`
	DeliveryStatus string    `json:"delivery_status"`
	Amount         int64     `json:"amount"`
	Tip            int64     `json:"tip"`
	At             time.Time `json:"at"`
}

type RefundPayload struct {
	OrderID types.ID `json:"order_id"`
	Amount  int64    `json:"amount"`
	Reason  string   `json:"reason"`
}
