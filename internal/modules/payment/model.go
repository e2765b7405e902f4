// README: Payment record for a charged order and its refund state.
package payment

import (
	"errors"
	"time"

	"dashr/internal/types"
)

type Status string

const (
	StatusCharged           Status = "charged"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

var (
	ErrNotFound = errors.New("payment not found")
	// ErrDeclined is returned by a Gateway when the processor refuses the card.
	ErrDeclined = errors.New("card declined")
)

type Payment struct {
	ID             types.ID
	OrderID        types.ID
	Subtotal       int64
	ServiceFee     int64
	DeliveryFee    int64
	DriverFee      int64
	Tip            int64
	Amount         int64
	Currency       string
	ChargeID       string
	RefundID       *string
	RefundedAmount int64
	Status         Status
	CreatedAt      time.Time
}

// Refundable is the amount not yet returned to the customer.
func (p *Payment) Refundable() int64 {
	return p.Amount - p.RefundedAmount
}
