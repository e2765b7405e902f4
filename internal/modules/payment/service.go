// README: Payment service charges orders and issues refunds through a Gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dashr/internal/apperr"
	"dashr/internal/modules/pricing"
	"dashr/internal/types"
)

type Repository interface {
	GetByOrder(ctx context.Context, orderID types.ID) (*Payment, error)
	MarkRefunded(ctx context.Context, orderID types.ID, refundID string, amount int64) (bool, error)
}

type Service struct {
	gateway Gateway
	repo    Repository
	log     *zap.Logger
	now     func() time.Time
}

func NewService(gateway Gateway, repo Repository, log *zap.Logger) *Service {
	return &Service{gateway: gateway, repo: repo, log: log, now: time.Now}
}

type ChargeCommand struct {
	OrderID       types.ID
	CustomerID    types.ID
	PaymentMethod string
	Quote         pricing.Quote
}

// Charge bills the quote total using the order id as idempotency key and returns the unsaved Payment.
func (s *Service) Charge(ctx context.Context, cmd ChargeCommand) (*Payment, error) {
	if cmd.PaymentMethod == "" {
		return nil, apperr.Validation(apperr.DomainPayment, "payment method is required")
	}
	q := cmd.Quote
	if q.Total <= 0 {
		return nil, apperr.Validation(apperr.DomainPayment, "amount must be positive")
	}
	chargeID, err := s.gateway.Charge(ctx, ChargeRequest{
		IdempotencyKey: string(cmd.OrderID),
		CustomerID:     string(cmd.CustomerID),
		PaymentMethod:  cmd.PaymentMethod,
		Amount:         q.Total,
		Currency:       q.Currency,
		Description:    "order " + string(cmd.OrderID),
	})
	if errors.Is(err, ErrDeclined) {
		return nil, apperr.Validation(apperr.DomainPayment, "card was declined")
	}
	if err != nil {
		return nil, fmt.Errorf("charge order %s: %w", cmd.OrderID, err)
	}
	return &Payment{
		ID:          types.NewID(),
		OrderID:     cmd.OrderID,
		Subtotal:    q.Subtotal,
		ServiceFee:  q.ServiceFee,
		DeliveryFee: q.DeliveryFee,
		DriverFee:   q.DriverFee,
		Tip:         q.Tip,
		Amount:      q.Total,
		Currency:    q.Currency,
		ChargeID:    chargeID,
		Status:      StatusCharged,
		CreatedAt:   s.now(),
	}, nil
}

// Void returns a charge that was never persisted.
func (s *Service) Void(ctx context.Context, p *Payment) error {
	_, err := s.gateway.Refund(ctx, p.ChargeID, p.Amount, "void-"+string(p.OrderID))
	if err != nil {
		return fmt.Errorf("void charge %s: %w", p.ChargeID, err)
	}
	s.log.Warn("charge voided", zap.String("order_id", string(p.OrderID)), zap.String("charge_id", p.ChargeID))
	return nil
}

// Refund returns amount (capped at the charged amount) for the order. An order is refunded at most
// once; the result is the amount refunded for the order so far.
func (s *Service) Refund(ctx context.Context, orderID types.ID, amount int64) (int64, error) {
	p, err := s.repo.GetByOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if p.RefundedAmount > 0 {
		s.log.Info("refund skipped; already refunded", zap.String("order_id", string(orderID)))
		return p.RefundedAmount, nil
	}
	if amount > p.Amount {
		amount = p.Amount
	}
	if amount <= 0 {
		return 0, nil
	}

	refundID, err := s.gateway.Refund(ctx, p.ChargeID, amount, "refund-"+string(orderID))
	if err != nil {
		return 0, fmt.Errorf("refund order %s: %w", orderID, err)
	}
	if _, err := s.repo.MarkRefunded(ctx, orderID, refundID, amount); err != nil {
		return 0, fmt.Errorf("mark refunded %s: %w", orderID, err)
	}
	s.log.Info("order refunded",
		zap.String("order_id", string(orderID)),
		zap.String("refund_id", refundID),
		zap.Int64("amount", amount),
	)
	return amount, nil
}
