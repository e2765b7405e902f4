// README: Payment store backed by PostgreSQL.
package payment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dashr/internal/types"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx so Insert can join the order transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func Insert(ctx context.Context, db Execer, p *Payment) error {
	_, err := db.Exec(ctx, `
		INSERT INTO payments (
			id, order_id, subtotal, service_fee, delivery_fee, driver_fee, tip,
			amount, currency, charge_id, refunded_amount, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(p.ID), string(p.OrderID),
		p.Subtotal, p.ServiceFee, p.DeliveryFee, p.DriverFee, p.Tip,
		p.Amount, p.Currency, p.ChargeID, p.RefundedAmount, string(p.Status), p.CreatedAt,
	)
	return err
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetByOrder(ctx context.Context, orderID types.ID) (*Payment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, order_id, subtotal, service_fee, delivery_fee, driver_fee, tip,
		       amount, currency, charge_id, refund_id, refunded_amount, status, created_at
		FROM payments
		WHERE order_id = $1`, string(orderID),
	)
	var p Payment
	var refundID sql.NullString
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Subtotal, &p.ServiceFee, &p.DeliveryFee, &p.DriverFee, &p.Tip,
		&p.Amount, &p.Currency, &p.ChargeID, &refundID, &p.RefundedAmount, &p.Status, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if refundID.Valid {
		p.RefundID = &refundID.String
	}
	return &p, nil
}

// MarkRefunded records a refund once; it returns false when the payment already carries one.
func (s *Store) MarkRefunded(ctx context.Context, orderID types.ID, refundID string, amount int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payments
		SET refund_id = $2,
		    refunded_amount = $3,
		    status = CASE WHEN $3 >= amount THEN 'refunded' ELSE 'partially_refunded' END
		WHERE order_id = $1 AND refunded_amount = 0`,
		string(orderID), refundID, amount,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
