// README: Order store backed by PostgreSQL. Every status change is a compare-and-set on status_version.
package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dashr/internal/modules/driver"
	"dashr/internal/modules/payment"
	"dashr/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Create persists the order, its payment and the creation event atomically.
func (s *Store) Create(ctx context.Context, o *Order, p *payment.Payment, ev *Event) error {
	data, err := json.Marshal(o.Data)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, venue_id, payment_id,
			status, delivery_status, identification_status, status_version,
			data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(o.ID), string(o.CustomerID), string(o.VenueID), toStringPtr(o.PaymentID),
		string(o.Status), string(o.DeliveryStatus), string(o.IdentificationStatus), o.StatusVersion,
		data, o.CreatedAt,
	)
	if err != nil {
		return err
	}
	if err := payment.Insert(ctx, tx, p); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	if err := appendEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const selectOrder = `
	SELECT id, customer_id, venue_id, driver_id, payment_id,
	       status, delivery_status, identification_status, status_version, data,
	       rejection_reason, failure_reason, created_at,
	       looking_for_driver_at, accepted_at, rejected_at, picked_up_at,
	       delivered_at, failed_at, returned_at
	FROM orders`

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, selectOrder+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *Store) ListByCustomer(ctx context.Context, customerID types.ID, limit int) ([]*Order, error) {
	return s.list(ctx, selectOrder+` WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2`, string(customerID), limit)
}

func (s *Store) ListByVenue(ctx context.Context, venueID types.ID, limit int) ([]*Order, error) {
	return s.list(ctx, selectOrder+` WHERE venue_id = $1 ORDER BY created_at DESC LIMIT $2`, string(venueID), limit)
}

// ListLookingForDriver returns orders awaiting a driver, oldest first.
func (s *Store) ListLookingForDriver(ctx context.Context, limit int) ([]*Order, error) {
	return s.list(ctx, selectOrder+` WHERE status = 'looking_for_driver' ORDER BY looking_for_driver_at LIMIT $1`, limit)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var driverID, paymentID, rejection, failure sql.NullString
	var data []byte
	var lookingAt, acceptedAt, rejectedAt, pickedUpAt, deliveredAt, failedAt, returnedAt sql.NullTime

	err := row.Scan(
		&o.ID, &o.CustomerID, &o.VenueID, &driverID, &paymentID,
		&o.Status, &o.DeliveryStatus, &o.IdentificationStatus, &o.StatusVersion, &data,
		&rejection, &failure, &o.CreatedAt,
		&lookingAt, &acceptedAt, &rejectedAt, &pickedUpAt,
		&deliveredAt, &failedAt, &returnedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &o.Data); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", o.ID, err)
	}
	o.DriverID = toIDPtr(driverID)
	o.PaymentID = toIDPtr(paymentID)
	if rejection.Valid {
		o.RejectionReason = &rejection.String
	}
	if failure.Valid {
		o.FailureReason = &failure.String
	}
	o.LookingForDriverAt = toTimePtr(lookingAt)
	o.AcceptedAt = toTimePtr(acceptedAt)
	o.RejectedAt = toTimePtr(rejectedAt)
	o.PickedUpAt = toTimePtr(pickedUpAt)
	o.DeliveredAt = toTimePtr(deliveredAt)
	o.FailedAt = toTimePtr(failedAt)
	o.ReturnedAt = toTimePtr(returnedAt)
	return &o, nil
}

// Stamp names the per-transition timestamp column to set.
type Stamp int

const (
	StampNone Stamp = iota
	StampLookingForDriver
	StampRejected
	StampPickedUp
	StampDelivered
	StampFailed
	StampReturned
)

// DriverCredit is applied to the driver's totals in the same transaction. Only a completed
// delivery counts toward total_deliveries; a returned order pays the fee alone.
type DriverCredit struct {
	DriverID  types.ID
	Fee       int64
	Tip       int64
	Completed bool
}

// Transition moves an order from the version the caller read to the target statuses.
type Transition struct {
	OrderID              types.ID
	Version              int
	Status               Status
	DeliveryStatus       DeliveryStatus
	IdentificationStatus IdentificationStatus
	Stamp                Stamp
	At                   time.Time
	RejectionReason      *string
	FailureReason        *string
	ReleaseDriver        *types.ID
	Credit               *DriverCredit
	Events               []*Event
}

func (t Transition) stamps() []*time.Time {
	out := make([]*time.Time, StampReturned+1)
	if t.Stamp != StampNone {
		at := t.At
		out[t.Stamp] = &at
	}
	return out
}

// Transition applies t if the order is still at t.Version; false means another writer won.
func (s *Store) Transition(ctx context.Context, t Transition) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	st := t.stamps()
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $3,
		    delivery_status = $4,
		    identification_status = $5,
		    status_version = status_version + 1,
		    rejection_reason = COALESCE($6, rejection_reason),
		    failure_reason = COALESCE($7, failure_reason),
		    looking_for_driver_at = COALESCE($8, looking_for_driver_at),
		    rejected_at = COALESCE($9, rejected_at),
		    picked_up_at = COALESCE($10, picked_up_at),
		    delivered_at = COALESCE($11, delivered_at),
		    failed_at = COALESCE($12, failed_at),
		    returned_at = COALESCE($13, returned_at)
		WHERE id = $1 AND status_version = $2`,
		string(t.OrderID), t.Version,
		string(t.Status), string(t.DeliveryStatus), string(t.IdentificationStatus),
		t.RejectionReason, t.FailureReason,
		st[StampLookingForDriver], st[StampRejected], st[StampPickedUp],
		st[StampDelivered], st[StampFailed], st[StampReturned],
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if t.ReleaseDriver != nil {
		if err := driver.Release(ctx, tx, *t.ReleaseDriver); err != nil {
			return false, fmt.Errorf("release driver: %w", err)
		}
	}
	if c := t.Credit; c != nil {
		credit := driver.RecordEarnings
		if c.Completed {
			credit = driver.RecordDelivery
		}
		if err := credit(ctx, tx, c.DriverID, c.Fee, c.Tip); err != nil {
			return false, fmt.Errorf("credit driver: %w", err)
		}
	}
	for _, ev := range t.Events {
		if err := appendEvent(ctx, tx, ev); err != nil {
			return false, err
		}
	}
	return true, tx.Commit(ctx)
}

// AssignDriverTx moves a looking_for_driver order to accepted inside the caller's transaction.
func AssignDriverTx(ctx context.Context, tx pgx.Tx, orderID, driverID types.ID, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = 'accepted',
		    driver_id = $2,
		    accepted_at = $3,
		    status_version = status_version + 1
		WHERE id = $1 AND status = 'looking_for_driver' AND driver_id IS NULL`,
		string(orderID), string(driverID), at,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	err = appendEvent(ctx, tx, &Event{
		OrderID:   orderID,
		Field:     FieldStatus,
		From:      string(StatusLookingForDriver),
		To:        string(StatusAccepted),
		ActorType: ActorDriver,
		ActorID:   &driverID,
		CreatedAt: at,
	})
	return err == nil, err
}

func (s *Store) Events(ctx context.Context, orderID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, field, from_status, to_status, actor_type, actor_id, created_at
		FROM order_state_events
		WHERE order_id = $1
		ORDER BY id`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Field, &e.From, &e.To, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = toIDPtr(actorID)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RedactCustomer blanks personal fields in every snapshot of the customer's orders.
func (s *Store) RedactCustomer(ctx context.Context, customerID types.ID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET data = data || jsonb_build_object(
		        'customer', jsonb_build_object(
		            'id', data->'customer'->'id', 'name', '', 'email', '', 'phone', ''),
		        'address', jsonb_build_object(
		            'street', '', 'city', COALESCE(data->'address'->'city', '""'::jsonb), 'zip', '', 'notes', '',
		            'location', jsonb_build_object('lat', 0, 'lng', 0)),
		        'card', jsonb_build_object('brand', '', 'last4', ''))
		WHERE customer_id = $1`,
		string(customerID),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func appendEvent(ctx context.Context, db execer, e *Event) error {
	_, err := db.Exec(ctx, `
		INSERT INTO order_state_events (
			order_id, field, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.OrderID), e.Field, e.From, e.To, e.ActorType, toStringPtr(e.ActorID), e.CreatedAt,
	)
	return err
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v sql.NullString) *types.ID {
	if !v.Valid {
		return nil
	}
	id := types.ID(v.String)
	return &id
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
