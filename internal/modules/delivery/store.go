// README: Delivery request store backed by PostgreSQL, including the driver assignment transaction.
package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dashr/internal/modules/driver"
	"dashr/internal/modules/order"
	"dashr/internal/types"
)

var (
	errOrderTaken    = errors.New("order no longer looking for a driver")
	errDriverBusy    = errors.New("driver already delivering")
	errDriverOffline = errors.New("driver is offline")
	errNotPending    = errors.New("request is no longer pending")
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// CreateBatch inserts requests, skipping drivers already solicited for the order. It returns
// the requests that were actually created.
func (s *Store) CreateBatch(ctx context.Context, reqs []*Request) ([]*Request, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	b := &pgx.Batch{}
	for _, r := range reqs {
		b.Queue(`
			INSERT INTO delivery_requests (id, order_id, driver_id, status, driver_lat, driver_lng, round, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (order_id, driver_id) DO NOTHING`,
			string(r.ID), string(r.OrderID), string(r.DriverID), string(r.Status),
			r.DriverLocation.Lat, r.DriverLocation.Lng, r.Round, r.CreatedAt,
		)
	}
	br := s.db.SendBatch(ctx, b)
	defer br.Close()

	created := make([]*Request, 0, len(reqs))
	for _, r := range reqs {
		tag, err := br.Exec()
		if err != nil {
			return nil, fmt.Errorf("insert request for driver %s: %w", r.DriverID, err)
		}
		if tag.RowsAffected() == 1 {
			created = append(created, r)
		}
	}
	return created, nil
}

const selectRequest = `
	SELECT id, order_id, driver_id, status, driver_lat, driver_lng, round, created_at, responded_at
	FROM delivery_requests`

func (s *Store) Get(ctx context.Context, id types.ID) (*Request, error) {
	r, err := scanRequest(s.db.QueryRow(ctx, selectRequest+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Store) ListPendingByDriver(ctx context.Context, driverID types.ID) ([]*Request, error) {
	rows, err := s.db.Query(ctx, selectRequest+`
		WHERE driver_id = $1 AND status = 'pending'
		ORDER BY created_at DESC`, string(driverID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	var responded sql.NullTime
	err := row.Scan(
		&r.ID, &r.OrderID, &r.DriverID, &r.Status,
		&r.DriverLocation.Lat, &r.DriverLocation.Lng, &r.Round, &r.CreatedAt, &responded,
	)
	if err != nil {
		return nil, err
	}
	if responded.Valid {
		t := responded.Time
		r.RespondedAt = &t
	}
	return &r, nil
}

// SolicitedDrivers lists every driver that ever received a request for the order.
func (s *Store) SolicitedDrivers(ctx context.Context, orderID types.ID) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `SELECT driver_id FROM delivery_requests WHERE order_id = $1`, string(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, types.ID(id))
	}
	return out, rows.Err()
}

// ExpirePending expires the order's pending requests created before olderThan.
func (s *Store) ExpirePending(ctx context.Context, orderID types.ID, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_requests
		SET status = 'expired', responded_at = $3
		WHERE order_id = $1 AND status = 'pending' AND created_at < $2`,
		string(orderID), olderThan, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CloseOpen expires every pending request of the order.
func (s *Store) CloseOpen(ctx context.Context, orderID types.ID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_requests
		SET status = 'expired', responded_at = $2
		WHERE order_id = $1 AND status = 'pending'`,
		string(orderID), time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Answer moves a pending request to status; false means it was already answered.
func (s *Store) Answer(ctx context.Context, id types.ID, status Status, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_requests
		SET status = $2, responded_at = $3
		WHERE id = $1 AND status = 'pending'`,
		string(id), string(status), at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Assign gives the order to the request's driver in one transaction: the order moves to
// accepted, the driver is bound to the request, the request is accepted and its siblings
// are marked missed.
func (s *Store) Assign(ctx context.Context, r *Request, at time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ok, err := order.AssignDriverTx(ctx, tx, r.OrderID, r.DriverID, at)
	if err != nil {
		return err
	}
	if !ok {
		return errOrderTaken
	}
	ok, err = driver.Claim(ctx, tx, r.DriverID, r.ID)
	if err != nil {
		return err
	}
	if !ok {
		available, err := driver.IsAvailable(ctx, tx, r.DriverID)
		if err != nil {
			return err
		}
		if !available {
			return errDriverOffline
		}
		return errDriverBusy
	}
	tag, err := tx.Exec(ctx, `
		UPDATE delivery_requests
		SET status = 'accepted', responded_at = $2
		WHERE id = $1 AND status = 'pending'`,
		string(r.ID), at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return errNotPending
	}
	_, err = tx.Exec(ctx, `
		UPDATE delivery_requests
		SET status = 'missed', responded_at = $3
		WHERE order_id = $1 AND id <> $2 AND status = 'pending'`,
		string(r.OrderID), string(r.ID), at,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}
