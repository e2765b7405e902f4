// README: Driver store backed by PostgreSQL. Package funcs take an Execer so they can join other transactions.
package driver

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dashr/internal/types"
)

type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Claim binds requestID as the driver's active delivery. It fails (false) if the driver
// is offline or already has one.
func Claim(ctx context.Context, db Execer, driverID, requestID types.ID) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE drivers
		SET current_delivery_request_id = $2
		WHERE id = $1 AND is_available AND current_delivery_request_id IS NULL`,
		string(driverID), string(requestID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// IsAvailable reports whether the driver is online; callers use it to explain a failed Claim.
func IsAvailable(ctx context.Context, db Querier, driverID types.ID) (bool, error) {
	var available bool
	err := db.QueryRow(ctx, `SELECT is_available FROM drivers WHERE id = $1`, string(driverID)).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	return available, err
}

func Release(ctx context.Context, db Execer, driverID types.ID) error {
	_, err := db.Exec(ctx, `
		UPDATE drivers SET current_delivery_request_id = NULL WHERE id = $1`,
		string(driverID),
	)
	return err
}

func RecordDelivery(ctx context.Context, db Execer, driverID types.ID, fee, tip int64) error {
	_, err := db.Exec(ctx, `
		UPDATE drivers
		SET total_deliveries = total_deliveries + 1,
		    total_earnings = total_earnings + $2,
		    total_tips = total_tips + $3
		WHERE id = $1`,
		string(driverID), fee, tip,
	)
	return err
}

// RecordEarnings credits pay for work that did not end in a delivery, such as a return.
func RecordEarnings(ctx context.Context, db Execer, driverID types.ID, fee, tip int64) error {
	_, err := db.Exec(ctx, `
		UPDATE drivers
		SET total_earnings = total_earnings + $2,
		    total_tips = total_tips + $3
		WHERE id = $1`,
		string(driverID), fee, tip,
	)
	return err
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, is_available, current_delivery_request_id,
		       last_known_lat, last_known_lng, last_location_at,
		       total_deliveries, total_earnings, total_tips
		FROM drivers
		WHERE id = $1`, string(id),
	)
	var d Driver
	var current sql.NullString
	var lat, lng sql.NullFloat64
	var at sql.NullTime
	err := row.Scan(
		&d.ID, &d.Name, &d.IsAvailable, &current,
		&lat, &lng, &at,
		&d.TotalDeliveries, &d.TotalEarnings, &d.TotalTips,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if current.Valid {
		v := types.ID(current.String)
		d.CurrentDeliveryRequestID = &v
	}
	if lat.Valid && lng.Valid {
		d.LastKnownLocation = &types.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if at.Valid {
		t := at.Time
		d.LastLocationAt = &t
	}
	return &d, nil
}

// SetAvailable flips availability. Going offline only succeeds without an active delivery.
func (s *Store) SetAvailable(ctx context.Context, id types.ID, available bool) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers
		SET is_available = $2
		WHERE id = $1 AND ($2 OR current_delivery_request_id IS NULL)`,
		string(id), available,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Busy returns the subset of ids that cannot take a new request: offline, already
// delivering, or unknown.
func (s *Store) Busy(ctx context.Context, ids []types.ID) (map[types.ID]bool, error) {
	busy := make(map[types.ID]bool, len(ids))
	if len(ids) == 0 {
		return busy, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
		busy[id] = true
	}
	rows, err := s.db.Query(ctx, `
		SELECT id FROM drivers
		WHERE id = ANY($1) AND is_available AND current_delivery_request_id IS NULL`,
		raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		delete(busy, types.ID(id))
	}
	return busy, rows.Err()
}
