// README: Pricing store backed by PostgreSQL.
package pricing

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) ListBrackets(ctx context.Context) ([]Bracket, error) {
	rows, err := s.db.Query(ctx, `
		SELECT starts_km, ends_km, delivery_fee, driver_fee
		FROM delivery_distance_brackets
		ORDER BY starts_km`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bracket
	for rows.Next() {
		var b Bracket
		if err := rows.Scan(&b.StartsKm, &b.EndsKm, &b.DeliveryFee, &b.DriverFee); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
