// README: Read-only venue store backed by PostgreSQL.
package venue

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dashr/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Venue, error) {
	var v Venue
	err := s.db.QueryRow(ctx, `
		SELECT id, company_id, name, address, lat, lng, delivery_radius_km, is_open, age_restricted
		FROM venues WHERE id = $1`, string(id),
	).Scan(&v.ID, &v.CompanyID, &v.Name, &v.Address, &v.Location.Lat, &v.Location.Lng,
		&v.DeliveryRadiusKm, &v.IsOpen, &v.AgeRestricted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Items returns the venue's items among ids; unknown ids are simply absent.
func (s *Store) Items(ctx context.Context, venueID types.ID, ids []types.ID) ([]Item, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, venue_id, name, price, available
		FROM items WHERE venue_id = $1 AND id = ANY($2)`, string(venueID), raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.VenueID, &it.Name, &it.Price, &it.Available); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) IsStaff(ctx context.Context, venueID, userID types.ID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM venue_staff WHERE venue_id = $1 AND user_id = $2)`,
		string(venueID), string(userID),
	).Scan(&exists)
	return exists, err
}
