// README: Location store backed by Redis GEO (online drivers) and the drivers table (last position).
package location

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"dashr/internal/types"
)

const driverGeoKey = "location:drivers"

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) SetGeo(ctx context.Context, id types.ID, pos types.Point) error {
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (s *Store) RemoveGeo(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

// Nearby returns at most limit drivers within radiusKm of p, closest first.
func (s *Store) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]NearbyDriver, error) {
	results, err := s.redis.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]NearbyDriver, len(results))
	for i, r := range results {
		out[i] = NearbyDriver{
			DriverID:   types.ID(r.Name),
			Position:   types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		}
	}
	return out, nil
}

// SaveLast stores the position unless a newer one is already recorded. It reports whether the
// update was applied and whether the driver is currently available.
func (s *Store) SaveLast(ctx context.Context, u Update) (applied, available bool, err error) {
	err = s.db.QueryRow(ctx, `
		UPDATE drivers
		SET last_known_lat = $2, last_known_lng = $3, last_location_at = $4
		WHERE id = $1 AND (last_location_at IS NULL OR last_location_at < $4)
		RETURNING is_available`,
		string(u.DriverID), u.Position.Lat, u.Position.Lng, u.RecordedAt,
	).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, available, nil
}
