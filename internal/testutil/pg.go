// README: Shared PostgreSQL fixtures for DB-backed tests (skipped unless DASHR_TEST_DSN is set).
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"dashr/internal/infra"
	"dashr/internal/types"
	"dashr/migrations"
)

const tables = "stat_events, daily_stats, all_time_stats, delivery_requests, payments, order_state_events, orders, drivers, venue_staff, items, venues"

// NewTestPool connects to DASHR_TEST_DSN, applies migrations and truncates every mutable table.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DASHR_TEST_DSN")
	if dsn == "" {
		t.Skip("DASHR_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqlDB := infra.SQLDB(db)
	defer sqlDB.Close()
	if err := infra.ApplyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE "+tables+" CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

func SeedVenue(t *testing.T, db *pgxpool.Pool, id types.ID, at types.Point, radiusKm float64) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO venues (id, company_id, name, address, lat, lng, delivery_radius_km)
		VALUES ($1, 'c1', 'Test Venue', 'Main St 1', $2, $3, $4)`,
		string(id), at.Lat, at.Lng, radiusKm)
	if err != nil {
		t.Fatalf("seed venue: %v", err)
	}
}

func SeedItem(t *testing.T, db *pgxpool.Pool, id, venueID types.ID, price int64) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO items (id, venue_id, name, price) VALUES ($1, $2, $3, $4)`,
		string(id), string(venueID), "item "+string(id), price)
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
}

func SeedStaff(t *testing.T, db *pgxpool.Pool, venueID, userID types.ID) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO venue_staff (venue_id, user_id) VALUES ($1, $2)`,
		string(venueID), string(userID))
	if err != nil {
		t.Fatalf("seed staff: %v", err)
	}
}

func SeedDriver(t *testing.T, db *pgxpool.Pool, id types.ID, at types.Point) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO drivers (id, name, is_available, last_known_lat, last_known_lng, last_location_at)
		VALUES ($1, $2, TRUE, $3, $4, NOW())`,
		string(id), "driver "+string(id), at.Lat, at.Lng)
	if err != nil {
		t.Fatalf("seed driver: %v", err)
	}
}

// SeedOrder inserts an order in the given status with an empty snapshot.
func SeedOrder(t *testing.T, db *pgxpool.Pool, id, venueID, customerID types.ID, status string) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO orders (id, customer_id, venue_id, status, delivery_status, identification_status, data, created_at)
		VALUES ($1, $2, $3, $4, 'pending', 'not_required', '{}'::jsonb, NOW())`,
		string(id), string(customerID), string(venueID), status)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
}
