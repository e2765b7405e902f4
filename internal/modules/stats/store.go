// README: Stat counters backed by PostgreSQL upserts, applied once per task.
package stats

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Apply adds incs to the all-time and daily counters. It returns false without touching the
// counters when taskID was already applied.
func (s *Store) Apply(ctx context.Context, taskID string, day time.Time, incs []Increment) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO stat_events (task_id, applied_at) VALUES ($1, NOW())
		ON CONFLICT (task_id) DO NOTHING`, taskID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, inc := range incs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO all_time_stats (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = all_time_stats.value + EXCLUDED.value`,
			inc.Key, inc.Delta); err != nil {
			return false, err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO daily_stats (key, day, value) VALUES ($1, $2, $3)
			ON CONFLICT (key, day) DO UPDATE SET value = daily_stats.value + EXCLUDED.value`,
			inc.Key, day, inc.Delta); err != nil {
			return false, err
		}
	}
	return true, tx.Commit(ctx)
}

func (s *Store) AllTime(ctx context.Context) ([]AllTimeStat, error) {
	rows, err := s.db.Query(ctx, `SELECT key, value FROM all_time_stats ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AllTimeStat
	for rows.Next() {
		var st AllTimeStat
		if err := rows.Scan(&st.Key, &st.Value); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Daily returns the counters for days in [from, to].
func (s *Store) Daily(ctx context.Context, from, to time.Time) ([]DailyStat, error) {
	rows, err := s.db.Query(ctx, `
		SELECT key, day, value FROM daily_stats
		WHERE day BETWEEN $1 AND $2
		ORDER BY day, key`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyStat
	for rows.Next() {
		var st DailyStat
		if err := rows.Scan(&st.Key, &st.Day, &st.Value); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
