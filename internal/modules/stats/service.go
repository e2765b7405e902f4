// README: Stats service applies task increments and serves the admin report.
package stats

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const maxReportDays = 90

type Repository interface {
	Apply(ctx context.Context, taskID string, day time.Time, incs []Increment) (bool, error)
	AllTime(ctx context.Context) ([]AllTimeStat, error)
	Daily(ctx context.Context, from, to time.Time) ([]DailyStat, error)
}

type Service struct {
	store Repository
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Repository, log *zap.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// Apply records incs for the day of at, once per taskID.
func (s *Service) Apply(ctx context.Context, taskID string, at time.Time, incs []Increment) error {
	if len(incs) == 0 {
		return nil
	}
	applied, err := s.store.Apply(ctx, taskID, Day(at), incs)
	if err != nil {
		return err
	}
	if !applied {
		s.log.Debug("stat increments already applied", zap.String("task_id", taskID))
	}
	return nil
}

type Report struct {
	AllTime map[string]int64 `json:"all_time"`
	Daily   []DailyStat      `json:"daily"`
}

// Report returns all-time counters and the daily counters of the last days days.
func (s *Service) Report(ctx context.Context, days int) (*Report, error) {
	if days <= 0 {
		days = 7
	}
	if days > maxReportDays {
		days = maxReportDays
	}
	all, err := s.store.AllTime(ctx)
	if err != nil {
		return nil, err
	}
	to := Day(s.now())
	daily, err := s.store.Daily(ctx, to.AddDate(0, 0, -(days-1)), to)
	if err != nil {
		return nil, err
	}
	r := &Report{AllTime: make(map[string]int64, len(all)), Daily: daily}
	for _, st := range all {
		r.AllTime[st.Key] = st.Value
	}
	return r, nil
}
