package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"dashr/internal/types"
)

type memStore struct {
	geo       map[types.ID]types.Point
	last      map[types.ID]time.Time
	available map[types.ID]bool
}

func newMemStore() *memStore {
	return &memStore{
		geo:       map[types.ID]types.Point{},
		last:      map[types.ID]time.Time{},
		available: map[types.ID]bool{},
	}
}

func (m *memStore) SetGeo(_ context.Context, id types.ID, pos types.Point) error {
	m.geo[id] = pos
	return nil
}

func (m *memStore) RemoveGeo(_ context.Context, id types.ID) error {
	delete(m.geo, id)
	return nil
}

func (m *memStore) Nearby(context.Context, types.Point, float64, int) ([]NearbyDriver, error) {
	return nil, nil
}

func (m *memStore) SaveLast(_ context.Context, u Update) (bool, bool, error) {
	if prev, ok := m.last[u.DriverID]; ok && !prev.Before(u.RecordedAt) {
		return false, false, nil
	}
	m.last[u.DriverID] = u.RecordedAt
	return true, m.available[u.DriverID], nil
}

type fakeTracker struct {
	tracked []Update
	err     error
}

func (f *fakeTracker) Track(_ context.Context, u Update, _ bool) error {
	f.tracked = append(f.tracked, u)
	return f.err
}

func (f *fakeTracker) Forget(context.Context, types.ID) error { return nil }

func TestUpdateAvailableDriverEntersGeoIndex(t *testing.T) {
	store := newMemStore()
	store.available["d1"] = true
	tracker := &fakeTracker{}
	svc := NewService(store, tracker, zap.NewNop())

	pos := types.Point{Lat: 52.52, Lng: 13.405}
	applied, err := svc.Update(context.Background(), Update{DriverID: "d1", Position: pos, RecordedAt: time.Now()})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !applied {
		t.Fatal("expected update to be applied")
	}
	if store.geo["d1"] != pos {
		t.Fatalf("geo = %+v, want %+v", store.geo["d1"], pos)
	}
	if len(tracker.tracked) != 1 {
		t.Fatalf("tracked %d updates, want 1", len(tracker.tracked))
	}
}

func TestUpdateUnavailableDriverLeavesGeoIndex(t *testing.T) {
	store := newMemStore()
	store.geo["d1"] = types.Point{Lat: 1, Lng: 1}
	svc := NewService(store, nil, zap.NewNop())

	if _, err := svc.Update(context.Background(), Update{DriverID: "d1", Position: types.Point{Lat: 2, Lng: 2}, RecordedAt: time.Now()}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok := store.geo["d1"]; ok {
		t.Fatal("offline driver must not stay in the geo index")
	}
}

func TestUpdateIgnoresStalePositions(t *testing.T) {
	store := newMemStore()
	store.available["d1"] = true
	svc := NewService(store, nil, zap.NewNop())
	ctx := context.Background()
	now := time.Now()

	newer := types.Point{Lat: 52.53, Lng: 13.41}
	if _, err := svc.Update(ctx, Update{DriverID: "d1", Position: newer, RecordedAt: now}); err != nil {
		t.Fatalf("update: %v", err)
	}
	applied, err := svc.Update(ctx, Update{DriverID: "d1", Position: types.Point{Lat: 1, Lng: 1}, RecordedAt: now.Add(-time.Second)})
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if applied {
		t.Fatal("stale update must not be applied")
	}
	if store.geo["d1"] != newer {
		t.Fatalf("geo = %+v, want newer %+v", store.geo["d1"], newer)
	}
}

func TestUpdateRejectsInvalidPosition(t *testing.T) {
	svc := NewService(newMemStore(), nil, zap.NewNop())
	_, err := svc.Update(context.Background(), Update{DriverID: "d1", Position: types.Point{Lat: 91}})
	if !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("err = %v, want ErrInvalidPosition", err)
	}
}

func TestUpdateToleratesTrackerFailure(t *testing.T) {
	store := newMemStore()
	store.available["d1"] = true
	svc := NewService(store, &fakeTracker{err: errors.New("rtdb down")}, zap.NewNop())

	applied, err := svc.Update(context.Background(), Update{DriverID: "d1", Position: types.Point{Lat: 1, Lng: 1}})
	if err != nil || !applied {
		t.Fatalf("applied=%v err=%v, want applied without error", applied, err)
	}
}
