// README: Dispatch candidates and per-order round bookkeeping.
package dispatch

import (
	"sort"
	"time"

	"dashr/internal/modules/location"
	"dashr/internal/types"
)

const (
	// candidatePoolFactor sets the first GEO count; it doubles while filtering leaves too few drivers.
	candidatePoolFactor = 4
	// lockTTL bounds how long one instance may hold an order's dispatch lock.
	lockTTL = 30 * time.Second
	// tickBatch is how many looking_for_driver orders one scheduler tick handles.
	tickBatch = 200
)

// State is the dispatch progress of one order.
type State struct {
	Round        int
	DispatchedAt time.Time
}

// selectCandidates drops solicited and busy drivers and keeps the nearest max.
func selectCandidates(nearby []location.NearbyDriver, solicited []types.ID, busy map[types.ID]bool, max int) []location.NearbyDriver {
	if max <= 0 {
		return nil
	}
	skip := make(map[types.ID]bool, len(solicited))
	for _, id := range solicited {
		skip[id] = true
	}
	out := make([]location.NearbyDriver, 0, len(nearby))
	for _, d := range nearby {
		if skip[d.DriverID] || busy[d.DriverID] {
			continue
		}
		skip[d.DriverID] = true
		out = append(out, d)
	}
	sortByDistance(out, func(d location.NearbyDriver) float64 { return d.DistanceKm })
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func sortByDistance[T any](items []T, dist func(T) float64) {
	sort.SliceStable(items, func(i, j int) bool { return dist(items[i]) < dist(items[j]) })
}
