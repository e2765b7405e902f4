// README: Driver position updates and proximity results.
package location

import (
	"time"

	"dashr/internal/types"
)

type Update struct {
	DriverID   types.ID
	Position   types.Point
	RecordedAt time.Time
}

type NearbyDriver struct {
	DriverID   types.ID
	Position   types.Point
	DistanceKm float64
}
