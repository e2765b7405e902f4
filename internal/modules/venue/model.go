// README: Venue and menu item read models (owned by the admin surface).
package venue

import (
	"errors"

	"dashr/internal/types"
)

var ErrNotFound = errors.New("venue not found")

type Venue struct {
	ID               types.ID
	CompanyID        types.ID
	Name             string
	Address          string
	Location         types.Point
	DeliveryRadiusKm float64
	IsOpen           bool
	AgeRestricted    bool
}

type Item struct {
	ID        types.ID
	VenueID   types.ID
	Name      string
	Price     int64
	Available bool
}
