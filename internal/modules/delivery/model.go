// README: Delivery requests offered to drivers while an order looks for one.
package delivery

import (
	"errors"
	"time"

	"dashr/internal/types"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusMissed   Status = "missed"
	StatusExpired  Status = "expired"
)

type Request struct {
	ID             types.ID
	OrderID        types.ID
	DriverID       types.ID
	Status         Status
	DriverLocation types.Point
	Round          int
	CreatedAt      time.Time
	RespondedAt    *time.Time
}

// AllowedRequestTransitions: a request is answered once; every other outcome is terminal.
var AllowedRequestTransitions = map[Status][]Status{
	StatusPending: {StatusAccepted, StatusRejected, StatusMissed, StatusExpired},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedRequestTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var ErrNotFound = errors.New("delivery request not found")
