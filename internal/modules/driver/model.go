// README: Driver profile, availability and running totals.
package driver

import (
	"errors"
	"time"

	"dashr/internal/types"
)

var ErrNotFound = errors.New("driver not found")

type Driver struct {
	ID                       types.ID
	Name                     string
	IsAvailable              bool
	CurrentDeliveryRequestID *types.ID
	LastKnownLocation        *types.Point
	LastLocationAt           *time.Time
	TotalDeliveries          int64
	TotalEarnings            int64
	TotalTips                int64
}

func (d *Driver) Busy() bool {
	return d.CurrentDeliveryRequestID != nil
}
