// README: Mirrors driver positions to Firebase Realtime Database for live tracking in the apps.
package location

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"

	"dashr/internal/types"
)

// rtdbDriverEntry is the value stored under /driver_locations/<driverID>.
type rtdbDriverEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
}

type RTDBTracker struct {
	client *db.Client
}

func NewRTDBTracker(client *db.Client) *RTDBTracker {
	return &RTDBTracker{client: client}
}

func (t *RTDBTracker) Track(ctx context.Context, u Update, online bool) error {
	entry := rtdbDriverEntry{
		Lat:       u.Position.Lat,
		Lng:       u.Position.Lng,
		Status:    "offline",
		Timestamp: u.RecordedAt.UnixMilli(),
	}
	if online {
		entry.Status = "online"
	}
	if err := t.client.NewRef("driver_locations/"+string(u.DriverID)).Set(ctx, entry); err != nil {
		return fmt.Errorf("rtdb set driver %s: %w", u.DriverID, err)
	}
	return nil
}

func (t *RTDBTracker) Forget(ctx context.Context, driverID types.ID) error {
	return t.client.NewRef("driver_locations/" + string(driverID)).Delete(ctx)
}
