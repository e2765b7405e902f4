// README: Stat counters and the increments each order event contributes.
package stats

import (
	"fmt"
	"time"

	"dashr/internal/tasks"
	"dashr/internal/types"
)

const (
	KeyOrdersCreated   = "orders_created"
	KeyOrdersDelivered = "orders_delivered"
	KeyOrdersRejected  = "orders_rejected"
	KeyRevenue         = "revenue"
	KeyRefunds         = "refunds"
	KeyTips            = "tips"
)

func VenueOrdersKey(venueID types.ID) string {
	return fmt.Sprintf("venue:%s:orders", venueID)
}

type AllTimeStat struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

type DailyStat struct {
	Key   string    `json:"key"`
	Day   time.Time `json:"day"`
	Value int64     `json:"value"`
}

type Increment struct {
	Key   string
	Delta int64
}

// Day truncates t to its UTC calendar day, the bucket of daily counters.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func OrderCreated(ev tasks.OrderEvent) []Increment {
	return []Increment{
		{Key: KeyOrdersCreated, Delta: 1},
		{Key: KeyRevenue, Delta: ev.Amount},
		{Key: VenueOrdersKey(ev.VenueID), Delta: 1},
	}
}

func OrderDelivered(ev tasks.OrderEvent) []Increment {
	incs := []Increment{{Key: KeyOrdersDelivered, Delta: 1}}
	if ev.Tip > 0 {
		incs = append(incs, Increment{Key: KeyTips, Delta: ev.Tip})
	}
	return incs
}

func OrderRejected(tasks.OrderEvent) []Increment {
	return []Increment{{Key: KeyOrdersRejected, Delta: 1}}
}

func Refunded(amount int64) []Increment {
	if amount <= 0 {
		return nil
	}
	return []Increment{{Key: KeyRefunds, Delta: amount}}
}
