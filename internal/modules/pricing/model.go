// README: Distance brackets, order lines and the resulting fee quote.
package pricing

// Bracket maps a [StartsKm, EndsKm) distance range to a flat delivery fee and driver fee.
type Bracket struct {
	StartsKm    float64
	EndsKm      float64
	DeliveryFee int64
	DriverFee   int64
}

func (b Bracket) Contains(km float64) bool {
	return km >= b.StartsKm && km < b.EndsKm
}

type Line struct {
	ItemID    string
	Name      string
	UnitPrice int64
	Quantity  int
}

type QuoteRequest struct {
	Lines      []Line
	DistanceKm float64
	Tip        int64
}

// Quote is the amount breakdown charged for an order. Total excludes nothing:
// Subtotal + ServiceFee + DeliveryFee + Tip. DriverFee is the driver payout.
type Quote struct {
	Subtotal    int64   `json:"subtotal"`
	ServiceFee  int64   `json:"service_fee"`
	DeliveryFee int64   `json:"delivery_fee"`
	DriverFee   int64   `json:"driver_fee"`
	Tip         int64   `json:"tip"`
	Total       int64   `json:"total"`
	Currency    string  `json:"currency"`
	DistanceKm  float64 `json:"distance_km"`
}
