// README: JSON views of domain objects returned by the API.
package handlers

import (
	"time"

	"dashr/internal/modules/delivery"
	"dashr/internal/modules/driver"
	"dashr/internal/modules/order"
	"dashr/internal/modules/pricing"
	"dashr/internal/types"
)

type orderView struct {
	ID                   types.ID         `json:"id"`
	CustomerID           types.ID         `json:"customer_id"`
	VenueID              types.ID         `json:"venue_id"`
	DriverID             *types.ID        `json:"driver_id,omitempty"`
	Status               string           `json:"status"`
	DeliveryStatus       string           `json:"delivery_status"`
	IdentificationStatus string           `json:"identification_status"`
	Customer             order.Customer   `json:"customer"`
	Address              order.Address    `json:"address"`
	Venue                order.VenueInfo  `json:"venue"`
	Items                []order.LineItem `json:"items"`
	Totals               pricing.Quote    `json:"totals"`
	RejectionReason      *string          `json:"rejection_reason,omitempty"`
	FailureReason        *string          `json:"failure_reason,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	AcceptedAt           *time.Time       `json:"accepted_at,omitempty"`
	PickedUpAt           *time.Time       `json:"picked_up_at,omitempty"`
	DeliveredAt          *time.Time       `json:"delivered_at,omitempty"`
}

func newOrderView(o *order.Order) orderView {
	return orderView{
		ID:                   o.ID,
		CustomerID:           o.CustomerID,
		VenueID:              o.VenueID,
		DriverID:             o.DriverID,
		Status:               string(o.Status),
		DeliveryStatus:       string(o.DeliveryStatus),
		IdentificationStatus: string(o.IdentificationStatus),
		Customer:             o.Data.Customer,
		Address:              o.Data.Address,
		Venue:                o.Data.Venue,
		Items:                o.Data.Items,
		Totals:               o.Data.Totals,
		RejectionReason:      o.RejectionReason,
		FailureReason:        o.FailureReason,
		CreatedAt:            o.CreatedAt,
		AcceptedAt:           o.AcceptedAt,
		PickedUpAt:           o.PickedUpAt,
		DeliveredAt:          o.DeliveredAt,
	}
}

func newOrderViews(orders []*order.Order) []orderView {
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderView(o))
	}
	return out
}

type eventView struct {
	Field     string    `json:"field"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorType string    `json:"actor_type"`
	ActorID   *types.ID `json:"actor_id,omitempty"`
	At        time.Time `json:"at"`
}

type requestView struct {
	ID             types.ID    `json:"id"`
	OrderID        types.ID    `json:"order_id"`
	Status         string      `json:"status"`
	Round          int         `json:"round"`
	DriverLocation types.Point `json:"driver_location"`
	CreatedAt      time.Time   `json:"created_at"`
	RespondedAt    *time.Time  `json:"responded_at,omitempty"`
}

func newRequestView(r *delivery.Request) requestView {
	return requestView{
		ID:             r.ID,
		OrderID:        r.OrderID,
		Status:         string(r.Status),
		Round:          r.Round,
		DriverLocation: r.DriverLocation,
		CreatedAt:      r.CreatedAt,
		RespondedAt:    r.RespondedAt,
	}
}

type driverView struct {
	ID                       types.ID  `json:"id"`
	Name                     string    `json:"name"`
	IsAvailable              bool      `json:"is_available"`
	CurrentDeliveryRequestID *types.ID `json:"current_delivery_request_id,omitempty"`
	TotalDeliveries          int64     `json:"total_deliveries"`
	TotalEarnings            int64     `json:"total_earnings"`
	TotalTips                int64     `json:"total_tips"`
}

func newDriverView(d *driver.Driver) driverView {
	return driverView{
		ID:                       d.ID,
		Name:                     d.Name,
		IsAvailable:              d.IsAvailable,
		CurrentDeliveryRequestID: d.CurrentDeliveryRequestID,
		TotalDeliveries:          d.TotalDeliveries,
		TotalEarnings:            d.TotalEarnings,
		TotalTips:                d.TotalTips,
	}
}
