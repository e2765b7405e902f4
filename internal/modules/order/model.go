// README: Order aggregate, its three status fields and their transition tables.
package order

import (
	"time"

	"dashr/internal/modules/pricing"
	"dashr/internal/types"
)

type Status string

const (
	StatusNone             Status = "none"
	StatusPending          Status = "pending"
	StatusLookingForDriver Status = "looking_for_driver"
	StatusAccepted         Status = "accepted"
	StatusRejected         Status = "rejected"
)

type DeliveryStatus string

const (
	DeliveryPending        DeliveryStatus = "pending"
	DeliveryOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryDelivered      DeliveryStatus = "delivered"
	DeliveryFailed         DeliveryStatus = "failed"
	DeliveryReturned       DeliveryStatus = "returned"
)

type IdentificationStatus string

const (
	IdentificationNotRequired IdentificationStatus = "not_required"
	IdentificationPending     IdentificationStatus = "pending"
	IdentificationVerified    IdentificationStatus = "verified"
	IdentificationFailed      IdentificationStatus = "failed"
)

// Event fields.
const (
	FieldStatus         = "status"
	FieldDelivery       = "delivery_status"
	FieldIdentification = "identification_status"
)

const (
	ActorCustomer = "customer"
	ActorStaff    = "venue_staff"
	ActorDriver   = "driver"
	ActorAdmin    = "admin"
	ActorSystem   = "system"
)

type Order struct {
	ID                   types.ID
	CustomerID           types.ID
	VenueID              types.ID
	DriverID             *types.ID
	PaymentID            *types.ID
	Status               Status
	DeliveryStatus       DeliveryStatus
	IdentificationStatus IdentificationStatus
	StatusVersion        int
	Data                 Snapshot
	RejectionReason      *string
	FailureReason        *string
	CreatedAt            time.Time
	LookingForDriverAt   *time.Time
	AcceptedAt           *time.Time
	RejectedAt           *time.Time
	PickedUpAt           *time.Time
	DeliveredAt          *time.Time
	FailedAt             *time.Time
	ReturnedAt           *time.Time
}

func (o *Order) RequiresIdentification() bool {
	return o.IdentificationStatus != IdentificationNotRequired
}

func (o *Order) HasDriver(id types.ID) bool {
	return o.DriverID != nil && *o.DriverID == id
}

// Snapshot is the denormalised copy of order inputs taken at checkout.
type Snapshot struct {
	Customer Customer      `json:"customer"`
	Address  Address       `json:"address"`
	Venue    VenueInfo     `json:"venue"`
	Items    []LineItem    `json:"items"`
	Card     Card          `json:"card"`
	Totals   pricing.Quote `json:"totals"`
}

type Customer struct {
	ID    types.ID `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Phone string   `json:"phone"`
}

type Address struct {
	Street   string      `json:"street"`
	City     string      `json:"city"`
	Zip      string      `json:"zip"`
	Notes    string      `json:"notes"`
	Location types.Point `json:"location"`
}

type VenueInfo struct {
	ID       types.ID    `json:"id"`
	Name     string      `json:"name"`
	Address  string      `json:"address"`
	Location types.Point `json:"location"`
}

type LineItem struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Quantity int      `json:"quantity"`
}

type Card struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

type Event struct {
	ID        int64
	OrderID   types.ID
	Field     string
	From      string
	To        string
	ActorType string
	ActorID   *types.ID
	CreatedAt time.Time
}

// AllowedTransitions represents the order status flow as code. Terminal states have no entry.
var AllowedTransitions = map[Status][]Status{
	StatusNone:             {StatusPending},
	StatusPending:          {StatusLookingForDriver, StatusRejected},
	StatusLookingForDriver: {StatusAccepted, StatusRejected},
}

var AllowedDeliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:        {DeliveryOutForDelivery},
	DeliveryOutForDelivery: {DeliveryDelivered, DeliveryFailed},
	DeliveryFailed:         {DeliveryReturned},
}

var AllowedIdentificationTransitions = map[IdentificationStatus][]IdentificationStatus{
	IdentificationPending: {IdentificationVerified, IdentificationFailed},
}

func CanTransition(from, to Status) bool {
	return allowed(AllowedTransitions, from, to)
}

func CanTransitionDelivery(from, to DeliveryStatus) bool {
	return allowed(AllowedDeliveryTransitions, from, to)
}

func CanTransitionIdentification(from, to IdentificationStatus) bool {
	return allowed(AllowedIdentificationTransitions, from, to)
}

func allowed[S comparable](table map[S][]S, from, to S) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}
