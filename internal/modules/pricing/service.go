// README: Pricing service computes subtotal, service fee and delivery fee for an order.
package pricing

import (
	"context"
	"fmt"
	"math"

	"dashr/internal/apperr"
	"dashr/internal/config"
	"dashr/internal/types"
)

type BracketSource interface {
	ListBrackets(ctx context.Context) ([]Bracket, error)
}

type Service struct {
	store    BracketSource
	cfg      config.PricingConfig
	currency string
}

func NewService(store BracketSource, cfg config.PricingConfig, currency string) *Service {
	if currency == "" {
		currency = types.DefaultCurrency
	}
	return &Service{store: store, cfg: cfg, currency: currency}
}

func (s *Service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if len(req.Lines) == 0 {
		return Quote{}, apperr.Validation(apperr.DomainOrder, "order must contain at least one item")
	}
	if req.Tip < 0 {
		return Quote{}, apperr.Validation(apperr.DomainPayment, "tip cannot be negative")
	}
	subtotal, err := Subtotal(req.Lines)
	if err != nil {
		return Quote{}, err
	}

	brackets, err := s.store.ListBrackets(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("list brackets: %w", err)
	}
	b, ok := FindBracket(brackets, req.DistanceKm)
	if !ok {
		return Quote{}, apperr.Validation(apperr.DomainOrder, "delivery address is outside the delivery range")
	}

	serviceFee := ServiceFee(subtotal, s.cfg)
	return Quote{
		Subtotal:    subtotal,
		ServiceFee:  serviceFee,
		DeliveryFee: b.DeliveryFee,
		DriverFee:   b.DriverFee,
		Tip:         req.Tip,
		Total:       subtotal + serviceFee + b.DeliveryFee + req.Tip,
		Currency:    s.currency,
		DistanceKm:  req.DistanceKm,
	}, nil
}

func Subtotal(lines []Line) (int64, error) {
	var total int64
	for _, l := range lines {
		if l.Quantity <= 0 {
			return 0, apperr.Validation(apperr.DomainOrder, "quantity for item %s must be positive", l.ItemID)
		}
		if l.UnitPrice < 0 {
			return 0, apperr.Validation(apperr.DomainOrder, "price for item %s cannot be negative", l.ItemID)
		}
		total += l.UnitPrice * int64(l.Quantity)
	}
	return total, nil
}

// ServiceFee is round(subtotal * rate) clamped to [min, max].
func ServiceFee(subtotal int64, cfg config.PricingConfig) int64 {
	fee := int64(math.Round(float64(subtotal) * cfg.ServiceFeeRate))
	if fee < cfg.ServiceFeeMin {
		return cfg.ServiceFeeMin
	}
	if fee > cfg.ServiceFeeMax {
		return cfg.ServiceFeeMax
	}
	return fee
}

// FindBracket returns the first bracket whose [starts, ends) range contains km.
func FindBracket(brackets []Bracket, km float64) (Bracket, bool) {
	if km < 0 {
		return Bracket{}, false
	}
	for _, b := range brackets {
		if b.Contains(km) {
			return b, true
		}
	}
	return Bracket{}, false
}
