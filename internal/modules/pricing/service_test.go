package pricing

import (
	"context"
	"errors"
	"testing"

	"dashr/internal/apperr"
	"dashr/internal/config"
)

type staticBrackets struct {
	brackets []Bracket
	err      error
}

func (s staticBrackets) ListBrackets(context.Context) ([]Bracket, error) {
	return s.brackets, s.err
}

var testBrackets = []Bracket{
	{StartsKm: 0, EndsKm: 2, DeliveryFee: 290, DriverFee: 400},
	{StartsKm: 2, EndsKm: 5, DeliveryFee: 490, DriverFee: 600},
	{StartsKm: 5, EndsKm: 10, DeliveryFee: 790, DriverFee: 900},
}

var testPricing = config.PricingConfig{ServiceFeeRate: 0.05, ServiceFeeMin: 100, ServiceFeeMax: 500}

func TestService_Quote(t *testing.T) {
	tests := []struct {
		name        string
		req         QuoteRequest
		wantTotal   int64
		wantService int64
		wantDriver  int64
	}{
		{
			name: "Service fee clamped to minimum",
			req: QuoteRequest{
				Lines:      []Line{{ItemID: "beer", UnitPrice: 450, Quantity: 2}},
				DistanceKm: 1.0,
			},
			// Subtotal 900, 5% = 45 -> min 100. Delivery 290.
			wantTotal:   900 + 100 + 290,
			wantService: 100,
			wantDriver:  400,
		},
		{
			name: "Service fee as percentage",
			req: QuoteRequest{
				Lines:      []Line{{ItemID: "wine", UnitPrice: 3000, Quantity: 1}},
				DistanceKm: 3.5,
				Tip:        200,
			},
			// Subtotal 3000, 5% = 150. Delivery 490. Tip 200.
			wantTotal:   3000 + 150 + 490 + 200,
			wantService: 150,
			wantDriver:  600,
		},
		{
			name: "Service fee clamped to maximum",
			req: QuoteRequest{
				Lines:      []Line{{ItemID: "champagne", UnitPrice: 12000, Quantity: 2}},
				DistanceKm: 9.99,
			},
			// Subtotal 24000, 5% = 1200 -> max 500. Delivery 790.
			wantTotal:   24000 + 500 + 790,
			wantService: 500,
			wantDriver:  900,
		},
		{
			name: "Bracket lower bound is inclusive",
			req: QuoteRequest{
				Lines:      []Line{{ItemID: "a", UnitPrice: 2500, Quantity: 1}, {ItemID: "b", UnitPrice: 250, Quantity: 2}},
				DistanceKm: 2.0,
			},
			// Subtotal 3000, fee 150, 2.0km falls in [2,5).
			wantTotal:   3000 + 150 + 490,
			wantService: 150,
			wantDriver:  600,
		},
	}

	s := NewService(staticBrackets{brackets: testBrackets}, testPricing, "EUR")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Quote(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Quote() error = %v", err)
			}
			if got.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", got.Total, tt.wantTotal)
			}
			if got.ServiceFee != tt.wantService {
				t.Errorf("ServiceFee = %d, want %d", got.ServiceFee, tt.wantService)
			}
			if got.DriverFee != tt.wantDriver {
				t.Errorf("DriverFee = %d, want %d", got.DriverFee, tt.wantDriver)
			}
			if got.Currency != "EUR" {
				t.Errorf("Currency = %s, want EUR", got.Currency)
			}
		})
	}
}

func TestService_QuoteValidation(t *testing.T) {
	s := NewService(staticBrackets{brackets: testBrackets}, testPricing, "EUR")
	tests := []struct {
		name       string
		req        QuoteRequest
		wantDomain string
	}{
		{"no lines", QuoteRequest{DistanceKm: 1}, apperr.DomainOrder},
		{"zero quantity", QuoteRequest{Lines: []Line{{ItemID: "x", UnitPrice: 100}}, DistanceKm: 1}, apperr.DomainOrder},
		{"negative tip", QuoteRequest{Lines: []Line{{ItemID: "x", UnitPrice: 100, Quantity: 1}}, Tip: -1}, apperr.DomainPayment},
		{"upper bound exclusive", QuoteRequest{Lines: []Line{{ItemID: "x", UnitPrice: 100, Quantity: 1}}, DistanceKm: 10}, apperr.DomainOrder},
		{"too far", QuoteRequest{Lines: []Line{{ItemID: "x", UnitPrice: 100, Quantity: 1}}, DistanceKm: 42}, apperr.DomainOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Quote(context.Background(), tt.req)
			ve, ok := apperr.AsValidation(err)
			if !ok {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Domain != tt.wantDomain {
				t.Errorf("domain = %s, want %s", ve.Domain, tt.wantDomain)
			}
		})
	}
}

func TestService_QuoteStoreError(t *testing.T) {
	boom := errors.New("db down")
	s := NewService(staticBrackets{err: boom}, testPricing, "")
	_, err := s.Quote(context.Background(), QuoteRequest{Lines: []Line{{ItemID: "x", UnitPrice: 1, Quantity: 1}}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestServiceFee_Rounding(t *testing.T) {
	cfg := config.PricingConfig{ServiceFeeRate: 0.075, ServiceFeeMin: 0, ServiceFeeMax: 10000}
	// 1234 * 0.075 = 92.55 -> 93
	if got := ServiceFee(1234, cfg); got != 93 {
		t.Fatalf("ServiceFee = %d, want 93", got)
	}
}

func TestFindBracket_Negative(t *testing.T) {
	if _, ok := FindBracket(testBrackets, -0.1); ok {
		t.Fatal("negative distance must not match a bracket")
	}
}
