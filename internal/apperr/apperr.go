// README: Business-rule validation error keyed by domain ("Order", "Payment", ...).
package apperr

import (
	"errors"
	"fmt"
)

const (
	DomainOrder    = "Order"
	DomainPayment  = "Payment"
	DomainDelivery = "Delivery"
	DomainDriver   = "Driver"
)

type ValidationError struct {
	Domain  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Domain, e.Message)
}

func Validation(domain, format string, args ...any) error {
	return &ValidationError{Domain: domain, Message: fmt.Sprintf(format, args...)}
}

// AsValidation unwraps err to a *ValidationError if one is in its chain.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
