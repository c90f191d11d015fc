package orders

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Handlers match them with errors.Is and map each to
// a stable machine-readable kind; store/driver details never leak past
// ErrPersistence.
var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidState           = errors.New("invalid order state")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidAffiliateCode   = errors.New("unknown or inactive affiliate code")
	ErrPricingResolution      = errors.New("price resolution failed")
	ErrConcurrentModification = errors.New("order was modified concurrently")
	ErrPersistence            = errors.New("persistence failure")
)

// Kind returns the stable machine-readable name for an error, for response
// bodies and logs.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidAffiliateCode):
		return "invalid_affiliate_code"
	case errors.Is(err, ErrPricingResolution):
		return "pricing_resolution_failure"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	default:
		return "internal"
	}
}

func persistence(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
