package inference

import (
	"errors"
	"fmt"

	"github.com/hatseye/hatseye/internal/apierr"
)

// Sentinel errors.
var (
	ErrNoAPIKey = errors.New("inference: API key required")
	ErrNoModel  = errors.New("inference: model required")

	// ErrNoImage is returned for a vision request without an image, and by
	// Analyzer for a zero frame.
	ErrNoImage = errors.New("inference: image required")

	ErrProviderUnavailable = errors.New("inference: provider unavailable")

	// ErrEmptyResponse is returned when the model answered with no text,
	// usually because the safety filter blocked it.
	ErrEmptyResponse = errors.New("inference: empty response")
)

// APIError is an error response from a vision API.
type APIError = apierr.Error

// ProviderError attributes a failure to a vision provider.
type ProviderError = apierr.ProviderError

// WrapError attributes err to provider.
func WrapError(provider string, err error) error {
	return apierr.Wrap("inference", provider, err)
}

// ChainError carries the failure of every model a Chain tried, in order.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	switch n := len(e.Errors); n {
	case 0:
		return "inference chain: no models tried"
	case 1:
		return fmt.Sprintf("inference chain: %v", e.Errors[0])
	default:
		return fmt.Sprintf("inference chain: %d models failed, last: %v", n, e.Errors[n-1])
	}
}

func (e *ChainError) Unwrap() []error {
	return e.Errors
}
