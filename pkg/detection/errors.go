package detection

import (
	"errors"

	"github.com/hatseye/hatseye/internal/apierr"
)

var (
	// ErrNoAPIKey is returned when the hosted detector has no API key.
	ErrNoAPIKey = errors.New("detection: API key required")

	// ErrNoModel is returned when no model id or path is configured.
	ErrNoModel = errors.New("detection: model required")

	ErrEmptyImage = errors.New("detection: empty image")
)

// APIError is an error response from a detection API.
type APIError = apierr.Error
