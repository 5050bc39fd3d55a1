package tts

import (
	"errors"

	"github.com/hatseye/hatseye/internal/apierr"
)

var (
	ErrNoAPIKey            = errors.New("tts: API key required")
	ErrNoVoiceID           = errors.New("tts: voice ID required")
	ErrEmptyText           = errors.New("tts: empty text")
	ErrEmptyAudio          = errors.New("tts: empty audio")
	ErrProviderUnavailable = errors.New("tts: no providers available")
)

// APIError is an error response from a speech API.
type APIError = apierr.Error

// ProviderError attributes a failure to a speech provider.
type ProviderError = apierr.ProviderError

// WrapError attributes err to provider.
func WrapError(provider string, err error) error {
	return apierr.Wrap("tts", provider, err)
}
