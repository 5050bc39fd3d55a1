// Package apierr holds the error types shared by the hosted API clients:
// detection, vision and speech.
package apierr

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBody bounds how much of an error response is read.
const maxBody = 64 << 10

// Error is a non-2xx response from a hosted API.
type Error struct {
	// Service is the calling package, used as the message prefix.
	Service  string
	Provider string

	StatusCode int
	// Code is the provider's error status string, if any.
	Code    string
	Message string
}

func (e *Error) Error() string {
	service := e.Service
	if service == "" {
		service = "api"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: API error %d (%s): %s", service, e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s [%s]: API error %d: %s", service, e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited reports HTTP 429, which providers also use for exhausted
// quota.
func (e *Error) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized reports a rejected key (401 or 403).
func (e *Error) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound reports an unknown model or voice.
func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsServerError reports a 5xx status.
func (e *Error) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable reports whether the same request may succeed later.
func (e *Error) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// Extractor pulls the message and status code out of a provider's JSON
// error envelope. It returns ok=false when body is not such an envelope.
type Extractor func(body []byte) (message, code string, ok bool)

// FromResponse builds an Error from resp. The raw body is the message
// unless extract recognizes it.
func FromResponse(service, provider string, resp *http.Response, extract Extractor) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	e := &Error{
		Service:    service,
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
	if extract != nil {
		if msg, code, ok := extract(body); ok {
			e.Message, e.Code = msg, code
		}
	}
	return e
}

// ProviderError attributes a lower-level failure to a provider.
type ProviderError struct {
	Service  string
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Service, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Wrap attributes err to provider. A nil err stays nil.
func Wrap(service, provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Service: service, Provider: provider, Err: err}
}
