// Package inference answers spoken questions about camera frames using a
// hosted vision model. Providers can be chained so a second model takes
// over when the first is rate limited or down.
package inference

import (
	"context"
	"image"
	"time"
)

// Provider is a vision model backend.
type Provider interface {
	Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error)

	// Health verifies the key and model without analyzing an image.
	Health(ctx context.Context) error

	Close() error
}

// VisionRequest asks one question about one image. Zero-valued generation
// fields fall back to the provider's Config.
type VisionRequest struct {
	Image  image.Image
	Prompt string

	Model       string
	MaxTokens   int
	Temperature float64
}

// VisionResponse is a model answer with its cost.
type VisionResponse struct {
	Content string
	Model   string
	Usage   Usage
	Latency time.Duration
}

// Usage counts tokens billed for a request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
