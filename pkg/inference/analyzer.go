package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hatseye/hatseye/pkg/frame"
)

// DefaultPrompt frames the user's question for a visually impaired listener.
// %s is replaced by the question.
const DefaultPrompt = "You are helping a visually impaired person identify visual objects. " +
	"Answer their question about what they can see in this image with one clear, simple sentence. " +
	"Be direct and helpful. Question: %s"

// Analyzer answers spoken questions about camera frames.
type Analyzer struct {
	provider Provider
	prompt   string
	logger   *slog.Logger
}

// NewAnalyzer wraps a provider. An empty prompt uses DefaultPrompt.
func NewAnalyzer(p Provider, prompt string, logger *slog.Logger) *Analyzer {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		provider: p,
		prompt:   prompt,
		logger:   logger.With("component", "inference.analyzer"),
	}
}

// Analyze returns a one-sentence answer to question about f.
func (a *Analyzer) Analyze(ctx context.Context, f frame.Frame, question string) (string, error) {
	if f.IsZero() {
		return "", ErrNoImage
	}
	resp, err := a.provider.Vision(ctx, &VisionRequest{
		Image:  f.Image,
		Prompt: fmt.Sprintf(a.prompt, strings.TrimSpace(question)),
	})
	if err != nil {
		return "", err
	}
	a.logger.Info("question answered",
		"model", resp.Model,
		"latency_ms", resp.Latency.Milliseconds(),
		"tokens", resp.Usage.TotalTokens,
	)
	return strings.TrimSpace(resp.Content), nil
}
