package inference

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Chain is a Provider that falls back through a list of models. Models
// share one API key, so a rejected key ends the chain early.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

var _ Provider = (*Chain)(nil)

// NewChain returns a chain over providers, tried in the order given.
func NewChain(providers ...Provider) (*Chain, error) {
	return newChain(slog.Default(), providers)
}

func newChain(logger *slog.Logger, providers []Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "inference.chain"),
	}, nil
}

// NewGeminiChain builds one Gemini provider per model. Options apply to
// every model; the model option itself is overridden.
func NewGeminiChain(models []string, opts ...Option) (*Chain, error) {
	if len(models) == 0 {
		return nil, WrapError(providerGemini, ErrNoModel)
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	providers := make([]Provider, len(models))
	for i, model := range models {
		g, err := NewGemini(append(opts[:len(opts):len(opts)], WithModel(model))...)
		if err != nil {
			return nil, err
		}
		providers[i] = g
	}
	return newChain(logger, providers)
}

// Vision returns the first successful answer.
func (c *Chain) Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error) {
	failed := &ChainError{}
	for i, p := range c.providers {
		resp, err := p.Vision(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("answered by fallback model", "index", i, "model", resp.Model)
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		failed.Errors = append(failed.Errors, err)

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
			c.logger.Error("api key rejected", "index", i, "error", err)
			break
		}
		c.logger.Warn("model failed, falling back", "index", i, "error", err)
	}
	return nil, failed
}

// Health succeeds when at least one model is reachable. Models are probed
// concurrently.
func (c *Chain) Health(ctx context.Context) error {
	errs := make([]error, len(c.providers))
	var wg sync.WaitGroup
	for i, p := range c.providers {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.Health(ctx)
		}()
	}
	wg.Wait()

	healthy := 0
	for _, err := range errs {
		if err == nil {
			healthy++
		}
	}
	c.logger.Debug("health checked", "healthy", healthy, "total", len(errs))
	if healthy == 0 {
		return WrapError("chain", errors.Join(errs...))
	}
	return nil
}

// Close closes every model.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
