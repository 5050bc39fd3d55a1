package tts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Cached wraps a provider and remembers synthesized phrases. Cue phrases
// and repeated answers are then spoken without a network round trip.
type Cached struct {
	provider Provider
	cache    *cache.Cache
	group    singleflight.Group
	timeout  time.Duration
	logger   *slog.Logger
}

// sharedCallTimeout bounds a provider call once it is detached from the
// caller that started it.
const sharedCallTimeout = 30 * time.Second

// NewCached wraps p with a cache whose entries live for ttl.
func NewCached(p Provider, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		provider: p,
		cache:    cache.New(ttl, ttl*2),
		timeout:  sharedCallTimeout,
		logger:   logger.With("component", "tts.cache"),
	}
}

func cacheKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Synthesize returns cached audio for text or synthesizes and stores it.
// Concurrent requests for the same phrase share one provider call, which
// outlives any single caller's cancellation.
func (c *Cached) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	key := cacheKey(text)
	if cached, found := c.cache.Get(key); found {
		c.logger.Debug("tts cache hit", "chars", len(text))
		return cached.(*AudioResult), nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		res, err := c.provider.Synthesize(sctx, text)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, res, cache.DefaultExpiration)
		return res, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*AudioResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Health checks the wrapped provider.
func (c *Cached) Health(ctx context.Context) error {
	return c.provider.Health(ctx)
}

// Close flushes the cache and closes the wrapped provider.
func (c *Cached) Close() error {
	c.cache.Flush()
	return c.provider.Close()
}

// Len returns the number of cached phrases.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}

// Verify Cached implements Provider at compile time.
var _ Provider = (*Cached)(nil)
