// Package refresh implements a frame-counted cache around an expensive call.
//
// A PeriodicRefresh is fed once per input (a video frame, usually). Every
// Stride-th input dispatches the refresh function in the background; all
// other inputs return the last good value immediately. The caller never
// waits longer than the configured Wait budget.
//
//	pr := refresh.New(detect, refresh.WithStride(5), refresh.WithWait(200*time.Millisecond))
//	defer pr.Close()
//	for f := range frames {
//	    result := pr.Observe(f)
//	    ...
//	}
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Func produces a fresh value for an input.
type Func[In, T any] func(ctx context.Context, in In) (T, error)

// Config holds refresh configuration.
type Config struct {
	// Stride is the number of inputs per fresh call. Must be >= 1.
	Stride int

	// Wait is how long Observe waits for a dispatched call before falling
	// back to the cached value. Zero never waits.
	Wait time.Duration

	// Timeout bounds each call.
	Timeout time.Duration

	// OnResult, if set, is called after every completed call.
	OnResult func(err error, latency time.Duration)

	Logger *slog.Logger
}

// Option is a functional option for configuring a PeriodicRefresh.
type Option func(*Config)

// WithStride sets the stride.
func WithStride(n int) Option {
	return func(c *Config) { c.Stride = n }
}

// WithWait sets the per-frame wait budget.
func WithWait(d time.Duration) Option {
	return func(c *Config) { c.Wait = d }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithOnResult installs a completion hook.
func WithOnResult(fn func(err error, latency time.Duration)) Option {
	return func(c *Config) { c.OnResult = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Stride:  5,
		Wait:    250 * time.Millisecond,
		Timeout: 5 * time.Second,
		Logger:  slog.Default(),
	}
}

// PeriodicRefresh caches the result of Func between strides.
// All methods are safe for concurrent use.
type PeriodicRefresh[In, T any] struct {
	cfg    *Config
	fn     Func[In, T]
	logger *slog.Logger

	mu      sync.Mutex
	last    T
	hasLast bool
	counter uint64
	active  bool
	closed  bool

	// gen invalidates calls dispatched before the last Stop.
	gen uint64
	// seq orders dispatched calls; applied is the seq of the current value.
	seq     uint64
	applied uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an active PeriodicRefresh.
func New[In, T any](fn Func[In, T], opts ...Option) *PeriodicRefresh[In, T] {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Stride < 1 {
		cfg.Stride = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PeriodicRefresh[In, T]{
		cfg:    cfg,
		fn:     fn,
		logger: cfg.Logger.With("component", "refresh"),
		active: true,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Observe records one input and returns the value to use for it.
// The counter is incremented before the stride check, so with stride K
// inputs 1..K-1 are served from cache and input K triggers a call.
func (p *PeriodicRefresh[In, T]) Observe(in In) T {
	p.mu.Lock()
	if !p.active || p.closed {
		var zero T
		p.mu.Unlock()
		return zero
	}

	p.counter++
	if p.counter%uint64(p.cfg.Stride) != 0 {
		v := p.last
		p.mu.Unlock()
		return v
	}

	p.seq++
	seq, gen := p.seq, p.gen
	done := make(chan struct{})
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(in, seq, gen, done)

	if p.cfg.Wait > 0 {
		timer := time.NewTimer(p.cfg.Wait)
		select {
		case <-done:
		case <-timer.C:
		}
		timer.Stop()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		var zero T
		return zero
	}
	return p.last
}

func (p *PeriodicRefresh[In, T]) run(in In, seq, gen uint64, done chan struct{}) {
	defer p.wg.Done()
	defer close(done)

	ctx := p.ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	v, err := p.fn(ctx, in)
	latency := time.Since(start)

	if p.cfg.OnResult != nil {
		p.cfg.OnResult(err, latency)
	}
	p.apply(seq, gen, v, err, latency)
}

func (p *PeriodicRefresh[In, T]) apply(seq, gen uint64, v T, err error, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen || p.closed {
		p.logger.Debug("discarding result from previous generation", "seq", seq)
		return
	}
	if err != nil {
		p.logger.Warn("refresh failed, keeping last result", "seq", seq, "error", err, "latency_ms", latency.Milliseconds())
		return
	}
	if seq < p.applied {
		p.logger.Debug("discarding out-of-order result", "seq", seq, "applied", p.applied)
		return
	}
	p.last = v
	p.hasLast = true
	p.applied = seq
}

// Start re-enables refreshing after Stop. The counter starts from zero.
func (p *PeriodicRefresh[In, T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return
	}
	p.active = true
	p.counter = 0
}

// Stop disables refreshing and clears the cached value. Calls still in
// flight are discarded when they complete.
func (p *PeriodicRefresh[In, T]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
	p.reset()
}

// Reset clears the cached value and counter without disabling.
func (p *PeriodicRefresh[In, T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

func (p *PeriodicRefresh[In, T]) reset() {
	var zero T
	p.last = zero
	p.hasLast = false
	p.counter = 0
	p.gen++
	p.applied = p.seq
}

// Active reports whether refreshing is enabled.
func (p *PeriodicRefresh[In, T]) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Last returns the cached value and whether one has been produced.
func (p *PeriodicRefresh[In, T]) Last() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// Counter returns the number of inputs observed since the last reset.
func (p *PeriodicRefresh[In, T]) Counter() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counter
}

// Close cancels in-flight calls and waits for them to return.
func (p *PeriodicRefresh[In, T]) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
