package detection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hatseye/hatseye/pkg/frame"
	"github.com/hatseye/hatseye/pkg/refresh"
)

// CacheConfig holds detection cache configuration.
type CacheConfig struct {
	// Stride is the number of frames per fresh detection call.
	Stride int

	// Wait bounds how long ObserveFrame blocks on a stride frame.
	Wait time.Duration

	// Timeout bounds each detection call.
	Timeout time.Duration

	// JPEGQuality is used when encoding frames for the detector.
	JPEGQuality int

	// Active starts the cache enabled.
	Active bool

	// OnResult is called after each completed detector call.
	OnResult func(err error, latency time.Duration)

	Logger *slog.Logger
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Stride:      5,
		Wait:        250 * time.Millisecond,
		Timeout:     5 * time.Second,
		JPEGQuality: 80,
		Active:      true,
		Logger:      slog.Default(),
	}
}

// Cache serves detection results for every video frame while only calling
// the detector on every Stride-th frame.
type Cache struct {
	det     Detector
	quality int
	pr      *refresh.PeriodicRefresh[frame.Frame, Result]
}

// NewCache wraps det.
func NewCache(det Detector, cfg CacheConfig) *Cache {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Cache{det: det, quality: cfg.JPEGQuality}
	c.pr = refresh.New(c.detect,
		refresh.WithStride(cfg.Stride),
		refresh.WithWait(cfg.Wait),
		refresh.WithTimeout(cfg.Timeout),
		refresh.WithOnResult(cfg.OnResult),
		refresh.WithLogger(cfg.Logger.With("component", "detection.cache")),
	)
	if !cfg.Active {
		c.pr.Stop()
	}
	return c
}

func (c *Cache) detect(ctx context.Context, f frame.Frame) (Result, error) {
	jpeg, err := f.JPEG(c.quality)
	if err != nil {
		return Result{}, fmt.Errorf("detection: encode frame %d: %w", f.Seq, err)
	}
	dets, err := c.det.Detect(ctx, jpeg)
	if err != nil {
		return Result{}, err
	}
	return NewResult(dets, f.CapturedAt), nil
}

// ObserveFrame records one frame and returns the result to draw on it.
func (c *Cache) ObserveFrame(f frame.Frame) Result {
	return c.pr.Observe(f)
}

// Start enables detection.
func (c *Cache) Start() {
	c.pr.Start()
}

// Stop disables detection and clears the cached result.
func (c *Cache) Stop() {
	c.pr.Stop()
}

// Active reports whether detection is enabled.
func (c *Cache) Active() bool {
	return c.pr.Active()
}

// Last returns the cached result.
func (c *Cache) Last() Result {
	r, _ := c.pr.Last()
	return r
}

// FrameCount returns the frames observed since the last start.
func (c *Cache) FrameCount() uint64 {
	return c.pr.Counter()
}

// Close cancels in-flight calls and closes the detector.
func (c *Cache) Close() error {
	c.pr.Close()
	return c.det.Close()
}
