package inference

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel   = "gemini-2.0-flash"
)

// Config configures a vision provider. MaxTokens and Temperature are
// request defaults; answers are meant to fit one spoken sentence.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	MaxTokens   int
	Temperature float64

	// Frames are downscaled so the longest side is at most MaxImageDim and
	// uploaded as JPEG at JPEGQuality.
	MaxImageDim int
	JPEGQuality int

	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Option configures a Config.
type Option func(*Config)

func WithBaseURL(url string) Option         { return func(c *Config) { c.BaseURL = url } }
func WithAPIKey(key string) Option          { return func(c *Config) { c.APIKey = key } }
func WithModel(model string) Option         { return func(c *Config) { c.Model = model } }
func WithMaxTokens(n int) Option            { return func(c *Config) { c.MaxTokens = n } }
func WithTemperature(t float64) Option      { return func(c *Config) { c.Temperature = t } }
func WithTimeout(d time.Duration) Option    { return func(c *Config) { c.Timeout = d } }
func WithHTTPClient(hc *http.Client) Option { return func(c *Config) { c.HTTPClient = hc } }
func WithLogger(l *slog.Logger) Option      { return func(c *Config) { c.Logger = l } }

// WithImage bounds the uploaded frame size and JPEG quality.
func WithImage(maxDim, quality int) Option {
	return func(c *Config) {
		c.MaxImageDim = maxDim
		c.JPEGQuality = quality
	}
}

// DefaultConfig targets Gemini Flash with small, fast uploads.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     geminiBaseURL,
		Model:       geminiModel,
		MaxTokens:   150,
		Temperature: 0.4,
		MaxImageDim: 512,
		JPEGQuality: 70,
		Timeout:     20 * time.Second,
		Logger:      slog.Default(),
	}
}

// Apply applies opts in order.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate reports the first missing setting.
func (c *Config) Validate() error {
	switch {
	case c.APIKey == "":
		return ErrNoAPIKey
	case c.Model == "":
		return ErrNoModel
	}
	return nil
}
