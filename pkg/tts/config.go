package tts

import (
	"log/slog"
	"net/http"
	"time"
)

// Voices maps preset names to ElevenLabs voice IDs. Presets favor voices
// that stay intelligible over street noise.
var Voices = map[string]string{
	"bella":  "EXAVITQu4vr4xnSDxMaL",
	"rachel": "21m00Tcm4TlvDq8ikWAM",
	"elli":   "MF3mGyEYCl7XYWbV9V6O",
	"josh":   "TxGEqnHWrfWFTfGW9XjX",
	"adam":   "pNInz6obpgDQGcFmaJgB",
}

// DefaultVoice is the preset used when none is configured.
const DefaultVoice = "bella"

// ResolveElevenLabsVoice maps a preset name to its voice ID. Anything else
// is taken to be a raw voice ID.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := Voices[name]; ok {
		return id
	}
	return name
}

// Config configures a Provider.
type Config struct {
	APIKey  string
	BaseURL string

	VoiceID       string
	ModelID       string
	VoiceSettings VoiceSettings
	OutputFormat  Encoding

	// StreamingLatency is optimize_streaming_latency, 0 to 4. Zero leaves
	// it unset.
	StreamingLatency int

	Timeout    time.Duration
	HTTPClient *http.Client

	// Rate limits and 5xx responses are retried MaxRetries times with a
	// linearly growing delay.
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// Option configures a Config.
type Option func(*Config)

func WithAPIKey(key string) Option              { return func(c *Config) { c.APIKey = key } }
func WithBaseURL(url string) Option             { return func(c *Config) { c.BaseURL = url } }
func WithVoice(voiceID string) Option           { return func(c *Config) { c.VoiceID = voiceID } }
func WithModel(modelID string) Option           { return func(c *Config) { c.ModelID = modelID } }
func WithOutputFormat(enc Encoding) Option      { return func(c *Config) { c.OutputFormat = enc } }
func WithVoiceSettings(vs VoiceSettings) Option { return func(c *Config) { c.VoiceSettings = vs } }
func WithStreamingLatency(level int) Option     { return func(c *Config) { c.StreamingLatency = level } }
func WithTimeout(d time.Duration) Option        { return func(c *Config) { c.Timeout = d } }
func WithHTTPClient(hc *http.Client) Option     { return func(c *Config) { c.HTTPClient = hc } }
func WithLogger(logger *slog.Logger) Option     { return func(c *Config) { c.Logger = logger } }

// WithRetry sets how often failed requests are retried.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// DefaultConfig is tuned for short answers spoken as soon as possible.
func DefaultConfig() *Config {
	return &Config{
		VoiceID:          Voices[DefaultVoice],
		ModelID:          ModelTurboV2_5,
		OutputFormat:     EncodingMP3,
		StreamingLatency: 4,
		VoiceSettings:    DefaultVoiceSettings(),
		Timeout:          15 * time.Second,
		MaxRetries:       2,
		RetryDelay:       200 * time.Millisecond,
		Logger:           slog.Default(),
	}
}

// Apply applies opts in order.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate reports the first missing credential.
func (c *Config) Validate() error {
	switch {
	case c.APIKey == "":
		return ErrNoAPIKey
	case c.VoiceID == "":
		return ErrNoVoiceID
	}
	return nil
}
