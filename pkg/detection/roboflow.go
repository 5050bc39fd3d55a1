package detection

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hatseye/hatseye/internal/httpc"
	"golang.org/x/time/rate"
)

// RoboflowConfig holds hosted-model configuration.
type RoboflowConfig struct {
	APIURL  string // Inference endpoint base
	APIKey  string
	ModelID string // project/version, e.g. "road-damage-lh70u-dk94k/1"

	// Confidence and Overlap are percentages passed to the API.
	Confidence int
	Overlap    int

	// RateLimit caps outbound calls per second. Zero disables limiting.
	RateLimit float64

	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// RoboflowOption is a functional option for the Roboflow detector.
type RoboflowOption func(*RoboflowConfig)

// WithAPIURL sets the inference endpoint base URL.
func WithAPIURL(u string) RoboflowOption {
	return func(c *RoboflowConfig) { c.APIURL = u }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) RoboflowOption {
	return func(c *RoboflowConfig) { c.APIKey = key }
}

// WithModelID sets the hosted model id.
func WithModelID(id string) RoboflowOption {
	return func(c *RoboflowConfig) { c.ModelID = id }
}

// WithThresholds sets confidence and overlap percentages.
func WithThresholds(confidence, overlap int) RoboflowOption {
	return func(c *RoboflowConfig) {
		c.Confidence = confidence
		c.Overlap = overlap
	}
}

// WithRateLimit caps calls per second.
func WithRateLimit(perSecond float64) RoboflowOption {
	return func(c *RoboflowConfig) { c.RateLimit = perSecond }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) RoboflowOption {
	return func(c *RoboflowConfig) { c.HTTPClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) RoboflowOption {
	return func(c *RoboflowConfig) { c.Logger = l }
}

// DefaultRoboflowConfig returns sensible defaults.
func DefaultRoboflowConfig() *RoboflowConfig {
	return &RoboflowConfig{
		APIURL:     "https://detect.roboflow.com",
		ModelID:    "road-damage-lh70u-dk94k/1",
		Confidence: 40,
		Overlap:    30,
		RateLimit:  4,
		Timeout:    5 * time.Second,
		Logger:     slog.Default(),
	}
}

// Roboflow calls a Roboflow hosted object-detection model.
type Roboflow struct {
	cfg     *RoboflowConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ Detector = (*Roboflow)(nil)

// NewRoboflow creates a hosted-model detector.
func NewRoboflow(opts ...RoboflowOption) (*Roboflow, error) {
	cfg := DefaultRoboflowConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.ModelID == "" {
		return nil, ErrNoModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Roboflow{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		logger:  cfg.Logger.With("component", "detection.roboflow"),
	}, nil
}

type roboflowResponse struct {
	Predictions []struct {
		X          float64 `json:"x"`
		Y          float64 `json:"y"`
		Width      float64 `json:"width"`
		Height     float64 `json:"height"`
		Class      string  `json:"class"`
		Confidence float64 `json:"confidence"`
	} `json:"predictions"`
	Image struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"image"`
}

// Detect implements Detector.
func (r *Roboflow) Detect(ctx context.Context, jpeg []byte) ([]Detection, error) {
	if len(jpeg) == 0 {
		return nil, ErrEmptyImage
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("detection: rate limit wait: %w", err)
		}
	}

	params := url.Values{}
	params.Set("api_key", r.cfg.APIKey)
	params.Set("confidence", strconv.Itoa(r.cfg.Confidence))
	params.Set("overlap", strconv.Itoa(r.cfg.Overlap))
	endpoint := fmt.Sprintf("%s/%s?%s", strings.TrimRight(r.cfg.APIURL, "/"), r.cfg.ModelID, params.Encode())

	body := base64.StdEncoding.EncodeToString(jpeg)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("detection: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection: request failed: %w", redactQuery(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("detection: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Service: "detection", Provider: "roboflow", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	var parsed roboflowResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("detection: decode response: %w", err)
	}

	dets := make([]Detection, 0, len(parsed.Predictions))
	for _, p := range parsed.Predictions {
		dets = append(dets, Detection{
			Class:      p.Class,
			Confidence: p.Confidence,
			Box:        FromCenter(p.X, p.Y, p.Width, p.Height),
		})
	}

	r.logger.Debug("detect complete",
		"count", len(dets),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return dets, nil
}

// Close implements Detector.
func (r *Roboflow) Close() error {
	return nil
}

// redactQuery strips the query, which carries the API key, from the URL a
// transport error quotes.
func redactQuery(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if u, perr := url.Parse(ue.URL); perr == nil {
			u.RawQuery = ""
			ue.URL = u.String()
		}
	}
	return err
}
