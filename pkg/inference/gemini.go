package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hatseye/hatseye/internal/apierr"
	"github.com/hatseye/hatseye/internal/httpc"
)

const providerGemini = "gemini"

// Gemini implements Provider against Google's generateContent API.
type Gemini struct {
	apiKey string
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerGemini, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}

	return &Gemini{
		apiKey: cfg.APIKey,
		config: cfg,
		http:   hc,
		logger: cfg.Logger.With("component", "inference.gemini", "model", cfg.Model),
	}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.config.Model
}

// Vision analyzes an image using Gemini.
func (g *Gemini) Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error) {
	start := time.Now()

	if req.Image == nil {
		return nil, WrapError(providerGemini, ErrNoImage)
	}

	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	b64, err := EncodeImageBase64(req.Image, g.config.MaxImageDim, g.config.JPEGQuality)
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("encode image: %w", err))
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}
	temp := req.Temperature
	if temp == 0 {
		temp = g.config.Temperature
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: req.Prompt},
				{InlineData: &geminiBlob{MimeType: "image/jpeg", Data: b64}},
			},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     temp,
			MaxOutputTokens: maxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	httpReq, err := g.newRequest(ctx, http.MethodPost, model, ":generateContent", bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.parseError(resp)
	}

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("decode response: %w", err))
	}

	if result.Error.Message != "" {
		return nil, &APIError{
			Service:    "inference",
			Provider:   providerGemini,
			StatusCode: resp.StatusCode,
			Code:       result.Error.Status,
			Message:    result.Error.Message,
		}
	}

	text := result.text()
	if text == "" {
		return nil, WrapError(providerGemini, ErrEmptyResponse)
	}

	latency := time.Since(start)
	g.logger.Debug("vision complete", "latency_ms", latency.Milliseconds(), "chars", len(text))

	return &VisionResponse{
		Content: text,
		Usage: Usage{
			PromptTokens:     result.UsageMetadata.PromptTokenCount,
			CompletionTokens: result.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      result.UsageMetadata.TotalTokenCount,
		},
		Model:   model,
		Latency: latency,
	}, nil
}

// Health checks that the model exists and the key is accepted.
func (g *Gemini) Health(ctx context.Context) error {
	req, err := g.newRequest(ctx, http.MethodGet, g.config.Model, "", nil)
	if err != nil {
		return WrapError(providerGemini, err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return WrapError(providerGemini, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return g.parseError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close releases resources.
func (g *Gemini) Close() error {
	g.http.CloseIdleConnections()
	return nil
}

// newRequest builds a request for a model method. The key travels in a
// header so transport errors, which quote the URL, never carry it.
func (g *Gemini) newRequest(ctx context.Context, method, model, action string, body io.Reader) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/models/%s%s", strings.TrimRight(g.config.BaseURL, "/"), url.PathEscape(model), action)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)
	return req, nil
}

// parseError reads and parses an error response.
func (g *Gemini) parseError(resp *http.Response) error {
	return apierr.FromResponse("inference", providerGemini, resp, geminiErrorMessage)
}

// geminiErrorMessage reads the {"error": {"message", "status"}} envelope.
func geminiErrorMessage(body []byte) (string, string, bool) {
	var env struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) != nil || env.Error.Message == "" {
		return "", "", false
	}
	return env.Error.Message, env.Error.Status, true
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// geminiResponse is the Gemini API response format.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String())
}

// Verify Gemini implements Provider at compile time.
var _ Provider = (*Gemini)(nil)
