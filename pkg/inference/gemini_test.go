package inference

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatseye/hatseye/internal/log"
)

const testBase = "https://gemini.example.com/v1beta"

func newTestGemini(t *testing.T, model string) (*Gemini, *httpmock.MockTransport) {
	t.Helper()
	tr := httpmock.NewMockTransport()
	g, err := NewGemini(
		WithBaseURL(testBase),
		WithAPIKey("secret"),
		WithModel(model),
		WithHTTPClient(&http.Client{Transport: tr}),
		WithLogger(log.Discard()),
	)
	require.NoError(t, err)
	return g, tr
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini()
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestGeminiVision(t *testing.T) {
	g, tr := newTestGemini(t, "gemini-2.0-flash")

	tr.RegisterResponder(http.MethodPost, testBase+"/models/gemini-2.0-flash:generateContent",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "secret", req.Header.Get("x-goog-api-key"))
			assert.Empty(t, req.URL.RawQuery)

			var body geminiRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			require.Len(t, body.Contents, 1)
			parts := body.Contents[0].Parts
			require.Len(t, parts, 2)
			assert.Equal(t, "what is this", parts[0].Text)
			require.NotNil(t, parts[1].InlineData)
			assert.Equal(t, "image/jpeg", parts[1].InlineData.MimeType)
			assert.NotEmpty(t, parts[1].InlineData.Data)
			assert.Equal(t, 150, body.GenerationConfig.MaxOutputTokens)

			return httpmock.NewJsonResponse(200, map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{
						"parts": []map[string]any{{"text": "A white coffee mug.\n"}},
					},
					"finishReason": "STOP",
				}},
				"usageMetadata": map[string]any{"promptTokenCount": 300, "candidatesTokenCount": 8, "totalTokenCount": 308},
			})
		})

	resp, err := g.Vision(context.Background(), &VisionRequest{
		Image:  image.NewRGBA(image.Rect(0, 0, 1024, 768)),
		Prompt: "what is this",
	})
	require.NoError(t, err)
	assert.Equal(t, "A white coffee mug.", resp.Content)
	assert.Equal(t, "gemini-2.0-flash", resp.Model)
	assert.Equal(t, 308, resp.Usage.TotalTokens)
}

func TestGeminiVisionNoImage(t *testing.T) {
	g, _ := newTestGemini(t, "gemini-2.0-flash")
	_, err := g.Vision(context.Background(), &VisionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestGeminiQuotaError(t *testing.T) {
	g, tr := newTestGemini(t, "gemini-2.0-flash")
	tr.RegisterResponder(http.MethodPost, testBase+"/models/gemini-2.0-flash:generateContent",
		httpmock.NewStringResponder(429, `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`))

	_, err := g.Vision(context.Background(), &VisionRequest{Image: image.NewRGBA(image.Rect(0, 0, 4, 4))})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsRateLimited())
	assert.Equal(t, "RESOURCE_EXHAUSTED", apiErr.Code)
}

func TestGeminiEmptyCandidates(t *testing.T) {
	g, tr := newTestGemini(t, "gemini-2.0-flash")
	tr.RegisterResponder(http.MethodPost, testBase+"/models/gemini-2.0-flash:generateContent",
		httpmock.NewStringResponder(200, `{"candidates":[]}`))

	_, err := g.Vision(context.Background(), &VisionRequest{Image: image.NewRGBA(image.Rect(0, 0, 4, 4))})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiHealth(t *testing.T) {
	g, tr := newTestGemini(t, "gemini-2.0-flash")
	tr.RegisterResponder(http.MethodGet, testBase+"/models/gemini-2.0-flash",
		httpmock.NewStringResponder(200, `{"name":"models/gemini-2.0-flash"}`))
	assert.NoError(t, g.Health(context.Background()))

	g, tr = newTestGemini(t, "gemini-9")
	tr.RegisterResponder(http.MethodGet, testBase+"/models/gemini-9",
		httpmock.NewStringResponder(404, `{"error":{"message":"model not found","status":"NOT_FOUND"}}`))
	var apiErr *APIError
	require.True(t, errors.As(g.Health(context.Background()), &apiErr))
	assert.True(t, apiErr.IsNotFound())
}

func TestGeminiTransportErrorHidesKey(t *testing.T) {
	g, tr := newTestGemini(t, "gemini-2.0-flash")
	tr.RegisterResponder(http.MethodPost, testBase+"/models/gemini-2.0-flash:generateContent",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	_, err := g.Vision(context.Background(), &VisionRequest{Image: image.NewRGBA(image.Rect(0, 0, 4, 4))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NotContains(t, err.Error(), "secret")
}

func TestGeminiChainFallsBackOnQuota(t *testing.T) {
	tr := httpmock.NewMockTransport()
	tr.RegisterResponder(http.MethodPost, testBase+"/models/gemini-2.0-flash:generateContent",
		httpmock.NewStringResponder(429, `{"error":{"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
	tr.RegisterResponder(http.MethodPost, testBase+"/models/gemini-1.5-flash:generateContent",
		httpmock.NewStringResponder(200, `{"candidates":[{"content":{"parts":[{"text":"A bicycle."}]}}]}`))

	chain, err := NewGeminiChain([]string{"gemini-2.0-flash", "gemini-1.5-flash"},
		WithBaseURL(testBase),
		WithAPIKey("secret"),
		WithHTTPClient(&http.Client{Transport: tr}),
		WithLogger(log.Discard()),
	)
	require.NoError(t, err)

	resp, err := chain.Vision(context.Background(), &VisionRequest{Image: image.NewRGBA(image.Rect(0, 0, 4, 4))})
	require.NoError(t, err)
	assert.Equal(t, "A bicycle.", resp.Content)
	assert.Equal(t, "gemini-1.5-flash", resp.Model)
	assert.Equal(t, 2, tr.GetTotalCallCount())
}
