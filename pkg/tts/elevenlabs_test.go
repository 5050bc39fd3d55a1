package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatseye/hatseye/internal/log"
)

const testBase = "https://tts.example.com/v1"

func newTestElevenLabs(t *testing.T) (*ElevenLabs, *httpmock.MockTransport) {
	t.Helper()
	tr := httpmock.NewMockTransport()
	e, err := NewElevenLabs(
		WithBaseURL(testBase),
		WithAPIKey("xi-secret"),
		WithHTTPClient(&http.Client{Transport: tr}),
		WithRetry(2, time.Millisecond),
		WithLogger(log.Discard()),
	)
	require.NoError(t, err)
	return e, tr
}

func TestNewElevenLabsRequiresKey(t *testing.T) {
	_, err := NewElevenLabs()
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestElevenLabsSynthesize(t *testing.T) {
	e, tr := newTestElevenLabs(t)

	tr.RegisterResponder(http.MethodPost, testBase+"/text-to-speech/EXAVITQu4vr4xnSDxMaL",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "xi-secret", req.Header.Get("xi-api-key"))
			assert.Equal(t, "audio/mpeg", req.Header.Get("Accept"))
			assert.Equal(t, "mp3_44100_128", req.URL.Query().Get("output_format"))
			assert.Equal(t, "4", req.URL.Query().Get("optimize_streaming_latency"))

			var body elevenLabsPayload
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "A white coffee mug.", body.Text)
			assert.Equal(t, ModelTurboV2_5, body.ModelID)
			assert.True(t, body.VoiceSettings.SpeakerBoost)

			return httpmock.NewBytesResponse(200, make([]byte, 16000)), nil
		})

	res, err := e.Synthesize(context.Background(), " A white coffee mug. ")
	require.NoError(t, err)
	assert.Len(t, res.Audio, 16000)
	assert.Equal(t, EncodingMP3, res.Format.Encoding)
	assert.Equal(t, time.Second, res.Duration)
	assert.Equal(t, 19, res.CharCount)
}

func TestElevenLabsEmptyText(t *testing.T) {
	e, tr := newTestElevenLabs(t)
	_, err := e.Synthesize(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Zero(t, tr.GetTotalCallCount())
}

func TestElevenLabsRetriesServerErrors(t *testing.T) {
	e, tr := newTestElevenLabs(t)

	calls := 0
	tr.RegisterResponder(http.MethodPost, testBase+"/text-to-speech/EXAVITQu4vr4xnSDxMaL",
		func(req *http.Request) (*http.Response, error) {
			calls++
			var body elevenLabsPayload
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "hello", body.Text)
			if calls < 3 {
				return httpmock.NewStringResponse(503, "busy"), nil
			}
			return httpmock.NewBytesResponse(200, []byte("mp3")), nil
		})

	res, err := e.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), res.Audio)
	assert.Equal(t, 3, calls)
}

func TestElevenLabsDoesNotRetryAuthErrors(t *testing.T) {
	e, tr := newTestElevenLabs(t)
	tr.RegisterResponder(http.MethodPost, testBase+"/text-to-speech/EXAVITQu4vr4xnSDxMaL",
		httpmock.NewStringResponder(401, `{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`))

	_, err := e.Synthesize(context.Background(), "hello")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsUnauthorized())
	assert.Equal(t, "invalid_api_key", apiErr.Code)
	assert.Equal(t, "Invalid API key", apiErr.Message)
	assert.Equal(t, 1, tr.GetTotalCallCount())
}

func TestElevenLabsHealth(t *testing.T) {
	e, tr := newTestElevenLabs(t)
	tr.RegisterResponder(http.MethodGet, testBase+"/user", httpmock.NewStringResponder(200, `{}`))
	assert.NoError(t, e.Health(context.Background()))
}
