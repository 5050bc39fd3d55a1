package apierr

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status       int
		rateLimited  bool
		unauthorized bool
		notFound     bool
		retryable    bool
	}{
		{429, true, false, false, true},
		{401, false, true, false, false},
		{403, false, true, false, false},
		{404, false, false, true, false},
		{503, false, false, false, true},
		{400, false, false, false, false},
	}
	for _, tt := range tests {
		e := &Error{StatusCode: tt.status}
		assert.Equal(t, tt.rateLimited, e.IsRateLimited(), "status %d", tt.status)
		assert.Equal(t, tt.unauthorized, e.IsUnauthorized(), "status %d", tt.status)
		assert.Equal(t, tt.notFound, e.IsNotFound(), "status %d", tt.status)
		assert.Equal(t, tt.retryable, e.IsRetryable(), "status %d", tt.status)
	}
}

func TestErrorMessage(t *testing.T) {
	e := &Error{Service: "tts", Provider: "elevenlabs", StatusCode: 400, Code: "invalid_input", Message: "bad request"}
	assert.Equal(t, "tts [elevenlabs]: API error 400 (invalid_input): bad request", e.Error())

	e = &Error{Provider: "roboflow", StatusCode: 500, Message: "boom"}
	assert.Equal(t, "api [roboflow]: API error 500: boom", e.Error())
}

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestFromResponse(t *testing.T) {
	extract := func(body []byte) (string, string, bool) {
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

	e := FromResponse("inference", "gemini", response(429, `{"error":{"message":"quota","status":"RESOURCE_EXHAUSTED"}}`), extract)
	assert.Equal(t, "quota", e.Message)
	assert.Equal(t, "RESOURCE_EXHAUSTED", e.Code)
	assert.True(t, e.IsRateLimited())

	e = FromResponse("inference", "gemini", response(502, " bad gateway \n"), extract)
	assert.Equal(t, "bad gateway", e.Message)
	assert.Empty(t, e.Code)

	e = FromResponse("detection", "roboflow", response(403, "forbidden"), nil)
	assert.Equal(t, "forbidden", e.Message)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("tts", "mock", nil))

	base := errors.New("dial failed")
	err := Wrap("tts", "elevenlabs", base)
	require.ErrorIs(t, err, base)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "elevenlabs", pe.Provider)
	assert.Equal(t, "tts [elevenlabs]: dial failed", err.Error())
}
