package tts

import (
	"context"
	"sync"
	"time"
)

// mockBytesPerChar sizes fake MP3 output at roughly natural speech pacing
// for 128 kbps.
const mockBytesPerChar = 1600

// Mock is a Provider that returns silent MP3-sized buffers. Every call is
// recorded in order.
type Mock struct {
	// Err, when set, fails Synthesize and Health.
	Err error

	// Delay is waited out before each Synthesize.
	Delay time.Duration

	mu    sync.Mutex
	calls []MockCall
}

var _ Provider = (*Mock)(nil)

// MockCall is one recorded call. Text is empty except for Synthesize.
type MockCall struct {
	Method string
	Text   string
}

// NewMock returns a working mock.
func NewMock() *Mock {
	return &Mock{}
}

// WithError returns a mock failing every call with err.
func WithError(err error) *Mock {
	return &Mock{Err: err}
}

// WithLatency makes every Synthesize on m wait d first.
func WithLatency(m *Mock, d time.Duration) *Mock {
	m.Delay = d
	return m
}

// Synthesize implements Provider.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.record("Synthesize", text)
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}

	audio := make([]byte, len(text)*mockBytesPerChar)
	return &AudioResult{
		Audio:     audio,
		Format:    EncodingMP3.Format(),
		Duration:  EstimateDuration(EncodingMP3, len(audio)),
		CharCount: len(text),
	}, nil
}

// Health implements Provider.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", "")
	return m.Err
}

// Close implements Provider.
func (m *Mock) Close() error {
	m.record("Close", "")
	return nil
}

func (m *Mock) record(method, text string) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text})
	m.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount counts recorded calls to method.
func (m *Mock) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}
