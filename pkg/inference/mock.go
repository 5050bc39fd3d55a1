package inference

import (
	"context"
	"sync"
)

// Mock is a Provider with a fixed answer, used by tests and offline runs.
type Mock struct {
	// Answer is returned as the content of every Vision call.
	Answer string

	// Err, when set, fails Vision and Health.
	Err error

	mu    sync.Mutex
	calls []MockCall
}

var _ Provider = (*Mock)(nil)

// MockCall is one recorded call. Prompt is empty except for Vision.
type MockCall struct {
	Method string
	Prompt string
}

// NewMock returns a mock answering every question with answer.
func NewMock(answer string) *Mock {
	return &Mock{Answer: answer}
}

// WithError returns a mock failing every call with err.
func WithError(err error) *Mock {
	return &Mock{Err: err}
}

// Vision implements Provider.
func (m *Mock) Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error) {
	m.record("Vision", req.Prompt)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := len(req.Prompt) / 4
	return &VisionResponse{
		Content: m.Answer,
		Model:   "mock",
		Usage: Usage{
			PromptTokens:     words,
			CompletionTokens: len(m.Answer) / 4,
			TotalTokens:      words + len(m.Answer)/4,
		},
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

func (m *Mock) record(method, prompt string) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Prompt: prompt})
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

// LastCall returns the most recent call, or nil.
func (m *Mock) LastCall() *MockCall {
	calls := m.Calls()
	if len(calls) == 0 {
		return nil
	}
	return &calls[len(calls)-1]
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}
