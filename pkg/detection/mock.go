package detection

import (
	"context"
	"sync"
)

// Mock implements Detector for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	DetectFunc func(ctx context.Context, jpeg []byte) ([]Detection, error)

	mu    sync.Mutex
	calls int
}

// NewMock returns a mock that yields the given scripted results, one per
// call, repeating the last one.
func NewMock(script ...[]Detection) *Mock {
	m := &Mock{}
	m.DetectFunc = func(ctx context.Context, jpeg []byte) ([]Detection, error) {
		if len(script) == 0 {
			return nil, nil
		}
		i := m.CallCount() - 1
		if i >= len(script) {
			i = len(script) - 1
		}
		return script[i], nil
	}
	return m
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(ctx context.Context, jpeg []byte) ([]Detection, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, jpeg)
	}
	return nil, nil
}

// CallCount returns the number of Detect calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close implements Detector.
func (m *Mock) Close() error {
	return nil
}
