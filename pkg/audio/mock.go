package audio

import (
	"context"
	"sync"
)

// Mock records playback for testing.
type Mock struct {
	// PlayFunc, if set, is called by Play and PlayFile.
	PlayFunc func(ctx context.Context, audio []byte, format string) error

	mu     sync.Mutex
	played [][]byte
	files  []string
}

// Play records audio.
func (m *Mock) Play(ctx context.Context, audio []byte, format string) error {
	m.mu.Lock()
	m.played = append(m.played, audio)
	m.mu.Unlock()
	if m.PlayFunc != nil {
		return m.PlayFunc(ctx, audio, format)
	}
	return nil
}

// PlayFile records the path.
func (m *Mock) PlayFile(ctx context.Context, path string) error {
	m.mu.Lock()
	m.files = append(m.files, path)
	m.mu.Unlock()
	if m.PlayFunc != nil {
		return m.PlayFunc(ctx, nil, formatFromPath(path))
	}
	return nil
}

// Played returns the audio buffers played so far.
func (m *Mock) Played() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.played...)
}

// Files returns the files played so far.
func (m *Mock) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.files...)
}

var (
	_ Player     = (*Mock)(nil)
	_ FilePlayer = (*Mock)(nil)
)
