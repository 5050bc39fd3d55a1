package frame

import (
	"context"
	"errors"
	"sync"
)

// ErrNoFrame is returned by Latest before the first frame is published.
var ErrNoFrame = errors.New("frame: no frame available")

// Latch holds the most recent frame and lets callers wait for a newer one.
// The frame loop is the only publisher.
type Latch struct {
	mu     sync.RWMutex
	latest Frame
	ready  chan struct{}
}

// NewLatch creates an empty latch.
func NewLatch() *Latch {
	return &Latch{ready: make(chan struct{})}
}

// Publish stores f and wakes every waiter.
func (l *Latch) Publish(f Frame) {
	l.mu.Lock()
	l.latest = f
	close(l.ready)
	l.ready = make(chan struct{})
	l.mu.Unlock()
}

// Latest returns the current frame.
func (l *Latch) Latest() (Frame, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.latest.IsZero() {
		return Frame{}, ErrNoFrame
	}
	return l.latest, nil
}

// Next blocks until a frame newer than the one current at call time is
// published, so the result is always captured after the request.
func (l *Latch) Next(ctx context.Context) (Frame, error) {
	l.mu.RLock()
	seq := l.latest.Seq
	have := !l.latest.IsZero()
	ready := l.ready
	l.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-ready:
		}

		l.mu.RLock()
		f := l.latest
		ready = l.ready
		l.mu.RUnlock()

		if !f.IsZero() && (!have || f.Seq > seq) {
			return f, nil
		}
	}
}
