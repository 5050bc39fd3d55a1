package telemetry

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// fakePort emulates a serial port: Read returns buffered bytes or, after
// the read timeout, (0, nil).
type fakePort struct {
	mu      sync.Mutex
	in      bytes.Buffer
	out     bytes.Buffer
	timeout time.Duration
	closed  bool
	readErr error
}

func newFakePort(lines ...string) *fakePort {
	p := &fakePort{timeout: 5 * time.Millisecond}
	for _, l := range lines {
		p.in.WriteString(l + "\n")
	}
	return p
}

func (p *fakePort) Feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.WriteString(s)
}

func (p *fakePort) Read(b []byte) (int, error) {
	deadline := time.Now().Add(p.timeout)
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		if p.readErr != nil {
			err := p.readErr
			p.mu.Unlock()
			return 0, err
		}
		if p.in.Len() > 0 {
			n, _ := p.in.Read(b)
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()
		if time.Now().After(deadline) {
			return 0, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.out.Write(b)
}

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = t
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeBus maps paths to ports for an Opener.
type fakeBus struct {
	mu     sync.Mutex
	ports  map[string]*fakePort
	opened []string
}

func (b *fakeBus) open(path string, baud int) (Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, path)
	p, ok := b.ports[path]
	if !ok {
		return nil, errors.New("no such device")
	}
	if p.IsClosed() {
		return nil, errors.New("device gone")
	}
	return p, nil
}

func (b *fakeBus) Opened() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}
