package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AutoPort selects discovery instead of a fixed path.
const AutoPort = "auto"

// Config holds reader configuration.
type Config struct {
	// Port is a device path, or "" / "auto" for discovery.
	Port string
	Baud int

	// Sensors is the exact number of readings per frame.
	Sensors      int
	MaxIntensity int

	// ProbeTimeout bounds the wait for a valid frame from each
	// discovered candidate.
	ProbeTimeout time.Duration

	// ReadTimeout bounds each port read so cancellation is noticed.
	ReadTimeout time.Duration

	// LinkTimeout is the longest gap between valid frames before the link
	// is declared lost.
	LinkTimeout time.Duration

	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	MaxBackoff        time.Duration

	// MaxLineBytes drops runaway lines.
	MaxLineBytes int

	Opener Opener
	Lister Lister

	// OnStatus is called on every status change.
	OnStatus func(Status)
	// OnFrame is called for every complete line, accepted or not.
	OnFrame func(accepted bool)

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for a 4-sensor hat at 9600 baud.
func DefaultConfig() Config {
	return Config{
		Port:              AutoPort,
		Baud:              9600,
		Sensors:           4,
		MaxIntensity:      255,
		ProbeTimeout:      3 * time.Second,
		ReadTimeout:       100 * time.Millisecond,
		LinkTimeout:       3 * time.Second,
		ReconnectAttempts: 5,
		ReconnectBackoff:  500 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
		MaxLineBytes:      4096,
		Opener:            SerialOpener,
		Lister:            SerialLister,
		Logger:            slog.Default(),
	}
}

func (c *Config) auto() bool {
	return c.Port == "" || c.Port == AutoPort
}

// Reader owns the serial link. Run is the single writer of the snapshot;
// Poll may be called from any goroutine.
type Reader struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	port   Port
	path   string
	closed bool

	writeMu sync.Mutex

	snap    atomic.Pointer[Snapshot]
	lastBad atomic.Pointer[ParseError]
	status  atomic.Int32
}

// Open connects to the configured port, or discovers one. With discovery
// the winning candidate has already produced a valid frame.
func Open(ctx context.Context, cfg Config) (*Reader, error) {
	def := DefaultConfig()
	if cfg.Opener == nil {
		cfg.Opener = def.Opener
	}
	if cfg.Lister == nil {
		cfg.Lister = def.Lister
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = def.MaxLineBytes
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.Sensors < 1 {
		return nil, fmt.Errorf("telemetry: sensors must be at least 1")
	}

	r := &Reader{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "telemetry"),
	}
	r.status.Store(int32(StatusConnecting))

	if err := r.connect(ctx, false); err != nil {
		r.setStatus(StatusUnavailable)
		return nil, err
	}
	return r, nil
}

// connect opens the configured path or runs discovery and installs the port.
// With verify set, a configured path must also produce a valid frame within
// ProbeTimeout; a device that opens but stays silent counts as unavailable.
func (r *Reader) connect(ctx context.Context, verify bool) error {
	if !r.cfg.auto() {
		port, err := r.cfg.Opener(r.cfg.Port, r.cfg.Baud)
		if err != nil {
			return fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, r.cfg.Port, err)
		}
		if err := port.SetReadTimeout(r.cfg.ReadTimeout); err != nil {
			port.Close()
			return fmt.Errorf("%w: configure %s: %v", ErrDeviceUnavailable, r.cfg.Port, err)
		}
		if !verify {
			r.install(port, r.cfg.Port)
			r.logger.Info("telemetry port opened", "port", r.cfg.Port, "baud", r.cfg.Baud)
			return nil
		}
		snap, err := r.probe(ctx, port)
		if err != nil {
			port.Close()
			return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, r.cfg.Port, err)
		}
		r.install(port, r.cfg.Port)
		r.store(snap)
		return nil
	}

	port, path, snap, err := r.discover(ctx)
	if err != nil {
		return err
	}
	r.install(port, path)
	r.store(snap)
	r.logger.Info("telemetry device discovered", "port", path, "baud", r.cfg.Baud)
	return nil
}

func (r *Reader) install(port Port, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.port = port
	r.path = path
}

// discover probes candidates in order until one yields a valid frame.
func (r *Reader) discover(ctx context.Context) (Port, string, Snapshot, error) {
	ports, err := r.cfg.Lister()
	if err != nil {
		return nil, "", Snapshot{}, fmt.Errorf("%w: enumerate ports: %v", ErrDeviceUnavailable, err)
	}

	for _, p := range OrderCandidates(ports) {
		if ctx.Err() != nil {
			return nil, "", Snapshot{}, ctx.Err()
		}
		port, err := r.cfg.Opener(p.Name, r.cfg.Baud)
		if err != nil {
			r.logger.Debug("probe open failed", "port", p.Name, "error", err)
			continue
		}
		if err := port.SetReadTimeout(r.cfg.ReadTimeout); err != nil {
			port.Close()
			continue
		}

		snap, err := r.probe(ctx, port)
		if err == nil {
			return port, p.Name, snap, nil
		}
		r.logger.Debug("probe found no telemetry", "port", p.Name, "error", err)
		port.Close()
	}
	return nil, "", Snapshot{}, fmt.Errorf("%w: no port produced a valid frame", ErrDeviceUnavailable)
}

// probe reads until a valid frame arrives or ProbeTimeout passes.
func (r *Reader) probe(ctx context.Context, port Port) (Snapshot, error) {
	deadline := time.Now().Add(r.cfg.ProbeTimeout)
	lb := newLineBuffer(r.cfg.MaxLineBytes)
	buf := make([]byte, 256)

	var found *Snapshot
	for found == nil {
		if ctx.Err() != nil {
			return Snapshot{}, ctx.Err()
		}
		if time.Now().After(deadline) {
			return Snapshot{}, ErrNoFrame
		}
		n, err := port.Read(buf)
		if err != nil {
			return Snapshot{}, err
		}
		lb.write(buf[:n], func(line []byte) {
			if found != nil {
				return
			}
			if s, err := ParseFrame(line, r.cfg.Sensors, r.cfg.MaxIntensity, time.Now()); err == nil {
				found = &s
			}
		})
	}
	return *found, nil
}

// Run reads frames until ctx is done. When the link goes quiet it reports
// ErrLinkLost once, then retries with exponential backoff. A retry succeeds
// only once the device yields a valid frame. It returns ErrDeviceUnavailable
// when reconnection is exhausted.
func (r *Reader) Run(ctx context.Context) error {
	for {
		err := r.readLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.isClosed() {
			return ErrClosed
		}

		r.setStatus(StatusLinkLost)
		r.logger.Warn("telemetry link lost", "port", r.Path(), "error", err)
		r.closePort()

		if err := r.reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.setStatus(StatusUnavailable)
			r.logger.Error("telemetry device unavailable", "attempts", r.cfg.ReconnectAttempts)
			return ErrDeviceUnavailable
		}
	}
}

func (r *Reader) readLoop(ctx context.Context) error {
	r.mu.Lock()
	port := r.port
	r.mu.Unlock()
	if port == nil {
		return ErrLinkLost
	}

	lb := newLineBuffer(r.cfg.MaxLineBytes)
	buf := make([]byte, 256)
	lastFrame := time.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := port.Read(buf)
		if err != nil {
			return fmt.Errorf("%w: read: %v", ErrLinkLost, err)
		}
		if n > 0 {
			lb.write(buf[:n], func(line []byte) {
				if r.handleLine(line) {
					lastFrame = time.Now()
				}
			})
		}
		if r.cfg.LinkTimeout > 0 && time.Since(lastFrame) > r.cfg.LinkTimeout {
			return ErrLinkLost
		}
	}
}

// handleLine parses one line and publishes it if valid.
func (r *Reader) handleLine(line []byte) bool {
	snap, err := ParseFrame(line, r.cfg.Sensors, r.cfg.MaxIntensity, time.Now())
	if r.cfg.OnFrame != nil {
		r.cfg.OnFrame(err == nil)
	}
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			r.lastBad.Store(pe)
		}
		r.logger.Debug("frame rejected", "error", err)
		return false
	}
	r.store(snap)
	return true
}

func (r *Reader) store(s Snapshot) {
	r.snap.Store(&s)
	r.setStatus(StatusLinked)
}

func (r *Reader) reconnect(ctx context.Context) error {
	backoff := r.cfg.ReconnectBackoff
	for attempt := 1; attempt <= r.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if r.isClosed() {
			return ErrClosed
		}

		err := r.connect(ctx, true)
		if err == nil {
			r.logger.Info("telemetry link restored", "port", r.Path(), "attempt", attempt)
			return nil
		}
		r.logger.Debug("reconnect failed", "attempt", attempt, "error", err)

		backoff *= 2
		if r.cfg.MaxBackoff > 0 && backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}
	return ErrDeviceUnavailable
}

// Poll returns the latest valid snapshot.
func (r *Reader) Poll() (Snapshot, error) {
	switch r.Status() {
	case StatusUnavailable:
		return Snapshot{}, ErrDeviceUnavailable
	case StatusLinkLost:
		return Snapshot{}, ErrLinkLost
	}
	s := r.snap.Load()
	if s == nil {
		pe := &ParseError{Reason: "no valid frame received", Err: ErrNoFrame}
		if last := r.lastBad.Load(); last != nil {
			pe.Line = last.Line
		}
		return Snapshot{}, pe
	}
	return s.Clone(), nil
}

// Send writes a newline-terminated command to the device.
func (r *Reader) Send(command string) error {
	if r.Status() != StatusLinked && r.Status() != StatusConnecting {
		return ErrLinkLost
	}
	r.mu.Lock()
	port := r.port
	r.mu.Unlock()
	if port == nil {
		return ErrLinkLost
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n"
	}
	n, err := port.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("telemetry: send: %w", err)
	}
	if n != len(command) {
		return fmt.Errorf("telemetry: send: short write %d/%d", n, len(command))
	}
	return nil
}

// Status returns the link status.
func (r *Reader) Status() Status {
	return Status(r.status.Load())
}

// Path returns the open device path.
func (r *Reader) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *Reader) setStatus(s Status) {
	old := Status(r.status.Swap(int32(s)))
	if old == s {
		return
	}
	r.logger.Debug("telemetry status", "from", old.String(), "to", s.String())
	if r.cfg.OnStatus != nil {
		r.cfg.OnStatus(s)
	}
}

func (r *Reader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Reader) closePort() {
	r.mu.Lock()
	port := r.port
	r.port = nil
	r.mu.Unlock()
	if port != nil {
		port.Close()
	}
}

// Close releases the port. Run returns soon after.
func (r *Reader) Close() error {
	r.mu.Lock()
	r.closed = true
	port := r.port
	r.port = nil
	r.mu.Unlock()
	if port != nil {
		return port.Close()
	}
	return nil
}

// lineBuffer splits a byte stream into lines, dropping lines over max.
type lineBuffer struct {
	buf      []byte
	max      int
	overflow bool
}

func newLineBuffer(max int) *lineBuffer {
	return &lineBuffer{max: max}
}

func (lb *lineBuffer) write(p []byte, fn func(line []byte)) {
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			lb.append(p)
			return
		}
		lb.append(p[:i])
		if !lb.overflow {
			line := bytes.TrimRight(lb.buf, "\r")
			if len(bytes.TrimSpace(line)) > 0 {
				fn(line)
			}
		}
		lb.buf = lb.buf[:0]
		lb.overflow = false
		p = p[i+1:]
	}
}

func (lb *lineBuffer) append(p []byte) {
	if lb.overflow {
		return
	}
	if len(lb.buf)+len(p) > lb.max {
		lb.overflow = true
		lb.buf = lb.buf[:0]
		return
	}
	lb.buf = append(lb.buf, p...)
}
