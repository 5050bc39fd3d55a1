package interaction

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hatseye/hatseye/pkg/frame"
	"github.com/hatseye/hatseye/pkg/wakeword"
)

// ErrNotRunning is returned when dispatching to a stopped machine.
var ErrNotRunning = errors.New("interaction: machine not running")

// FrameSource yields the next frame captured after the call.
type FrameSource interface {
	Next(ctx context.Context) (frame.Frame, error)
}

// Analyzer answers a question about a frame.
type Analyzer interface {
	Analyze(ctx context.Context, f frame.Frame, question string) (string, error)
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio []byte, format string, err error)
}

// Player plays audio to completion.
type Player interface {
	Play(ctx context.Context, audio []byte, format string) error
}

// CuePlayer plays short feedback sounds without blocking.
type CuePlayer interface {
	PlayCue(cue Cue)
}

// Config holds machine configuration.
type Config struct {
	// ListenTimeout bounds Listening and Transcribing.
	ListenTimeout    time.Duration
	CaptureTimeout   time.Duration
	AnalysisTimeout  time.Duration
	SynthesisTimeout time.Duration
	PlaybackTimeout  time.Duration

	// Matcher interprets raw utterances. Nil uses wakeword.New().
	Matcher *wakeword.Matcher

	// OnChange is called from the machine goroutine after every state change.
	OnChange func(Session)
	// OnOutcome is called from the machine goroutine when a session ends.
	OnOutcome func(Outcome)

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenTimeout:    10 * time.Second,
		CaptureTimeout:   2 * time.Second,
		AnalysisTimeout:  20 * time.Second,
		SynthesisTimeout: 15 * time.Second,
		PlaybackTimeout:  60 * time.Second,
		Logger:           slog.Default(),
	}
}

// Deps are the collaborators that effects run against.
type Deps struct {
	Frames      FrameSource
	Analyzer    Analyzer
	Synthesizer Synthesizer
	Player      Player
	Cues        CuePlayer
}

// utterance is raw recognizer text, resolved against the current state
// inside the machine goroutine.
type utterance struct {
	text  string
	final bool
}

func (utterance) session() uuid.UUID { return uuid.Nil }

// Machine runs the interaction session. Run owns the session; every other
// method is safe for concurrent use.
type Machine struct {
	cfg     Config
	deps    Deps
	matcher *wakeword.Matcher
	logger  *slog.Logger

	events  chan Event
	running atomic.Bool
	current atomic.Pointer[Session]

	// owned by Run
	session Session
	timer   *time.Timer
	wg      sync.WaitGroup

	now func() time.Time
}

// NewMachine creates an idle machine.
func NewMachine(cfg Config, deps Deps) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Matcher == nil {
		cfg.Matcher = wakeword.New()
	}
	m := &Machine{
		cfg:     cfg,
		deps:    deps,
		matcher: cfg.Matcher,
		logger:  cfg.Logger.With("component", "interaction"),
		events:  make(chan Event, 32),
		now:     time.Now,
	}
	m.current.Store(&Session{})
	return m
}

// Run processes events until ctx is done, then waits for running effects.
func (m *Machine) Run(ctx context.Context) error {
	m.running.Store(true)
	defer m.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		m.stopTimer()
		m.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			m.apply(runCtx, ev)
		}
	}
}

// Dispatch queues an event.
func (m *Machine) Dispatch(ctx context.Context, ev Event) error {
	select {
	case m.events <- ev:
		return nil
	default:
	}
	if !m.running.Load() {
		return ErrNotRunning
	}
	select {
	case m.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wake reports a wake-word result from an external recognizer.
func (m *Machine) Wake(ctx context.Context, ev wakeword.Event) error {
	return m.Dispatch(ctx, WakeWord{
		Matched:    ev.Matched,
		Confidence: ev.Confidence,
		Keyword:    ev.Keyword,
		Utterance:  ev.Remainder,
	})
}

// Hear feeds raw recognizer text. While idle it is matched against the
// wake phrase; during a session a final utterance becomes the question.
func (m *Machine) Hear(ctx context.Context, text string, final bool) error {
	return m.Dispatch(ctx, utterance{text: text, final: final})
}

// Ask starts a session with a typed question.
func (m *Machine) Ask(ctx context.Context, question string) error {
	return m.Dispatch(ctx, WakeWord{Matched: true, Confidence: 1, Keyword: "text", Utterance: question})
}

// Cancel abandons the current session.
func (m *Machine) Cancel(ctx context.Context) error {
	return m.Dispatch(ctx, Cancel{})
}

// Running reports whether Run is active.
func (m *Machine) Running() bool {
	return m.running.Load()
}

// Session returns a copy of the current session.
func (m *Machine) Session() Session {
	return *m.current.Load()
}

func (m *Machine) resolve(ev Event) (Event, bool) {
	u, ok := ev.(utterance)
	if !ok {
		return ev, true
	}
	if m.session.State == Idle {
		w := m.matcher.Match(u.text)
		if !w.Matched {
			return nil, false
		}
		m.logger.Info("wake word detected", "keyword", w.Keyword, "confidence", w.Confidence)
		return WakeWord{Matched: true, Confidence: w.Confidence, Keyword: w.Keyword, Utterance: w.Remainder}, true
	}
	if !u.final {
		return nil, false
	}
	return Transcript{Session: m.session.ID, Text: m.matcher.StripWakePhrase(u.text)}, true
}

func (m *Machine) apply(ctx context.Context, raw Event) {
	ev, ok := m.resolve(raw)
	if !ok {
		return
	}

	prev := m.session
	next, effects := Transition(prev, ev, m.now())
	m.session = next

	if next.State != prev.State || next.ID != prev.ID {
		m.logger.Debug("session transition",
			"session", next.ID,
			"from", prev.State.String(),
			"to", next.State.String(),
		)
		cp := next
		m.current.Store(&cp)
		m.armTimeout(next)
		if m.cfg.OnChange != nil {
			m.cfg.OnChange(cp)
		}
	} else if len(effects) == 0 {
		m.logger.Debug("event ignored", "state", prev.State.String(), "event", eventName(ev))
	}

	for _, eff := range effects {
		m.run(ctx, eff)
	}
}

// armTimeout starts the watchdog for states that wait on the user.
func (m *Machine) armTimeout(s Session) {
	m.stopTimer()
	if s.State != Listening && s.State != Transcribing {
		return
	}
	if m.cfg.ListenTimeout <= 0 {
		return
	}
	id, state := s.ID, s.State
	m.timer = time.AfterFunc(m.cfg.ListenTimeout, func() {
		select {
		case m.events <- Timeout{Session: id, State: state}:
		default:
			m.logger.Warn("event queue full, dropping timeout", "session", id)
		}
	})
}

func (m *Machine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) run(ctx context.Context, eff Effect) {
	switch e := eff.(type) {
	case PlayCue:
		if m.deps.Cues != nil {
			m.deps.Cues.PlayCue(e.Cue)
		}

	case Notify:
		if e.Outcome.Success() {
			m.logger.Info("session answered", "session", e.Session)
		} else {
			m.logger.Warn("session ended", "session", e.Session, "reason", string(e.Outcome.Reason), "detail", e.Outcome.Detail)
		}
		if m.cfg.OnOutcome != nil {
			m.cfg.OnOutcome(e.Outcome)
		}

	case CaptureFrame:
		m.async(ctx, m.cfg.CaptureTimeout, func(ctx context.Context) Event {
			if m.deps.Frames == nil {
				return CaptureFailed{Session: e.Session, Err: frame.ErrNoFrame}
			}
			f, err := m.deps.Frames.Next(ctx)
			if err != nil {
				return CaptureFailed{Session: e.Session, Err: err}
			}
			return FrameCaptured{Session: e.Session, Frame: f}
		})

	case Analyze:
		m.async(ctx, m.cfg.AnalysisTimeout, func(ctx context.Context) Event {
			start := time.Now()
			answer, err := m.deps.Analyzer.Analyze(ctx, e.Frame, e.Question)
			if err != nil {
				return AnalysisFailed{Session: e.Session, Err: err}
			}
			m.logger.Info("analysis complete", "session", e.Session, "latency_ms", time.Since(start).Milliseconds())
			return AnalysisDone{Session: e.Session, Answer: answer}
		})

	case Synthesize:
		m.async(ctx, m.cfg.SynthesisTimeout, func(ctx context.Context) Event {
			audio, format, err := m.deps.Synthesizer.Synthesize(ctx, e.Text)
			if err != nil {
				return SynthesisFailed{Session: e.Session, Err: err}
			}
			return SynthesisDone{Session: e.Session, Audio: audio, Format: format}
		})

	case Play:
		m.async(ctx, m.cfg.PlaybackTimeout, func(ctx context.Context) Event {
			err := m.deps.Player.Play(ctx, e.Audio, e.Format)
			if err != nil {
				m.logger.Warn("playback failed", "session", e.Session, "error", err)
			}
			return PlaybackDone{Session: e.Session, Err: err}
		})
	}
}

// async runs fn in its own goroutine with a timeout and feeds the result
// back into the event loop.
func (m *Machine) async(ctx context.Context, timeout time.Duration, fn func(context.Context) Event) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		callCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		ev := fn(callCtx)
		select {
		case m.events <- ev:
		case <-ctx.Done():
		}
	}()
}

func eventName(ev Event) string {
	switch ev.(type) {
	case WakeWord:
		return "wake_word"
	case SpeechEnded:
		return "speech_ended"
	case Transcript:
		return "transcript"
	case FrameCaptured:
		return "frame_captured"
	case CaptureFailed:
		return "capture_failed"
	case AnalysisDone:
		return "analysis_done"
	case AnalysisFailed:
		return "analysis_failed"
	case SynthesisDone:
		return "synthesis_done"
	case SynthesisFailed:
		return "synthesis_failed"
	case PlaybackDone:
		return "playback_done"
	case Timeout:
		return "timeout"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}
