package interaction

import (
	"github.com/google/uuid"

	"github.com/hatseye/hatseye/pkg/frame"
)

// Event is an input to Transition. Events produced by effects carry the
// session they belong to; results for any other session are ignored.
// A zero Session means "the current session".
type Event interface {
	session() uuid.UUID
}

// WakeWord reports a wake-word recognition result. Utterance holds any
// question spoken in the same breath.
type WakeWord struct {
	Matched    bool
	Confidence float64
	Keyword    string
	Utterance  string
}

// SpeechEnded reports that the user stopped speaking.
type SpeechEnded struct {
	Session uuid.UUID
}

// Transcript carries the recognized question text.
type Transcript struct {
	Session uuid.UUID
	Text    string
}

// FrameCaptured delivers the frame captured for the question.
type FrameCaptured struct {
	Session uuid.UUID
	Frame   frame.Frame
}

// CaptureFailed reports that no frame could be captured.
type CaptureFailed struct {
	Session uuid.UUID
	Err     error
}

// AnalysisDone carries the vision model's answer.
type AnalysisDone struct {
	Session uuid.UUID
	Answer  string
}

// AnalysisFailed reports a vision call failure.
type AnalysisFailed struct {
	Session uuid.UUID
	Err     error
}

// SynthesisDone carries synthesized speech.
type SynthesisDone struct {
	Session uuid.UUID
	Audio   []byte
	Format  string
}

// SynthesisFailed reports a speech synthesis failure.
type SynthesisFailed struct {
	Session uuid.UUID
	Err     error
}

// PlaybackDone reports that playback finished, successfully or not.
type PlaybackDone struct {
	Session uuid.UUID
	Err     error
}

// Timeout reports that the session spent too long in State.
type Timeout struct {
	Session uuid.UUID
	State   State
}

// Cancel abandons the current session.
type Cancel struct{}

func (WakeWord) session() uuid.UUID          { return uuid.Nil }
func (e SpeechEnded) session() uuid.UUID     { return e.Session }
func (e Transcript) session() uuid.UUID      { return e.Session }
func (e FrameCaptured) session() uuid.UUID   { return e.Session }
func (e CaptureFailed) session() uuid.UUID   { return e.Session }
func (e AnalysisDone) session() uuid.UUID    { return e.Session }
func (e AnalysisFailed) session() uuid.UUID  { return e.Session }
func (e SynthesisDone) session() uuid.UUID   { return e.Session }
func (e SynthesisFailed) session() uuid.UUID { return e.Session }
func (e PlaybackDone) session() uuid.UUID    { return e.Session }
func (e Timeout) session() uuid.UUID         { return e.Session }
func (Cancel) session() uuid.UUID            { return uuid.Nil }

// Effect is an action requested by Transition.
type Effect interface {
	effect()
}

// Cue identifies a short feedback sound.
type Cue string

const (
	CueWake     Cue = "wake"
	CueQuestion Cue = "question"
)

// PlayCue plays a feedback sound without waiting.
type PlayCue struct {
	Cue Cue
}

// CaptureFrame requests the next camera frame.
type CaptureFrame struct {
	Session uuid.UUID
}

// Analyze requests a vision answer for Question about Frame. Every
// request is independent; no history is carried between sessions.
type Analyze struct {
	Session  uuid.UUID
	Frame    frame.Frame
	Question string
}

// Synthesize requests speech for Text.
type Synthesize struct {
	Session uuid.UUID
	Text    string
}

// Play plays synthesized speech.
type Play struct {
	Session uuid.UUID
	Audio   []byte
	Format  string
}

// Notify reports how a session ended.
type Notify struct {
	Session uuid.UUID
	Outcome Outcome
}

func (PlayCue) effect()      {}
func (CaptureFrame) effect() {}
func (Analyze) effect()      {}
func (Synthesize) effect()   {}
func (Play) effect()         {}
func (Notify) effect()       {}
