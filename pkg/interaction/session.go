// Package interaction implements the voice question/answer session:
// wake word, question, frame capture, vision analysis, speech synthesis and
// playback.
//
// Transition is a pure function from (Session, Event) to the next Session
// and the Effects to run. Machine owns the single live session, runs
// effects asynchronously and feeds their results back as events.
package interaction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the session state.
type State int

const (
	Idle State = iota
	Listening
	Transcribing
	Capturing
	Analyzing
	Speaking
)

var stateNames = map[State]string{
	Idle:         "idle",
	Listening:    "listening",
	Transcribing: "transcribing",
	Capturing:    "capturing",
	Analyzing:    "analyzing",
	Speaking:     "speaking",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is the one interaction in progress, or the last one when Idle.
type Session struct {
	ID        uuid.UUID `json:"id"`
	State     State     `json:"state"`
	Question  string    `json:"question,omitempty"`
	Answer    string    `json:"answer,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	// Outcome is set when the session returns to Idle.
	Outcome *Outcome `json:"outcome,omitempty"`
}

// Active reports whether a session is in progress.
func (s Session) Active() bool {
	return s.State != Idle
}
