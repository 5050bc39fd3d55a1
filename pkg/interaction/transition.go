package interaction

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates session ids. Tests may replace it.
var NewID = uuid.New

// Transition computes the next session and the effects to run. It has no
// side effects.
func Transition(s Session, ev Event, now time.Time) (Session, []Effect) {
	if id := ev.session(); id != uuid.Nil && id != s.ID {
		return s, nil
	}

	switch e := ev.(type) {
	case WakeWord:
		if s.State != Idle || !e.Matched {
			return s, nil
		}
		next := Session{ID: NewID(), State: Listening, StartedAt: now, UpdatedAt: now}
		if q := strings.TrimSpace(e.Utterance); q != "" {
			return question(next, q, now)
		}
		return next, []Effect{PlayCue{Cue: CueWake}}

	case Cancel:
		if s.State == Idle {
			return s, nil
		}
		return finish(s, failed(ReasonCancelled, nil), now)

	case Timeout:
		if s.State == Idle || e.State != s.State {
			return s, nil
		}
		return finish(s, failed(ReasonTimeout, nil), now)
	}

	switch s.State {
	case Listening:
		switch e := ev.(type) {
		case SpeechEnded:
			s.State = Transcribing
			s.UpdatedAt = now
			return s, nil
		case Transcript:
			return question(s, e.Text, now)
		}

	case Transcribing:
		if e, ok := ev.(Transcript); ok {
			return question(s, e.Text, now)
		}

	case Capturing:
		switch e := ev.(type) {
		case FrameCaptured:
			s.State = Analyzing
			s.UpdatedAt = now
			return s, []Effect{Analyze{Session: s.ID, Frame: e.Frame, Question: s.Question}}
		case CaptureFailed:
			return finish(s, failed(ReasonCapture, e.Err), now)
		}

	case Analyzing:
		switch e := ev.(type) {
		case AnalysisDone:
			answer := strings.TrimSpace(e.Answer)
			if LooksLikeError(answer) {
				o := failed(ReasonAnalysis, nil)
				o.Detail = answer
				return finish(s, o, now)
			}
			s.State = Speaking
			s.Answer = answer
			s.UpdatedAt = now
			return s, []Effect{Synthesize{Session: s.ID, Text: answer}}
		case AnalysisFailed:
			return finish(s, failed(ReasonAnalysis, e.Err), now)
		}

	case Speaking:
		switch e := ev.(type) {
		case SynthesisDone:
			return s, []Effect{Play{Session: s.ID, Audio: e.Audio, Format: e.Format}}
		case SynthesisFailed:
			return finish(s, failed(ReasonSynthesis, e.Err), now)
		case PlaybackDone:
			return finish(s, Outcome{Reason: ReasonAnswered, Answer: s.Answer}, now)
		}
	}

	return s, nil
}

// question handles the end of an utterance.
func question(s Session, text string, now time.Time) (Session, []Effect) {
	q := strings.TrimSpace(text)
	if q == "" {
		return finish(s, failed(ReasonEmptyTranscript, nil), now)
	}
	if IsQuit(q) {
		s.Question = q
		return finish(s, failed(ReasonCancelled, nil), now)
	}
	s.State = Capturing
	s.Question = q
	s.UpdatedAt = now
	return s, []Effect{
		PlayCue{Cue: CueQuestion},
		CaptureFrame{Session: s.ID},
	}
}

func finish(s Session, o Outcome, now time.Time) (Session, []Effect) {
	if o.Answer == "" {
		o.Answer = s.Answer
	}
	s.State = Idle
	s.UpdatedAt = now
	s.Outcome = &o
	return s, []Effect{Notify{Session: s.ID, Outcome: o}}
}
