package interaction

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatseye/hatseye/pkg/frame"
)

var t0 = time.Unix(1_700_000_000, 0)

func fixedIDs(t *testing.T) []uuid.UUID {
	t.Helper()
	ids := []uuid.UUID{
		uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		uuid.MustParse("00000000-0000-0000-0000-000000000003"),
	}
	i := 0
	orig := NewID
	NewID = func() uuid.UUID {
		id := ids[i%len(ids)]
		i++
		return id
	}
	t.Cleanup(func() { NewID = orig })
	return ids
}

func step(t *testing.T, s Session, ev Event) (Session, []Effect) {
	t.Helper()
	return Transition(s, ev, t0)
}

func TestHappyPath(t *testing.T) {
	ids := fixedIDs(t)
	f := frame.New(nil, 42, t0)

	s, eff := step(t, Session{}, WakeWord{Matched: true, Confidence: 1})
	assert.Equal(t, Listening, s.State)
	assert.Equal(t, ids[0], s.ID)
	assert.Equal(t, []Effect{PlayCue{Cue: CueWake}}, eff)

	s, eff = step(t, s, SpeechEnded{})
	assert.Equal(t, Transcribing, s.State)
	assert.Empty(t, eff)

	s, eff = step(t, s, Transcript{Text: "what is in front of me"})
	assert.Equal(t, Capturing, s.State)
	assert.Equal(t, "what is in front of me", s.Question)
	assert.Equal(t, []Effect{PlayCue{Cue: CueQuestion}, CaptureFrame{Session: s.ID}}, eff)

	s, eff = step(t, s, FrameCaptured{Session: s.ID, Frame: f})
	assert.Equal(t, Analyzing, s.State)
	require.Len(t, eff, 1)
	an := eff[0].(Analyze)
	assert.Equal(t, "what is in front of me", an.Question)
	assert.Equal(t, uint64(42), an.Frame.Seq)

	s, eff = step(t, s, AnalysisDone{Session: s.ID, Answer: " A white coffee mug on a wooden table. "})
	assert.Equal(t, Speaking, s.State)
	assert.Equal(t, []Effect{Synthesize{Session: s.ID, Text: "A white coffee mug on a wooden table."}}, eff)

	s, eff = step(t, s, SynthesisDone{Session: s.ID, Audio: []byte("mp3"), Format: "mp3"})
	assert.Equal(t, Speaking, s.State)
	assert.Equal(t, []Effect{Play{Session: s.ID, Audio: []byte("mp3"), Format: "mp3"}}, eff)

	s, eff = step(t, s, PlaybackDone{Session: s.ID})
	assert.Equal(t, Idle, s.State)
	require.Len(t, eff, 1)
	n := eff[0].(Notify)
	assert.True(t, n.Outcome.Success())
	assert.Equal(t, "A white coffee mug on a wooden table.", n.Outcome.Answer)
	require.NotNil(t, s.Outcome)
}

func TestWakeIgnoredWhileBusy(t *testing.T) {
	fixedIDs(t)
	for _, st := range []State{Listening, Transcribing, Capturing, Analyzing, Speaking} {
		t.Run(st.String(), func(t *testing.T) {
			s := Session{ID: uuid.New(), State: st, Question: "q"}
			next, eff := step(t, s, WakeWord{Matched: true})
			assert.Equal(t, s, next)
			assert.Empty(t, eff)
		})
	}
}

func TestUnmatchedWakeIgnored(t *testing.T) {
	s, eff := step(t, Session{}, WakeWord{Matched: false})
	assert.Equal(t, Idle, s.State)
	assert.Empty(t, eff)
}

func TestWakeWithQuestion(t *testing.T) {
	fixedIDs(t)
	s, eff := step(t, Session{}, WakeWord{Matched: true, Utterance: "what color is this"})
	assert.Equal(t, Capturing, s.State)
	assert.Equal(t, "what color is this", s.Question)
	assert.Equal(t, []Effect{PlayCue{Cue: CueQuestion}, CaptureFrame{Session: s.ID}}, eff)
}

func TestEmptyTranscript(t *testing.T) {
	fixedIDs(t)
	s, _ := step(t, Session{}, WakeWord{Matched: true})
	s, eff := step(t, s, Transcript{Text: "   "})
	assert.Equal(t, Idle, s.State)
	require.Len(t, eff, 1)
	o := eff[0].(Notify).Outcome
	assert.Equal(t, ReasonEmptyTranscript, o.Reason)
	assert.Equal(t, "Sorry, I didn't catch that.", o.Message)
}

func TestQuitWord(t *testing.T) {
	fixedIDs(t)
	s, _ := step(t, Session{}, WakeWord{Matched: true})
	s, eff := step(t, s, Transcript{Text: "Goodbye!"})
	assert.Equal(t, Idle, s.State)
	assert.Equal(t, ReasonCancelled, eff[0].(Notify).Outcome.Reason)
}

func TestFailures(t *testing.T) {
	id := uuid.New()
	boom := errors.New("boom")
	tests := []struct {
		name   string
		state  State
		ev     Event
		reason Reason
	}{
		{"capture", Capturing, CaptureFailed{Session: id, Err: boom}, ReasonCapture},
		{"analysis", Analyzing, AnalysisFailed{Session: id, Err: boom}, ReasonAnalysis},
		{"analysis deadline", Analyzing, AnalysisFailed{Session: id, Err: fmt.Errorf("call: %w", context.DeadlineExceeded)}, ReasonTimeout},
		{"error answer", Analyzing, AnalysisDone{Session: id, Answer: "Error: Quota exceeded. Please check your Google Cloud billing."}, ReasonAnalysis},
		{"empty answer", Analyzing, AnalysisDone{Session: id, Answer: ""}, ReasonAnalysis},
		{"synthesis", Speaking, SynthesisFailed{Session: id, Err: boom}, ReasonSynthesis},
		{"listen timeout", Listening, Timeout{Session: id, State: Listening}, ReasonTimeout},
		{"cancel", Analyzing, Cancel{}, ReasonCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Session{ID: id, State: tt.state, Question: "q"}
			next, eff := step(t, s, tt.ev)
			assert.Equal(t, Idle, next.State)
			require.Len(t, eff, 1)
			n := eff[0].(Notify)
			assert.Equal(t, tt.reason, n.Outcome.Reason)
			assert.False(t, n.Outcome.Success())
			assert.NotEmpty(t, n.Outcome.Message)
		})
	}
}

func TestSynthesisFailureKeepsAnswerText(t *testing.T) {
	id := uuid.New()
	s := Session{ID: id, State: Speaking, Answer: "A red door."}
	_, eff := step(t, s, SynthesisFailed{Session: id, Err: errors.New("503")})
	assert.Equal(t, "A red door.", eff[0].(Notify).Outcome.Answer)
}

func TestPlaybackFailureStillReturnsIdle(t *testing.T) {
	id := uuid.New()
	s := Session{ID: id, State: Speaking, Answer: "A red door."}
	next, _ := step(t, s, PlaybackDone{Session: id, Err: errors.New("no audio device")})
	assert.Equal(t, Idle, next.State)
}

func TestStaleEventsIgnored(t *testing.T) {
	cur := Session{ID: uuid.New(), State: Analyzing, Question: "q"}
	old := uuid.New()

	for _, ev := range []Event{
		AnalysisDone{Session: old, Answer: "stale"},
		AnalysisFailed{Session: old},
		Timeout{Session: old, State: Analyzing},
		FrameCaptured{Session: old},
	} {
		next, eff := step(t, cur, ev)
		assert.Equal(t, cur, next)
		assert.Empty(t, eff)
	}
}

func TestTimeoutForOtherStateIgnored(t *testing.T) {
	id := uuid.New()
	s := Session{ID: id, State: Capturing}
	next, eff := step(t, s, Timeout{Session: id, State: Listening})
	assert.Equal(t, s, next)
	assert.Empty(t, eff)
}

func TestIdleIgnoresResults(t *testing.T) {
	s := Session{}
	for _, ev := range []Event{SpeechEnded{}, Transcript{Text: "hello"}, Cancel{}, PlaybackDone{}} {
		next, eff := step(t, s, ev)
		assert.Equal(t, Idle, next.State)
		assert.Empty(t, eff)
	}
}

func TestLooksLikeError(t *testing.T) {
	for _, s := range []string{
		"", "Error: something", "I couldn't analyze that image.",
		"Quota exceeded", "please check your API key", "debug: x",
	} {
		assert.True(t, LooksLikeError(s), s)
	}
	for _, s := range []string{"A white coffee mug.", "There is a door to your left."} {
		assert.False(t, LooksLikeError(s), s)
	}
}

func TestStateJSON(t *testing.T) {
	b, err := Speaking.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "speaking", string(b))
	assert.Equal(t, "state(99)", State(99).String())
}
