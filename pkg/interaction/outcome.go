package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Reason classifies how a session ended.
type Reason string

const (
	ReasonAnswered        Reason = "answered"
	ReasonEmptyTranscript Reason = "empty_transcript"
	ReasonCapture         Reason = "capture"
	ReasonAnalysis        Reason = "analysis"
	ReasonSynthesis       Reason = "synthesis"
	ReasonTimeout         Reason = "timeout"
	ReasonCancelled       Reason = "cancelled"
)

var reasonMessages = map[Reason]string{
	ReasonAnswered:        "",
	ReasonEmptyTranscript: "Sorry, I didn't catch that.",
	ReasonCapture:         "I couldn't see anything from the camera.",
	ReasonAnalysis:        "I couldn't analyze that image.",
	ReasonSynthesis:       "I couldn't speak the answer.",
	ReasonTimeout:         "That took too long. Please ask again.",
	ReasonCancelled:       "Okay, cancelled.",
}

// Outcome is the user-facing result of a session.
type Outcome struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message,omitempty"`
	Answer  string `json:"answer,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Success reports whether the answer was delivered.
func (o Outcome) Success() bool {
	return o.Reason == ReasonAnswered
}

// Failure is an error describing why a session failed.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("interaction: %s", f.Reason)
	}
	return fmt.Sprintf("interaction: %s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func failed(reason Reason, err error) Outcome {
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		reason = ReasonTimeout
	}
	o := Outcome{Reason: reason, Message: reasonMessages[reason]}
	if err != nil {
		o.Detail = (&Failure{Reason: reason, Err: err}).Error()
	}
	return o
}

// quitWords end a session without analysis.
var quitWords = map[string]bool{
	"quit": true, "exit": true, "stop": true, "goodbye": true,
	"cancel": true, "never mind": true, "nevermind": true,
}

// IsQuit reports whether a question is a request to stop.
func IsQuit(question string) bool {
	return quitWords[strings.ToLower(strings.Trim(strings.TrimSpace(question), ".!?"))]
}

var errorMarkers = []string{
	"debug:", "api key error", "couldn't analyze", "quota", "exceeded",
	"billing", "please check", "wait for quota", "google cloud",
}

// LooksLikeError reports whether an answer is really an error or
// diagnostic message that must not be spoken.
func LooksLikeError(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	if strings.HasPrefix(t, "Error:") || strings.HasPrefix(t, "I couldn't") {
		return true
	}
	lower := strings.ToLower(t)
	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
