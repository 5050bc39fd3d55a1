// Package telemetry reads proximity and vibration-motor telemetry from the
// hat's microcontroller over a serial link.
//
// The device emits one JSON object per line:
//
//	{"sensors":[{"id":1,"distance":40,"intensity":80}, ...]}
//
// A frame is accepted only if it carries exactly the configured number of
// sensors with ids 1..N; anything else is discarded whole and the previous
// snapshot stays current.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel errors.
var (
	// ErrDeviceUnavailable is returned when no device can be opened.
	ErrDeviceUnavailable = errors.New("telemetry: device unavailable")

	// ErrLinkLost is returned when an open link stops producing frames.
	ErrLinkLost = errors.New("telemetry: link lost")

	// ErrNoFrame is wrapped by ParseError before the first valid frame.
	ErrNoFrame = errors.New("telemetry: no valid frame received")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("telemetry: reader closed")
)

// ParseError describes a rejected frame.
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("telemetry: parse: %s", e.Reason)
	}
	return fmt.Sprintf("telemetry: parse: %s: %q", e.Reason, e.Line)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SensorReading is one sensor/motor pair.
type SensorReading struct {
	ID         int `json:"id"`
	DistanceCM int `json:"distance"`
	Intensity  int `json:"intensity"`
}

// Snapshot is a complete, validated telemetry frame.
type Snapshot struct {
	Readings   []SensorReading `json:"sensors"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	cp := s
	cp.Readings = append([]SensorReading(nil), s.Readings...)
	return cp
}

// Nearest returns the reading with the smallest distance.
func (s Snapshot) Nearest() (SensorReading, bool) {
	if len(s.Readings) == 0 {
		return SensorReading{}, false
	}
	best := s.Readings[0]
	for _, r := range s.Readings[1:] {
		if r.DistanceCM < best.DistanceCM {
			best = r
		}
	}
	return best, true
}

// Status is the link state.
type Status int32

const (
	StatusConnecting Status = iota
	StatusLinked
	StatusLinkLost
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusLinked:
		return "linked"
	case StatusLinkLost:
		return "link_lost"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type wireFrame struct {
	Sensors []struct {
		ID        *int `json:"id"`
		Distance  *int `json:"distance"`
		Intensity *int `json:"intensity"`
	} `json:"sensors"`
}

const maxQuotedLine = 120

func quoteLine(line []byte) string {
	s := strings.TrimSpace(string(line))
	if len(s) > maxQuotedLine {
		s = s[:maxQuotedLine] + "..."
	}
	return s
}

// ParseFrame validates one line against the expected sensor count and
// intensity range.
func ParseFrame(line []byte, sensors, maxIntensity int, at time.Time) (Snapshot, error) {
	reject := func(reason string) (Snapshot, error) {
		return Snapshot{}, &ParseError{Line: quoteLine(line), Reason: reason}
	}

	var wf wireFrame
	if err := json.Unmarshal(line, &wf); err != nil {
		return reject("malformed json")
	}
	if len(wf.Sensors) != sensors {
		return reject(fmt.Sprintf("expected %d sensors, got %d", sensors, len(wf.Sensors)))
	}

	seen := make(map[int]bool, sensors)
	readings := make([]SensorReading, 0, sensors)
	for _, s := range wf.Sensors {
		if s.ID == nil || s.Distance == nil || s.Intensity == nil {
			return reject("missing field")
		}
		id := *s.ID
		if id < 1 || id > sensors {
			return reject(fmt.Sprintf("sensor id %d out of range", id))
		}
		if seen[id] {
			return reject(fmt.Sprintf("duplicate sensor id %d", id))
		}
		seen[id] = true
		if *s.Distance < 0 {
			return reject(fmt.Sprintf("sensor %d negative distance", id))
		}
		if *s.Intensity < 0 || *s.Intensity > maxIntensity {
			return reject(fmt.Sprintf("sensor %d intensity %d out of range", id, *s.Intensity))
		}
		readings = append(readings, SensorReading{ID: id, DistanceCM: *s.Distance, Intensity: *s.Intensity})
	}

	sort.Slice(readings, func(i, j int) bool { return readings[i].ID < readings[j].ID })
	return Snapshot{Readings: readings, ReceivedAt: at}, nil
}

// FormatSnapshot renders readings as "M1:  80 ( 40cm)  M2: ...".
func FormatSnapshot(s Snapshot) string {
	if len(s.Readings) == 0 {
		return "No data"
	}
	parts := make([]string, len(s.Readings))
	for i, r := range s.Readings {
		parts[i] = fmt.Sprintf("M%d: %3d (%3dcm)", r.ID, r.Intensity, r.DistanceCM)
	}
	return strings.Join(parts, "  ")
}
