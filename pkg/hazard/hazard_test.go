package hazard_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatseye/hatseye/internal/log"
	"github.com/hatseye/hatseye/pkg/detection"
	"github.com/hatseye/hatseye/pkg/hazard"
	"github.com/hatseye/hatseye/pkg/telemetry"
)

type recorder struct {
	mu     sync.Mutex
	alerts []hazard.Alert
}

func (r *recorder) Alert(a hazard.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func result(classes ...string) detection.Result {
	dets := make([]detection.Detection, len(classes))
	for i, c := range classes {
		dets[i] = detection.Detection{Class: c, Confidence: 0.9}
	}
	return detection.NewResult(dets, time.Time{})
}

func newDebouncer(sink hazard.AlertSink) *hazard.Debouncer {
	cfg := hazard.DefaultConfig()
	cfg.Logger = log.Discard()
	return hazard.New(cfg, sink)
}

func at(ms int) time.Time {
	return time.Unix(1_700_000_000, 0).Add(time.Duration(ms) * time.Millisecond)
}

func TestDwellScenario(t *testing.T) {
	rec := &recorder{}
	d := newDebouncer(rec)

	assert.False(t, d.Update(result("pothole"), at(0)))
	assert.False(t, d.Update(result("pothole"), at(200)))
	assert.Equal(t, 0, rec.Count())

	assert.True(t, d.Update(result("pothole"), at(300)))
	require.Equal(t, 1, rec.Count())
	assert.Equal(t, "pothole", rec.alerts[0].Class)
	assert.Equal(t, at(0), rec.alerts[0].FirstSeen)
	assert.Equal(t, at(300), rec.alerts[0].At)

	assert.False(t, d.Update(result(), at(350)))
	assert.Equal(t, hazard.Window{}, d.Window())
}

func TestExactDwellFires(t *testing.T) {
	rec := &recorder{}
	d := newDebouncer(rec)
	d.Update(result("pothole"), at(0))
	assert.True(t, d.Update(result("pothole"), at(250)))
	assert.Equal(t, 1, rec.Count())
}

func TestSingleTriggerPerInterval(t *testing.T) {
	rec := &recorder{}
	d := newDebouncer(rec)
	for ms := 0; ms <= 2000; ms += 50 {
		d.Update(result("pothole"), at(ms))
	}
	assert.Equal(t, 1, rec.Count())
	assert.True(t, d.Active())

	d.Update(result(), at(2050))
	for ms := 2100; ms <= 2500; ms += 50 {
		d.Update(result("pothole"), at(ms))
	}
	assert.Equal(t, 2, rec.Count(), "a new interval fires again")
}

func TestFlickerNeverFires(t *testing.T) {
	rec := &recorder{}
	d := newDebouncer(rec)
	for ms := 0; ms <= 2000; ms += 100 {
		if (ms/100)%2 == 0 {
			d.Update(result("pothole"), at(ms))
		} else {
			d.Update(result(), at(ms))
		}
	}
	assert.Equal(t, 0, rec.Count())
}

func TestNonHazardClassIgnored(t *testing.T) {
	rec := &recorder{}
	d := newDebouncer(rec)
	for ms := 0; ms <= 1000; ms += 100 {
		d.Update(result("person", "crack"), at(ms))
	}
	assert.Equal(t, 0, rec.Count())
	assert.Equal(t, "", d.Window().ActiveClass)
}

func TestClassChangeRestartsWindow(t *testing.T) {
	rec := &recorder{}
	cfg := hazard.DefaultConfig()
	cfg.Classes = []string{"pothole", "curb"}
	cfg.Logger = log.Discard()
	d := hazard.New(cfg, rec)

	d.Update(result("pothole"), at(0))
	d.Update(result("curb"), at(200))
	assert.Equal(t, at(200), d.Window().FirstSeenAt)
	assert.False(t, d.Update(result("curb"), at(300)))
	assert.True(t, d.Update(result("curb"), at(450)))
	assert.Equal(t, "curb", rec.alerts[0].Class)
}

func TestActiveClassKeptWhenBothPresent(t *testing.T) {
	cfg := hazard.DefaultConfig()
	cfg.Classes = []string{"curb", "pothole"}
	cfg.Logger = log.Discard()
	d := hazard.New(cfg, nil)

	d.Update(result("pothole"), at(0))
	d.Update(result("curb", "pothole"), at(100))
	assert.Equal(t, "pothole", d.Window().ActiveClass)
	assert.True(t, d.Update(result("curb", "pothole"), at(260)))
}

func TestMissTolerance(t *testing.T) {
	rec := &recorder{}
	cfg := hazard.DefaultConfig()
	cfg.MissTolerance = 1
	cfg.Logger = log.Discard()
	d := hazard.New(cfg, rec)

	d.Update(result("pothole"), at(0))
	d.Update(result(), at(100))
	assert.True(t, d.Update(result("pothole"), at(260)), "one miss is tolerated")

	d.Update(result(), at(300))
	d.Update(result(), at(350))
	assert.Equal(t, hazard.Window{}, d.Window())
	assert.Equal(t, 1, rec.Count())
}

func TestReset(t *testing.T) {
	rec := &recorder{}
	d := newDebouncer(rec)
	d.Update(result("pothole"), at(0))
	d.Update(result("pothole"), at(300))
	require.True(t, d.Active())

	d.Reset()
	assert.False(t, d.Active())
	assert.Equal(t, hazard.Window{}, d.Window())
	assert.Equal(t, 1, rec.Count(), "reset never raises an alert")
}

func TestSinks(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	var fn int
	sinks := hazard.Sinks{a, nil, b, hazard.SinkFunc(func(hazard.Alert) { fn++ })}
	sinks.Alert(hazard.Alert{Class: "pothole"})
	assert.Equal(t, 1, a.Count())
	assert.Equal(t, 1, b.Count())
	assert.Equal(t, 1, fn)
}

func TestProximityResult(t *testing.T) {
	snap := telemetry.Snapshot{Readings: []telemetry.SensorReading{
		{ID: 1, DistanceCM: 15},
		{ID: 2, DistanceCM: 45},
		{ID: 3, DistanceCM: 0},
		{ID: 4, DistanceCM: 29},
	}}
	r := hazard.ProximityResult(snap, 30, "obstacle")
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Has("obstacle"))

	assert.True(t, hazard.ProximityResult(telemetry.Snapshot{}, 30, "obstacle").IsEmpty())
}

func TestProximityDebounce(t *testing.T) {
	rec := &recorder{}
	cfg := hazard.DefaultConfig()
	cfg.Classes = []string{"obstacle"}
	cfg.Logger = log.Discard()
	d := hazard.New(cfg, rec)

	near := telemetry.Snapshot{Readings: []telemetry.SensorReading{{ID: 1, DistanceCM: 10}}}
	d.Update(hazard.ProximityResult(near, 30, "obstacle"), at(0))
	d.Update(hazard.ProximityResult(near, 30, "obstacle"), at(300))
	assert.Equal(t, 1, rec.Count())
	assert.Equal(t, "obstacle", rec.alerts[0].Class)
}
