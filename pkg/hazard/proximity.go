package hazard

import (
	"github.com/hatseye/hatseye/pkg/detection"
	"github.com/hatseye/hatseye/pkg/telemetry"
)

// ProximityResult converts a telemetry snapshot into a detection result
// containing one detection of class for every sensor nearer than
// thresholdCM. Distance 0 means no echo and is ignored. The result can be
// fed to a Debouncer so proximity alerts follow the same dwell policy as
// camera hazards.
func ProximityResult(s telemetry.Snapshot, thresholdCM int, class string) detection.Result {
	var dets []detection.Detection
	for _, r := range s.Readings {
		if r.DistanceCM > 0 && r.DistanceCM < thresholdCM {
			dets = append(dets, detection.Detection{
				Class:      class,
				Confidence: 1 - float64(r.DistanceCM)/float64(thresholdCM),
			})
		}
	}
	return detection.NewResult(dets, s.ReceivedAt)
}
