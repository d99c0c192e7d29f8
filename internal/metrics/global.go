package metrics

import "sync"

// active is the process-wide Metrics instance, set once at startup via
// Init. Package-level recording functions are no-ops before Init runs,
// so components can record metrics unconditionally without threading a
// *Metrics through every constructor, mirroring the logger package's
// singleton.
var (
	active   *Metrics
	initOnce sync.Once
)

// Init installs m as the process-wide metrics instance. Call once at
// startup, before any component starts recording.
func Init(m *Metrics) {
	initOnce.Do(func() { active = m })
}

func FrameRead(camera string) {
	if active != nil {
		active.FramesRead.WithLabelValues(camera).Inc()
	}
}

func FrameDropped(camera string) {
	if active != nil {
		active.FramesDropped.WithLabelValues(camera).Inc()
	}
}

func FrameTeed(camera string) {
	if active != nil {
		active.FramesTeed.WithLabelValues(camera).Inc()
	}
}

func BranchAttached(camera string, activeCount int) {
	if active != nil {
		active.BranchesAttached.WithLabelValues(camera).Inc()
		active.BranchesActive.WithLabelValues(camera).Set(float64(activeCount))
	}
}

func BranchDetached(camera string, activeCount int) {
	if active != nil {
		active.BranchesDetached.WithLabelValues(camera).Inc()
		active.BranchesActive.WithLabelValues(camera).Set(float64(activeCount))
	}
}

func ProbeAttempt(camera string) {
	if active != nil {
		active.ProbeAttempts.WithLabelValues(camera).Inc()
	}
}

func ProbeFailure(camera string) {
	if active != nil {
		active.ProbeFailures.WithLabelValues(camera).Inc()
	}
}

func SignalingIn(msgType string) {
	if active != nil {
		active.SignalingMessagesIn.WithLabelValues(msgType).Inc()
	}
}

func SignalingOut(msgType string) {
	if active != nil {
		active.SignalingMessagesOut.WithLabelValues(msgType).Inc()
	}
}

func ICECandidateBuffered() {
	if active != nil {
		active.ICECandidatesBuffered.Inc()
	}
}

func ICECandidateDiscarded() {
	if active != nil {
		active.ICECandidatesDiscarded.Inc()
	}
}

func KeyframeRequested(camera string) {
	if active != nil {
		active.KeyframeRequests.WithLabelValues(camera).Inc()
	}
}
