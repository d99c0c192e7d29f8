package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFrameCountersIncrementPerCamera(t *testing.T) {
	m := New()

	m.FramesRead.WithLabelValues("porch").Inc()
	m.FramesRead.WithLabelValues("porch").Inc()
	m.FramesRead.WithLabelValues("driveway").Inc()

	if got := testutil.ToFloat64(m.FramesRead.WithLabelValues("porch")); got != 2 {
		t.Fatalf("expected porch frames_read=2, got %v", got)
	}
	if got := testutil.ToFloat64(m.FramesRead.WithLabelValues("driveway")); got != 1 {
		t.Fatalf("expected driveway frames_read=1, got %v", got)
	}
}

func TestBranchesActiveGaugeTracksCount(t *testing.T) {
	m := New()

	m.BranchesActive.WithLabelValues("porch").Set(3)
	if got := testutil.ToFloat64(m.BranchesActive.WithLabelValues("porch")); got != 3 {
		t.Fatalf("expected branches_active=3, got %v", got)
	}

	m.BranchesActive.WithLabelValues("porch").Set(0)
	if got := testutil.ToFloat64(m.BranchesActive.WithLabelValues("porch")); got != 0 {
		t.Fatalf("expected branches_active=0 after last detach, got %v", got)
	}
}

func TestGlobalRecordFunctionsAreNilSafeBeforeInit(t *testing.T) {
	// active is process-wide and may have been set by another test in
	// this package; these calls must never panic regardless, which is
	// the property under test, not a specific resulting value.
	FrameRead("porch")
	FrameDropped("porch")
	ProbeAttempt("porch")
	SignalingIn("offer")
	ICECandidateBuffered()
	KeyframeRequested("porch")
}

func TestKeyframeRequestsCounterIsPerCamera(t *testing.T) {
	m := New()

	m.KeyframeRequests.WithLabelValues("porch").Inc()
	m.KeyframeRequests.WithLabelValues("porch").Inc()
	m.KeyframeRequests.WithLabelValues("driveway").Inc()

	if got := testutil.ToFloat64(m.KeyframeRequests.WithLabelValues("porch")); got != 2 {
		t.Fatalf("expected porch keyframe_requests=2, got %v", got)
	}
	if got := testutil.ToFloat64(m.KeyframeRequests.WithLabelValues("driveway")); got != 1 {
		t.Fatalf("expected driveway keyframe_requests=1, got %v", got)
	}
}
