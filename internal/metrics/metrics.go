// Package metrics exposes the counters named in the media-serving
// pipeline's Prometheus surface: frames pulled off each camera's RTSP
// source, RTP packets forwarded from each camera's tee to its viewers, viewer
// branches attached and detached, probe outcomes, and signaling
// traffic. Counters are labeled by camera name where the teacher's
// single-camera original had none, since this server serves several
// cameras from one process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector registered by the server.
type Metrics struct {
	FramesRead    *prometheus.CounterVec
	FramesDropped *prometheus.CounterVec
	FramesTeed    *prometheus.CounterVec

	BranchesAttached *prometheus.CounterVec
	BranchesDetached *prometheus.CounterVec
	BranchesActive   *prometheus.GaugeVec

	ProbeAttempts *prometheus.CounterVec
	ProbeFailures *prometheus.CounterVec

	SignalingMessagesIn  *prometheus.CounterVec
	SignalingMessagesOut *prometheus.CounterVec
	ICECandidatesBuffered prometheus.Counter
	ICECandidatesDiscarded prometheus.Counter

	KeyframeRequests *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance and registers every collector with a
// fresh, private registry (not the global default one, so tests can
// construct independent instances without collisions).
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FramesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_frames_read_total",
			Help: "Decoded frames pulled off the RTSP source, per camera.",
		}, []string{"camera"}),

		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_frames_dropped_total",
			Help: "Frames dropped before reaching the encode graph, per camera.",
		}, []string{"camera"}),

		FramesTeed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_frames_teed_total",
			Help: "Encoded RTP payloads forwarded through the tee, per camera.",
		}, []string{"camera"}),

		BranchesAttached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_branches_attached_total",
			Help: "PeerBranch attachments, per camera.",
		}, []string{"camera"}),

		BranchesDetached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_branches_detached_total",
			Help: "PeerBranch detachments, per camera.",
		}, []string{"camera"}),

		BranchesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "media_branches_active",
			Help: "Currently attached PeerBranches, per camera.",
		}, []string{"camera"}),

		ProbeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_probe_attempts_total",
			Help: "RTSP probe attempts, per camera.",
		}, []string{"camera"}),

		ProbeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_probe_failures_total",
			Help: "RTSP probe failures, per camera.",
		}, []string{"camera"}),

		SignalingMessagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_signaling_messages_in_total",
			Help: "Inbound signaling envelopes, per message type.",
		}, []string{"type"}),

		SignalingMessagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_signaling_messages_out_total",
			Help: "Outbound signaling envelopes, per message type.",
		}, []string{"type"}),

		ICECandidatesBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "media_ice_candidates_buffered_total",
			Help: "Inbound ICE candidates buffered before a remote description was set.",
		}),

		ICECandidatesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "media_ice_candidates_discarded_total",
			Help: "Inbound ICE candidates discarded for naming an mDNS .local host.",
		}),

		KeyframeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_keyframe_requests_total",
			Help: "Picture Loss Indication RTCP packets received from a viewer's RTPSender, per camera.",
		}, []string{"camera"}),
	}

	m.registry.MustRegister(
		m.FramesRead, m.FramesDropped, m.FramesTeed,
		m.BranchesAttached, m.BranchesDetached, m.BranchesActive,
		m.ProbeAttempts, m.ProbeFailures,
		m.SignalingMessagesIn, m.SignalingMessagesOut,
		m.ICECandidatesBuffered, m.ICECandidatesDiscarded,
		m.KeyframeRequests,
	)

	return m
}

// Handler returns the Prometheus scrape handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
