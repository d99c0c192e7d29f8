// Package session implements SessionController (spec component C5):
// a table-driven state machine, one per (camera, client_id), that
// binds a SignalingEndpoint client to a PeerBranch and drives SDP
// offer/answer and ICE exchange.
//
// Grounded on original_source/media-center/src/camera.cpp's webrtcbin
// signal handlers (re-architected per §9's "Callback-driven state
// machine" design note into an explicit event-typed loop) and on
// other_examples/marinp1-petwebrtc-lite__webrtc.go's pion/webrtc v3
// media engine setup for the H.264 payload-type-96 / profile-level-id
// rewrite.
package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/varan-neural/media-center/internal/logger"
	"github.com/varan-neural/media-center/internal/mediaerr"
	"github.com/varan-neural/media-center/internal/mediagraph"
	"github.com/varan-neural/media-center/internal/metrics"
	"github.com/varan-neural/media-center/internal/signaling"
)

// State is one of the four SessionController states of §3/§4.5.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "NEGOTIATING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "IDLE"
	}
}

// event is the sum type driving the state machine's single-goroutine
// loop. Routing every event for one controller through one goroutine
// is what gives the ordering guarantee of §4.5/§5: transitions and
// outbound sends for a given (camera, client_id) are totally ordered.
type event struct {
	kind          string
	sdp           string
	candidate     string
	sdpMLineIndex *int
	sdpMid        string
	iceCandidate  webrtc.ICECandidate
}

const (
	evConnection        = "connection"
	evInboundOffer      = "offer"
	evInboundAnswer     = "answer"
	evInboundICE        = "ice"
	evNegotiationNeeded = "negotiation-needed"
	evLocalICE          = "local-ice"
	evICEConnected      = "ice-connected"
	evClosed            = "closed"
)

// Controller is one viewer's SessionController.
type Controller struct {
	camera   string
	clientID string

	graph *mediagraph.MediaGraph
	send  func(signaling.Envelope)

	events chan event
	done   chan struct{}

	mu               sync.Mutex
	state            State
	pc               *webrtc.PeerConnection
	track            *webrtc.TrackLocalStaticRTP
	sender           *webrtc.RTPSender
	branch           *mediagraph.PeerBranch
	remoteSet        bool
	pendingCandidates []webrtc.ICECandidateInit
}

// New constructs a Controller in IDLE and immediately starts its event
// loop goroutine; callers drive it exclusively through Dispatch.
func New(camera, clientID string, graph *mediagraph.MediaGraph, send func(signaling.Envelope)) *Controller {
	c := &Controller{
		camera:   camera,
		clientID: clientID,
		graph:    graph,
		send:     send,
		events:   make(chan event, 64),
		done:     make(chan struct{}),
		state:    StateIdle,
	}
	go c.run()
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Dispatch enqueues an inbound signaling envelope for this controller's
// event loop. Never blocks the SignalingEndpoint's read pump for long:
// the queue is generously buffered, and a controller that cannot keep
// up is already failing its viewer.
func (c *Controller) Dispatch(env signaling.Envelope) {
	switch env.Type {
	case signaling.TypeConnection:
		c.enqueue(event{kind: evConnection})
	case signaling.TypeOffer:
		c.enqueue(event{kind: evInboundOffer, sdp: env.SDP})
	case signaling.TypeAnswer:
		c.enqueue(event{kind: evInboundAnswer, sdp: env.SDP})
	case signaling.TypeICE:
		c.enqueue(event{kind: evInboundICE, candidate: env.Candidate, sdpMLineIndex: env.SDPMLineIndex, sdpMid: env.SDPMid})
	}
}

// Close drives the controller to CLOSED from the outside, e.g. when
// the signaling channel drops.
func (c *Controller) Close() {
	c.enqueue(event{kind: evClosed})
}

func (c *Controller) enqueue(e event) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}

func (c *Controller) run() {
	defer close(c.done)
	for e := range c.events {
		c.handle(e)
		if c.State() == StateClosed {
			return
		}
	}
}

func (c *Controller) handle(e event) {
	switch e.kind {
	case evConnection:
		c.onConnection()
	case evInboundOffer:
		c.onInboundOffer(e.sdp)
	case evInboundAnswer:
		c.onInboundAnswer(e.sdp)
	case evInboundICE:
		c.onInboundICE(e.candidate, e.sdpMLineIndex, e.sdpMid)
	case evLocalICE:
		c.onLocalICE(e.iceCandidate)
	case evNegotiationNeeded:
		c.onNegotiationNeeded()
	case evICEConnected:
		c.setState(StateConnected)
		logger.Info("session", "camera %s client %s: CONNECTED", c.camera, c.clientID)
	case evClosed:
		c.onClosed()
	}
}

// onConnection handles the table's first two rows: reject a duplicate
// client_id, or create+attach a fresh PeerBranch and reply success.
// A third case, not in the original table, comes from §7/S6: a camera
// that is known but currently unattachable (never probed successfully,
// or its FrameSource has failed fatally) has a nil graph, and gets a
// fault reply without ever touching pion/webrtc or the MediaGraph.
func (c *Controller) onConnection() {
	if c.State() != StateIdle {
		c.send(signaling.Envelope{
			Type:        signaling.TypeConnection,
			Ret:         signaling.RetFault,
			Description: "connection already started",
		})
		return
	}

	if c.graph == nil {
		c.send(signaling.Envelope{
			Type:        signaling.TypeConnection,
			Ret:         signaling.RetFault,
			Description: "camera unavailable",
		})
		c.setState(StateClosed)
		logger.Warn("session", "camera %s client %s: connection rejected, camera unavailable", c.camera, c.clientID)
		return
	}

	pc, track, sender, err := newPeerConnection()
	if err != nil {
		c.fail(fmt.Errorf("session: new peer connection: %w", err))
		return
	}

	branch, err := c.graph.AttachBranch(c.clientID, rtpSink{track})
	if err != nil {
		pc.Close()
		c.fail(fmt.Errorf("session: %w", err))
		return
	}

	c.mu.Lock()
	c.pc = pc
	c.track = track
	c.sender = sender
	c.branch = branch
	c.mu.Unlock()

	c.wireCallbacks(pc)
	go c.drainRTCP(sender)
	c.setState(StateNegotiating)

	c.send(signaling.Envelope{Type: signaling.TypeConnection, Ret: signaling.RetSuccess})
	c.onNegotiationNeeded()
}

// drainRTCP reads the RTCP feedback pion/webrtc buffers on sender until
// the PeerConnection closes it out from under us. Every sender must be
// read to keep pion's internal RTCP buffers from growing unbounded;
// a Picture Loss Indication is additionally logged and counted, since
// it marks the point where a viewer's decoder has desynced and is
// waiting on a fresh keyframe. The request is not passed on to the
// encoder: nothing here asks it for a keyframe.
func (c *Controller) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, pkt := range packets {
			if _, ok := pkt.(*rtcp.PictureLossIndication); ok {
				metrics.KeyframeRequested(c.camera)
				logger.Debug("session", "camera %s client %s: PLI received", c.camera, c.clientID)
			}
		}
	}
}

type rtpSink struct{ track *webrtc.TrackLocalStaticRTP }

func (s rtpSink) WriteRTP(pkt *rtp.Packet) error { return s.track.WriteRTP(pkt) }

func (c *Controller) wireCallbacks(pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		c.enqueue(event{kind: evLocalICE, iceCandidate: *candidate})
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		if s == webrtc.ICEConnectionStateConnected {
			c.enqueue(event{kind: evICEConnected})
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.enqueue(event{kind: evClosed})
		}
	})
}

// onNegotiationNeeded implements the offer-creation row of §4.5: the
// camera is always the offerer since it is a send-only source.
func (c *Controller) onNegotiationNeeded() {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil || c.State() != StateNegotiating {
		return
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		c.fail(fmt.Errorf("session: create offer: %w", err))
		return
	}
	offer.SDP = rewriteH264Profile(offer.SDP)

	if err := pc.SetLocalDescription(offer); err != nil {
		c.fail(fmt.Errorf("session: set local description: %w", err))
		return
	}

	if offer.SDP == "" {
		c.fail(fmt.Errorf("session: refusing to emit empty offer SDP"))
		return
	}

	c.send(signaling.Envelope{Type: signaling.TypeOffer, SDP: offer.SDP})
}

func (c *Controller) onInboundOffer(sdp string) {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil || c.State() != StateNegotiating {
		return
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		c.fail(fmt.Errorf("session: set remote offer: %w", err))
		return
	}
	c.markRemoteSetAndFlush()

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		c.fail(fmt.Errorf("session: create answer: %w", err))
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		c.fail(fmt.Errorf("session: set local answer: %w", err))
		return
	}
	if answer.SDP == "" {
		c.fail(fmt.Errorf("session: refusing to emit empty answer SDP"))
		return
	}

	c.send(signaling.Envelope{Type: signaling.TypeAnswer, SDP: answer.SDP})
}

func (c *Controller) onInboundAnswer(sdp string) {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil || c.State() != StateNegotiating {
		return
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		c.fail(fmt.Errorf("session: set remote answer: %w", err))
		return
	}
	c.markRemoteSetAndFlush()
}

// onInboundICE implements the mDNS-rejection and pre-remote-description
// buffering rows of §4.5/§8.
func (c *Controller) onInboundICE(candidate string, mLineIndex *int, mid string) {
	if c.State() != StateNegotiating {
		return
	}

	if strings.Contains(candidate, ".local") {
		metrics.ICECandidateDiscarded()
		logger.Warn("session", "camera %s client %s: discarding mDNS candidate", c.camera, c.clientID)
		return
	}

	init := webrtc.ICECandidateInit{Candidate: candidate, SDPMLineIndex: toUint16Ptr(mLineIndex)}
	if mid != "" {
		init.SDPMid = &mid
	}

	c.mu.Lock()
	pc := c.pc
	remoteSet := c.remoteSet
	if !remoteSet {
		c.pendingCandidates = append(c.pendingCandidates, init)
	}
	c.mu.Unlock()

	if !remoteSet {
		metrics.ICECandidateBuffered()
	}

	if pc == nil {
		return
	}
	if remoteSet {
		if err := pc.AddICECandidate(init); err != nil {
			logger.Warn("session", "camera %s client %s: add ice candidate failed: %v", c.camera, c.clientID, err)
		}
	}
}

// markRemoteSetAndFlush applies any ICE candidates that arrived before
// the remote description was set, per §8's boundary behavior.
func (c *Controller) markRemoteSetAndFlush() {
	c.mu.Lock()
	c.remoteSet = true
	pending := c.pendingCandidates
	c.pendingCandidates = nil
	pc := c.pc
	c.mu.Unlock()

	for _, init := range pending {
		if err := pc.AddICECandidate(init); err != nil {
			logger.Warn("session", "camera %s client %s: flush ice candidate failed: %v", c.camera, c.clientID, err)
		}
	}
}

func (c *Controller) onLocalICE(candidate webrtc.ICECandidate) {
	if c.State() != StateNegotiating && c.State() != StateConnected {
		return
	}
	init := candidate.ToJSON()
	mLineIndex := 0
	if init.SDPMLineIndex != nil {
		mLineIndex = int(*init.SDPMLineIndex)
	}
	c.send(signaling.Envelope{
		Type:          signaling.TypeICE,
		Candidate:     init.Candidate,
		SDPMLineIndex: &mLineIndex,
	})
}

func (c *Controller) onClosed() {
	if c.State() == StateClosed {
		return
	}
	c.setState(StateClosed)

	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()

	if c.graph != nil {
		c.graph.DetachBranch(c.clientID)
	}
	if pc != nil {
		pc.Close()
	}
	logger.Info("session", "camera %s client %s: CLOSED", c.camera, c.clientID)
}

func (c *Controller) fail(err error) {
	logger.Error("session", "camera %s client %s: %v", c.camera, c.clientID, fmt.Errorf("%w: %v", mediaerr.ErrBranchAttachFailed, err))
	c.send(signaling.Envelope{Type: signaling.TypeConnection, Ret: signaling.RetFault, Description: err.Error()})
	c.onClosed()
}

func toUint16Ptr(i *int) *uint16 {
	if i == nil {
		return nil
	}
	v := uint16(*i)
	return &v
}
