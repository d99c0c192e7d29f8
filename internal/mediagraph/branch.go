package mediagraph

import (
	"fmt"

	"github.com/pion/rtp"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/varan-neural/media-center/internal/logger"
	"github.com/varan-neural/media-center/internal/mediaerr"
	"github.com/varan-neural/media-center/internal/metrics"
)

// RTPSink receives RTP payloads pulled off the tee for one viewer. It
// is satisfied by the WebRTC package's PeerBranch track writer; kept as
// an interface here so mediagraph does not import pion/webrtc directly.
type RTPSink interface {
	WriteRTP(pkt *rtp.Packet) error
}

// PeerBranch is the per-viewer sub-graph of §4.3: a tee src pad feeding
// a bounded leaky queue, whose output is handed to an RTPSink instead
// of a second GStreamer element, since the WebRTC endpoint itself lives
// in the session/webrtc package, not in the GStreamer graph.
type PeerBranch struct {
	ClientID string

	camera string
	queue  *gst.Element
	teePad *gst.Pad
	probe  uint64

	sink RTPSink
}

// AttachBranch performs the atomic three-step splice of §4.3:
//  1. allocate a new tee src pad,
//  2. insert a bounded leaky queue into the graph,
//  3. link tee_src → queue and sync state to the parent, then tap the
//     queue's output with a pad probe that forwards RTP payloads to sink.
//
// On any failure the partial subgraph is torn down and
// ErrBranchAttachFailed is returned; the caller's SessionController is
// expected to transition to CLOSED with that reason.
func (g *MediaGraph) AttachBranch(clientID string, sink RTPSink) (*PeerBranch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.branches[clientID]; exists {
		return nil, fmt.Errorf("mediagraph: %w: client %s already attached", mediaerr.ErrBranchAttachFailed, clientID)
	}

	teePad := g.tee.GetRequestPad("src_%u")
	if teePad == nil {
		return nil, fmt.Errorf("mediagraph: %w: no tee src pad available", mediaerr.ErrBranchAttachFailed)
	}

	queue, err := gst.NewElement("queue")
	if err != nil {
		g.tee.ReleaseRequestPad(teePad)
		return nil, fmt.Errorf("mediagraph: %w: new queue: %v", mediaerr.ErrBranchAttachFailed, err)
	}
	queue.SetName(newElementName("queue", clientID))
	queue.SetProperty("leaky", 2) // leak downstream: drop oldest when full
	queue.SetProperty("max-size-buffers", 60)

	if err := g.pipeline.Add(queue); err != nil {
		g.tee.ReleaseRequestPad(teePad)
		return nil, fmt.Errorf("mediagraph: %w: add queue: %v", mediaerr.ErrBranchAttachFailed, err)
	}

	queueSink := queue.GetStaticPad("sink")
	if ret := teePad.Link(queueSink); ret != gst.PadLinkOK {
		g.pipeline.Remove(queue)
		g.tee.ReleaseRequestPad(teePad)
		return nil, fmt.Errorf("mediagraph: %w: link tee to queue: %v", mediaerr.ErrBranchAttachFailed, ret)
	}

	if err := queue.SyncStateWithParent(); err != nil {
		queueSink.Unlink(teePad)
		g.pipeline.Remove(queue)
		g.tee.ReleaseRequestPad(teePad)
		return nil, fmt.Errorf("mediagraph: %w: sync queue state: %v", mediaerr.ErrBranchAttachFailed, err)
	}

	branch := &PeerBranch{
		ClientID: clientID,
		camera:   g.cfg.CameraName,
		queue:    queue,
		teePad:   teePad,
		sink:     sink,
	}

	queueSrc := queue.GetStaticPad("src")
	branch.probe = queueSrc.AddProbe(gst.PadProbeTypeBuffer, func(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		buf := info.GetBuffer()
		if buf == nil {
			return gst.PadProbeOK
		}
		branch.forwardRTP(buf)
		return gst.PadProbeOK
	})

	wasEmpty := len(g.branches) == 0
	g.branches[clientID] = branch
	if wasEmpty {
		if err := g.start(); err != nil {
			delete(g.branches, clientID)
			branch.teardownLocked(g)
			return nil, fmt.Errorf("mediagraph: %w: start pipeline: %v", mediaerr.ErrBranchAttachFailed, err)
		}
	}

	metrics.BranchAttached(g.cfg.CameraName, len(g.branches))
	logger.Info("mediagraph", "camera %s: attached branch %s (branches=%d)", g.cfg.CameraName, clientID, len(g.branches))
	return branch, nil
}

// forwardRTP unmarshals the GStreamer buffer rtph264pay already
// payloaded and hands the pion rtp.Packet to the branch's sink. One
// buffer from the tee probe is exactly one RTP packet, since rtph264pay
// is upstream of the tee (§4.2's stated topology).
func (b *PeerBranch) forwardRTP(buffer *gst.Buffer) {
	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()

	data := mapInfo.Bytes()
	if len(data) == 0 {
		return
	}

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(data); err != nil {
		logger.Debug("mediagraph", "branch %s: rtp unmarshal failed: %v", b.ClientID, err)
		return
	}
	if err := b.sink.WriteRTP(pkt); err != nil {
		logger.Debug("mediagraph", "branch %s: write rtp failed: %v", b.ClientID, err)
		return
	}
	metrics.FrameTeed(b.camera)
}

// DetachBranch performs the reverse of AttachBranch: remove the pad
// probe, NULL the queue, unlink and release the tee pad, and drop the
// graph back to READY if no branches remain. Safe to call while the
// rest of the pipeline stays PLAYING.
func (g *MediaGraph) DetachBranch(clientID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	branch, ok := g.branches[clientID]
	if !ok {
		return
	}
	delete(g.branches, clientID)
	branch.teardownLocked(g)
	g.pauseIfEmpty()

	metrics.BranchDetached(g.cfg.CameraName, len(g.branches))
	logger.Info("mediagraph", "camera %s: detached branch %s (branches=%d)", g.cfg.CameraName, clientID, len(g.branches))
}

func (b *PeerBranch) teardownLocked(g *MediaGraph) {
	queueSrc := b.queue.GetStaticPad("src")
	if queueSrc != nil && b.probe != 0 {
		queueSrc.RemoveProbe(b.probe)
	}

	b.queue.SetState(gst.StateNull)

	queueSink := b.queue.GetStaticPad("sink")
	if queueSink != nil {
		queueSink.Unlink(b.teePad)
	}

	g.pipeline.Remove(b.queue)
	g.tee.ReleaseRequestPad(b.teePad)
}
