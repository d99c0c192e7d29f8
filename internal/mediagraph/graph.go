// Package mediagraph implements MediaGraph (spec component C2) and
// PeerBranch (C3): the long-lived per-camera encode/payload/tee
// pipeline and the dynamically spliced per-viewer sub-graphs hanging
// off its tee.
//
// Grounded on the appsrc-fed encode pipeline built by
// original_source/media-center/src/camera.cpp's create_gst_pipeline,
// re-targeted from a single webrtcbin sink to a tee with N dynamically
// attached branches, and on the stream-capture reference library's
// element construction style for everything downstream of appsrc.
package mediagraph

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
	"golang.org/x/sys/unix"

	"github.com/varan-neural/media-center/internal/logger"
	"github.com/varan-neural/media-center/pkg/types"
)

// State is MediaGraph's top-level run state.
type State int

const (
	StateReady State = iota
	StatePlaying
)

func (s State) String() string {
	if s == StatePlaying {
		return "PLAYING"
	}
	return "READY"
}

// Config configures the fixed encoder contract of §4.2.
type Config struct {
	CameraName string
	Width      int
	Height     int
	FPS        int
}

// MediaGraph owns the per-camera appsrc → convert → encode → parse →
// payload → tee pipeline. It starts in READY and is pushed to PLAYING
// only while at least one PeerBranch is attached; frames pushed while
// READY are dropped (their DMA-BUF fd closed) to avoid powering the
// hardware encoder for nobody.
type MediaGraph struct {
	cfg Config

	pipeline *gst.Pipeline
	appsrc   *app.Source
	convert  *gst.Element
	encoder  *gst.Element
	parse    *gst.Element
	pay      *gst.Element
	tee      *gst.Element

	mu       sync.Mutex
	state    State
	branches map[string]*PeerBranch
}

// New constructs the static topology described in §4.2 but does not
// start it; the graph reports StateReady (the GStreamer pipeline itself
// is left in its initial NULL state) until the first branch attaches
// and drives it to PLAYING.
func New(cfg Config) (*MediaGraph, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("camera_" + cfg.CameraName)
	if err != nil {
		return nil, fmt.Errorf("mediagraph: new pipeline: %w", err)
	}

	appsrc, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("mediagraph: new appsrc: %w", err)
	}
	appsrc.SetProperty("is-live", true)
	appsrc.SetProperty("format", gst.FormatTime)
	caps := gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=NV12,width=%d,height=%d,framerate=%d/1", cfg.Width, cfg.Height, cfg.FPS,
	))
	appsrc.SetProperty("caps", caps)

	convert, err := newConvertElement()
	if err != nil {
		return nil, fmt.Errorf("mediagraph: convert element: %w", err)
	}

	encoder, err := newEncoderElement()
	if err != nil {
		return nil, fmt.Errorf("mediagraph: encoder element: %w", err)
	}
	configureEncoder(encoder)

	parse, err := gst.NewElement("h264parse")
	if err != nil {
		return nil, fmt.Errorf("mediagraph: h264parse: %w", err)
	}

	pay, err := gst.NewElement("rtph264pay")
	if err != nil {
		return nil, fmt.Errorf("mediagraph: rtph264pay: %w", err)
	}
	pay.SetProperty("config-interval", 1)
	pay.SetProperty("pt", 96)

	tee, err := gst.NewElement("tee")
	if err != nil {
		return nil, fmt.Errorf("mediagraph: tee: %w", err)
	}
	tee.SetProperty("allow-not-linked", true)

	elements := []*gst.Element{appsrc.Element, convert, encoder, parse, pay, tee}
	if err := pipeline.AddMany(elements...); err != nil {
		return nil, fmt.Errorf("mediagraph: add elements: %w", err)
	}
	if err := gst.ElementLinkMany(elements...); err != nil {
		return nil, fmt.Errorf("mediagraph: link elements: %w", err)
	}

	g := &MediaGraph{
		cfg:      cfg,
		pipeline: pipeline,
		appsrc:   appsrc,
		convert:  convert,
		encoder:  encoder,
		parse:    parse,
		pay:      pay,
		tee:      tee,
		state:    StateReady,
		branches: make(map[string]*PeerBranch),
	}
	return g, nil
}

// newConvertElement prefers the DMA-BUF-importing v4l2convert used by
// the original hardware path; vaapipostproc is the alternate hardware
// route, videoconvert the software fallback.
func newConvertElement() (*gst.Element, error) {
	if el, err := gst.NewElement("v4l2convert"); err == nil {
		el.SetProperty("output-io-mode", "dmabuf-import")
		return el, nil
	}
	if el, err := gst.NewElement("vaapipostproc"); err == nil {
		return el, nil
	}
	return gst.NewElement("videoconvert")
}

func newEncoderElement() (*gst.Element, error) {
	if el, err := gst.NewElement("mpph264enc"); err == nil {
		return el, nil
	}
	if el, err := gst.NewElement("vaapih264enc"); err == nil {
		return el, nil
	}
	return gst.NewElement("x264enc")
}

// configureEncoder applies the fixed contract from §4.2: baseline
// profile, level 3.1, closed GOPs keyed on demand, frame-level rate
// control. Property names vary across the three encoder backends this
// picks from, so each is set defensively; an encoder that does not
// recognize a given property name simply ignores it.
func configureEncoder(encoder *gst.Element) {
	encoder.SetProperty("profile", "baseline")
	trySetProperty(encoder, "level", "3.1")
	trySetProperty(encoder, "gop-size", -1) // closed GOP keyed on demand, no forced interval
	trySetProperty(encoder, "rc-mode", "VBR")
	trySetProperty(encoder, "extra-controls", "encode,frame_level_rate_control_enable=1")
}

func trySetProperty(el *gst.Element, name string, value interface{}) {
	defer func() { recover() }()
	el.SetProperty(name, value)
}

func (g *MediaGraph) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *MediaGraph) BranchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.branches)
}

// PushFrame feeds one decoded EncodedFrame into appsrc. Per §4.2, a
// frame arriving while the graph is READY (no branch attached) is
// dropped and its descriptor closed immediately rather than buffered.
//
// PushBuffer is asynchronous: the buffer, and the fd memory wrapped
// into it, outlive this call inside the pipeline. The frame's own
// descriptor is therefore never handed to GStreamer directly; it is
// duplicated first, exactly as frameFromBuffer duplicates on hand-off
// into an EncodedFrame (internal/source/dmabuf.go). GStreamer owns and
// closes the duplicate when the buffer is freed; frame.Close releases
// only the FrameSource's own copy, here and now.
func (g *MediaGraph) PushFrame(frame *types.EncodedFrame) {
	g.mu.Lock()
	playing := g.state == StatePlaying
	g.mu.Unlock()

	if !playing {
		frame.Close()
		return
	}

	gstFD, err := unix.Dup(frame.FD)
	if err != nil {
		logger.Warn("mediagraph", "camera %s: dup frame fd: %v", g.cfg.CameraName, err)
		frame.Close()
		return
	}

	buffer := gst.NewBufferWithSize(0)
	mem := gst.NewMemoryWrappedFD(gstFD, frameByteSize(frame))
	buffer.AppendMemory(mem)
	buffer.SetPresentationTimestamp(gst.ClockTime(frame.PTS))

	ret := g.appsrc.PushBuffer(buffer)
	if ret != gst.FlowOK {
		logger.Debug("mediagraph", "camera %s: appsrc backpressure, dropping frame", g.cfg.CameraName)
	}
	frame.Close()
}

// frameByteSize computes the full byte span of frame's plane set, not
// just its first plane. NV12/NV21 interleave a half-height,
// full-width chroma plane under the luma plane, for 3/2 the luma
// plane's size; the packed RGB/BGR formats are single-plane and their
// pitch already counts bytes per pixel.
func frameByteSize(frame *types.EncodedFrame) int {
	luma := frame.Pitch[0] * frame.Height
	switch frame.Format {
	case types.PixelFormatNV12, types.PixelFormatNV21:
		return luma * 3 / 2
	default:
		return luma
	}
}

// start transitions the pipeline to PLAYING. Called when a branch
// attaches to a graph that has none.
func (g *MediaGraph) start() error {
	if err := g.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("mediagraph: set playing: %w", err)
	}
	g.state = StatePlaying
	return nil
}

// pauseIfEmpty drops the pipeline back to READY once the last branch
// detaches, so the hardware encoder stops running for nobody.
func (g *MediaGraph) pauseIfEmpty() {
	if len(g.branches) > 0 {
		return
	}
	if err := g.pipeline.SetState(gst.StateReady); err != nil {
		logger.Warn("mediagraph", "camera %s: set ready failed: %v", g.cfg.CameraName, err)
		return
	}
	g.state = StateReady
}

// Close tears the whole per-camera pipeline down, detaching any
// remaining branches first.
func (g *MediaGraph) Close() error {
	g.mu.Lock()
	ids := make([]string, 0, len(g.branches))
	for id := range g.branches {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	for _, id := range ids {
		g.DetachBranch(id)
	}

	return g.pipeline.SetState(gst.StateNull)
}

func newElementName(prefix, clientID string) string {
	return fmt.Sprintf("%s_%s_%s", prefix, clientID, uuid.NewString()[:8])
}
