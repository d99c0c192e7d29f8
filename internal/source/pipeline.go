package source

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/varan-neural/media-center/internal/config"
	"github.com/varan-neural/media-center/pkg/types"
)

// decodePipeline holds the element references FrameSource needs after
// construction, chiefly the appsink it pulls DMA-BUF frames from. The
// codec/geometry answer comes from the separate probe pipeline in
// probe.go, not from this one.
type decodePipeline struct {
	pipeline *gst.Pipeline
	rtspsrc  *gst.Element
	depay    *gst.Element
	decoder  *gst.Element
	appsink  *app.Sink
}

// buildDecodePipeline constructs, but does not start, the probe-and-decode
// half of the per-camera graph:
//
//	rtspsrc → rtp{h264,h265}depay → {h264,h265}parse → {vaapi,avdec}_h26x → appsink
//
// rtspsrc's source pad is dynamic, so linking the depayloader happens in
// onPadAdded once GStreamer announces the pad (grounded on
// internal/rtsp/callbacks.go's OnPadAdded in the capture-library
// reference). codec, already known from the probe, selects the
// depay/parse/decoder triple, since H.264 and H.265 need different
// ones; the hardware decoder is used when it can be created, the
// software one otherwise.
func buildDecodePipeline(cfg config.CameraConfig, codec types.Codec) (*decodePipeline, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("source: new pipeline: %w", err)
	}

	rtspsrc, err := gst.NewElement("rtspsrc")
	if err != nil {
		return nil, fmt.Errorf("source: new rtspsrc: %w", err)
	}
	rtspsrc.SetProperty("location", cfg.RTSPURL)
	if cfg.Transport == config.TransportTCP {
		rtspsrc.SetProperty("protocols", 4) // TCP only
	} else {
		rtspsrc.SetProperty("protocols", 7) // UDP then UDP-multicast then TCP
	}
	rtspsrc.SetProperty("latency", 200)
	rtspsrc.SetProperty("ntp-sync", false)

	var depay, parse, decoder *gst.Element
	switch codec {
	case types.CodecH264:
		depay, err = gst.NewElement("rtph264depay")
		if err == nil {
			parse, err = gst.NewElement("h264parse")
		}
		if err == nil {
			decoder, err = newHardwareOrSoftwareDecoder("vaapih264dec", "avdec_h264")
		}
	case types.CodecH265:
		depay, err = gst.NewElement("rtph265depay")
		if err == nil {
			parse, err = gst.NewElement("h265parse")
		}
		if err == nil {
			decoder, err = newHardwareOrSoftwareDecoder("vaapih265dec", "avdec_h265")
		}
	default:
		return nil, fmt.Errorf("source: %w", errUnsupportedDuringBuild(codec))
	}
	if err != nil {
		return nil, fmt.Errorf("source: build decode chain for %s: %w", codec, err)
	}

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("source: new appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", uint(cfg.MaxInFlight))
	appsink.SetProperty("drop", true)

	elements := []*gst.Element{rtspsrc, depay, parse, decoder, appsink.Element}
	if err := pipeline.AddMany(elements...); err != nil {
		return nil, fmt.Errorf("source: add elements: %w", err)
	}
	if err := gst.ElementLinkMany(depay, parse, decoder, appsink.Element); err != nil {
		return nil, fmt.Errorf("source: link decode chain: %w", err)
	}

	dp := &decodePipeline{
		pipeline: pipeline,
		rtspsrc:  rtspsrc,
		depay:    depay,
		decoder:  decoder,
		appsink:  appsink,
	}

	rtspsrc.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		onPadAdded(pad, depay)
	})

	return dp, nil
}

func newHardwareOrSoftwareDecoder(hwName, swName string) (*gst.Element, error) {
	if el, err := gst.NewElement(hwName); err == nil {
		return el, nil
	}
	return gst.NewElement(swName)
}

// onPadAdded links rtspsrc's dynamically created source pad to the
// depayloader's sink pad, grounded on the capture library's
// OnPadAdded callback.
func onPadAdded(srcPad *gst.Pad, depay *gst.Element) {
	sinkPad := depay.GetStaticPad("sink")
	if sinkPad == nil || sinkPad.IsLinked() {
		return
	}
	srcPad.Link(sinkPad)
}

type unsupportedCodecDuringBuild struct{ codec types.Codec }

func (e unsupportedCodecDuringBuild) Error() string {
	return fmt.Sprintf("codec %s has no decode chain", e.codec)
}

func errUnsupportedDuringBuild(c types.Codec) error { return unsupportedCodecDuringBuild{c} }
