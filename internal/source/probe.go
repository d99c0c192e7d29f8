package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/varan-neural/media-center/internal/config"
	"github.com/varan-neural/media-center/internal/mediaerr"
	"github.com/varan-neural/media-center/pkg/types"
)

// probe runs the §4.1 probe protocol once: connect, wait for both the
// codec identifier (from rtspsrc's dynamic RTP pad caps) and the
// decoded geometry (from decodebin's raw output pad caps), bounded by
// cfg.ProbeTimeout. It tears its throwaway pipeline down before
// returning, win or lose, so the caller can build the real decode
// pipeline from scratch with the now-known codec.
func probe(ctx context.Context, cfg config.CameraConfig) (types.ProbeResult, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return types.ProbeResult{}, fmt.Errorf("source: probe pipeline: %w", err)
	}
	defer pipeline.SetState(gst.StateNull)

	rtspsrc, err := gst.NewElement("rtspsrc")
	if err != nil {
		return types.ProbeResult{}, fmt.Errorf("source: probe rtspsrc: %w", err)
	}
	rtspsrc.SetProperty("location", cfg.RTSPURL)
	if cfg.Transport == config.TransportTCP {
		rtspsrc.SetProperty("protocols", 4)
	}

	decodebin, err := gst.NewElement("decodebin")
	if err != nil {
		return types.ProbeResult{}, fmt.Errorf("source: probe decodebin: %w", err)
	}

	sink, err := gst.NewElement("fakesink")
	if err != nil {
		return types.ProbeResult{}, fmt.Errorf("source: probe fakesink: %w", err)
	}
	sink.SetProperty("sync", false)

	if err := pipeline.AddMany(rtspsrc, decodebin, sink); err != nil {
		return types.ProbeResult{}, fmt.Errorf("source: probe add elements: %w", err)
	}

	result := &types.ProbeResult{}
	done := make(chan struct{}, 1)
	signalReady := func() {
		if result.Ready() {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}

	rtspsrc.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		caps := pad.GetCurrentCaps()
		if caps == nil || caps.GetSize() == 0 {
			return
		}
		structure := caps.GetStructureAt(0)
		if structure.Name() != "application/x-rtp" {
			return
		}
		encodingName, _ := structure.GetValue("encoding-name")
		switch strings.ToUpper(fmt.Sprint(encodingName)) {
		case "H264":
			result.SetCodec(types.CodecH264)
		case "H265":
			result.SetCodec(types.CodecH265)
		default:
			result.SetCodec(types.CodecUnknown)
		}

		sinkPad := decodebin.GetStaticPad("sink")
		if sinkPad != nil && !sinkPad.IsLinked() {
			pad.Link(sinkPad)
		}
		signalReady()
	})

	decodebin.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		caps := pad.GetCurrentCaps()
		if caps == nil || caps.GetSize() == 0 {
			return
		}
		structure := caps.GetStructureAt(0)
		if structure.Name() != "video/x-raw" {
			return
		}
		width, _ := structure.GetValue("width")
		height, _ := structure.GetValue("height")
		fpsNum, fpsDen := parseFraction(structure, "framerate")
		result.SetGeometry(toInt(width), toInt(height), fpsNum, fpsDen)

		sinkPad := sink.GetStaticPad("sink")
		if sinkPad != nil && !sinkPad.IsLinked() {
			pad.Link(sinkPad)
		}
		signalReady()
	})

	bus := pipeline.GetPipelineBus()
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return types.ProbeResult{}, fmt.Errorf("source: probe set playing: %w", err)
	}

	deadline := time.NewTimer(cfg.ProbeTimeout.Value())
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return types.ProbeResult{}, ctx.Err()
		case <-done:
			if result.Codec != types.CodecH264 && result.Codec != types.CodecH265 {
				return types.ProbeResult{}, fmt.Errorf("source: %w: codec %s", mediaerr.ErrUnsupportedCodec, result.Codec)
			}
			return *result, nil
		case <-deadline.C:
			return types.ProbeResult{}, mediaerr.ErrProbeTimeout
		default:
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}
			if msg.Type() == gst.MessageError {
				gerr := msg.ParseError()
				category := classifyBusError(gerr)
				if category == mediaerr.CategoryAuth {
					return types.ProbeResult{}, fmt.Errorf("source: probe auth failure: %s", gerr.Error())
				}
				return types.ProbeResult{}, fmt.Errorf("source: probe error (%s): %w", category, mediaerr.ErrProbeTimeout)
			}
		}
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	default:
		return 0
	}
}

// parseFraction reads a GStreamer fraction-typed field (e.g. "25/1")
// out of a caps structure's string representation as a fallback when
// the binding surfaces it as a formatted string rather than a
// num/den pair.
func parseFraction(structure *gst.Structure, field string) (num, den int) {
	val, err := structure.GetValue(field)
	if err != nil || val == nil {
		return 0, 0
	}
	s := fmt.Sprint(val)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	fmt.Sscanf(parts[0], "%d", &num)
	fmt.Sscanf(parts[1], "%d", &den)
	if den == 0 {
		den = 1
	}
	return num, den
}
