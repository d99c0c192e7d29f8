// Package source implements FrameSource (spec component C1): RTSP
// capability probing and steady-state delivery of DMA-BUF-backed
// EncodedFrames, grounded on the GStreamer pipeline/callback/monitor
// shape of the stream-capture reference library and re-targeted to
// emit decoded DMA frames instead of raw sample bytes.
package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/varan-neural/media-center/internal/config"
	"github.com/varan-neural/media-center/internal/logger"
	"github.com/varan-neural/media-center/internal/mediaerr"
	"github.com/varan-neural/media-center/internal/metrics"
	"github.com/varan-neural/media-center/pkg/types"
)

// State is FrameSource's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateProbing
	StateReady
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateProbing:
		return "PROBING"
	case StateReady:
		return "READY"
	case StateReconnecting:
		return "RECONNECTING"
	case StateStopped:
		return "STOPPED"
	default:
		return "IDLE"
	}
}

// FrameSource connects to one camera's RTSP URL, probes it, and
// delivers a lazy, uninterrupted sequence of EncodedFrames on Frames().
// A read or decode failure never surfaces as a channel error; it moves
// FrameSource into RECONNECTING and the sequence resumes with a gap in
// timestamps once the source comes back.
type FrameSource struct {
	cfg    config.CameraConfig
	frames chan *types.EncodedFrame

	mu    sync.Mutex
	state State
	probe types.ProbeResult

	probeDone chan struct{}
	probeErr  error

	pipeline *decodePipeline
}

// New constructs a FrameSource for the given camera. It does nothing
// network-facing until Run is called.
func New(cfg config.CameraConfig) *FrameSource {
	return &FrameSource{
		cfg:       cfg,
		frames:    make(chan *types.EncodedFrame, cfg.MaxInFlight),
		state:     StateIdle,
		probeDone: make(chan struct{}),
	}
}

// Frames returns the channel EncodedFrames arrive on. The channel is
// never closed while Run is active; it closes only once Run returns.
func (s *FrameSource) Frames() <-chan *types.EncodedFrame { return s.frames }

func (s *FrameSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *FrameSource) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *FrameSource) LastProbe() types.ProbeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probe
}

// WaitProbe blocks until the first probe attempt inside Run resolves,
// returning the geometry/codec it found or the fatal error that made
// the camera unreachable. Callers use this to learn the real
// width/height/framerate before building a MediaGraph for this camera,
// per §4.2's "built once per camera, after probe succeeds" rule.
func (s *FrameSource) WaitProbe(ctx context.Context) (types.ProbeResult, error) {
	select {
	case <-s.probeDone:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.probe, s.probeErr
	case <-ctx.Done():
		return types.ProbeResult{}, ctx.Err()
	}
}

// Run drives the full probe → steady-state → reconnect lifecycle until
// ctx is cancelled. It is meant to run on its own goroutine, one per
// camera, per §5's scheduling model.
func (s *FrameSource) Run(ctx context.Context) error {
	defer close(s.frames)
	defer s.setState(StateStopped)

	result, err := s.probeWithRetry(ctx)
	s.mu.Lock()
	s.probe = result
	s.probeErr = err
	s.mu.Unlock()
	close(s.probeDone)
	if err != nil {
		return fmt.Errorf("source[%s]: %w", s.cfg.Name, err)
	}

	backoff := newSteadyStateBackoff(s.cfg.ReconnectDelay.Value())

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(StateReady)
		err := s.streamUntilFailure(ctx, result)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("source", "camera %s: stream failure, reconnecting: %v", s.cfg.Name, err)
		s.setState(StateReconnecting)

		delay := backoff.next()
		if sleepErr := sleepOrCancel(ctx, delay); sleepErr != nil {
			return sleepErr
		}

		// Re-probe after reconnect in case geometry or codec changed
		// (e.g. the camera rebooted into a different profile). On
		// failure the camera is not given up: the loop goes on with the
		// previous result, and if that stream attempt fails too it backs
		// off and probes again.
		fresh, probeErr := s.probeWithRetry(ctx)
		if probeErr != nil {
			logger.Error("source", "camera %s: reconnect probe failed: %v", s.cfg.Name, probeErr)
			continue
		}
		result = fresh
		s.mu.Lock()
		s.probe = result
		s.mu.Unlock()
		backoff.reset()
	}
}

// probeWithRetry implements the fixed-schedule probe loop of §4.1:
// ProbeAttempts attempts, each bounded by ProbeTimeout, ProbeDelay
// between attempts. Exhausting the schedule yields SourceUnreachable;
// an unsupported codec is fatal immediately, without consuming the
// rest of the schedule.
func (s *FrameSource) probeWithRetry(ctx context.Context) (types.ProbeResult, error) {
	s.setState(StateProbing)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.ProbeAttempts; attempt++ {
		if ctx.Err() != nil {
			return types.ProbeResult{}, ctx.Err()
		}

		metrics.ProbeAttempt(s.cfg.Name)
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout.Value())
		result, err := probe(attemptCtx, s.cfg)
		cancel()

		if err == nil {
			return result, nil
		}
		metrics.ProbeFailure(s.cfg.Name)
		if isUnsupportedCodec(err) {
			return types.ProbeResult{}, err
		}

		lastErr = err
		logger.Warn("source", "camera %s: probe attempt %d/%d failed: %v", s.cfg.Name, attempt, s.cfg.ProbeAttempts, err)

		if attempt < s.cfg.ProbeAttempts {
			if sleepErr := sleepOrCancel(ctx, s.cfg.ProbeDelay.Value()); sleepErr != nil {
				return types.ProbeResult{}, sleepErr
			}
		}
	}

	return types.ProbeResult{}, fmt.Errorf("%w (last: %v)", mediaerr.ErrSourceUnreachable, lastErr)
}

func isUnsupportedCodec(err error) bool {
	for err != nil {
		if err == mediaerr.ErrUnsupportedCodec {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// streamUntilFailure builds the real decode pipeline for the probed
// codec, pumps appsink samples into s.frames until the bus reports an
// error or EOS, then tears the pipeline down. It returns nil only when
// ctx was cancelled.
func (s *FrameSource) streamUntilFailure(ctx context.Context, result types.ProbeResult) error {
	dp, err := buildDecodePipeline(s.cfg, result.Codec)
	if err != nil {
		return err
	}
	s.pipeline = dp
	defer func() {
		dp.pipeline.SetState(gst.StateNull)
		s.pipeline = nil
	}()

	dp.appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			sample := sink.PullSample()
			if sample == nil {
				return gst.FlowOK
			}
			buffer := sample.GetBuffer()
			frame, err := frameFromBuffer(buffer, types.PixelFormatNV12, result.Width, result.Height)
			if err != nil {
				logger.Warn("source", "camera %s: frame extraction failed: %v", s.cfg.Name, err)
				return gst.FlowOK
			}
			metrics.FrameRead(s.cfg.Name)
			select {
			case s.frames <- frame:
			default:
				frame.Close()
				metrics.FrameDropped(s.cfg.Name)
			}
			return gst.FlowOK
		},
	})

	if err := dp.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("source: set playing: %w", err)
	}

	bus := dp.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}
			switch msg.Type() {
			case gst.MessageEOS:
				return fmt.Errorf("source: end of stream")
			case gst.MessageError:
				gerr := msg.ParseError()
				category := classifyBusError(gerr)
				return fmt.Errorf("source: pipeline error [%s]: %s", category, gerr.Error())
			}
		}
	}
}
