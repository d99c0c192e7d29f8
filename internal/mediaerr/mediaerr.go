// Package mediaerr defines the sentinel error kinds shared by the
// FrameSource, MediaGraph and SessionController. Call sites wrap a
// sentinel with context via fmt.Errorf's %w verb; callers classify with
// errors.Is instead of string matching.
package mediaerr

import "errors"

var (
	// ErrProbeTimeout means the RTSP probe did not complete within the
	// per-attempt budget. The caller retries.
	ErrProbeTimeout = errors.New("probe timeout")

	// ErrSourceUnreachable means all probe attempts were exhausted.
	ErrSourceUnreachable = errors.New("source unreachable")

	// ErrUnsupportedCodec means the source codec is neither H.264 nor
	// H.265. Fatal for that camera only.
	ErrUnsupportedCodec = errors.New("unsupported codec")

	// ErrBranchAttachFailed means a live graph mutation failed while
	// splicing in a PeerBranch. The graph remains healthy.
	ErrBranchAttachFailed = errors.New("branch attach failed")

	// ErrSignalingParse means a single inbound signaling message was
	// malformed or missing a required field and was discarded.
	ErrSignalingParse = errors.New("signaling parse error")

	// ErrSignalingTransport means a signaling channel was torn down by
	// a transport failure. The endpoint does not reconnect: the channel
	// is removed from its room and its SessionController is closed, so
	// the viewer has to open a new channel and send a fresh connection
	// request.
	ErrSignalingTransport = errors.New("signaling transport error")

	// ErrAlreadyStarted means a connection request arrived for a
	// client_id that already has an open SessionController.
	ErrAlreadyStarted = errors.New("already started")

	// ErrCameraExists means CameraManager.Add was called with a name
	// already present in the registry.
	ErrCameraExists = errors.New("camera already exists")

	// ErrCameraNotFound means an operation referenced a camera name
	// absent from the registry.
	ErrCameraNotFound = errors.New("camera not found")
)

// Category buckets a concrete error for telemetry, grounded on the
// network/codec/auth/unknown split used to classify GStreamer bus
// errors before they are promoted to one of the sentinels above.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNetwork
	CategoryCodec
	CategoryAuth
)

func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryCodec:
		return "codec"
	case CategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}
