package source

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/varan-neural/media-center/internal/mediaerr"
)

// classifyBusError buckets a GStreamer bus error. The probe and stream
// loops put the bucket into the errors they return, and the probe
// reports an auth failure apart from other bus errors; the reconnect
// loop does not act on it. go-gst's GError does not expose a structured domain/code pair
// that distinguishes RTSP network failures from codec failures, so the
// classification falls back to matching against the error and debug
// strings, same as the upstream capture library this is grounded on.
func classifyBusError(gerr *gst.GError) mediaerr.Category {
	if gerr == nil {
		return mediaerr.CategoryUnknown
	}

	combined := strings.ToLower(gerr.Error() + " " + gerr.DebugString())

	authKeywords := []string{"unauthorized", "401", "403", "forbidden", "authentication", "credentials"}
	for _, kw := range authKeywords {
		if strings.Contains(combined, kw) {
			return mediaerr.CategoryAuth
		}
	}

	codecKeywords := []string{"codec", "decode", "format", "negotiation", "caps", "h264", "h265", "mjpeg", "not negotiated", "no decoder", "missing plugin"}
	for _, kw := range codecKeywords {
		if strings.Contains(combined, kw) {
			return mediaerr.CategoryCodec
		}
	}

	networkKeywords := []string{"connection", "timeout", "unreachable", "network", "dns", "resolve", "socket", "tcp", "udp", "rtsp", "not found", "could not connect"}
	for _, kw := range networkKeywords {
		if strings.Contains(combined, kw) {
			return mediaerr.CategoryNetwork
		}
	}

	return mediaerr.CategoryUnknown
}
