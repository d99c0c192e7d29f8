// Package types holds the data model shared across the ingestion and
// distribution packages: probe results and the DMA-BUF-backed encoded
// frames that flow from a FrameSource into a MediaGraph.
package types

import "fmt"

// Codec identifies the elementary stream codec carried by an RTSP source.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecH264
	CodecH265
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "H264"
	case CodecH265:
		return "H265"
	default:
		return "unknown"
	}
}

// PixelFormat identifies the raw pixel layout of a decoded frame.
// NV12 is canonical; the others are accepted alternates recognized by
// the encoder stage of the MediaGraph.
type PixelFormat int

const (
	PixelFormatNV12 PixelFormat = iota
	PixelFormatNV21
	PixelFormatRGB24
	PixelFormatBGR24
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatNV21:
		return "NV21"
	case PixelFormatRGB24:
		return "RGB24"
	case PixelFormatBGR24:
		return "BGR24"
	default:
		return "unknown"
	}
}

// ProbeResult carries everything FrameSource learns about an RTSP source
// during its probe protocol. Ready becomes true only once all four of
// Codec, Width, Height and the framerate fraction are known.
type ProbeResult struct {
	Codec   Codec
	Width   int
	Height  int
	FPSNum  int
	FPSDen  int
	Profile string

	codecKnown     bool
	sizeKnown      bool
	framerateKnown bool
}

// SetCodec records the codec identifier carried by the media description.
func (p *ProbeResult) SetCodec(c Codec) {
	p.Codec = c
	p.codecKnown = true
}

// SetGeometry records the width/height/framerate carried by the parsed
// elementary stream's downstream capability event.
func (p *ProbeResult) SetGeometry(width, height, fpsNum, fpsDen int) {
	p.Width = width
	p.Height = height
	p.sizeKnown = width > 0 && height > 0
	p.FPSNum = fpsNum
	p.FPSDen = fpsDen
	p.framerateKnown = fpsNum > 0 && fpsDen > 0
}

// Ready reports whether codec, size and framerate have all been observed.
func (p *ProbeResult) Ready() bool {
	return p.codecKnown && p.sizeKnown && p.framerateKnown
}

func (p ProbeResult) String() string {
	return fmt.Sprintf("%s %dx%d@%d/%d", p.Codec, p.Width, p.Height, p.FPSNum, p.FPSDen)
}

// EncodedFrame is a short-lived, non-copyable reference to a DMA-BUF
// backed decoded frame. Exactly one owner holds Close responsibility at
// any time; on hand-off the descriptor is duplicated so the new owner's
// Close does not race the old owner's.
//
// Invariant: FD >= 0 while alive; NumPlanes is 1 or 2.
type EncodedFrame struct {
	FD        int
	Width     int
	Height    int
	Format    PixelFormat
	Offset    [4]int
	Pitch     [4]int
	NumPlanes int
	PTS       int64 // presentation timestamp, stream time base

	closer func(fd int) error
	closed bool
}

// NewEncodedFrame constructs an EncodedFrame that owns fd. closer is
// called at most once, by Close, to release the descriptor; it is
// injected so tests can observe close-exactly-once without a real fd.
func NewEncodedFrame(fd, width, height int, format PixelFormat, offset, pitch [4]int, numPlanes int, pts int64, closer func(int) error) *EncodedFrame {
	return &EncodedFrame{
		FD:        fd,
		Width:     width,
		Height:    height,
		Format:    format,
		Offset:    offset,
		Pitch:     pitch,
		NumPlanes: numPlanes,
		PTS:       pts,
		closer:    closer,
	}
}

// Close releases the underlying DMA-BUF descriptor. It is safe to call
// more than once; only the first call has an effect.
func (f *EncodedFrame) Close() error {
	if f == nil || f.closed {
		return nil
	}
	f.closed = true
	if f.closer == nil || f.FD < 0 {
		return nil
	}
	return f.closer(f.FD)
}

// Closed reports whether Close has already run.
func (f *EncodedFrame) Closed() bool {
	return f == nil || f.closed
}
