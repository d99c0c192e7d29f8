package mediagraph

import (
	"testing"

	"github.com/varan-neural/media-center/pkg/types"
)

func TestFrameByteSizeNV12IncludesChromaPlane(t *testing.T) {
	frame := types.NewEncodedFrame(-1, 1920, 1080, types.PixelFormatNV12, [4]int{}, [4]int{0: 1920}, 2, 0, nil)

	got := frameByteSize(frame)
	want := 1920 * 1080 * 3 / 2
	if got != want {
		t.Fatalf("frameByteSize(NV12) = %d, want %d (luma + chroma)", got, want)
	}
}

func TestFrameByteSizeNV21MatchesNV12(t *testing.T) {
	frame := types.NewEncodedFrame(-1, 1920, 1080, types.PixelFormatNV21, [4]int{}, [4]int{0: 1920}, 2, 0, nil)

	got := frameByteSize(frame)
	want := 1920 * 1080 * 3 / 2
	if got != want {
		t.Fatalf("frameByteSize(NV21) = %d, want %d", got, want)
	}
}

func TestFrameByteSizePackedRGBIsSinglePlane(t *testing.T) {
	frame := types.NewEncodedFrame(-1, 640, 480, types.PixelFormatRGB24, [4]int{}, [4]int{0: 640 * 3}, 1, 0, nil)

	got := frameByteSize(frame)
	want := 640 * 3 * 480
	if got != want {
		t.Fatalf("frameByteSize(RGB24) = %d, want %d", got, want)
	}
}

func TestPushFrameDropsWhenReady(t *testing.T) {
	calls := 0
	frame := types.NewEncodedFrame(-1, 1920, 1080, types.PixelFormatNV12, [4]int{}, [4]int{0: 1920}, 2, 0, func(int) error {
		calls++
		return nil
	})

	g := &MediaGraph{cfg: Config{CameraName: "porch"}, state: StateReady}
	g.PushFrame(frame)

	if calls != 1 {
		t.Fatalf("expected PushFrame to close a frame arriving while READY exactly once, got %d closes", calls)
	}
	if !frame.Closed() {
		t.Fatalf("expected frame to be closed")
	}
}
