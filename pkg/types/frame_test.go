package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeResultReady(t *testing.T) {
	var p ProbeResult
	assert.False(t, p.Ready())

	p.SetCodec(CodecH264)
	assert.False(t, p.Ready(), "codec alone is not enough")

	p = ProbeResult{}
	p.SetGeometry(1920, 1080, 25, 1)
	assert.False(t, p.Ready(), "geometry alone is not enough")

	p.SetCodec(CodecH264)
	assert.True(t, p.Ready())
}

func TestEncodedFrameCloseExactlyOnce(t *testing.T) {
	calls := 0
	f := NewEncodedFrame(42, 1920, 1080, PixelFormatNV12, [4]int{}, [4]int{}, 1, 0, func(fd int) error {
		calls++
		require.Equal(t, 42, fd)
		return nil
	})

	require.False(t, f.Closed())
	require.NoError(t, f.Close())
	require.True(t, f.Closed())
	require.NoError(t, f.Close())

	assert.Equal(t, 1, calls, "closer must run exactly once")
}

func TestEncodedFrameClosePropagatesError(t *testing.T) {
	wantErr := errors.New("close failed")
	f := NewEncodedFrame(1, 1, 1, PixelFormatNV12, [4]int{}, [4]int{}, 1, 0, func(int) error {
		return wantErr
	})

	err := f.Close()
	assert.ErrorIs(t, err, wantErr)
}

func TestCodecString(t *testing.T) {
	cases := map[Codec]string{
		CodecUnknown: "unknown",
		CodecH264:    "H264",
		CodecH265:    "H265",
	}
	for codec, want := range cases {
		assert.Equal(t, want, codec.String())
	}
}
