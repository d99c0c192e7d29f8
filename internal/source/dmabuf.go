package source

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"
	"golang.org/x/sys/unix"

	"github.com/varan-neural/media-center/pkg/types"
)

// frameFromBuffer turns a decoded GstBuffer into an EncodedFrame owning
// its own DMA-BUF file descriptor.
//
// When the decoder produced dmabuf-backed memory (hardware path,
// vaapih264dec or vaapih265dec), the
// descriptor is duplicated via unix.Dup so the new EncodedFrame has an
// independent close from the GstBuffer's own lifetime, mirroring the
// original implementation's "duplicated on hand-off" rule (§3).
//
// When the decoder produced ordinary heap memory (software fallback,
// avdec_h264), there is no descriptor to duplicate; a fresh
// memfd_create-backed region is populated with the mapped bytes so the
// rest of the pipeline still receives a uniform fd-based frame.
func frameFromBuffer(buffer *gst.Buffer, format types.PixelFormat, width, height int) (*types.EncodedFrame, error) {
	if buffer == nil {
		return nil, fmt.Errorf("source: nil buffer")
	}

	mem := buffer.PeekMemory(0)
	if mem != nil && mem.IsMemoryTypeDMABuf() {
		srcFD := mem.GetDMABufFD()
		dupFD, err := unix.Dup(srcFD)
		if err != nil {
			return nil, fmt.Errorf("source: dup dmabuf fd: %w", err)
		}
		numPlanes := 1
		if format == types.PixelFormatNV12 || format == types.PixelFormatNV21 {
			numPlanes = 2
		}
		offset := [4]int{}
		pitch := [4]int{0: width}
		return types.NewEncodedFrame(dupFD, width, height, format, offset, pitch, numPlanes, int64(buffer.PresentationTimestamp()), closeFD), nil
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()
	data := mapInfo.Bytes()

	fd, err := unix.MemfdCreate("encoded-frame", 0)
	if err != nil {
		return nil, fmt.Errorf("source: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(len(data))); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("source: ftruncate memfd: %w", err)
	}
	if len(data) > 0 {
		if _, err := unix.Pwrite(fd, data, 0); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("source: write memfd: %w", err)
		}
	}

	numPlanes := 1
	offset := [4]int{}
	pitch := [4]int{0: width}
	return types.NewEncodedFrame(fd, width, height, format, offset, pitch, numPlanes, int64(buffer.PresentationTimestamp()), closeFD), nil
}

func closeFD(fd int) error {
	return unix.Close(fd)
}
