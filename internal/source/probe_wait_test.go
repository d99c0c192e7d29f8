package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/varan-neural/media-center/internal/config"
	"github.com/varan-neural/media-center/pkg/types"
)

func TestWaitProbeReturnsResultOnceProbeDoneCloses(t *testing.T) {
	s := New(config.CameraConfig{Name: "porch"})

	var want types.ProbeResult
	want.SetCodec(types.CodecH264)
	want.SetGeometry(1280, 720, 30, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.mu.Lock()
		s.probe = want
		s.mu.Unlock()
		close(s.probeDone)
	}()

	got, err := s.WaitProbe(context.Background())
	if err != nil {
		t.Fatalf("WaitProbe: %v", err)
	}
	if got != want {
		t.Fatalf("WaitProbe result = %+v, want %+v", got, want)
	}
}

func TestWaitProbePropagatesFatalProbeError(t *testing.T) {
	s := New(config.CameraConfig{Name: "porch"})
	wantErr := errors.New("unsupported codec")

	go func() {
		s.mu.Lock()
		s.probeErr = wantErr
		s.mu.Unlock()
		close(s.probeDone)
	}()

	_, err := s.WaitProbe(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected WaitProbe to propagate the fatal probe error, got %v", err)
	}
}

func TestWaitProbeReturnsOnContextCancellation(t *testing.T) {
	s := New(config.CameraConfig{Name: "porch"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.WaitProbe(ctx)
	if err == nil {
		t.Fatalf("expected an error from a cancelled context")
	}
}
