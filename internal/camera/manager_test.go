package camera

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/varan-neural/media-center/internal/config"
	"github.com/varan-neural/media-center/internal/mediaerr"
	"github.com/varan-neural/media-center/internal/mediagraph"
)

type fakeBinder struct {
	registered map[string]*mediagraph.MediaGraph
	disabled   map[string]int
	removed    map[string]int
}

func newFakeBinder() *fakeBinder {
	return &fakeBinder{
		registered: make(map[string]*mediagraph.MediaGraph),
		disabled:   make(map[string]int),
		removed:    make(map[string]int),
	}
}

func (b *fakeBinder) RegisterCamera(camera string, graph *mediagraph.MediaGraph) {
	b.registered[camera] = graph
}

func (b *fakeBinder) DisableCamera(camera string) {
	b.disabled[camera]++
}

func (b *fakeBinder) RemoveCamera(camera string) {
	b.removed[camera]++
}

func TestManagerNamesAndGet(t *testing.T) {
	binder := newFakeBinder()
	m := New(binder)

	m.cameras["porch"] = &Camera{Name: "porch"}
	m.cameras["driveway"] = &Camera{Name: "driveway"}

	names := m.Names()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "driveway" || names[1] != "porch" {
		t.Fatalf("unexpected Names() result: %v", names)
	}

	cam, ok := m.Get("porch")
	if !ok || cam.Name != "porch" {
		t.Fatalf("expected to find camera porch, got %v, %v", cam, ok)
	}

	_, ok = m.Get("missing")
	if ok {
		t.Fatalf("expected Get of unknown camera to report not-found")
	}
}

func TestAddAnnouncesDisabledBeforeAnyProbe(t *testing.T) {
	binder := newFakeBinder()
	m := New(binder)

	if _, err := m.Add(config.CameraConfig{Name: "porch"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if binder.disabled["porch"] != 1 {
		t.Fatalf("expected Add to announce the camera as disabled, got %d calls", binder.disabled["porch"])
	}
	if _, ok := binder.registered["porch"]; ok {
		t.Fatalf("expected Add not to register a graph before any probe has run")
	}
}

func TestAddRejectsDuplicateName(t *testing.T) {
	binder := newFakeBinder()
	m := New(binder)

	if _, err := m.Add(config.CameraConfig{Name: "porch"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := m.Add(config.CameraConfig{Name: "porch"}); !errors.Is(err, mediaerr.ErrCameraExists) {
		t.Fatalf("expected ErrCameraExists for a duplicate name, got %v", err)
	}
}

func TestRemoveUnregistersAndReturnsNotFoundForUnknownCamera(t *testing.T) {
	binder := newFakeBinder()
	m := New(binder)

	if _, err := m.Add(config.CameraConfig{Name: "porch"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := m.Remove("porch"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if binder.removed["porch"] != 1 {
		t.Fatalf("expected Remove to unregister the camera from the Binder")
	}
	if _, ok := m.Get("porch"); ok {
		t.Fatalf("expected porch to be gone from the manager after Remove")
	}

	if err := m.Remove("porch"); !errors.Is(err, mediaerr.ErrCameraNotFound) {
		t.Fatalf("expected ErrCameraNotFound removing an already-removed camera, got %v", err)
	}
}

func TestManagerRunWithNoCamerasRespectsCancellation(t *testing.T) {
	binder := newFakeBinder()
	m := New(binder)

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected Run to return a context-cancelled error")
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
}
