// Package camera implements CameraManager (spec component C6): a
// name-keyed registry that owns one FrameSource and one MediaGraph per
// configured camera, pumps frames between them, and exposes the
// MediaGraph to the signaling/session layer so viewers can attach.
//
// Grounded on original_source/media-center/src/media_center.cpp's
// add_camera/initialize_cameras/start_cameras shape. Each camera is
// probed on its own goroutine, concurrently with the others; a camera
// whose initial probe fails is disabled and is not probed again, and
// the other cameras are not affected.
package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/varan-neural/media-center/internal/config"
	"github.com/varan-neural/media-center/internal/logger"
	"github.com/varan-neural/media-center/internal/mediaerr"
	"github.com/varan-neural/media-center/internal/mediagraph"
	"github.com/varan-neural/media-center/internal/source"
	"github.com/varan-neural/media-center/pkg/types"
)

// Camera bundles one configured camera's ingestion source and output
// graph, kept together for lifecycle and metrics purposes. Graph is
// nil until the camera's first probe succeeds, and nil again after a
// fatal source failure or Remove.
type Camera struct {
	Name   string
	Source *source.FrameSource
	Graph  *mediagraph.MediaGraph

	cancel context.CancelFunc
}

// Binder is implemented by the session.Registry: once a camera's
// MediaGraph exists, it is handed over so incoming viewer connections
// on that camera's room can attach PeerBranches to it.
type Binder interface {
	// RegisterCamera marks camera attachable via graph.
	RegisterCamera(camera string, graph *mediagraph.MediaGraph)

	// DisableCamera marks camera known but currently unattachable: a
	// configured camera before its first probe succeeds, or one whose
	// FrameSource has failed fatally. New connection requests for it
	// get an explicit fault reply rather than being silently dropped.
	DisableCamera(camera string)

	// RemoveCamera forgets camera entirely, per §4.6's remove operation.
	RemoveCamera(camera string)
}

// Manager owns every configured camera's FrameSource and MediaGraph
// and the goroutines pumping frames between them.
type Manager struct {
	binder Binder

	mu      sync.Mutex
	cameras map[string]*Camera
	wg      sync.WaitGroup
}

func New(binder Binder) *Manager {
	return &Manager{
		binder:  binder,
		cameras: make(map[string]*Camera),
	}
}

// Add registers a camera under cfg.Name and constructs its
// FrameSource, but defers MediaGraph construction until Run has
// probed it: §4.2 requires the static topology's appsrc caps to
// declare the real probed width/height/framerate, which isn't known
// until then. The camera is announced to the Binder as known-but-
// unattachable immediately, so a connection request arriving before
// the probe completes gets an explicit fault reply rather than being
// silently dropped. Returns mediaerr.ErrCameraExists if the name is
// already registered.
func (m *Manager) Add(cfg config.CameraConfig) (*Camera, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cameras[cfg.Name]; exists {
		return nil, fmt.Errorf("camera: %w: %s", mediaerr.ErrCameraExists, cfg.Name)
	}

	cam := &Camera{
		Name:   cfg.Name,
		Source: source.New(cfg),
	}
	m.cameras[cfg.Name] = cam
	m.binder.DisableCamera(cfg.Name)

	return cam, nil
}

// Remove stops and destroys the camera registered under name, per
// §4.6: its ingestion is cancelled, its MediaGraph (if any) is torn
// down, and it is unregistered from the Binder so no further
// connections can reach it. Returns mediaerr.ErrCameraNotFound if name
// is not registered.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	cam, ok := m.cameras[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("camera: %w: %s", mediaerr.ErrCameraNotFound, name)
	}
	delete(m.cameras, name)
	cancel := cam.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.binder.RemoveCamera(name)
	return nil
}

// Get returns the camera registered under name, if any.
func (m *Manager) Get(name string) (*Camera, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cam, ok := m.cameras[name]
	return cam, ok
}

// Names returns every registered camera's name, in no particular order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.cameras))
	for name := range m.cameras {
		names = append(names, name)
	}
	return names
}

// Run starts ingestion and frame-pumping for every registered camera
// and blocks until ctx is cancelled, at which point it waits for every
// camera's goroutines to exit before returning. Every camera is started
// at once on its own goroutine, so initial probes run concurrently, not
// one after another. An initial probe failure on one camera disables
// that camera only; Run does not retry it, and the other cameras come
// up regardless. Steady-state reconnect (inside FrameSource.Run) is
// likewise per camera.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	cams := make([]*Camera, 0, len(m.cameras))
	for _, cam := range m.cameras {
		cams = append(cams, cam)
	}
	m.mu.Unlock()

	if len(cams) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	for _, cam := range cams {
		camCtx, cancel := context.WithCancel(ctx)
		m.mu.Lock()
		cam.cancel = cancel
		m.mu.Unlock()

		m.wg.Add(1)
		go m.runCamera(camCtx, cam)
	}

	m.wg.Wait()
	return ctx.Err()
}

// runCamera drives one camera's FrameSource, builds its MediaGraph
// once the first probe succeeds (using the probed width, height and
// framerate, per §4.2), and pumps frames into it until ctx is
// cancelled or the source's Run returns. A camera whose source
// permanently fails (e.g. unsupported codec) is disabled in the
// Binder and its goroutine exits without affecting other cameras; the
// camera is not probed again unless it is removed and added anew.
func (m *Manager) runCamera(ctx context.Context, cam *Camera) {
	defer m.wg.Done()

	sourceDone := make(chan error, 1)
	go func() { sourceDone <- cam.Source.Run(ctx) }()

	probe, err := cam.Source.WaitProbe(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("camera", "%s: initial probe failed: %v", cam.Name, err)
		}
		m.binder.DisableCamera(cam.Name)
		<-sourceDone
		return
	}

	graph, err := mediagraph.New(mediagraph.Config{
		CameraName: cam.Name,
		Width:      probe.Width,
		Height:     probe.Height,
		FPS:        probeFPS(probe),
	})
	if err != nil {
		logger.Error("camera", "%s: new media graph: %v", cam.Name, err)
		m.binder.DisableCamera(cam.Name)
		<-sourceDone
		return
	}

	m.mu.Lock()
	cam.Graph = graph
	m.mu.Unlock()
	m.binder.RegisterCamera(cam.Name, graph)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for frame := range cam.Source.Frames() {
			graph.PushFrame(frame)
		}
	}()

	if err := <-sourceDone; err != nil && ctx.Err() == nil {
		logger.Error("camera", "%s: source exited: %v", cam.Name, err)
		m.binder.DisableCamera(cam.Name)
	}

	<-pumpDone
	graph.Close()

	m.mu.Lock()
	cam.Graph = nil
	m.mu.Unlock()
}

// probeFPS reduces a probe's framerate fraction to the single integer
// MediaGraph.Config wants. WaitProbe only returns a nil error once
// ProbeResult.Ready is true, which guarantees FPSDen > 0.
func probeFPS(probe types.ProbeResult) int {
	if probe.FPSDen <= 0 {
		return 0
	}
	return probe.FPSNum / probe.FPSDen
}

// LoadAll constructs and registers one Camera per entry in doc.Cameras,
// in file order, per media_center.cpp's add_camera loop. It returns on
// the first duplicate or construction failure.
func LoadAll(m *Manager, doc *config.Document) error {
	for _, cfg := range doc.Cameras {
		if _, err := m.Add(cfg); err != nil {
			return err
		}
	}
	return nil
}

// WaitProbe blocks until every registered camera has left PROBING
// (reached READY, RECONNECTING, or STOPPED), or ctx is cancelled.
// Exposed for readiness checks such as /healthz.
func WaitProbe(ctx context.Context, m *Manager) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if allProbed(m) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func allProbed(m *Manager) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cam := range m.cameras {
		if cam.Source.State() == source.StateIdle || cam.Source.State() == source.StateProbing {
			return false
		}
	}
	return true
}
