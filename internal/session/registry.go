package session

import (
	"sync"

	"github.com/varan-neural/media-center/internal/logger"
	"github.com/varan-neural/media-center/internal/mediagraph"
	"github.com/varan-neural/media-center/internal/signaling"
)

// Sender is the narrow signaling.Endpoint surface Registry needs: a
// unicast reply path keyed by (room, client_id).
type Sender interface {
	Send(room, clientID string, env signaling.Envelope)
}

// Registry implements signaling.Dispatcher, fanning inbound envelopes
// out to one Controller per (camera, client_id) and creating that
// Controller on first contact. It is the glue between SignalingEndpoint
// (C4) and the per-camera MediaGraph (C2/C3) that CameraManager (C6)
// registers at startup.
//
// cameras maps every camera CameraManager knows about to its current
// MediaGraph. A nil value (present key, nil graph) means the camera is
// known but currently unattachable, either because it hasn't finished
// its first probe yet or because its FrameSource failed fatally; an
// absent key means the camera was never configured, or was removed.
// A connection request distinguishes these: the former gets an
// explicit ret=fault, the latter is silently dropped as unrouteable.
type Registry struct {
	sender Sender

	mu       sync.Mutex
	cameras  map[string]*mediagraph.MediaGraph
	sessions map[string]map[string]*Controller // camera -> client_id -> Controller
}

func NewRegistry(sender Sender) *Registry {
	return &Registry{
		sender:   sender,
		cameras:  make(map[string]*mediagraph.MediaGraph),
		sessions: make(map[string]map[string]*Controller),
	}
}

// RegisterCamera binds a camera name to its MediaGraph so that future
// viewer connections on that room can attach PeerBranches to it.
func (r *Registry) RegisterCamera(camera string, graph *mediagraph.MediaGraph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cameras[camera] = graph
	if _, ok := r.sessions[camera]; !ok {
		r.sessions[camera] = make(map[string]*Controller)
	}
}

// DisableCamera marks camera known but currently unattachable, and
// tears down any Controllers already attached to its (now dead)
// graph: a configured camera before its first probe succeeds, or one
// whose FrameSource has just failed fatally, both satisfy §7/S6's
// "no PeerBranches can be created, connection replies ret=fault" rule.
func (r *Registry) DisableCamera(camera string) {
	r.mu.Lock()
	r.cameras[camera] = nil
	clients, ok := r.sessions[camera]
	if !ok {
		clients = make(map[string]*Controller)
		r.sessions[camera] = clients
	}
	toClose := make([]*Controller, 0, len(clients))
	for clientID, ctrl := range clients {
		toClose = append(toClose, ctrl)
		delete(clients, clientID)
	}
	r.mu.Unlock()

	for _, ctrl := range toClose {
		ctrl.Close()
	}
}

// RemoveCamera forgets camera entirely, per §4.6, closing any attached
// Controllers first.
func (r *Registry) RemoveCamera(camera string) {
	r.mu.Lock()
	clients := r.sessions[camera]
	delete(r.sessions, camera)
	delete(r.cameras, camera)
	r.mu.Unlock()

	for _, ctrl := range clients {
		ctrl.Close()
	}
}

// HandleInbound implements signaling.Dispatcher.
func (r *Registry) HandleInbound(room, clientID string, env signaling.Envelope) {
	ctrl, ok := r.controllerFor(room, clientID)
	if !ok {
		logger.Warn("session", "room %s: no camera registered, dropping message from %s", room, clientID)
		return
	}
	ctrl.Dispatch(env)
}

// HandleDisconnect implements signaling.Dispatcher.
func (r *Registry) HandleDisconnect(room, clientID string) {
	r.mu.Lock()
	clients, ok := r.sessions[room]
	var ctrl *Controller
	if ok {
		ctrl = clients[clientID]
		delete(clients, clientID)
	}
	r.mu.Unlock()

	if ctrl != nil {
		ctrl.Close()
	}
}

// controllerFor returns the Controller for (room, clientID), creating
// one on first contact if the room's camera is registered.
func (r *Registry) controllerFor(room, clientID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	graph, ok := r.cameras[room]
	if !ok {
		return nil, false
	}

	clients, ok := r.sessions[room]
	if !ok {
		clients = make(map[string]*Controller)
		r.sessions[room] = clients
	}

	ctrl, ok := clients[clientID]
	if !ok {
		send := func(env signaling.Envelope) { r.sender.Send(room, clientID, env) }
		ctrl = New(room, clientID, graph, send)
		clients[clientID] = ctrl
	}
	return ctrl, true
}
