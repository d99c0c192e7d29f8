package signaling

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/varan-neural/media-center/internal/logger"
	"github.com/varan-neural/media-center/internal/mediaerr"
	"github.com/varan-neural/media-center/internal/metrics"
)

func deadlineNow() time.Time { return time.Now().Add(5 * time.Second) }

// Dispatcher is implemented by the session package: it receives every
// validated inbound envelope for a room and is told when a client's
// channel disappears so its SessionController can transition to
// CLOSED. SignalingEndpoint never interprets message types itself; it
// only routes by room and client_id (§4.4).
type Dispatcher interface {
	HandleInbound(room, clientID string, env Envelope)
	HandleDisconnect(room, clientID string)
}

// Endpoint is the full-duplex, room-keyed WebSocket signaling transport
// of §4.4/§6. One Endpoint serves every camera's room on a single HTTP
// listener, demultiplexing by URL path.
type Endpoint struct {
	dispatcher Dispatcher
	upgrader   websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

// New constructs an Endpoint. dispatcher receives inbound traffic;
// Send is used by the dispatcher's SessionControllers to reply. Pass
// nil if the dispatcher is not yet constructed and call SetDispatcher
// once it is, since the dispatcher (session.Registry) typically needs
// a reference back to this Endpoint to reply through Send.
func New(dispatcher Dispatcher) *Endpoint {
	return &Endpoint{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*room),
	}
}

// SetDispatcher installs dispatcher after construction, for the case
// where it needs a reference to this Endpoint to build itself.
func (e *Endpoint) SetDispatcher(dispatcher Dispatcher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatcher = dispatcher
}

// ServeHTTP upgrades the connection and runs its read pump until the
// client disconnects or a transport error occurs, at which point the
// channel is removed from its room and the dispatcher is notified so
// the bound SessionController can tear its PeerBranch down (§4.5,
// "transport drop / explicit close").
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := roomIDFromPath(r.URL.Path)

	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("signaling", "upgrade failed for room %s: %v", roomID, err)
		return
	}

	rm := e.roomFor(roomID)

	var clientID string
	var ch *channel

	defer func() {
		if ch != nil {
			rm.remove(clientID)
			ch.Close()
			e.dispatcher.HandleDisconnect(roomID, clientID)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("signaling", "room %s: %v", roomID, fmt.Errorf("%w: %v", mediaerr.ErrSignalingTransport, err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("signaling", "room %s: %v: %v", roomID, mediaerr.ErrSignalingParse, err)
			continue
		}

		if !env.Valid() {
			logger.Warn("signaling", "room %s: %v: missing type or client_id", roomID, mediaerr.ErrSignalingParse)
			continue
		}

		if ch == nil {
			clientID = env.ClientID
			ch = newChannel(clientID, conn)
			rm.add(ch)
			go ch.runWriter()
		} else if env.ClientID != clientID {
			// A connection is bound to the first client_id it presents;
			// a later message claiming a different id is a protocol
			// violation from this peer, not a new peer, so it is
			// dropped rather than silently re-routed.
			logger.Warn("signaling", "room %s: client_id changed mid-connection, dropping message", roomID)
			continue
		}

		metrics.SignalingIn(string(env.Type))
		e.dispatcher.HandleInbound(roomID, clientID, env)
	}
}

func (e *Endpoint) roomFor(id string) *room {
	e.mu.Lock()
	defer e.mu.Unlock()
	rm, ok := e.rooms[id]
	if !ok {
		rm = newRoom(id)
		e.rooms[id] = rm
	}
	return rm
}

// Send delivers env to the single open channel bound to (room,
// clientID), unicast only — never broadcast to other peers in the
// room, per §4.4. A send to a client with no open channel is dropped;
// the caller's SessionController will see the eventual disconnect
// notification.
func (e *Endpoint) Send(room, clientID string, env Envelope) {
	e.mu.Lock()
	rm, ok := e.rooms[room]
	e.mu.Unlock()
	if !ok {
		return
	}

	env.ClientID = clientID
	env.Camera = room
	env.Sender = SenderCamera

	ch, ok := rm.get(clientID)
	if !ok {
		logger.Warn("signaling", "room %s: send to unknown client %s dropped", room, clientID)
		return
	}
	metrics.SignalingOut(string(env.Type))
	ch.send(env)
}
