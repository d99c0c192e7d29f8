package signaling

import (
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/varan-neural/media-center/internal/logger"
)

// roomIDFromPath implements the room lookup of §4.4 step 3, grounded
// on signaling.cpp: an empty path or bare "/" maps to room "default",
// otherwise the leading slash is stripped and the remainder is the
// camera name.
func roomIDFromPath(path string) string {
	if path == "" || path == "/" {
		return "default"
	}
	return strings.TrimPrefix(path, "/")
}

// channel is one open viewer connection within a room. Writes are
// serialized through outbox and drained by a single writer goroutine,
// grounded on signaling.cpp's m_write_queue/do_write pattern: push onto
// the queue, and exactly one goroutine ever calls WriteMessage.
type channel struct {
	clientID string
	conn     *websocket.Conn
	outbox   chan Envelope
	closed   chan struct{}
	once     sync.Once
}

func newChannel(clientID string, conn *websocket.Conn) *channel {
	return &channel{
		clientID: clientID,
		conn:     conn,
		outbox:   make(chan Envelope, 32),
		closed:   make(chan struct{}),
	}
}

func (c *channel) runWriter() {
	for {
		select {
		case env, ok := <-c.outbox:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				logger.Warn("signaling", "client %s: write failed: %v", c.clientID, err)
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// send enqueues env for delivery. It never blocks the caller's
// SessionController event loop beyond the 32-message backlog; a
// viewer slow enough to fill that backlog is already failing.
func (c *channel) send(env Envelope) {
	select {
	case c.outbox <- env:
	case <-c.closed:
	}
}

// Close shuts the channel down with the WebSocket normal close code,
// matching signaling.cpp's idempotent close(websocket::close_code::normal).
func (c *channel) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadlineNow())
		c.conn.Close()
	})
}

// room is one camera's full-duplex signaling namespace: a set of open
// viewer channels, guarded by a mutex since attach/detach happen from
// arbitrary connection goroutines.
type room struct {
	id string

	mu       sync.Mutex
	channels map[string]*channel
}

func newRoom(id string) *room {
	return &room{id: id, channels: make(map[string]*channel)}
}

func (r *room) add(ch *channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.clientID] = ch
}

func (r *room) remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, clientID)
}

func (r *room) get(clientID string) (*channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[clientID]
	return ch, ok
}
