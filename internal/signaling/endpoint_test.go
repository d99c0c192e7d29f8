package signaling

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu          sync.Mutex
	inbound     []Envelope
	disconnects []string
}

func (d *recordingDispatcher) HandleInbound(room, clientID string, env Envelope) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inbound = append(d.inbound, env)
}

func (d *recordingDispatcher) HandleDisconnect(room, clientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects = append(d.disconnects, clientID)
}

func (d *recordingDispatcher) lastInbound() (Envelope, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.inbound) == 0 {
		return Envelope{}, false
	}
	return d.inbound[len(d.inbound)-1], true
}

func dialTestEndpoint(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEndpointBindsFirstMessageClientID(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	endpoint := New(dispatcher)

	server := httptest.NewServer(endpoint)
	defer server.Close()

	conn := dialTestEndpoint(t, server.URL+"/porch")
	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeConnection, ClientID: "viewer-1"}))

	require.Eventually(t, func() bool {
		env, ok := dispatcher.lastInbound()
		return ok && env.ClientID == "viewer-1"
	}, time.Second, 10*time.Millisecond)
}

func TestEndpointDropsMidConnectionClientIDChange(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	endpoint := New(dispatcher)

	server := httptest.NewServer(endpoint)
	defer server.Close()

	conn := dialTestEndpoint(t, server.URL+"/porch")
	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeConnection, ClientID: "viewer-1"}))
	require.Eventually(t, func() bool {
		_, ok := dispatcher.lastInbound()
		return ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeOffer, ClientID: "viewer-2", SDP: "v=0"}))
	time.Sleep(50 * time.Millisecond)

	env, ok := dispatcher.lastInbound()
	require.True(t, ok)
	require.Equal(t, "viewer-1", env.ClientID, "message claiming a different client_id must be dropped")
}

func TestEndpointSendIsUnicast(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	endpoint := New(dispatcher)

	server := httptest.NewServer(endpoint)
	defer server.Close()

	viewerA := dialTestEndpoint(t, server.URL+"/porch")
	viewerB := dialTestEndpoint(t, server.URL+"/porch")

	require.NoError(t, viewerA.WriteJSON(Envelope{Type: TypeConnection, ClientID: "viewer-a"}))
	require.NoError(t, viewerB.WriteJSON(Envelope{Type: TypeConnection, ClientID: "viewer-b"}))
	time.Sleep(50 * time.Millisecond)

	endpoint.Send("porch", "viewer-a", Envelope{Type: TypeAnswer, SDP: "v=0 answer-for-a"})

	viewerA.SetReadDeadline(time.Now().Add(time.Second))
	var got Envelope
	require.NoError(t, viewerA.ReadJSON(&got))
	require.Equal(t, "v=0 answer-for-a", got.SDP)
	require.Equal(t, "viewer-a", got.ClientID)
	require.Equal(t, "porch", got.Camera)
	require.Equal(t, SenderCamera, got.Sender)

	viewerB.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	err := viewerB.ReadJSON(&Envelope{})
	require.Error(t, err, "viewer-b must not receive a message addressed to viewer-a")
}

func TestEndpointNotifiesDisconnect(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	endpoint := New(dispatcher)

	server := httptest.NewServer(endpoint)
	defer server.Close()

	conn := dialTestEndpoint(t, server.URL+"/porch")
	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeConnection, ClientID: "viewer-1"}))
	time.Sleep(50 * time.Millisecond)
	conn.Close()

	require.Eventually(t, func() bool {
		dispatcher.mu.Lock()
		defer dispatcher.mu.Unlock()
		for _, id := range dispatcher.disconnects {
			if id == "viewer-1" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}
