// Package signaling implements SignalingEndpoint (spec component C4):
// one full-duplex WebSocket room per camera, demultiplexed by
// client_id, forwarding SDP/ICE messages to per-viewer SessionControllers.
//
// The envelope field names and room/path parsing are grounded on
// original_source/media-center/include/signaling_definers.h and
// src/signaling.cpp; the transport itself is gorilla/websocket in place
// of the original's Boost.Beast.
package signaling

// MessageType enumerates the envelope's type field (§6).
type MessageType string

const (
	TypeConnection MessageType = "connection"
	TypeOpen       MessageType = "open"
	TypeClose      MessageType = "close"
	TypeICE        MessageType = "ice"
	TypeOffer      MessageType = "offer"
	TypeAnswer     MessageType = "answer"
)

// Sender enumerates the envelope's sender field.
type Sender string

const (
	SenderClient Sender = "client"
	SenderCamera Sender = "camera"
)

// Ret enumerates the envelope's ret field.
type Ret string

const (
	RetSuccess Ret = "success"
	RetFault   Ret = "fault"
)

// Envelope is the canonical JSON message shape of §4.4/§6. All fields
// are optional except Type and ClientID, which every message — inbound
// or outbound — must carry.
type Envelope struct {
	Type        MessageType `json:"type"`
	ClientID    string      `json:"client_id"`
	Camera      string      `json:"camera,omitempty"`
	Sender      Sender      `json:"sender,omitempty"`
	Ret         Ret         `json:"ret,omitempty"`
	Description string      `json:"description,omitempty"`

	SDP string `json:"sdp,omitempty"`

	Candidate     string `json:"candidate,omitempty"`
	SDPMLineIndex *int   `json:"sdpMLineIndex,omitempty"`
	SDPMid        string `json:"sdpMid,omitempty"`
}

// Valid reports whether the envelope carries the two fields required
// on every inbound message per §4.4 step 2.
func (e Envelope) Valid() bool {
	return e.Type != "" && e.ClientID != ""
}
