package session

import (
	"testing"

	"github.com/varan-neural/media-center/internal/signaling"
)

func TestToUint16Ptr(t *testing.T) {
	if toUint16Ptr(nil) != nil {
		t.Fatalf("expected nil in, nil out")
	}
	v := 3
	got := toUint16Ptr(&v)
	if got == nil || *got != 3 {
		t.Fatalf("expected *uint16(3), got %v", got)
	}
}

func TestOnConnectionRejectsDuplicate(t *testing.T) {
	var sent []signaling.Envelope
	c := &Controller{
		camera:   "porch",
		clientID: "viewer-1",
		state:    StateNegotiating,
		send:     func(env signaling.Envelope) { sent = append(sent, env) },
		events:   make(chan event, 1),
		done:     make(chan struct{}),
	}

	c.onConnection()

	if len(sent) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(sent))
	}
	if sent[0].Ret != signaling.RetFault {
		t.Fatalf("expected a fault reply for a duplicate connection request, got %v", sent[0].Ret)
	}
	if c.State() != StateNegotiating {
		t.Fatalf("duplicate connection attempt must not change state, got %v", c.State())
	}
}

func TestOnConnectionRejectsDisabledCamera(t *testing.T) {
	var sent []signaling.Envelope
	c := &Controller{
		camera:   "porch",
		clientID: "viewer-1",
		state:    StateIdle,
		graph:    nil,
		send:     func(env signaling.Envelope) { sent = append(sent, env) },
		events:   make(chan event, 1),
		done:     make(chan struct{}),
	}

	c.onConnection()

	if len(sent) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(sent))
	}
	if sent[0].Ret != signaling.RetFault {
		t.Fatalf("expected a fault reply when the camera's graph is nil, got %v", sent[0].Ret)
	}
	if c.State() != StateClosed {
		t.Fatalf("expected state to move to CLOSED, got %v", c.State())
	}
}

func TestOnClosedIsIdempotent(t *testing.T) {
	c := &Controller{
		camera:   "porch",
		clientID: "viewer-1",
		state:    StateClosed,
		send:     func(signaling.Envelope) {},
		events:   make(chan event, 1),
		done:     make(chan struct{}),
	}

	// onClosed must tolerate being entered while already CLOSED, and
	// must not dereference a nil graph/pc when nothing was ever attached.
	c.onClosed()
	if c.State() != StateClosed {
		t.Fatalf("expected state to remain CLOSED")
	}
}
