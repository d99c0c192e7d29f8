package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeValid(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
		want bool
	}{
		{"missing both", Envelope{}, false},
		{"missing client_id", Envelope{Type: TypeOffer}, false},
		{"missing type", Envelope{ClientID: "abc"}, false},
		{"valid", Envelope{Type: TypeOffer, ClientID: "abc"}, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.env.Valid(), c.name)
	}
}

func TestEnvelopeJSONRoundTrip(t *testing.T) {
	mLineIndex := 1
	original := Envelope{
		Type:          TypeICE,
		ClientID:      "viewer-1",
		Camera:        "porch",
		Sender:        SenderClient,
		Candidate:     "candidate:1 1 UDP 2130706431 192.168.1.10 54321 typ host",
		SDPMLineIndex: &mLineIndex,
		SDPMid:        "0",
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.Type, decoded.Type)
	assert.Equal(t, original.ClientID, decoded.ClientID)
	assert.Equal(t, original.Camera, decoded.Camera)
	assert.Equal(t, original.Sender, decoded.Sender)
	assert.Equal(t, original.Candidate, decoded.Candidate)
	require.NotNil(t, decoded.SDPMLineIndex)
	assert.Equal(t, *original.SDPMLineIndex, *decoded.SDPMLineIndex)
	assert.Equal(t, original.SDPMid, decoded.SDPMid)
}

func TestEnvelopeOmitsEmptyOptionalFields(t *testing.T) {
	data, err := json.Marshal(Envelope{Type: TypeConnection, ClientID: "viewer-1"})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	for _, field := range []string{"camera", "sender", "ret", "description", "sdp", "candidate", "sdpMLineIndex", "sdpMid"} {
		_, present := raw[field]
		assert.Falsef(t, present, "expected field %q to be omitted", field)
	}
}
