package session

import (
	"regexp"

	"github.com/pion/webrtc/v3"
)

// h264Fmtp matches the spec's required profile: constrained-baseline,
// payload type 96, non-interleaved packetization (packetization-mode=1,
// which allows fragmented and aggregated NAL units). rtph264pay on the GStreamer
// side is configured for the matching pt=96/config-interval=1 contract
// (§4.2); this is the SDP-side half of that agreement.
const h264Fmtp = "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"

func newMediaEngine() (*webrtc.MediaEngine, error) {
	m := &webrtc.MediaEngine{}
	codec := webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: h264Fmtp,
		},
		PayloadType: 96,
	}
	if err := m.RegisterCodec(codec, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}
	return m, nil
}

// newPeerConnection builds one viewer's PeerConnection and its
// send-only H.264 track, grounded on
// other_examples/marinp1-petwebrtc-lite__webrtc.go's media engine setup
// re-targeted from the original's single-PeerConnection server to one
// PeerConnection per SessionController.
func newPeerConnection() (*webrtc.PeerConnection, *webrtc.TrackLocalStaticRTP, *webrtc.RTPSender, error) {
	m, err := newMediaEngine()
	if err != nil {
		return nil, nil, nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{},
	})
	if err != nil {
		return nil, nil, nil, err
	}

	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeH264,
		ClockRate:   90000,
		SDPFmtpLine: h264Fmtp,
	}, "video", "media-center")
	if err != nil {
		pc.Close()
		return nil, nil, nil, err
	}

	// The camera is a send-only source (§4.5): a sendonly transceiver
	// keeps the negotiated SDP from ever offering a recvonly/sendrecv
	// direction back to the camera side.
	transceiver, err := pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		pc.Close()
		return nil, nil, nil, err
	}

	return pc, track, transceiver.Sender(), nil
}

var profileLevelIDRe = regexp.MustCompile(`profile-level-id=[0-9A-Fa-f]{6}`)

// rewriteH264Profile forces every H.264 fmtp line in sdp to the
// constrained-baseline profile-level-id 42e01f, regardless of what the
// negotiated codec capability produced. Some browsers' default offers
// name a different profile; the camera-side encoder is hard-configured
// for baseline (§4.2), so the SDP must agree or playback fails outright.
func rewriteH264Profile(sdp string) string {
	return profileLevelIDRe.ReplaceAllString(sdp, "profile-level-id=42e01f")
}
