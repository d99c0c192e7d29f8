package session

import (
	"strings"
	"testing"
)

func TestRewriteH264Profile(t *testing.T) {
	sdp := "a=fmtp:96 level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=4d0032\r\n" +
		"a=fmtp:97 profile-level-id=42001f;other=1\r\n"

	got := rewriteH264Profile(sdp)

	if strings.Contains(got, "4d0032") || strings.Contains(got, "42001f") {
		t.Fatalf("rewriteH264Profile left a non-baseline profile-level-id in place: %q", got)
	}
	if strings.Count(got, "profile-level-id=42e01f") != 2 {
		t.Fatalf("expected both fmtp lines rewritten to 42e01f, got: %q", got)
	}
}

func TestRewriteH264ProfileNoFmtpLine(t *testing.T) {
	sdp := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"
	got := rewriteH264Profile(sdp)
	if got != sdp {
		t.Fatalf("expected sdp without a profile-level-id to be unchanged")
	}
}
