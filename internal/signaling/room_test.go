package signaling

import "testing"

func TestRoomIDFromPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"", "default"},
		{"/", "default"},
		{"/porch", "porch"},
		{"/back-yard-cam", "back-yard-cam"},
	}
	for _, c := range cases {
		if got := roomIDFromPath(c.path); got != c.want {
			t.Errorf("roomIDFromPath(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}
