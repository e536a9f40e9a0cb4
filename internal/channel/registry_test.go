package channel

import (
	"testing"
)

// recorder is a test member that captures what Broadcast delivers.
type recorder struct {
	frames [][]byte
	dead   bool
}

func (m *recorder) Send(data []byte) bool {
	if m.dead {
		return false
	}
	m.frames = append(m.frames, data)
	return true
}

func TestJoinLeaveLifecycle(t *testing.T) {
	r := NewRegistry()
	a := &recorder{}
	b := &recorder{}

	if n := r.Join("room", a); n != 1 {
		t.Errorf("first join count = %d, want 1", n)
	}
	if n := r.Join("room", b); n != 2 {
		t.Errorf("second join count = %d, want 2", n)
	}
	if got := r.Channels(); len(got) != 1 || got[0] != "room" {
		t.Errorf("channels = %v, want [room]", got)
	}

	r.Leave("room", a)
	if n := r.MemberCount("room"); n != 1 {
		t.Errorf("count after leave = %d, want 1", n)
	}

	r.Leave("room", b)
	if got := r.Channels(); len(got) != 0 {
		t.Errorf("empty channel must vanish, got %v", got)
	}

	// Unknown channel/member leaves are no-ops.
	r.Leave("room", a)
	r.Leave("never-existed", a)
}

func TestJoinCappedRejectsFullChannel(t *testing.T) {
	r := NewRegistry()
	a := &recorder{}
	b := &recorder{}
	c := &recorder{}

	if _, ok := r.JoinCapped("room", a, 2); !ok {
		t.Fatal("first join rejected")
	}
	if _, ok := r.JoinCapped("room", b, 2); !ok {
		t.Fatal("second join rejected")
	}
	if n, ok := r.JoinCapped("room", c, 2); ok {
		t.Errorf("third join admitted (count %d), want rejection", n)
	}
	if n := r.MemberCount("room"); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	// Freeing a slot re-admits.
	r.Leave("room", a)
	if _, ok := r.JoinCapped("room", c, 2); !ok {
		t.Error("join after leave rejected")
	}

	// Zero cap means unlimited.
	for i := 0; i < 10; i++ {
		if _, ok := r.JoinCapped("open", &recorder{}, 0); !ok {
			t.Fatalf("uncapped join %d rejected", i)
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := NewRegistry()
	sender := &recorder{}
	peer1 := &recorder{}
	peer2 := &recorder{}
	outsider := &recorder{}

	r.Join("room", sender)
	r.Join("room", peer1)
	r.Join("room", peer2)
	r.Join("other", outsider)

	frame := []byte(`{"type":"command_request"}`)
	if n := r.Broadcast("room", sender, frame); n != 2 {
		t.Errorf("delivered = %d, want 2", n)
	}

	if len(sender.frames) != 0 {
		t.Error("sender must not receive its own frame")
	}
	if len(peer1.frames) != 1 || len(peer2.frames) != 1 {
		t.Errorf("peers got %d/%d frames, want 1/1", len(peer1.frames), len(peer2.frames))
	}
	if len(outsider.frames) != 0 {
		t.Error("frame leaked across channels")
	}
}

func TestBroadcastSkipsDeadMembers(t *testing.T) {
	r := NewRegistry()
	sender := &recorder{}
	dead := &recorder{dead: true}
	alive := &recorder{}

	r.Join("room", sender)
	r.Join("room", dead)
	r.Join("room", alive)

	if n := r.Broadcast("room", sender, []byte("x")); n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
}

func TestBroadcastUnknownChannel(t *testing.T) {
	r := NewRegistry()
	if n := r.Broadcast("ghost", &recorder{}, []byte("x")); n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
}
