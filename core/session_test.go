package core

import "testing"

func TestSessionKindString(t *testing.T) {
	cases := map[SessionKind]string{
		SessionDirect:    "direct",
		SessionTraversed: "traversed",
		SessionRouted:    "routed",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("kind %d: expected %q, got %q", kind, want, got)
		}
	}
}

func TestSessionCheckPacketTime(t *testing.T) {
	self := NewNodePrivate().Public()
	peer := NewNodePrivate().Public()
	s := NewDirectSession(self, peer, NetAddr(1), 0)
	s.GenPacket(Tick(10), []byte("hi"))
	if s.CheckPacketTime(Tick(15), Tick(100)) {
		t.Fatalf("session should not be considered stale yet")
	}
	if !s.CheckPacketTime(Tick(200), Tick(100)) {
		t.Fatalf("session should be considered stale after the ttl elapses")
	}
}

func TestSessionGenPacketRoundTrips(t *testing.T) {
	self := NewNodePrivate().Public()
	peer := NewNodePrivate().Public()
	s := NewDirectSession(self, peer, NetAddr(1), 0)
	d := s.GenPacket(Tick(1), []byte("hello"))
	if string(d.Payload) == "hello" {
		t.Fatalf("expected GenPacket to seal the payload, got plaintext")
	}
	if got := string(s.Open(d)); got != "hello" {
		t.Fatalf("expected Open to recover plaintext, got %q", got)
	}
}

func TestRemoteNodeHandshakeLifecycle(t *testing.T) {
	id := NewNodePrivate().Public()
	r := NewRemoteNode(id, NetAddr(1))
	if r.State != HandshakeNone {
		t.Fatalf("expected initial state none")
	}
	sid, err := r.BeginHandshake(Tick(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.State != HandshakePendingOut {
		t.Fatalf("expected pending-out after BeginHandshake")
	}
	if _, err := r.BeginHandshake(Tick(2)); err == nil {
		t.Fatalf("expected error on duplicate handshake attempt")
	}
	self := NewNodePrivate().Public()
	sess := NewDirectSession(self, id, NetAddr(1), 0)
	if err := r.Complete(sid, sess); err != nil {
		t.Fatalf("unexpected error completing handshake: %v", err)
	}
	if r.State != HandshakeEstablished {
		t.Fatalf("expected established state")
	}
}

func TestRemoteNodeCompleteRejectsStaleSession(t *testing.T) {
	id := NewNodePrivate().Public()
	r := NewRemoteNode(id, NetAddr(1))
	if _, err := r.BeginHandshake(Tick(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	self := NewNodePrivate().Public()
	if err := r.Complete(SessionID(9999), NewDirectSession(self, id, 1, 0)); err == nil {
		t.Fatalf("expected stale-session error for mismatched id")
	}
}

func TestResolveSimultaneousOpen(t *testing.T) {
	a := NewNodePrivate().Public()
	b := NewNodePrivate().Public()
	r := NewRemoteNode(b, NetAddr(1))
	abandon := r.ResolveSimultaneousOpen(a, b)
	if abandon != a.Less(b) {
		t.Fatalf("tie-break should follow NodeID ordering")
	}
}
