package core

import (
	"errors"
	"testing"
)

// memTransport is an in-memory Transport used to exercise the Node
// engine without a simulator host.
type memTransport struct {
	sent      []*LinkPacket
	directory map[string]RouteCoord
}

func newMemTransport() *memTransport {
	return &memTransport{directory: make(map[string]RouteCoord)}
}

func (m *memTransport) Send(pkt *LinkPacket) {
	m.sent = append(m.sent, pkt)
}

func (m *memTransport) DirectoryRead(id *NodeID) (RouteCoord, bool) {
	c, ok := m.directory[id.Key()]
	return c, ok
}

func (m *memTransport) DirectoryWrite(id *NodeID, c RouteCoord) {
	m.directory[id.Key()] = c
}

func TestNodeBootstrapSendsConnectionInit(t *testing.T) {
	tp := newMemTransport()
	n := NewNode(NetAddr(1), nil, tp)
	peer := NewNodePrivate().Public()
	n.Enqueue(&NodeAction{Kind: ActBootstrap, Target: peer, Addr: NetAddr(2)})
	n.Tick(Tick(1))

	if len(tp.sent) == 0 {
		t.Fatalf("expected a ConnectionInit to be sent")
	}
	init, ok := tp.sent[0].Payload.(*ConnectionInit)
	if !ok {
		t.Fatalf("expected ConnectionInit payload, got %T", tp.sent[0].Payload)
	}
	r, ok := n.Remote(peer)
	if !ok || r.State != HandshakePendingOut {
		t.Fatalf("expected remote to be in pending-out state")
	}
	if init.Session == 0 {
		t.Fatalf("expected a non-zero proposed session id")
	}
}

func TestNodeHandshakeEstablishesDirectSession(t *testing.T) {
	tpA := newMemTransport()
	tpB := newMemTransport()
	a := NewNode(NetAddr(1), nil, tpA)
	b := NewNode(NetAddr(2), nil, tpB)

	a.Enqueue(&NodeAction{Kind: ActBootstrap, Target: b.ID(), Addr: NetAddr(2)})
	a.Tick(Tick(1))

	init := tpA.sent[0]
	if err := b.Receive(Tick(1), init); err != nil {
		t.Fatalf("unexpected error on acceptor side: %v", err)
	}
	rb, _ := b.Remote(a.ID())
	if rb.State != HandshakeEstablished {
		t.Fatalf("expected acceptor to reach established state")
	}

	ack := tpB.sent[0]
	if err := a.Receive(Tick(2), ack); err != nil {
		t.Fatalf("unexpected error on initiator side: %v", err)
	}
	ra, _ := a.Remote(b.ID())
	if ra.State != HandshakeEstablished {
		t.Fatalf("expected initiator to reach established state")
	}
}

func TestNodeHandshakeSeedsBothTrackers(t *testing.T) {
	tpA := newMemTransport()
	tpB := newMemTransport()
	a := NewNode(NetAddr(1), nil, tpA)
	b := NewNode(NetAddr(2), nil, tpB)

	a.Enqueue(&NodeAction{Kind: ActBootstrap, Target: b.ID(), Addr: NetAddr(2)})
	a.Tick(Tick(1))

	init := tpA.sent[0]
	if err := b.Receive(Tick(3), init); err != nil {
		t.Fatalf("unexpected error on acceptor side: %v", err)
	}
	ack := tpB.sent[0]
	if err := a.Receive(Tick(5), ack); err != nil {
		t.Fatalf("unexpected error on initiator side: %v", err)
	}
	ra, _ := a.Remote(b.ID())
	if d := ra.Dist(); d <= 0 {
		t.Fatalf("expected initiator's tracker to have a positive distance sample, got %v", d)
	}

	// the acceptor's own sample only completes once the initiator's
	// first ExchangeInfo echoes the return ping back.
	a.Tick(Tick(5))
	exch := tpA.sent[len(tpA.sent)-1]
	if _, ok := exch.Payload.(*ExchangeInfo); !ok {
		t.Fatalf("expected an ExchangeInfo to follow handshake completion, got %T", exch.Payload)
	}
	if err := b.Receive(Tick(7), exch); err != nil {
		t.Fatalf("unexpected error folding the echoed ping: %v", err)
	}
	rb, _ := b.Remote(a.ID())
	if d := rb.Dist(); d <= 0 {
		t.Fatalf("expected acceptor's tracker to have a positive distance sample, got %v", d)
	}
}

func TestNodeCalculatePeersIsIdempotent(t *testing.T) {
	tp := newMemTransport()
	n := NewNode(NetAddr(1), nil, tp)
	self := RouteCoord{X: 0, Y: 0}
	n.coord = &self

	peer := NewNodePrivate().Public()
	r := n.remoteFor(peer, NetAddr(2))
	r.State = HandshakeEstablished
	r.Session = NewDirectSession(n.ID(), peer, NetAddr(2), 0)
	coord := RouteCoord{X: 10, Y: 0}
	r.Coord = &coord

	n.Enqueue(&NodeAction{Kind: ActCalculatePeers})
	n.Tick(Tick(1))
	first := len(tp.sent)
	if first == 0 {
		t.Fatalf("expected a PeerNotify when the peer set first forms")
	}
	if !r.IsPeer {
		t.Fatalf("expected the only viable remote to be elected a peer")
	}

	n.Enqueue(&NodeAction{Kind: ActCalculatePeers})
	n.Tick(Tick(2))
	if len(tp.sent) != first {
		t.Fatalf("expected a repeated peer calculation with no changes to emit nothing, got %d new packets", len(tp.sent)-first)
	}
	if !r.IsPeer {
		t.Fatalf("expected peer membership to be stable")
	}
}

func TestNodeOraclePolicyAssignsCoordFromDirectory(t *testing.T) {
	tp := newMemTransport()
	n := NewNode(NetAddr(1), OraclePolicy{}, tp)
	tp.DirectoryWrite(n.ID(), RouteCoord{X: 7, Y: 9})

	n.Enqueue(&NodeAction{Kind: ActRequestRouteCoord})
	n.Tick(Tick(1))

	if n.Coord() == nil || n.Coord().X != 7 || n.Coord().Y != 9 {
		t.Fatalf("expected coordinate to be read from the directory, got %v", n.Coord())
	}
}

func TestNodeTraverseLocalMinimumDrops(t *testing.T) {
	tp := newMemTransport()
	n := NewNode(NetAddr(1), nil, tp)
	self := RouteCoord{X: 0, Y: 0}
	n.coord = &self

	pkt := &Traverse{Dest: RouteCoord{X: 100, Y: 0}, Target: NewNodePrivate().Public()}
	if err := n.ReceiveTraverse(Tick(1), nil, pkt); !errors.Is(err, ErrLocalMinimum) {
		t.Fatalf("expected ErrLocalMinimum, got %v", err)
	}
}

func TestNodeTraverseForwardsToCloserPeer(t *testing.T) {
	tp := newMemTransport()
	n := NewNode(NetAddr(1), nil, tp)
	self := RouteCoord{X: 0, Y: 0}
	n.coord = &self

	peer := NewNodePrivate().Public()
	r := n.remoteFor(peer, NetAddr(5))
	r.IsPeer = true
	closer := RouteCoord{X: 50, Y: 0}
	r.Coord = &closer

	pkt := &Traverse{Dest: RouteCoord{X: 100, Y: 0}, Target: NewNodePrivate().Public()}
	if err := n.ReceiveTraverse(Tick(1), nil, pkt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tp.sent) != 1 {
		t.Fatalf("expected one forwarded packet, got %d", len(tp.sent))
	}
	if tp.sent[0].Dest != NetAddr(5) {
		t.Fatalf("expected packet forwarded to the closer peer's address")
	}
}

func TestNodeTraverseDropsBounceBackToSender(t *testing.T) {
	tp := newMemTransport()
	n := NewNode(NetAddr(1), nil, tp)
	self := RouteCoord{X: 0, Y: 0}
	n.coord = &self

	// sender is closer to dest than self is, which under the old
	// "closer than self" rule would have been forwarded straight back
	// to the node that just sent it.
	sender := NewNodePrivate().Public()
	r := n.remoteFor(sender, NetAddr(5))
	r.IsPeer = true
	closer := RouteCoord{X: 50, Y: 0}
	r.Coord = &closer

	pkt := &Traverse{Dest: RouteCoord{X: 100, Y: 0}, Target: NewNodePrivate().Public()}
	if err := n.ReceiveTraverse(Tick(1), sender, pkt); !errors.Is(err, ErrLocalMinimum) {
		t.Fatalf("expected ErrLocalMinimum instead of bouncing back to sender, got %v", err)
	}
	if len(tp.sent) != 0 {
		t.Fatalf("expected no bounce-back packet, got %d", len(tp.sent))
	}
}

func TestNodeRoutedSessionRelaysThroughProxyAndEstablishes(t *testing.T) {
	tpO := newMemTransport()
	tpP := newMemTransport()
	tpT := newMemTransport()
	origin := NewNode(NetAddr(1), nil, tpO)
	proxy := NewNode(NetAddr(2), nil, tpP)
	target := NewNode(NetAddr(3), nil, tpT)

	origin.remoteFor(proxy.ID(), NetAddr(2))

	origin.Enqueue(&NodeAction{
		Kind: ActConnectRouted, Target: target.ID(), Addr: NetAddr(3),
		Chain: []*NodeID{proxy.ID()},
	})
	origin.Tick(Tick(1))

	if len(tpO.sent) != 1 {
		t.Fatalf("expected one RoutedSessionRequest sent to the proxy, got %d", len(tpO.sent))
	}
	reqPkt := tpO.sent[0]
	if reqPkt.Dest != NetAddr(2) {
		t.Fatalf("expected the request addressed to the proxy, got %v", reqPkt.Dest)
	}
	if _, ok := reqPkt.Payload.(*RoutedSessionRequest); !ok {
		t.Fatalf("expected RoutedSessionRequest payload, got %T", reqPkt.Payload)
	}

	if err := proxy.Receive(Tick(1), reqPkt); err != nil {
		t.Fatalf("unexpected error on proxy: %v", err)
	}
	if len(tpP.sent) != 2 {
		t.Fatalf("expected the proxy to relay the wrapped init and confirm the relay, got %d", len(tpP.sent))
	}
	relayed := tpP.sent[0]
	if relayed.Dest != NetAddr(3) {
		t.Fatalf("expected the relayed packet addressed to target, got %v", relayed.Dest)
	}
	if _, ok := relayed.Payload.(*ConnectionInit); !ok {
		t.Fatalf("expected the relayed payload to be the wrapped ConnectionInit, got %T", relayed.Payload)
	}
	accept := tpP.sent[1]
	if accept.Dest != NetAddr(1) {
		t.Fatalf("expected the relay confirmation addressed back to origin, got %v", accept.Dest)
	}

	if err := target.Receive(Tick(1), relayed); err != nil {
		t.Fatalf("unexpected error on target: %v", err)
	}
	rt, ok := target.Remote(origin.ID())
	if !ok || rt.State != HandshakeEstablished {
		t.Fatalf("expected target to establish a session with origin")
	}

	if err := origin.Receive(Tick(2), accept); err != nil {
		t.Fatalf("unexpected error processing the routed session accept: %v", err)
	}
	if len(tpT.sent) != 1 {
		t.Fatalf("expected target to send a ConnectionAck, got %d", len(tpT.sent))
	}
	if err := origin.Receive(Tick(2), tpT.sent[0]); err != nil {
		t.Fatalf("unexpected error processing the connection ack: %v", err)
	}
	ro, ok := origin.Remote(target.ID())
	if !ok || ro.State != HandshakeEstablished {
		t.Fatalf("expected origin to complete the handshake with target")
	}
	if ro.Session.Kind != SessionRouted {
		t.Fatalf("expected origin's session to stay routed, got %s", ro.Session.Kind)
	}

	// ongoing traffic keeps flowing through the proxy chain
	origin.Enqueue(&NodeAction{Kind: ActPacket, Target: target.ID(), Payload: []byte("over the chain")})
	origin.Tick(Tick(3))
	relay := tpO.sent[len(tpO.sent)-1]
	if relay.Dest != NetAddr(2) {
		t.Fatalf("expected application traffic relayed via the proxy, got dest %v", relay.Dest)
	}
	if _, ok := relay.Payload.(*RoutedSessionRequest); !ok {
		t.Fatalf("expected a RoutedSessionRequest leg, got %T", relay.Payload)
	}
}

func TestNodeSimultaneousOpenConvergesOnOneSession(t *testing.T) {
	tpA := newMemTransport()
	tpB := newMemTransport()
	a := NewNode(NetAddr(1), nil, tpA)
	b := NewNode(NetAddr(2), nil, tpB)

	a.Enqueue(&NodeAction{Kind: ActConnect, Target: b.ID(), Addr: NetAddr(2)})
	b.Enqueue(&NodeAction{Kind: ActConnect, Target: a.ID(), Addr: NetAddr(1)})
	a.Tick(Tick(1))
	b.Tick(Tick(1))

	// both inits cross on the wire
	if err := b.Receive(Tick(2), tpA.sent[0]); err != nil {
		t.Fatalf("unexpected error delivering a's init to b: %v", err)
	}
	if err := a.Receive(Tick(2), tpB.sent[0]); err != nil {
		t.Fatalf("unexpected error delivering b's init to a: %v", err)
	}
	// exactly one side answered; deliver whatever acks were produced
	for _, pkt := range tpA.sent[1:] {
		if _, ok := pkt.Payload.(*ConnectionAck); ok {
			if err := b.Receive(Tick(3), pkt); err != nil {
				t.Fatalf("unexpected error delivering a's ack: %v", err)
			}
		}
	}
	for _, pkt := range tpB.sent[1:] {
		if _, ok := pkt.Payload.(*ConnectionAck); ok {
			if err := a.Receive(Tick(3), pkt); err != nil {
				t.Fatalf("unexpected error delivering b's ack: %v", err)
			}
		}
	}

	ra, _ := a.Remote(b.ID())
	rb, _ := b.Remote(a.ID())
	if ra.Session == nil || rb.Session == nil {
		t.Fatalf("expected both sides to end up with a session")
	}
	if ra.Session.ID != rb.Session.ID {
		t.Fatalf("expected both sides to converge on one session id, got %s / %s", ra.Session.ID, rb.Session.ID)
	}
	// the surviving id is the one offered by the larger NodeID: the
	// smaller id abandons its own attempt and accepts the peer's.
	winnerTp := tpA
	if a.ID().Less(b.ID()) {
		winnerTp = tpB
	}
	init, ok := winnerTp.sent[0].Payload.(*ConnectionInit)
	if !ok {
		t.Fatalf("expected the winner's first packet to be its ConnectionInit, got %T", winnerTp.sent[0].Payload)
	}
	if ra.Session.ID != init.Session {
		t.Fatalf("expected the surviving session id to be the winner's offer")
	}
}

func TestNodeSessionKeysMatchAcrossHandshake(t *testing.T) {
	tpA := newMemTransport()
	tpB := newMemTransport()
	a := NewNode(NetAddr(1), nil, tpA)
	b := NewNode(NetAddr(2), nil, tpB)

	a.Enqueue(&NodeAction{Kind: ActBootstrap, Target: b.ID(), Addr: NetAddr(2)})
	a.Tick(Tick(1))
	if err := b.Receive(Tick(2), tpA.sent[0]); err != nil {
		t.Fatalf("unexpected error on acceptor side: %v", err)
	}
	if err := a.Receive(Tick(3), tpB.sent[0]); err != nil {
		t.Fatalf("unexpected error on initiator side: %v", err)
	}

	ra, _ := a.Remote(b.ID())
	rb, _ := b.Remote(a.ID())
	if ra.Session.ID != rb.Session.ID {
		t.Fatalf("expected both ends to share one session id, got %s / %s", ra.Session.ID, rb.Session.ID)
	}
	sealed := ra.Session.GenPacket(Tick(4), []byte("payload"))
	if got := string(rb.Session.Open(sealed)); got != "payload" {
		t.Fatalf("expected the acceptor to open the initiator's sealed data, got %q", got)
	}
}

func TestNodeTraversedSessionDeliversOpenableData(t *testing.T) {
	tpA := newMemTransport()
	tpB := newMemTransport()
	a := NewNode(NetAddr(1), nil, tpA)
	b := NewNode(NetAddr(2), nil, tpB)

	selfA := RouteCoord{X: 0, Y: 0}
	a.coord = &selfA
	destB := RouteCoord{X: 80, Y: 0}

	// a needs at least one peer to forward through; use b itself.
	rb := a.remoteFor(b.ID(), NetAddr(2))
	rb.IsPeer = true
	rb.Coord = &destB
	rb.State = HandshakeEstablished
	rb.Session = NewDirectSession(a.ID(), b.ID(), NetAddr(2), 0)

	a.Enqueue(&NodeAction{Kind: ActConnectTraversed, Target: b.ID(), Coord: &destB})
	a.Tick(Tick(1))

	var trav *Traverse
	for _, pkt := range tpA.sent {
		if tr, ok := pkt.Payload.(*Traverse); ok {
			trav = tr
			break
		}
	}
	if trav == nil {
		t.Fatalf("expected a Traverse envelope to be emitted")
	}
	var got []byte
	b.SetListener(func(ev *Event) {
		if ev.Type == EvDataReceived {
			if bs, ok := ev.Val.([]byte); ok {
				got = bs
			}
		}
	})
	if err := b.ReceiveTraverse(Tick(2), a.ID(), trav); err != nil {
		t.Fatalf("unexpected error delivering the traverse packet: %v", err)
	}
	if got == nil {
		t.Fatalf("expected the traversed data to surface at the target")
	}
}
