//----------------------------------------------------------------------
// This file is part of leatea-routing.
// Copyright (C) 2022 Bernd Fix >Y<
//
// leatea-routing is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// leatea-routing is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later
//----------------------------------------------------------------------

package core

import (
	"fmt"
	"sort"
)

// Transport is the narrow interface a Node engine needs from its host
// in order to move packets and resolve simulator-intrinsic requests:
// sending a LinkPacket on the wire, and reading/writing the
// process-wide route-coordinate directory. sim.Host implements
// this; core itself never depends on sim, keeping the protocol engine
// testable in isolation.
type Transport interface {
	Send(pkt *LinkPacket)
	DirectoryRead(id *NodeID) (RouteCoord, bool)
	DirectoryWrite(id *NodeID, c RouteCoord)
}

// Node is the protocol engine for one simulated overlay participant.
// It owns no goroutines: Tick drives it forward one discrete step at a
// time, draining its action queue and performing any due housekeeping.
type Node struct {
	priv  *NodePrivate
	self  *NodeID
	addr  NetAddr
	coord *RouteCoord

	// publishedCoord is the coordinate most recently written to the
	// directory via ActCalculatePeers, used to detect when a fresh
	// RouteCoordDHTWrite is actually warranted.
	publishedCoord *RouteCoord

	policy    CoordPolicy
	transport Transport
	listener  Listener

	remotes map[string]*RemoteNode
	queue   *ActionQueue

	now Tick

	lastCalcPeers   Tick
	lastServedPings map[string]Tick // per-requester rate limit for onRequestPings
	lastAcceptWant  map[string]Tick // per-intermediate rate limit for onAcceptWantPing

	samples []CoordSample // accumulated since the last Refine, for MDSPolicy

	// routedPending maps a Routed session's id to its final target and
	// proxy chain, so the ConnectionAck that completes the handshake
	// installs a Routed session over that chain rather than a Direct
	// one, and so the RoutedSessionAccept the last proxy sends straight
	// back to us can be matched to the relay it confirms.
	routedPending map[SessionID]*routedRoute
}

// routedRoute is the initiator-side bookkeeping for one Routed
// session: the final target and the ordered proxy chain to it.
type routedRoute struct {
	target *NodeID
	chain  []*NodeID
}

// calcPeersInterval bounds how often housekeeping re-evaluates the peer
// set on its own, independent of the reactive recomputation triggered
// by doUpdateRemote whenever a neighbor's coordinate changes.
const calcPeersInterval Tick = 50

// NewNode creates a Node engine with a fresh identity.
func NewNode(addr NetAddr, policy CoordPolicy, transport Transport) *Node {
	priv := NewNodePrivate()
	if policy == nil {
		policy = OraclePolicy{}
	}
	return &Node{
		priv:            priv,
		self:            priv.Public(),
		addr:            addr,
		policy:          policy,
		transport:       transport,
		remotes:         make(map[string]*RemoteNode),
		queue:           NewActionQueue(),
		lastAcceptWant:  make(map[string]Tick),
		lastServedPings: make(map[string]Tick),
		routedPending:   make(map[SessionID]*routedRoute),
	}
}

// NewNodeFromIdentity reconstructs a Node engine around an existing
// identity, address and coordinate rather than minting a fresh one,
// for restoring a simulator snapshot. The snapshot excludes in-flight
// packets; it also excludes per-remote handshake/session state, which
// a restored node simply rediscovers the same way a freshly
// bootstrapped one would.
func NewNodeFromIdentity(priv *NodePrivate, addr NetAddr, coord *RouteCoord, policy CoordPolicy, transport Transport) *Node {
	if policy == nil {
		policy = OraclePolicy{}
	}
	return &Node{
		priv:            priv,
		self:            priv.Public(),
		addr:            addr,
		coord:           coord,
		publishedCoord:  coord,
		policy:          policy,
		transport:       transport,
		remotes:         make(map[string]*RemoteNode),
		queue:           NewActionQueue(),
		lastAcceptWant:  make(map[string]Tick),
		lastServedPings: make(map[string]Tick),
		routedPending:   make(map[SessionID]*routedRoute),
	}
}

// SetListener installs the observer for emitted Events.
func (n *Node) SetListener(l Listener) { n.listener = l }

// SetTransport repoints the engine at a different host, used when a
// restored node table is adopted by an already-live Host.
func (n *Node) SetTransport(t Transport) { n.transport = t }

// ID returns the node's identity.
func (n *Node) ID() *NodeID { return n.self }

// Addr returns the node's physical address.
func (n *Node) Addr() NetAddr { return n.addr }

// Coord returns the node's current route coordinate, or nil if it has
// none yet.
func (n *Node) Coord() *RouteCoord { return n.coord }

// SetOracleCoord installs c as this node's route coordinate directly,
// bypassing the CoordPolicy.Refine pipeline entirely. It is the
// simulator's per-tick ground-truth push for OraclePolicy nodes;
// OraclePolicy.Refine is intentionally always a no-op, since under
// Oracle the coordinate is supplied externally rather than
// self-computed. Calling this on an
// MDSPolicy node is harmless but pointless: MDS instead accumulates
// samples for doCalcRouteCoord to Refine from.
func (n *Node) SetOracleCoord(c RouteCoord) {
	if n.coord != nil && n.coord.Equal(c) {
		return
	}
	n.coord = &c
	n.emit(&Event{Type: EvCoordAssigned, Val: c})
	n.Enqueue(&NodeAction{Kind: ActCalculatePeers})
}

// Policy returns the coordinate policy driving this node, for
// snapshot persistence and CLI introspection.
func (n *Node) Policy() CoordPolicy { return n.policy }

// Private returns the node's signing identity, for snapshot
// persistence.
func (n *Node) Private() *NodePrivate { return n.priv }

// Now returns the last tick this node was advanced to.
func (n *Node) Now() Tick { return n.now }

// Enqueue adds a ready action to the back of the queue.
func (n *Node) Enqueue(a *NodeAction) { n.queue.Push(a) }

// EnqueueConditional adds a gated action to the back of the queue.
func (n *Node) EnqueueConditional(c *Condition) { n.queue.PushConditional(c) }

// Remote returns the bookkeeping record for id, if known.
func (n *Node) Remote(id *NodeID) (*RemoteNode, bool) {
	r, ok := n.remotes[id.Key()]
	return r, ok
}

// Peers returns the identities currently in the node's peer set.
func (n *Node) Peers() []*NodeID {
	var out []*NodeID
	for _, r := range n.remotes {
		if r.IsPeer {
			out = append(out, r.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Remotes returns every known remote, peers or not.
func (n *Node) Remotes() []*RemoteNode {
	var out []*RemoteNode
	for _, r := range n.remotes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

func (n *Node) remoteFor(id *NodeID, addr NetAddr) *RemoteNode {
	r, ok := n.remotes[id.Key()]
	if !ok {
		r = NewRemoteNode(id, addr)
		n.remotes[id.Key()] = r
	} else if addr != 0 {
		r.Addr = addr
	}
	return r
}

func (n *Node) emit(ev *Event) {
	ev.Node = n.self
	emit(n.listener, ev)
}

//----------------------------------------------------------------------
// Tick
//----------------------------------------------------------------------

// Tick advances the engine to tick `now`: it drains every action ready
// to run, then performs periodic housekeeping gated by the active
// Config's intervals.
func (n *Node) Tick(now Tick) {
	n.now = now
	for _, a := range n.queue.Drain(now, n.remotes) {
		if err := n.runAction(now, a); err != nil {
			n.emit(&Event{Type: EvErrorDropped, Val: err})
		}
	}
	n.houseKeep(now)
}

// houseKeep re-evaluates the peer set against TargetPeerCount on a
// fixed cadence, independent of the reactive recomputation a changed
// neighbor coordinate already triggers via doUpdateRemote.
func (n *Node) houseKeep(now Tick) {
	if n.lastCalcPeers.Expired(now, calcPeersInterval) {
		n.lastCalcPeers = now
		n.Enqueue(&NodeAction{Kind: ActCalculatePeers})
	}
}

//----------------------------------------------------------------------
// Action dispatch
//----------------------------------------------------------------------

func (n *Node) runAction(now Tick, a *NodeAction) error {
	switch a.Kind {
	case ActBootstrap:
		return n.doBootstrap(now, a)
	case ActConnect:
		return n.doConnect(now, a)
	case ActConnectTraversed:
		return n.doConnectTraversed(now, a)
	case ActConnectRouted:
		return n.doConnectRouted(now, a)
	case ActUpdateRemote:
		return n.doUpdateRemote(a)
	case ActCalcRouteCoord:
		return n.doCalcRouteCoord(now)
	case ActCalculatePeers:
		return n.doCalculatePeers(now)
	case ActExchangeInformation:
		return n.doExchangeInformation(a)
	case ActRequestRouteCoord:
		return n.doRequestRouteCoord(a)
	case ActNotify:
		return n.doNotify(a)
	case ActPacket:
		return n.doPacket(now, a)
	default:
		return &StateError{Action: a.Kind.String(), Err: fmt.Errorf("unhandled action")}
	}
}

// doBootstrap seeds a remote record from a known NetAddr and schedules
// a Direct-session Connect seeded with an initial ExchangeInfo, so the
// acceptor learns our coordinate state without a separate round trip.
func (n *Node) doBootstrap(now Tick, a *NodeAction) error {
	if a.Target == nil {
		return &StateError{Action: "bootstrap", Err: fmt.Errorf("missing target")}
	}
	n.remoteFor(a.Target, a.Addr)
	connect := &NodeAction{
		Kind: ActConnect, Target: a.Target, Addr: a.Addr,
		InitPackets: append([]NodePacket{&ExchangeInfo{Coord: n.coord, DirectCount: 0, Dist: 0}}, a.InitPackets...),
	}
	return n.doConnect(now, connect)
}

// doConnect begins (or resumes) a Direct-session handshake with a.Target.
func (n *Node) doConnect(now Tick, a *NodeAction) error {
	r := n.remoteFor(a.Target, a.Addr)
	if r.State == HandshakeEstablished {
		return nil
	}
	sid, err := r.BeginHandshake(now)
	if err != nil {
		// already pending; nothing to do
		return nil
	}
	n.transport.Send(&LinkPacket{
		Src: n.addr, Dest: r.Addr, Sender: n.self,
		Payload: &ConnectionInit{Session: sid, Coord: n.coord, InitPackets: a.InitPackets},
	})
	n.emit(&Event{Type: EvHandshakeSent, Ref: r.ID})
	return nil
}

// doConnectTraversed opens a Traversed session to a.Target without any
// handshake exchange: coordinate-based routing already lets the
// destination infer who is talking to it from the envelope, so the
// session is simply installed on both ends as traffic flows.
func (n *Node) doConnectTraversed(now Tick, a *NodeAction) error {
	r := n.remoteFor(a.Target, 0)
	if r.Coord == nil {
		if a.Coord == nil {
			return &AddressingError{Who: a.Target, Err: ErrNoRouteCoord}
		}
		r.Coord = a.Coord
	}
	if r.Session == nil {
		r.Session = NewTraversedSession(n.self, r.ID, *r.Coord, 0)
		r.State = HandshakeEstablished
		n.emit(&Event{Type: EvSessionEstab, Ref: r.ID, Val: r.Session})
	}
	payload := a.Payload
	if payload == nil {
		payload = []byte{}
	}
	if err := n.forwardTraverse(&Traverse{
		Dest: *r.Coord, Target: r.ID, From: n.self, Origin: n.coord,
		Session: r.Session.ID,
		Payload: r.Session.GenPacket(now, payload),
	}); err != nil {
		return err
	}
	n.Enqueue(&NodeAction{Kind: ActExchangeInformation, Target: r.ID})
	return nil
}

// forwardTraverse picks the peer (among this node's own peer set)
// closest to pkt's destination coordinate and hands the packet to the
// transport addressed to that peer. It is used to originate a
// Traversed session (doConnectTraversed), to relay one hop further
// (ReceiveTraverse) and to send over an already-established Traversed
// session (sendOverSession).
func (n *Node) forwardTraverse(pkt *Traverse) error {
	var candidates []ForwardCandidate
	for _, p := range n.Peers() {
		rem := n.remotes[p.Key()]
		if rem.Coord != nil {
			candidates = append(candidates, ForwardCandidate{ID: rem.ID, Coord: *rem.Coord})
		}
	}
	next, ok := GreedyForward(pkt.Dest, candidates)
	if !ok {
		n.emit(&Event{Type: EvTraverseDropped, Val: pkt})
		return &StateError{Action: "traverse", Err: ErrLocalMinimum}
	}
	rem := n.remotes[next.ID.Key()]
	n.transport.Send(&LinkPacket{Src: n.addr, Dest: rem.Addr, Sender: n.self, Payload: pkt})
	return nil
}

// doConnectRouted begins a Routed (onion) session through a.Chain,
// capped at Config.RoutedSessionMax hops. a.Target is the final
// destination, a.Addr its known physical address (routed
// sessions hide the origin's address from intermediate eavesdroppers,
// not the destination's own address from the initiator, matching how
// ActConnect already requires the peer's address up front).
func (n *Node) doConnectRouted(now Tick, a *NodeAction) error {
	if len(a.Chain) > cfg.RoutedSessionMax {
		return &StateError{Action: "connect-routed", Err: ErrTooManyHops}
	}
	r := n.remoteFor(a.Target, a.Addr)
	sid, err := r.BeginHandshake(now)
	if err != nil {
		return nil
	}
	init := &ConnectionInit{Session: sid, Coord: n.coord}
	if len(a.Chain) == 0 {
		// no proxies: degrades to a direct request to the target itself
		n.transport.Send(&LinkPacket{Src: n.addr, Dest: r.Addr, Sender: n.self, Payload: init})
		return nil
	}
	n.routedPending[sid] = &routedRoute{target: a.Target, chain: Clone(a.Chain)}
	first := a.Chain[0]
	fr := n.remoteFor(first, 0)
	n.transport.Send(&LinkPacket{
		Src: n.addr, Dest: fr.Addr, Sender: n.self,
		Payload: &RoutedSessionRequest{
			Session: sid, Remaining: Clone(a.Chain[1:]),
			Target: a.Target, TargetAddr: a.Addr,
			Origin: n.self, OriginAddr: n.addr,
			Establish: true, Wrapped: init,
		},
	})
	return nil
}

// doUpdateRemote folds a remote's self-reported coordinate, direct
// session count and distance estimate into our bookkeeping, then
// reacts: acquire our own coordinate if we have none, recompute the
// peer set if the remote's coordinate actually changed, and ask the
// remote to originate third-party pings on our behalf if we are still
// short of peers and it reports enough direct sessions to help.
func (n *Node) doUpdateRemote(a *NodeAction) error {
	r := n.remoteFor(a.Target, a.Addr)
	prev := r.Coord
	if a.Coord != nil {
		r.Coord = a.Coord
	}
	r.DirectCount = a.DirectCount
	if a.RemoteDist > 0 {
		r.Tracker.RecordExternal(a.RemoteDist)
	}

	if n.coord == nil {
		n.Enqueue(&NodeAction{Kind: ActCalcRouteCoord})
	} else if a.Coord != nil && (prev == nil || !prev.Equal(*a.Coord)) {
		n.Enqueue(&NodeAction{Kind: ActCalculatePeers})
	}

	if len(n.Peers()) < cfg.TargetPeerCount && a.DirectCount >= 2 && r.Session != nil {
		if err := n.sendOverSession(r, &RequestPings{Count: uint8(cfg.TargetPeerCount), Coord: n.coord}); err != nil {
			return err
		}
	}
	return nil
}

// doCalcRouteCoord asks the active CoordPolicy to refine the node's
// own coordinate from accumulated neighbor samples. Under OraclePolicy
// this is a no-op; the coordinate instead arrives via SetOracleCoord
// (or a targetless ActRequestRouteCoord).
func (n *Node) doCalcRouteCoord(now Tick) error {
	cur := RouteCoord{}
	if n.coord != nil {
		cur = *n.coord
	}
	next, ok := n.policy.Refine(cur, n.samples)
	n.samples = nil
	if !ok {
		return nil
	}
	n.coord = &next
	n.emit(&Event{Type: EvCoordAssigned, Val: next})
	n.Enqueue(&NodeAction{Kind: ActCalculatePeers})
	return nil
}

// doRequestRouteCoord issues the simulator-intrinsic RouteCoordDHTRead
// directory lookup. With no target under OraclePolicy it reads our own
// coordinate back from the directory; with a target it resolves a remote's
// published coordinate (used by doNotify when a recipient's coord
// isn't otherwise known). Under MDSPolicy, a targetless call instead
// gathers RTT samples from peers to feed the next CalcRouteCoord.
func (n *Node) doRequestRouteCoord(a *NodeAction) error {
	if a.Target != nil {
		c, found := n.transport.DirectoryRead(a.Target)
		n.emit(&Event{Type: EvDirectoryRead, Ref: a.Target, Val: found})
		if found {
			r := n.remoteFor(a.Target, 0)
			r.Coord = &c
		}
		return nil
	}
	if _, ok := n.policy.(OraclePolicy); ok {
		c, found := n.transport.DirectoryRead(n.self)
		if found {
			n.coord = &c
			n.emit(&Event{Type: EvCoordAssigned, Val: c})
		}
		n.emit(&Event{Type: EvDirectoryRead, Val: found})
		return nil
	}
	for _, r := range n.Peers() {
		remote := n.remotes[r.Key()]
		if remote.Coord == nil {
			continue
		}
		d := remote.Dist()
		if d < 0 {
			continue
		}
		n.samples = append(n.samples, CoordSample{Coord: *remote.Coord, Dist: d})
	}
	n.Enqueue(&NodeAction{Kind: ActCalcRouteCoord})
	return nil
}

// doCalculatePeers rebuilds the peer set as the TargetPeerCount direct
// remotes with a known coordinate, closest-tracked-distance first,
// notifying any remote whose membership flipped and publishing our
// coordinate to the directory once the set is full.
func (n *Node) doCalculatePeers(now Tick) error {
	type viable struct {
		r    *RemoteNode
		dist float64
	}
	var cands []viable
	for _, r := range n.Remotes() {
		if r.State != HandshakeEstablished || r.Coord == nil ||
			r.Session == nil || r.Session.Kind != SessionDirect {
			continue
		}
		cands = append(cands, viable{r: r, dist: r.Dist()})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })

	target := cfg.TargetPeerCount
	peerCount := len(cands)
	if peerCount > target {
		peerCount = target
	}

	for i, c := range cands {
		isPeer := i < target
		r := c.r
		if r.IsPeer == isPeer {
			continue
		}
		r.IsPeer = isPeer
		rank := -1
		if isPeer {
			rank = i
		}
		if err := n.sendOverSession(r, &PeerNotify{
			IsPeer: isPeer, Rank: rank, Coord: n.coord, PeerCount: peerCount, Dist: r.Dist(),
		}); err != nil {
			n.emit(&Event{Type: EvErrorDropped, Val: err})
			continue
		}
		if isPeer {
			n.emit(&Event{Type: EvPeerJoined, Ref: r.ID})
		} else {
			n.emit(&Event{Type: EvPeerLeft, Ref: r.ID})
		}
	}

	if peerCount >= target && n.coord != nil {
		if n.publishedCoord == nil || !n.publishedCoord.Equal(*n.coord) {
			n.transport.DirectoryWrite(n.self, *n.coord)
			published := *n.coord
			n.publishedCoord = &published
			n.emit(&Event{Type: EvDirectoryWrite, Val: published})
		}
	}
	return nil
}

// doExchangeInformation sends an ExchangeInfo request over an
// established session, right after it comes up.
func (n *Node) doExchangeInformation(a *NodeAction) error {
	r, ok := n.Remote(a.Target)
	if !ok || r.Session == nil {
		return &StateError{Action: "exchange-information", Err: ErrNoSession}
	}
	ackPing := r.echoPing
	r.echoPing = 0
	return n.sendOverSession(r, &ExchangeInfo{Coord: n.coord, DirectCount: len(n.Peers()), Dist: r.Dist(), AckPing: ackPing})
}

// doNotify delivers an application notification to a.Target by
// coordinate, or defers until the target's coordinate is known.
func (n *Node) doNotify(a *NodeAction) error {
	r := n.remoteFor(a.Target, 0)
	if r.Coord == nil {
		n.Enqueue(&NodeAction{Kind: ActRequestRouteCoord, Target: a.Target})
		n.EnqueueConditional(&Condition{Kind: CondRemoteRouteCoord, Who: a.Target, Inner: a})
		return nil
	}
	note := &Notify{Recipient: a.Target, From: n.self, NotifyKind: a.NotifyKind, Val: a.NotifyVal}
	return n.forwardTraverse(&Traverse{Dest: *r.Coord, Target: a.Target, From: n.self, Origin: n.coord, Payload: note})
}

// doPacket sends an application payload over an established session,
// using whichever transport the Session was built with.
func (n *Node) doPacket(now Tick, a *NodeAction) error {
	r, ok := n.Remote(a.Target)
	if !ok || r.Session == nil {
		return &StateError{Action: "packet", Err: ErrNoSession}
	}
	pkt := r.Session.GenPacket(now, a.Payload)
	return n.sendOverSession(r, pkt)
}

// sendOverSession wraps payload per the session's transport kind and
// hands it to the Transport. For a Traversed session the first hop is
// picked the same way ongoing forwarding picks the next one: greedily,
// by coordinate, among the sender's own peers.
func (n *Node) sendOverSession(r *RemoteNode, payload NodePacket) error {
	s := r.Session
	if s == nil {
		return &StateError{Action: "send-over-session", Err: ErrNoSession}
	}
	switch s.Kind {
	case SessionDirect:
		n.transport.Send(&LinkPacket{Src: n.addr, Dest: s.Addr, Sender: n.self, Session: s.ID, Payload: payload})
		return nil
	case SessionTraversed:
		return n.forwardTraverse(&Traverse{
			Dest: s.DestCoord, Target: r.ID, From: n.self, Origin: n.coord,
			Session: s.ID, Payload: payload,
		})
	case SessionRouted:
		return n.sendRouted(r, s, payload)
	default:
		return &StateError{Action: "send-over-session", Err: fmt.Errorf("unknown session kind")}
	}
}

// sendRouted relays ongoing traffic over an established Routed session
// back through its full proxy chain, one RoutedSessionRequest per leg,
// the same way doConnectRouted relayed the opening ConnectionInit.
func (n *Node) sendRouted(r *RemoteNode, s *Session, payload NodePacket) error {
	if len(s.Chain) == 0 {
		n.transport.Send(&LinkPacket{Src: n.addr, Dest: r.Addr, Sender: n.self, Session: s.ID, Payload: payload})
		return nil
	}
	first := s.Chain[0]
	fr := n.remoteFor(first, 0)
	n.transport.Send(&LinkPacket{
		Src: n.addr, Dest: fr.Addr, Sender: n.self,
		Payload: &RoutedSessionRequest{
			Session: s.ID, Remaining: Clone(s.Chain[1:]),
			Target: r.ID, TargetAddr: r.Addr,
			Origin: n.self, OriginAddr: n.addr,
			Establish: false, Wrapped: payload,
		},
	})
	return nil
}

//----------------------------------------------------------------------
// Inbound dispatch
//----------------------------------------------------------------------

// Receive handles one inbound LinkPacket, routing it to the handshake
// state machine or to the established-session dispatch table.
func (n *Node) Receive(now Tick, pkt *LinkPacket) error {
	n.now = now
	if pkt.Session == 0 {
		return n.receiveHandshake(now, pkt)
	}
	return n.receiveSession(now, pkt)
}

func (n *Node) receiveHandshake(now Tick, pkt *LinkPacket) error {
	switch p := pkt.Payload.(type) {
	case *ConnectionInit:
		return n.onConnectionInit(now, pkt, p)
	case *ConnectionAck:
		return n.onConnectionAck(now, pkt, p)
	case *RoutedSessionRequest:
		return n.onRoutedSessionRequest(now, pkt, p)
	case *RoutedSessionAccept:
		return n.onRoutedSessionAccept(now, pkt, p)
	default:
		return &DecodeError{Kind: "handshake", Err: ErrBadPacket}
	}
}

// onConnectionInit implements the acceptor half of the handshake, and
// the simultaneous-open tie-break. Any packets piggybacked onto the
// handshake are dispatched right after the session is installed,
// saving the round trip a separate ExchangeInfo exchange would
// otherwise cost.
func (n *Node) onConnectionInit(now Tick, pkt *LinkPacket, init *ConnectionInit) error {
	r := n.remoteFor(pkt.Sender, pkt.Src)
	if init.Coord != nil {
		r.Coord = init.Coord
	}
	if r.State == HandshakePendingOut {
		// simultaneous open: the smaller NodeID abandons its own offer.
		if r.ResolveSimultaneousOpen(n.self, pkt.Sender) {
			r.State = HandshakeNone
		} else {
			// we win; our own offer will be completed by the remote's
			// ConnectionAck, so just ignore this duplicate init.
			return nil
		}
	}
	sess := NewDirectSession(n.self, r.ID, r.Addr, init.Session)
	r.Accept(sess)
	// Allocate a return ping now: the round trip it
	// completes is our ConnectionAck out, followed by the initiator's
	// next ExchangeInfo echoing it back via AckPing.
	returnPing := r.Tracker.GenPing(now)
	n.transport.Send(&LinkPacket{
		Src: n.addr, Dest: r.Addr, Sender: n.self,
		Payload: &ConnectionAck{Session: init.Session, Coord: n.coord, ReturnPing: returnPing},
	})
	n.emit(&Event{Type: EvSessionEstab, Ref: r.ID, Val: sess})
	n.Enqueue(&NodeAction{Kind: ActExchangeInformation, Target: r.ID})
	for _, p := range init.InitPackets {
		if err := n.dispatchPayload(now, r, p); err != nil {
			n.emit(&Event{Type: EvErrorDropped, Val: err})
		}
	}
	return nil
}

// onConnectionAck implements the initiator half of the handshake.
func (n *Node) onConnectionAck(now Tick, pkt *LinkPacket, ack *ConnectionAck) error {
	r, ok := n.Remote(pkt.Sender)
	if !ok {
		return &HandshakeError{Who: pkt.Sender, Err: ErrUnknownPeer}
	}
	if ack.Coord != nil {
		r.Coord = ack.Coord
	}
	// A session initiated via ConnectRouted keeps the proxy chain it
	// was opened over; everything else completes as a Direct session.
	var sess *Session
	if route, routed := n.routedPending[ack.Session]; routed && route.target.Equal(r.ID) {
		sess = NewRoutedSession(n.self, r.ID, route.chain, ack.Session)
	} else {
		sess = NewDirectSession(n.self, r.ID, r.Addr, ack.Session)
	}
	sentTick := r.sentTick
	if err := r.Complete(ack.Session, sess); err != nil {
		return err
	}
	// The handshake round trip itself stands in for our first ping to
	// this remote: we "sent" at sentTick, we are
	// "acknowledging" now.
	pid := r.Tracker.GenPing(sentTick)
	if _, err := r.Tracker.AcknowledgePing(pid, now); err != nil {
		n.emit(&Event{Type: EvErrorDropped, Val: err})
	}
	r.echoPing = ack.ReturnPing
	n.emit(&Event{Type: EvSessionEstab, Ref: r.ID, Val: sess})
	n.Enqueue(&NodeAction{Kind: ActExchangeInformation, Target: r.ID})
	for _, p := range ack.InitPackets {
		if err := n.dispatchPayload(now, r, p); err != nil {
			n.emit(&Event{Type: EvErrorDropped, Val: err})
		}
	}
	return nil
}

// onRoutedSessionRequest is the proxy-side half of a Routed session:
// peel one hop off Remaining and relay onward, or, once Remaining is
// empty, hand Wrapped straight to Target and confirm the relay
// straight back to Origin. Proxies never keep any per-session state of
// their own: Target/TargetAddr/Origin/OriginAddr travel with every
// leg, so any proxy can be the last one.
//
// Real onion routing would also route the reply through the chain in
// reverse so the destination never learns Origin's address; this
// implementation skips that and instead has the final hop address the
// relay directly at OriginAddr, the same way a Direct session replies
// to a known peer.
func (n *Node) onRoutedSessionRequest(now Tick, pkt *LinkPacket, req *RoutedSessionRequest) error {
	if len(req.Remaining) == 0 {
		sid := SessionID(0)
		if !req.Establish {
			sid = req.Session
		}
		n.transport.Send(&LinkPacket{
			Src: req.OriginAddr, Dest: req.TargetAddr, Sender: req.Origin, Session: sid,
			Payload: req.Wrapped,
		})
		n.transport.Send(&LinkPacket{
			Src: n.addr, Dest: req.OriginAddr, Sender: n.self,
			Payload: &RoutedSessionAccept{Session: req.Session},
		})
		return nil
	}
	next := n.remoteFor(req.Remaining[0], 0)
	n.transport.Send(&LinkPacket{
		Src: n.addr, Dest: next.Addr, Sender: n.self,
		Payload: &RoutedSessionRequest{
			Session: req.Session, Remaining: req.Remaining[1:],
			Target: req.Target, TargetAddr: req.TargetAddr,
			Origin: req.Origin, OriginAddr: req.OriginAddr,
			Establish: req.Establish, Wrapped: req.Wrapped,
		},
	})
	return nil
}

// onRoutedSessionAccept matches a proxy chain's completion signal
// against the session doConnectRouted/sendRouted is waiting on.
// The mapping is kept, not consumed: the same chain
// relays one RoutedSessionAccept per message it carries, not just the
// opening handshake, so later accepts for ongoing traffic need to
// resolve too. It carries no handshake-completing authority of its
// own: the handshake itself completes the normal way, via the
// ConnectionAck the target sends directly back once it processes the
// relayed ConnectionInit.
func (n *Node) onRoutedSessionAccept(now Tick, pkt *LinkPacket, acc *RoutedSessionAccept) error {
	route, ok := n.routedPending[acc.Session]
	if !ok {
		return &HandshakeError{Err: ErrUnknownAck}
	}
	if r, ok := n.Remote(route.target); ok {
		n.emit(&Event{Type: EvRoutedSessionUp, Ref: r.ID, Val: acc.Session})
	}
	return nil
}

// receiveSession dispatches an inbound packet on an established
// session to the appropriate handler.
func (n *Node) receiveSession(now Tick, pkt *LinkPacket) error {
	r, ok := n.Remote(pkt.Sender)
	if !ok || r.Session == nil {
		return &StateError{Action: "receive", Err: ErrNoSession}
	}
	return n.dispatchPayload(now, r, pkt.Payload)
}

// dispatchPayload handles one NodePacket arriving from r, whether over
// an established Direct/Routed session (receiveSession), piggybacked
// on a handshake (onConnectionInit/onConnectionAck), or delivered by a
// Traverse envelope (ReceiveTraverse). Centralizing the switch here
// means a given packet kind behaves identically no matter which of
// those three paths it arrived by.
func (n *Node) dispatchPayload(now Tick, r *RemoteNode, payload NodePacket) error {
	switch p := payload.(type) {
	case *ExchangeInfo:
		if p.Coord != nil {
			r.Coord = p.Coord
		}
		if p.AckPing != 0 {
			if _, err := r.Tracker.AcknowledgePing(p.AckPing, now); err != nil {
				n.emit(&Event{Type: EvErrorDropped, Val: err})
			}
		}
		n.Enqueue(&NodeAction{Kind: ActUpdateRemote, Target: r.ID, Coord: p.Coord, DirectCount: p.DirectCount, RemoteDist: p.Dist})
		return n.sendOverSession(r, &ExchangeInfoResponse{Coord: n.coord, DirectCount: len(n.Peers()), Dist: r.Dist()})

	case *ExchangeInfoResponse:
		if p.Coord != nil {
			r.Coord = p.Coord
		}
		n.Enqueue(&NodeAction{Kind: ActUpdateRemote, Target: r.ID, Coord: p.Coord, DirectCount: p.DirectCount, RemoteDist: p.Dist})
		return nil

	case *PeerNotify:
		if r.RecordPeerNotify(p.IsPeer, now) {
			if p.Coord != nil {
				r.Coord = p.Coord
			}
			n.Enqueue(&NodeAction{Kind: ActUpdateRemote, Target: r.ID, Coord: p.Coord, DirectCount: p.PeerCount, RemoteDist: p.Dist})
		}
		return nil

	case *ProposeRouteCoords:
		if n.coord == nil {
			self := p.Self
			n.coord = &self
			r.Coord = &p.Peer
			n.emit(&Event{Type: EvCoordAssigned, Val: self})
			return n.sendOverSession(r, &ProposeRouteCoordsResponse{Accept: true})
		}
		return n.sendOverSession(r, &ProposeRouteCoordsResponse{Accept: false})

	case *ProposeRouteCoordsResponse:
		return nil

	case *RequestPings:
		return n.onRequestPings(now, r, p)

	case *WantPing:
		return n.onWantPing(r, p)

	case *AcceptWantPing:
		return n.onAcceptWantPing(now, r, p)

	case *Data:
		plain := p.Payload
		if r.Session != nil {
			plain = r.Session.Open(p)
		}
		n.emit(&Event{Type: EvDataReceived, Ref: r.ID, Val: plain})
		return nil

	case *Notify:
		n.emit(&Event{Type: EvDataReceived, Ref: r.ID, Val: p})
		return nil

	default:
		return &DecodeError{Kind: "session", Err: ErrBadPacket}
	}
}

// onRequestPings enforces the per-sender rate limit
// (Config.RequestPingsIntv) before selecting up to MaxRequestPings
// direct remotes (closest to p.Coord if given, else smallest tracked
// distance to self) and sending each (other than the requester
// itself) a WantPing naming the requester.
func (n *Node) onRequestPings(now Tick, r *RemoteNode, p *RequestPings) error {
	if last, seen := n.lastServedPings[r.ID.Key()]; seen && !last.Expired(now, Tick(cfg.RequestPingsIntv)) {
		return &StateError{Action: "request-pings", Err: ErrRateLimited}
	}
	n.lastServedPings[r.ID.Key()] = now

	count := int(p.Count)
	if count > cfg.MaxRequestPings {
		count = cfg.MaxRequestPings
	}
	type cand struct {
		r *RemoteNode
		d float64
	}
	var pool []cand
	for _, rem := range n.Remotes() {
		if rem.ID.Equal(r.ID) || rem.Session == nil ||
			rem.Session.Kind != SessionDirect || rem.State != HandshakeEstablished {
			continue
		}
		if p.Coord != nil && rem.Coord != nil {
			pool = append(pool, cand{rem, rem.Coord.Dist(*p.Coord)})
		} else {
			pool = append(pool, cand{rem, rem.Dist()})
		}
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].d < pool[j].d })
	for i, c := range pool {
		if i >= count {
			break
		}
		if err := n.sendOverSession(c.r, &WantPing{Requester: r.ID, ReqAddr: r.Addr}); err != nil {
			n.emit(&Event{Type: EvErrorDropped, Val: err})
		}
	}
	return nil
}

// onWantPing initiates a direct Connect to the requester, piggybacking
// an AcceptWantPing so the requester learns our identity and our
// measured distance to the common peer (relay) that relayed this request.
func (n *Node) onWantPing(relay *RemoteNode, p *WantPing) error {
	if p.Requester.Equal(n.self) || n.coord == nil {
		return nil
	}
	commonDist := relay.Dist()
	n.Enqueue(&NodeAction{
		Kind: ActConnect, Target: p.Requester, Addr: p.ReqAddr,
		InitPackets: []NodePacket{&AcceptWantPing{Intermediate: n.self, Dist: commonDist}},
	})
	return nil
}

// onAcceptWantPing records the edge from the requester (us) to the
// connecting intermediate and, once past the per-intermediate rate
// limit, answers with our own ExchangeInfo.
func (n *Node) onAcceptWantPing(now Tick, r *RemoteNode, p *AcceptWantPing) error {
	if p.Dist >= 0 {
		r.Tracker.RecordExternal(p.Dist)
	}
	if last, seen := n.lastAcceptWant[r.ID.Key()]; seen && !last.Expired(now, Tick(cfg.AcceptWantIntv)) {
		return &StateError{Action: "accept-want-ping", Err: ErrRateLimited}
	}
	n.lastAcceptWant[r.ID.Key()] = now
	return n.sendOverSession(r, &ExchangeInfo{Coord: n.coord, DirectCount: len(n.Peers()), Dist: r.Dist()})
}

// ReceiveTraverse handles a Traverse envelope arriving at this node via
// sender (the immediate hop that sent it, nil if we are originating):
// forward greedily, dispatch locally if we are the target, or drop it
// (ErrLocalMinimum) at a local minimum, defined as the greedy choice
// landing back on sender. A prior hop with no established session
// gets a Traversed one installed on arrival, replying along the origin
// coordinate carried in the envelope.
func (n *Node) ReceiveTraverse(now Tick, sender *NodeID, pkt *Traverse) error {
	var candidates []ForwardCandidate
	for _, r := range n.Peers() {
		rem := n.remotes[r.Key()]
		if rem.Coord != nil {
			candidates = append(candidates, ForwardCandidate{ID: rem.ID, Coord: *rem.Coord})
		}
	}
	outcome, next := StepTraverse(n.self, pkt, sender, candidates)
	switch outcome {
	case TraverseArrived:
		if pkt.From == nil {
			n.emit(&Event{Type: EvDataReceived, Val: pkt.Payload})
			return nil
		}
		r := n.remoteFor(pkt.From, 0)
		if r.Coord == nil && pkt.Origin != nil {
			r.Coord = pkt.Origin
		}
		if r.Session == nil && pkt.Origin != nil {
			r.Session = NewTraversedSession(n.self, r.ID, *pkt.Origin, pkt.Session)
			r.State = HandshakeEstablished
			n.emit(&Event{Type: EvSessionEstab, Ref: r.ID, Val: r.Session})
		}
		if r.Session == nil {
			n.emit(&Event{Type: EvDataReceived, Ref: r.ID, Val: pkt.Payload})
			return nil
		}
		return n.dispatchPayload(now, r, pkt.Payload)
	case TraverseDropped:
		n.emit(&Event{Type: EvTraverseDropped, Val: pkt})
		return &StateError{Action: "traverse", Err: ErrLocalMinimum}
	default:
		pkt.Hops++
		rem := n.remotes[next.ID.Key()]
		n.transport.Send(&LinkPacket{Src: n.addr, Dest: rem.Addr, Sender: n.self, Payload: pkt})
		n.emit(&Event{Type: EvTraverseForward, Ref: next.ID})
		return nil
	}
}
