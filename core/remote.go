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

import "fmt"

// HandshakeState tracks where a handshake with one remote stands.
// An initiator moves None -> PendingOut -> Established;
// an acceptor moves None -> Established directly, on receipt of a
// Handshake it answers with an Acknowledge.
type HandshakeState int

const (
	HandshakeNone HandshakeState = iota
	HandshakePendingOut
	HandshakeEstablished
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeNone:
		return "none"
	case HandshakePendingOut:
		return "pending-out"
	case HandshakeEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// RemoteNode is everything a Node engine tracks about one other node:
// its identity, its last known physical address and route coordinate,
// handshake progress, its session tracker and, once established, its
// Session.
type RemoteNode struct {
	ID    *NodeID
	Addr  NetAddr     // last known physical address, 0 if unknown
	Coord *RouteCoord // last known route coordinate, nil if unknown

	State      HandshakeState
	pendingOut SessionID // our proposed session id, valid while State == PendingOut
	sentTick   Tick      // tick BeginHandshake was called, for the handshake-as-ping RTT sample
	echoPing   PingID    // remote's return-ping id we owe it an AcceptWantPing-style echo for, via the next ExchangeInfo

	Session *Session
	Tracker *Tracker

	IsPeer bool // true once included in our own target peer set, set only by doCalculatePeers

	// IncomingPeer records the remote's own most recent PeerNotify about
	// us: whether it currently counts us among its peers. Kept separate
	// from IsPeer so an inbound notification never corrupts our own
	// peer-selection state.
	IncomingPeer bool

	lastNotify Tick // tick of the most recent PeerNotify received from this remote

	DirectCount int // remote's last-reported direct session count
}

// NewRemoteNode creates a freshly discovered remote with no session.
func NewRemoteNode(id *NodeID, addr NetAddr) *RemoteNode {
	return &RemoteNode{
		ID:      id,
		Addr:    addr,
		State:   HandshakeNone,
		Tracker: NewTracker(),
	}
}

// BeginHandshake transitions None -> PendingOut, returning the session
// id to offer in the ConnectionInit. It is an error to call this twice
// without the first attempt resolving. now is remembered as the
// handshake-as-ping send tick: once the
// ConnectionAck comes back, it stands in for a ping sent at now.
func (r *RemoteNode) BeginHandshake(now Tick) (SessionID, error) {
	if r.State != HandshakeNone {
		return 0, &HandshakeError{Who: r.ID, Err: ErrHandshakeBusy}
	}
	sid := NewSessionID()
	r.pendingOut = sid
	r.sentTick = now
	r.State = HandshakePendingOut
	return sid, nil
}

// ResolveSimultaneousOpen is called when both sides sent a
// ConnectionInit concurrently. The tie is broken by NodeID ordering:
// the smaller id abandons its own PendingOut and accepts the other
// side's instead.
func (r *RemoteNode) ResolveSimultaneousOpen(self, peer *NodeID) (abandonOwn bool) {
	return self.Less(peer)
}

// Accept completes the handshake as an acceptor (or as the loser of a
// simultaneous-open tie-break), installing sess as the live session.
func (r *RemoteNode) Accept(sess *Session) {
	r.Session = sess
	r.State = HandshakeEstablished
	r.pendingOut = 0
}

// Complete finishes the handshake as the initiator, confirming that
// the SessionID acknowledged by the remote matches what we offered.
func (r *RemoteNode) Complete(sid SessionID, sess *Session) error {
	if r.State != HandshakePendingOut || sid != r.pendingOut {
		return &HandshakeError{Who: r.ID, Err: ErrHandshakeStale}
	}
	r.Session = sess
	r.State = HandshakeEstablished
	r.pendingOut = 0
	return nil
}

// Reset drops any session and handshake progress, returning the
// remote to HandshakeNone. The engine itself does not call it.
func (r *RemoteNode) Reset() {
	r.Session = nil
	r.State = HandshakeNone
	r.pendingOut = 0
}

// RecordPeerNotify updates IncomingPeer from an inbound PeerNotify and
// reports whether it represents a change worth reacting to. It never
// touches IsPeer: that field is exclusively owned by this node's own
// doCalculatePeers decision.
func (r *RemoteNode) RecordPeerNotify(isPeer bool, now Tick) (changed bool) {
	r.lastNotify = now
	was := r.IncomingPeer
	r.IncomingPeer = isPeer
	return was != r.IncomingPeer
}

// Dist returns the tracker's current one-way distance estimate, or -1
// if unmeasured.
func (r *RemoteNode) Dist() float64 {
	return r.Tracker.Distance()
}

func (r *RemoteNode) String() string {
	return fmt.Sprintf("Remote{%s state=%s peer=%v}", r.ID, r.State, r.IsPeer)
}
