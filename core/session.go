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

// SessionKind tags which of the three transports a Session uses.
type SessionKind int

const (
	// SessionDirect carries packets straight to the peer's physical
	// NetAddr; used when the peer is a direct neighbor.
	SessionDirect SessionKind = iota
	// SessionTraversed wraps each packet in a Traverse envelope and
	// relies on coordinate-based greedy forwarding.
	SessionTraversed
	// SessionRouted relays each packet through a fixed chain of proxy
	// nodes as a RoutedSessionRequest.
	SessionRouted
)

func (k SessionKind) String() string {
	switch k {
	case SessionDirect:
		return "direct"
	case SessionTraversed:
		return "traversed"
	case SessionRouted:
		return "routed"
	default:
		return "unknown"
	}
}

// Session is an established logical connection to a remote node, using
// one of three transports. Once established it is
// transport-agnostic from the engine's point of view: callers just
// hand it an outbound NodePacket via GenPacket.
type Session struct {
	ID   SessionID
	Kind SessionKind
	Peer *NodeID

	// Direct
	Addr NetAddr

	// Traversed
	DestCoord RouteCoord

	// Routed: the ordered chain of proxy NodeIDs between us and Peer,
	// nearest hop first.
	Chain []*NodeID

	// key is the placeholder symmetric key (SessionKey) both ends derive
	// from their identities and ID, used by GenPacket/Open to seal
	// application Data payloads.
	key []byte
	seq uint64 // per-packet nonce counter, advanced by GenPacket

	lastSend Tick // tick of the most recently generated packet
}

// NewDirectSession creates a Direct-kind session to a known NetAddr.
// sid is the negotiated session id; zero mints a fresh one. Both ends
// of a connection must build their Session from the same id, or the
// keys they derive from it will not match.
func NewDirectSession(self, peer *NodeID, addr NetAddr, sid SessionID) *Session {
	if sid == 0 {
		sid = NewSessionID()
	}
	s := &Session{ID: sid, Kind: SessionDirect, Peer: peer, Addr: addr}
	s.key = SessionKey(self, peer, s.ID)
	return s
}

// NewTraversedSession creates a Traversed-kind session targeting a
// remote's last-known route coordinate. sid as in NewDirectSession.
func NewTraversedSession(self, peer *NodeID, dest RouteCoord, sid SessionID) *Session {
	if sid == 0 {
		sid = NewSessionID()
	}
	s := &Session{ID: sid, Kind: SessionTraversed, Peer: peer, DestCoord: dest}
	s.key = SessionKey(self, peer, s.ID)
	return s
}

// NewRoutedSession creates a Routed-kind (onion) session through chain.
// sid as in NewDirectSession.
func NewRoutedSession(self, peer *NodeID, chain []*NodeID, sid SessionID) *Session {
	if sid == 0 {
		sid = NewSessionID()
	}
	s := &Session{ID: sid, Kind: SessionRouted, Peer: peer, Chain: Clone(chain)}
	s.key = SessionKey(self, peer, s.ID)
	return s
}

// nonce renders seq as an 8-byte little-endian buffer for use as the
// blake2b keystream nonce, then advances it.
func (s *Session) nonce() []byte {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(s.seq >> (8 * i))
	}
	s.seq++
	return buf[:]
}

// GenPacket seals payload under the session's placeholder key and
// wraps it for transmission, stamping the tick it was generated at so
// CheckPacketTime can later detect stale sessions. Sealing is the same
// regardless of SessionKind; how the result actually reaches the peer
// (straight to Addr, Traverse-forwarded toward DestCoord, or relayed
// through Chain as a RoutedSessionRequest) is sendOverSession's job,
// not this one's, the same way a Traversed session's envelope wrapping
// already lives in the engine rather than here.
func (s *Session) GenPacket(now Tick, payload []byte) *Data {
	s.lastSend = now
	nonce := s.nonce()
	return &Data{Payload: SealPlaceholder(s.key, nonce, payload), Nonce: nonce}
}

// Open reverses GenPacket, recovering the plaintext application
// payload carried by d using the nonce it was sealed under.
func (s *Session) Open(d *Data) []byte {
	return OpenPlaceholder(s.key, d.Nonce, d.Payload)
}

// CheckPacketTime reports whether this session has been silent for
// longer than ttl ticks, i.e. no packet was generated on it since
// now-ttl. The engine itself does not call it.
func (s *Session) CheckPacketTime(now Tick, ttl Tick) bool {
	return s.lastSend.Expired(now, ttl)
}

func (s *Session) String() string {
	switch s.Kind {
	case SessionDirect:
		return fmt.Sprintf("Session{%s direct->%s}", s.ID, s.Addr)
	case SessionTraversed:
		return fmt.Sprintf("Session{%s traversed->%s}", s.ID, s.DestCoord)
	case SessionRouted:
		return fmt.Sprintf("Session{%s routed, %d hops}", s.ID, len(s.Chain))
	default:
		return fmt.Sprintf("Session{%s}", s.ID)
	}
}
