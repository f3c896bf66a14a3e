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

// NodePacket type tags.
const (
	PktConnectionInit         = 1
	PktExchangeInfo           = 2
	PktExchangeInfoResponse   = 3
	PktPeerNotify             = 4
	PktProposeRouteCoords     = 5
	PktProposeRouteCoordsResp = 6
	PktRequestPings           = 7
	PktWantPing               = 8
	PktAcceptWantPing         = 9
	PktTraverse               = 10
	PktData                   = 11
	PktRoutedSessionRequest   = 12
	PktRoutedSessionAccept    = 13
	PktConnectionAck          = 14
	PktNotify                 = 15
)

// NodePacket is the sum type of payloads a Node exchanges with
// remotes. Each inbound packet is dispatched by the engine on its tag;
// each variant carries just what the handler for that tag needs.
type NodePacket interface {
	Kind() int
	String() string
}

//----------------------------------------------------------------------
// Handshake packets
//----------------------------------------------------------------------

// ConnectionInit opens a session: the initiator's claimed route
// coordinate (if any), the session id it proposes, and any packets
// piggybacked onto the handshake so the exchange they carry (an
// ExchangeInfo, an AcceptWantPing) doesn't cost a separate round trip.
type ConnectionInit struct {
	Session     SessionID
	Coord       *RouteCoord // nil if the initiator has none yet
	InitPackets []NodePacket
}

func (p *ConnectionInit) Kind() int { return PktConnectionInit }
func (p *ConnectionInit) String() string {
	return fmt.Sprintf("ConnectionInit{%s}", p.Session)
}

// ConnectionAck answers a ConnectionInit, completing the handshake.
// Session echoes the id being acknowledged: the
// initiator's own offer or, on a simultaneous-open tie-break, the
// winning side's offer.
type ConnectionAck struct {
	Session     SessionID
	Coord       *RouteCoord
	InitPackets []NodePacket
	// ReturnPing is the ping id the acceptor allocated for us on receipt
	// of the ConnectionInit; we owe it an echo via
	// the AckPing field of our next ExchangeInfo so its tracker gets a
	// sample too.
	ReturnPing PingID
}

func (p *ConnectionAck) Kind() int { return PktConnectionAck }
func (p *ConnectionAck) String() string {
	return fmt.Sprintf("ConnectionAck{%s}", p.Session)
}

// ExchangeInfo requests the remote's current peer/coordinate summary,
// exchanged right after a session is established. Dist is the sender's own
// tracked distance estimate to the recipient (-1 if unmeasured, 0 in
// the copy Bootstrap piggybacks; receivers ignore values <= 0).
type ExchangeInfo struct {
	Coord       *RouteCoord
	DirectCount int
	Dist        float64
	// AckPing echoes back a ReturnPing we were handed on a prior
	// ConnectionAck, completing the handshake-as-ping round trip for the
	// side that allocated it. Zero if we owe no
	// echo.
	AckPing PingID
}

func (p *ExchangeInfo) Kind() int { return PktExchangeInfo }
func (p *ExchangeInfo) String() string {
	return fmt.Sprintf("ExchangeInfo{direct=%d}", p.DirectCount)
}

// ExchangeInfoResponse answers ExchangeInfo with the remote's own
// coordinate, direct-session count and measured distance.
type ExchangeInfoResponse struct {
	Coord       *RouteCoord
	DirectCount int
	Dist        float64
}

func (p *ExchangeInfoResponse) Kind() int { return PktExchangeInfoResponse }
func (p *ExchangeInfoResponse) String() string {
	return fmt.Sprintf("ExchangeInfoResponse{direct=%d dist=%.1f}", p.DirectCount, p.Dist)
}

//----------------------------------------------------------------------
// Peer set / coordination maintenance
//----------------------------------------------------------------------

// PeerNotify announces whether the sender currently considers the
// receiver one of its peers. IsPeer carries the
// membership bit; Rank/PeerCount/Dist are informational context the
// receiver folds into UpdateRemote.
type PeerNotify struct {
	IsPeer    bool
	Rank      int
	Coord     *RouteCoord
	PeerCount int
	Dist      float64
}

func (p *PeerNotify) Kind() int { return PktPeerNotify }
func (p *PeerNotify) String() string {
	return fmt.Sprintf("PeerNotify{peer=%v rank=%d}", p.IsPeer, p.Rank)
}

// ProposeRouteCoords proposes a mutually consistent route coordinate
// pair, computed from measured RTT distance.
type ProposeRouteCoords struct {
	Self RouteCoord
	Peer RouteCoord
}

func (p *ProposeRouteCoords) Kind() int { return PktProposeRouteCoords }
func (p *ProposeRouteCoords) String() string {
	return fmt.Sprintf("ProposeRouteCoords{%s}", p.Self)
}

// ProposeRouteCoordsResponse accepts or rejects a coordinate proposal.
type ProposeRouteCoordsResponse struct {
	Accept bool
}

func (p *ProposeRouteCoordsResponse) Kind() int { return PktProposeRouteCoordsResp }
func (p *ProposeRouteCoordsResponse) String() string {
	return fmt.Sprintf("ProposeRouteCoordsResponse{accept=%v}", p.Accept)
}

//----------------------------------------------------------------------
// Session tracker traffic
//----------------------------------------------------------------------

// RequestPings asks the remote to originate WantPing toward up to
// Count of its own direct peers, closest to Coord if given.
type RequestPings struct {
	Count uint8
	Coord *RouteCoord
}

func (p *RequestPings) Kind() int { return PktRequestPings }
func (p *RequestPings) String() string {
	return fmt.Sprintf("RequestPings{n=%d}", p.Count)
}

// WantPing asks its recipient (an "intermediate") to connect directly
// to Requester and offer it a ping.
type WantPing struct {
	Requester *NodeID
	ReqAddr   NetAddr
}

func (p *WantPing) Kind() int { return PktWantPing }
func (p *WantPing) String() string {
	return fmt.Sprintf("WantPing{requester=%s}", p.Requester)
}

// AcceptWantPing is sent by the intermediate to the original requester
// once it has connected, identifying itself and its measured distance
// to the common peer that relayed the WantPing.
type AcceptWantPing struct {
	Intermediate *NodeID
	Dist         float64
}

func (p *AcceptWantPing) Kind() int { return PktAcceptWantPing }
func (p *AcceptWantPing) String() string {
	return fmt.Sprintf("AcceptWantPing{%s}", p.Intermediate)
}

//----------------------------------------------------------------------
// Forwarding and payload delivery
//----------------------------------------------------------------------

// Traverse is forwarded greedily, hop by hop, toward Dest by route
// coordinate distance. Target is the final recipient's
// identity, checked on arrival; From/Origin identify the sender and
// its coordinate, needed when Payload itself expects a reply routed
// back the way it came. Payload travels as a NodePacket rather than an
// opaque byte blob: the simulated wire moves Go values, not bytes on a
// socket, and the core package never needs to parse what it can
// already type-switch on.
type Traverse struct {
	Dest    RouteCoord
	Target  *NodeID     // final recipient identity, checked on arrival
	From    *NodeID     // originating node's identity
	Origin  *RouteCoord // originating node's coordinate, for replies
	Session SessionID   // session the payload is sealed under, zero if none
	Payload NodePacket
	Hops    uint8 // hop counter, purely diagnostic
}

func (p *Traverse) Kind() int { return PktTraverse }
func (p *Traverse) String() string {
	return fmt.Sprintf("Traverse{->%s hops=%d %s}", p.Dest, p.Hops, p.Payload)
}

// Data is an application payload delivered over an established
// session. Payload is sealed under the session's placeholder key by
// Session.GenPacket; Nonce is the per-packet counter it was
// sealed with, carried alongside so the receiver can reverse it.
type Data struct {
	Payload []byte `size:"*"`
	Nonce   []byte `size:"*"`
}

func (p *Data) Kind() int      { return PktData }
func (p *Data) String() string { return fmt.Sprintf("Data{%d bytes}", len(p.Payload)) }

//----------------------------------------------------------------------
// Routed (onion) sessions
//----------------------------------------------------------------------

// RoutedSessionRequest asks a proxy to relay Wrapped one hop closer to
// Target, peeling one entry off Remaining each time it changes hands.
// Target/TargetAddr and
// Origin/OriginAddr travel with every leg so the final proxy can hand
// Wrapped straight to Target and route a RoutedSessionAccept straight
// back to Origin, without any hop needing to remember the chain itself.
// Establish distinguishes the one-time handshake leg (Wrapped is a
// ConnectionInit, delivered outside any session) from ongoing
// application traffic over the session once established.
type RoutedSessionRequest struct {
	Session    SessionID
	Remaining  []*NodeID // proxy hops still ahead of this one, nearest first
	Target     *NodeID
	TargetAddr NetAddr
	Origin     *NodeID
	OriginAddr NetAddr
	Establish  bool
	Wrapped    NodePacket // opaque to intermediate hops, dispatched by the final one
}

func (p *RoutedSessionRequest) Kind() int { return PktRoutedSessionRequest }
func (p *RoutedSessionRequest) String() string {
	return fmt.Sprintf("RoutedSessionRequest{->%s via %d hops}", p.Target, len(p.Remaining))
}

// RoutedSessionAccept confirms a routed session leg was established.
type RoutedSessionAccept struct {
	Session SessionID
}

func (p *RoutedSessionAccept) Kind() int { return PktRoutedSessionAccept }
func (p *RoutedSessionAccept) String() string {
	return fmt.Sprintf("RoutedSessionAccept{%s}", p.Session)
}
