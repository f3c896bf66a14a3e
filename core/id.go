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
	"bytes"
	"encoding/base32"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/bfix/gospel/crypto/ed25519"
)

//----------------------------------------------------------------------
// NetAddr identifies a simulated network endpoint. The simulator host
// allocates them monotonically; they are unique while the node is live.
//----------------------------------------------------------------------

// NetAddr is an address on the in-process packet bus.
type NetAddr uint64

// netAddrSeq backs NextNetAddr; addresses are never reused within a run.
var netAddrSeq atomic.Uint64

// NextNetAddr allocates the next monotonic address.
func NextNetAddr() NetAddr {
	return NetAddr(netAddrSeq.Add(1))
}

func (a NetAddr) String() string {
	return fmt.Sprintf("#%d", uint64(a))
}

//----------------------------------------------------------------------

// NodeID is the logical identity of a node (stand-in for a public-key
// hash). It is the binary representation of the public Ed25519 key of
// a node.
type NodeID struct {
	Data []byte `size:"(Size)" init:"Init"` // binary representation

	// transient
	pub   *ed25519.PublicKey // Ed25519 pubkey
	tag   uint32             // short identifier
	str32 string             // string representation (base32)
	str64 string             // string representation (base64)
}

// NewNodeID creates a new NodeID from binary data.
func NewNodeID(data []byte) *NodeID {
	id := new(NodeID)
	id.Data = make([]byte, id.Size())
	copy(id.Data, data)
	id.Init()
	return id
}

// Init initializes transient attributes based on Data.
func (id *NodeID) Init() {
	if id != nil {
		id.tag = binary.BigEndian.Uint32(id.Data[:4])
		id.str64 = base64.StdEncoding.EncodeToString(id.Data)
		id.str32 = base32.StdEncoding.EncodeToString(id.Data)[:8]
		if id.pub == nil {
			id.pub = ed25519.NewPublicKeyFromBytes(id.Data)
		}
	}
}

// Size of a NodeID (used for serialization).
func (id *NodeID) Size() uint {
	return 32
}

// Tag returns a short numeric identifier for the node id.
func (id *NodeID) Tag() uint32 {
	if id == nil {
		return 0
	}
	return id.tag
}

// Key returns a string used for map operations.
func (id *NodeID) Key() string {
	if id == nil {
		return ""
	}
	return id.str64
}

// String returns a human-readable short identifier.
func (id *NodeID) String() string {
	if id == nil {
		return "(none)"
	}
	return id.str32
}

// Equal returns true if two node ids are equal.
func (id *NodeID) Equal(o *NodeID) bool {
	if o == nil && id == nil {
		return true
	}
	if o == nil || id == nil {
		return false
	}
	return bytes.Equal(id.Data, o.Data)
}

// Less orders node ids by their binary representation. Used for the
// simultaneous-open handshake tie-break.
func (id *NodeID) Less(o *NodeID) bool {
	return bytes.Compare(id.Data, o.Data) < 0
}

// Bytes returns the binary representation (as a clone).
func (id *NodeID) Bytes() []byte {
	return Clone(id.Data)
}

//----------------------------------------------------------------------

// NodePrivate is the long-term signing key of a node (an Ed25519 private
// key), standing in for the simulated node's cryptographic identity.
type NodePrivate struct {
	Data []byte `size:"(Size)"` // binary representation

	// transient
	prv *ed25519.PrivateKey
}

// NewNodePrivate creates a new node private signing key from a fresh
// random 32-byte seed, which is kept as its binary representation.
func NewNodePrivate() *NodePrivate {
	seed := make([]byte, 32)
	for i := 0; i < len(seed); i += 8 {
		binary.BigEndian.PutUint64(seed[i:], RndUInt64())
	}
	prv := ed25519.NewPrivateKeyFromSeed(seed)
	return &NodePrivate{
		Data: seed,
		prv:  prv,
	}
}

// Size of a node private key seed (used for local serialization).
func (p *NodePrivate) Size() uint {
	return 32
}

// NewNodePrivateFromBytes reconstructs a NodePrivate from its binary
// form, rebuilding the signing key from the stored seed with
// NewPrivateKeyFromSeed. Used to restore a node's identity
// from a simulator snapshot.
func NewNodePrivateFromBytes(data []byte) *NodePrivate {
	buf := Clone(data)
	return &NodePrivate{
		Data: buf,
		prv:  ed25519.NewPrivateKeyFromSeed(buf),
	}
}

// Public returns the NodeID (public key) derived from the private key.
func (p *NodePrivate) Public() *NodeID {
	pub := p.prv.Public()
	id := &NodeID{
		Data: pub.Bytes(),
		pub:  pub,
	}
	id.Init()
	return id
}

//----------------------------------------------------------------------

// SessionID is a random identifier for a logical connection; it also
// seeds the placeholder symmetric key both ends derive for it.
type SessionID uint64

// NewSessionID returns a fresh random session id.
func NewSessionID() SessionID {
	return SessionID(RndUInt64())
}

func (s SessionID) String() string {
	return fmt.Sprintf("sess-%08x", uint64(s))
}

//----------------------------------------------------------------------

// PingID scopes one outstanding round-trip measurement.
type PingID uint64

// NewPingID returns a fresh random ping id.
func NewPingID() PingID {
	return PingID(RndUInt64())
}

//----------------------------------------------------------------------

// RouteCoord is a position in the latency-embedding plane.
type RouteCoord struct {
	X, Y int32
}

// Dist2 returns the squared Euclidean distance to another coordinate.
// Forwarding decisions only need relative ordering, so the
// square root is never taken.
func (c RouteCoord) Dist2(o RouteCoord) float64 {
	dx := float64(c.X - o.X)
	dy := float64(c.Y - o.Y)
	return dx*dx + dy*dy
}

// Dist returns the Euclidean distance to another coordinate.
func (c RouteCoord) Dist(o RouteCoord) float64 {
	return math.Sqrt(c.Dist2(o))
}

// Equal reports whether two coordinates are the same point.
func (c RouteCoord) Equal(o RouteCoord) bool {
	return c.X == o.X && c.Y == o.Y
}

func (c RouteCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Lerp returns the point a fraction t (0..1) of the way from c to o,
// along the straight line between the two coordinates.
func (c RouteCoord) Lerp(o RouteCoord, t float64) RouteCoord {
	return RouteCoord{
		X: c.X + int32(math.Round(float64(o.X-c.X)*t)),
		Y: c.Y + int32(math.Round(float64(o.Y-c.Y)*t)),
	}
}
