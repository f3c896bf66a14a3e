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

package sim

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/bfix/gospel/data"
	"github.com/libdither/dbr-sim/core"
	"github.com/libdither/dbr-sim/sim/store"
)

// Snapshot persistence: the simulator's node table and
// router state, excluding in-flight packets, serialize to an opaque
// byte stream. Each record is framed with its own length prefix and
// encoded with github.com/bfix/gospel/data, exactly as
// transport.WriteMessage frames a gospel/data.Marshal'd message behind
// a size header.

const (
	policyOracle uint8 = 0
	policyMDS    uint8 = 1
)

// snapshotHeader precedes the node and directory records.
type snapshotHeader struct {
	Now      uint64 `order:"big"`
	NumNodes uint32 `order:"big"`
	NumDir   uint32 `order:"big"`
}

// nodeEntry is one persisted SimNode: identity, address, display id,
// physical position and last-known route coordinate.
type nodeEntry struct {
	SizeID   uint16 `order:"big"`
	SizePriv uint16 `order:"big"`
	ID       []byte `size:"SizeID"`
	Priv     []byte `size:"SizePriv"`
	Addr     uint64 `order:"big"`
	Disp     uint32 `order:"big"`
	PosX     uint64 `order:"big"` // IEEE-754 bits of the physical x coordinate
	PosY     uint64 `order:"big"`
	HasCoord uint8  `order:"big"`
	CoordX   int32  `order:"big"`
	CoordY   int32  `order:"big"`
	Policy   uint8  `order:"big"`
}

// dirEntry is one published coordinate-directory record.
type dirEntry struct {
	SizeKey uint16 `order:"big"`
	Key     []byte `size:"SizeKey"`
	X       int32  `order:"big"`
	Y       int32  `order:"big"`
}

// marshalFramed encodes v with gospel/data and writes it to w behind a
// 4-byte big-endian length prefix, so a sequence of heterogeneous
// records can be read back without a shared outer schema.
func marshalFramed(w io.Writer, v any) error {
	buf, err := data.Marshal(v)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(buf)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// unmarshalFramed reverses marshalFramed.
func unmarshalFramed(r *bytes.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	return data.Unmarshal(v, buf)
}

// Snapshot serializes the host's node table and directory to an opaque
// byte stream. In-flight router packets are transient and not part of
// a snapshot.
func (h *Host) Snapshot() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf := new(bytes.Buffer)
	keys := h.directory.Keys()
	hdr := snapshotHeader{
		Now:      uint64(h.now),
		NumNodes: uint32(len(h.order)),
		NumDir:   uint32(len(keys)),
	}
	if err := marshalFramed(buf, &hdr); err != nil {
		return nil, &core.FatalError{Err: err}
	}

	for _, key := range h.order {
		sn := h.nodes[key]
		e := nodeEntry{
			ID:   sn.Node.ID().Bytes(),
			Priv: sn.Node.Private().Data,
			Addr: uint64(sn.Node.Addr()),
			Disp: uint32(sn.id),
			PosX: math.Float64bits(sn.Pos.x),
			PosY: math.Float64bits(sn.Pos.y),
		}
		e.SizeID = uint16(len(e.ID))
		e.SizePriv = uint16(len(e.Priv))
		if c := sn.Node.Coord(); c != nil {
			e.HasCoord = 1
			e.CoordX, e.CoordY = c.X, c.Y
		}
		if _, ok := sn.Node.Policy().(*core.MDSPolicy); ok {
			e.Policy = policyMDS
		} else {
			e.Policy = policyOracle
		}
		if err := marshalFramed(buf, &e); err != nil {
			return nil, &core.FatalError{Err: err}
		}
	}

	for _, key := range keys {
		x, y, ok := h.directory.Read(key)
		if !ok {
			continue
		}
		d := dirEntry{Key: []byte(key), X: x, Y: y}
		d.SizeKey = uint16(len(d.Key))
		if err := marshalFramed(buf, &d); err != nil {
			return nil, &core.FatalError{Err: err}
		}
	}
	return buf.Bytes(), nil
}

// RestoreHost deserializes a byte stream produced by Snapshot into a
// fresh Host using cfg for router settings. Remote/session state is
// not part of the snapshot; restored nodes rediscover peers the same
// way freshly bootstrapped ones would.
func RestoreHost(cfg *RouterCfg, blob []byte) (*Host, error) {
	return RestoreHostWithDirectory(cfg, store.NewMemDirectory(), blob)
}

// RestoreHostWithDirectory is RestoreHost but lets the caller supply a
// non-default coordinate-directory backend (e.g. a Redis-backed one),
// mirroring NewHostWithDirectory.
func RestoreHostWithDirectory(cfg *RouterCfg, dir *store.Directory, blob []byte) (*Host, error) {
	h := NewHostWithDirectory(cfg, dir)
	r := bytes.NewReader(blob)

	var hdr snapshotHeader
	if err := unmarshalFramed(r, &hdr); err != nil {
		return nil, &core.FatalError{Err: err}
	}
	h.now = core.Tick(hdr.Now)

	for i := uint32(0); i < hdr.NumNodes; i++ {
		var e nodeEntry
		if err := unmarshalFramed(r, &e); err != nil {
			return nil, &core.FatalError{Err: err}
		}
		priv := core.NewNodePrivateFromBytes(e.Priv)
		var coord *core.RouteCoord
		if e.HasCoord != 0 {
			coord = &core.RouteCoord{X: e.CoordX, Y: e.CoordY}
		}
		var policy core.CoordPolicy = core.OraclePolicy{}
		if e.Policy == policyMDS {
			policy = core.NewMDSPolicy()
		}
		node := core.NewNodeFromIdentity(priv, core.NetAddr(e.Addr), coord, policy, h)
		node.SetListener(h.listener)

		pos := &Position{x: math.Float64frombits(e.PosX), y: math.Float64frombits(e.PosY)}
		sn := NewSimNode(int(e.Disp), node, pos)

		key := node.ID().Key()
		h.nodes[key] = sn
		h.addrs[node.Addr()] = key
		h.order = append(h.order, key)
		h.router.Place(node.Addr(), pos)
		if int(e.Disp) >= h.nextDisp {
			h.nextDisp = int(e.Disp) + 1
		}
	}

	for i := uint32(0); i < hdr.NumDir; i++ {
		var d dirEntry
		if err := unmarshalFramed(r, &d); err != nil {
			return nil, &core.FatalError{Err: err}
		}
		h.directory.Write(string(d.Key), d.X, d.Y)
	}
	return h, nil
}
