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
	"fmt"
	"github.com/libdither/dbr-sim/core"
	"github.com/libdither/dbr-sim/sim/store"
	"sort"
	"sync"
)

// Event types for simulator-level events, distinct from the
// core.Event constants emitted by individual node engines.
const (
	EvNodeAdded   = 100
	EvNodeRemoved = 101
)

// Host is the simulator-intrinsic process: it owns the node table, the
// latency router and the process-wide NodeID->RouteCoord directory,
// and drives every node's Tick in lockstep. It also
// implements core.Transport, so every core.Node it creates routes its
// traffic and its "simulator-intrinsic requests" (RouteCoordDHTRead/
// Write) through this single object.
type Host struct {
	mu    sync.RWMutex
	nodes map[string]*SimNode // keyed by NodeID.Key()
	addrs map[core.NetAddr]string
	order []string // node keys in insertion order, for stable display ids

	router    *Router
	directory *store.Directory // process-wide NodeID->RouteCoord directory

	now      core.Tick
	nextDisp int
	listener core.Listener
}

// NewHost creates an empty simulator host using cfg's router settings,
// backed by an in-process coordinate directory.
func NewHost(cfg *RouterCfg) *Host {
	return NewHostWithDirectory(cfg, store.NewMemDirectory())
}

// NewHostWithDirectory creates an empty simulator host whose coordinate
// directory is serviced by dir instead of the default in-process map,
// e.g. store.NewRedisDirectory.
func NewHostWithDirectory(cfg *RouterCfg, dir *store.Directory) *Host {
	return &Host{
		nodes:     make(map[string]*SimNode),
		addrs:     make(map[core.NetAddr]string),
		router:    NewRouter(cfg),
		directory: dir,
	}
}

// SetListener installs an observer for simulator-level events; it is
// also installed on every node created afterward.
func (h *Host) SetListener(l core.Listener) {
	h.listener = l
}

//----------------------------------------------------------------------
// core.Transport implementation
//----------------------------------------------------------------------

// Send hands pkt to the router for delayed delivery.
func (h *Host) Send(pkt *core.LinkPacket) {
	h.router.Send(h.now, pkt)
}

// DirectoryRead answers a simulator-intrinsic RouteCoordDHTRead with
// the coordinate currently published for id: the exact placed Position
// AddNode seeds, until the node publishes its own via DirectoryWrite.
func (h *Host) DirectoryRead(id *core.NodeID) (core.RouteCoord, bool) {
	x, y, ok := h.directory.Read(id.Key())
	return core.RouteCoord{X: x, Y: y}, ok
}

// DirectoryWrite services a simulator-intrinsic RouteCoordDHTWrite,
// used by every node's doCalculatePeers to publish its current
// coordinate once its peer set is full.
func (h *Host) DirectoryWrite(id *core.NodeID, c core.RouteCoord) {
	h.directory.Write(id.Key(), c.X, c.Y)
}

// Directory exposes the backing store directly, for the CLI's
// `net print`/`net cache` introspection commands.
func (h *Host) Directory() *store.Directory {
	return h.directory
}

// Restore replaces h's node table, router and directory with other's,
// used by the CLI's `net load` command to swap a freshly deserialized
// Host into the slot the caller already holds a pointer to (RestoreHost
// builds a standalone Host; this adopts its contents in place rather
// than copying the struct, which would copy its mutex).
func (h *Host) Restore(other *Host) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes = other.nodes
	h.addrs = other.addrs
	h.order = other.order
	h.router = other.router
	h.directory = other.directory
	h.now = other.now
	h.nextDisp = other.nextDisp
	// the adopted nodes still point at other as their transport; swap
	// them over so their packets are scheduled against this host's clock
	for _, sn := range h.nodes {
		sn.Node.SetTransport(h)
		sn.Node.SetListener(h.listener)
	}
}

// SetDirectory swaps the coordinate-directory backend, used by the
// CLI's `net cache` command to move the directory onto a Redis-backed
// store without rebuilding the host. Existing entries are copied
// across so lookups already in flight keep working.
func (h *Host) SetDirectory(dir *store.Directory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.directory
	for _, key := range old.Keys() {
		if x, y, ok := old.Read(key); ok {
			dir.Write(key, x, y)
		}
	}
	h.directory = dir
}

//----------------------------------------------------------------------
// Node lifecycle
//----------------------------------------------------------------------

// AddNode creates a new node at pos using policy (OraclePolicy if nil)
// and registers it with the router and directory.
func (h *Host) AddNode(pos *Position, policy core.CoordPolicy) *SimNode {
	h.mu.Lock()
	defer h.mu.Unlock()

	addr := core.NextNetAddr()
	node := core.NewNode(addr, policy, h)
	node.SetListener(h.listener)

	disp := h.nextDisp
	h.nextDisp++
	sn := NewSimNode(disp, node, pos)

	key := node.ID().Key()
	h.nodes[key] = sn
	h.addrs[addr] = key
	h.order = append(h.order, key)
	h.router.Place(addr, pos)
	h.directory.Write(key, int32(pos.x), int32(pos.y))

	if h.listener != nil {
		h.listener(&core.Event{Type: EvNodeAdded, Node: node.ID(), Val: disp})
	}
	return sn
}

// DelNode removes a node from the simulation.
func (h *Host) DelNode(id *core.NodeID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := id.Key()
	sn, ok := h.nodes[key]
	if !ok {
		return false
	}
	delete(h.nodes, key)
	delete(h.addrs, sn.Node.Addr())
	h.directory.Delete(key)
	h.router.Remove(sn.Node.Addr())
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	if h.listener != nil {
		h.listener(&core.Event{Type: EvNodeRemoved, Node: id, Val: sn.id})
	}
	return true
}

// Node returns the SimNode for an identity, if present.
func (h *Host) Node(id *core.NodeID) (*SimNode, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sn, ok := h.nodes[id.Key()]
	return sn, ok
}

// byID looks up a SimNode without acquiring the lock, for callers that
// already hold it (e.g. SimNode.Draw walking the host under Render's
// read lock).
func (h *Host) byID(id *core.NodeID) *SimNode {
	return h.nodes[id.Key()]
}

// Nodes returns every node, ordered by insertion (stable display ids).
func (h *Host) Nodes() []*SimNode {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*SimNode, 0, len(h.order))
	for _, k := range h.order {
		out = append(out, h.nodes[k])
	}
	return out
}

// NodeByAddr resolves a physical NetAddr to its SimNode.
func (h *Host) NodeByAddr(addr core.NetAddr) (*SimNode, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	key, ok := h.addrs[addr]
	if !ok {
		return nil, false
	}
	sn, ok := h.nodes[key]
	return sn, ok
}

//----------------------------------------------------------------------
// Tick loop
//----------------------------------------------------------------------

// Tick advances the simulation by n discrete steps: at each step,
// every packet the router has scheduled for delivery at that tick is
// handed to its destination node, and every node's own Tick is run to
// drain its action queue and perform housekeeping.
func (h *Host) Tick(n int) {
	for i := 0; i < n; i++ {
		h.mu.Lock()
		h.now++
		now := h.now
		nodes := make([]*SimNode, 0, len(h.nodes))
		for _, sn := range h.nodes {
			nodes = append(nodes, sn)
		}
		due := h.router.Due(now)
		h.mu.Unlock()

		for _, pkt := range due {
			h.deliver(now, pkt)
		}
		// deterministic order: sort by display id before ticking, so a
		// fixed seed reproduces the exact same run.
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })
		for _, sn := range nodes {
			if _, ok := sn.Node.Policy().(core.OraclePolicy); ok {
				sn.Node.SetOracleCoord(core.RouteCoord{X: int32(sn.Pos.X()), Y: int32(sn.Pos.Y())})
			}
			sn.Node.Tick(now)
		}
	}
}

// Now returns the simulator's current tick.
func (h *Host) Now() core.Tick {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.now
}

// deliver routes one due packet to its destination node.
func (h *Host) deliver(now core.Tick, pkt *core.LinkPacket) {
	sn, ok := h.NodeByAddr(pkt.Dest)
	if !ok {
		return
	}
	if tr, ok := pkt.Payload.(*core.Traverse); ok {
		_ = sn.Node.ReceiveTraverse(now, pkt.Sender, tr)
		return
	}
	_ = sn.Node.Receive(now, pkt)
}

//----------------------------------------------------------------------
// String / diagnostics
//----------------------------------------------------------------------

func (h *Host) String() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fmt.Sprintf("Host{%d nodes, tick=%s, %d in flight}", len(h.nodes), h.now, h.router.Pending())
}
