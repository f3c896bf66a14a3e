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
	"github.com/libdither/dbr-sim/core"
	"math"
	"math/rand"
)

// queuedPacket is one LinkPacket in flight, scheduled for delivery at
// a future tick.
type queuedPacket struct {
	pkt       *core.LinkPacket
	deliverAt core.Tick
}

// Router models per-(src,dest) link latency as a function of physical
// distance, with optional Gaussian jitter and, off by default, packet
// loss. Packets that share identical latency are never reordered.
type Router struct {
	cfg  *RouterCfg
	pos  map[core.NetAddr]*Position
	pend map[core.Tick][]*queuedPacket
	dist map[[2]core.NetAddr]float64 // memoised per-direction base distance
	rng  *rand.Rand
}

// NewRouter creates a Router using cfg's latency/jitter/drop settings.
func NewRouter(cfg *RouterCfg) *Router {
	return &Router{
		cfg:  cfg,
		pos:  make(map[core.NetAddr]*Position),
		pend: make(map[core.Tick][]*queuedPacket),
		dist: make(map[[2]core.NetAddr]float64),
		rng:  rand.New(rand.NewSource(19031962)),
	}
}

// Place records the physical position of a NetAddr, used to derive
// link latency. Any memoised distances involving the address are
// dropped, in case they were computed before it had a position.
func (r *Router) Place(addr core.NetAddr, pos *Position) {
	r.pos[addr] = pos
	for key := range r.dist {
		if key[0] == addr || key[1] == addr {
			delete(r.dist, key)
		}
	}
}

// Remove drops a NetAddr's position when its node leaves the network.
func (r *Router) Remove(addr core.NetAddr) {
	delete(r.pos, addr)
	for key := range r.dist {
		if key[0] == addr || key[1] == addr {
			delete(r.dist, key)
		}
	}
}

// Send schedules pkt for delivery at a future tick, computed from the
// physical distance between its src and dest positions.
func (r *Router) Send(now core.Tick, pkt *core.LinkPacket) {
	if r.cfg.DropRate > 0 && r.rng.Float64() < r.cfg.DropRate {
		return
	}
	delay := r.latency(pkt.Src, pkt.Dest)
	at := now + core.Tick(delay)
	r.pend[at] = append(r.pend[at], &queuedPacket{pkt: pkt, deliverAt: at})
}

// latency computes the delivery delay, in ticks, between two NetAddrs.
// The base distance is memoised per direction; only the jitter term is
// drawn fresh per packet.
func (r *Router) latency(src, dest core.NetAddr) float64 {
	key := [2]core.NetAddr{src, dest}
	base, ok := r.dist[key]
	if !ok {
		unit := r.cfg.LatencyUnit
		if unit <= 0 {
			unit = 1
		}
		base = 1.0
		if ps, ok := r.pos[src]; ok {
			if pd, ok := r.pos[dest]; ok {
				base = math.Sqrt(ps.Distance2(pd)) * unit
			}
		}
		r.dist[key] = base
	}
	if r.cfg.Jitter > 0 {
		base += r.rng.NormFloat64() * r.cfg.Jitter
	}
	if base < 1 {
		base = 1
	}
	return base
}

// Due pops every packet scheduled for delivery at exactly `now`.
func (r *Router) Due(now core.Tick) []*core.LinkPacket {
	items := r.pend[now]
	delete(r.pend, now)
	out := make([]*core.LinkPacket, len(items))
	for i, it := range items {
		out[i] = it.pkt
	}
	return out
}

// Pending reports the number of packets still in flight.
func (r *Router) Pending() int {
	n := 0
	for _, q := range r.pend {
		n += len(q)
	}
	return n
}
