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

import "github.com/libdither/dbr-sim/core"

// RouteOutcome classifies how a traceroute attempt ended.
type RouteOutcome int

const (
	RouteReached RouteOutcome = iota
	RouteDropped              // hit a local minimum
	RouteLooped               // revisited a node (bounded-hop safety net)
)

// RouteTrace is the result of walking the same greedy, coordinate-
// distance forwarding rule Traverse uses, without actually
// sending packets; used for diagnostics, not delivery.
type RouteTrace struct {
	Hops    []*core.NodeID
	Outcome RouteOutcome
}

// Trace walks from start toward target's last known coordinate,
// picking at each step the closest-known peer to target, exactly as
// GreedyForward would, bounded by the number of nodes in the host (a
// route can never need more hops than that without looping).
func (h *Host) Trace(start, target *core.NodeID) *RouteTrace {
	h.mu.RLock()
	limit := len(h.nodes)
	h.mu.RUnlock()

	targetSN, ok := h.Node(target)
	if !ok {
		return &RouteTrace{Outcome: RouteDropped}
	}
	dest := core.RouteCoord{X: int32(targetSN.Pos.x), Y: int32(targetSN.Pos.y)}

	visited := make(map[string]bool)
	trace := &RouteTrace{}
	cur := start
	for i := 0; i <= limit; i++ {
		trace.Hops = append(trace.Hops, cur)
		if cur.Equal(target) {
			trace.Outcome = RouteReached
			return trace
		}
		key := cur.Key()
		if visited[key] {
			trace.Outcome = RouteLooped
			return trace
		}
		visited[key] = true

		sn, ok := h.Node(cur)
		if !ok {
			trace.Outcome = RouteDropped
			return trace
		}
		var candidates []core.ForwardCandidate
		for _, p := range sn.Node.Peers() {
			rem, ok := sn.Node.Remote(p)
			if ok && rem.Coord != nil {
				candidates = append(candidates, core.ForwardCandidate{ID: rem.ID, Coord: *rem.Coord})
			}
		}
		next, ok := core.GreedyForward(dest, candidates)
		if !ok {
			trace.Outcome = RouteDropped
			return trace
		}
		cur = next.ID
	}
	trace.Outcome = RouteLooped
	return trace
}
