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

// ForwardCandidate is one peer a Traverse packet could be handed to
// next: its identity and last known route coordinate.
type ForwardCandidate struct {
	ID    *NodeID
	Coord RouteCoord
}

// GreedyForward picks the peer among candidates whose coordinate is
// closest to dest. It returns ok=false only when there are no
// candidates at all; the local-minimum check (whether the chosen peer
// is actually the one that just handed us this packet) is the caller's
// job in StepTraverse.
func GreedyForward(dest RouteCoord, candidates []ForwardCandidate) (next *ForwardCandidate, ok bool) {
	var chosen *ForwardCandidate
	var best float64
	for i := range candidates {
		d := candidates[i].Coord.Dist2(dest)
		if chosen == nil || d < best {
			best = d
			chosen = &candidates[i]
		}
	}
	if chosen == nil {
		return nil, false
	}
	return chosen, true
}

// TraverseOutcome is the result of advancing one Traverse packet by
// one hop (StepTraverse): it reports
// either the next candidate to forward to, or that the packet has
// arrived (self is Target) or hit a local minimum and must be dropped.
type TraverseOutcome int

const (
	TraverseForward TraverseOutcome = iota
	TraverseArrived
	TraverseDropped
)

// StepTraverse evaluates one hop of Traverse delivery at selfID, given
// the packet's declared target identity and destination coordinate.
// sender is the immediate prior hop that handed us this packet (nil
// if we are originating it ourselves). A local minimum is the greedy
// choice landing back on sender, not merely "no peer closer than
// self", so a packet never bounces back the way it came.
func StepTraverse(selfID *NodeID, pkt *Traverse, sender *NodeID, candidates []ForwardCandidate) (TraverseOutcome, *ForwardCandidate) {
	if pkt.Target != nil && pkt.Target.Equal(selfID) {
		return TraverseArrived, nil
	}
	next, ok := GreedyForward(pkt.Dest, candidates)
	if !ok {
		return TraverseDropped, nil
	}
	if sender != nil && next.ID.Equal(sender) {
		return TraverseDropped, nil
	}
	return TraverseForward, next
}
