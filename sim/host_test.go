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
	"testing"

	"github.com/libdither/dbr-sim/core"
)

func testRouterCfg() *RouterCfg {
	return &RouterCfg{Width: 100, Height: 100, LatencyUnit: 1}
}

func TestHostAddAndDelNode(t *testing.T) {
	h := NewHost(testRouterCfg())
	sn := h.AddNode(NewPosition(1, 1), core.OraclePolicy{})
	if len(h.Nodes()) != 1 {
		t.Fatalf("expected 1 node, got %d", len(h.Nodes()))
	}
	if _, ok := h.NodeByAddr(sn.Node.Addr()); !ok {
		t.Fatalf("expected to resolve node by address")
	}
	if !h.DelNode(sn.Node.ID()) {
		t.Fatalf("expected DelNode to succeed")
	}
	if len(h.Nodes()) != 0 {
		t.Fatalf("expected 0 nodes after delete, got %d", len(h.Nodes()))
	}
}

func TestHostDirectoryTracksOracleCoord(t *testing.T) {
	h := NewHost(testRouterCfg())
	sn := h.AddNode(NewPosition(5, 7), core.OraclePolicy{})
	coord, ok := h.DirectoryRead(sn.Node.ID())
	if !ok || coord.X != 5 || coord.Y != 7 {
		t.Fatalf("expected directory to hold (5,7), got %v (%v)", coord, ok)
	}
}

func TestHostTickAdvancesClock(t *testing.T) {
	h := NewHost(testRouterCfg())
	h.Tick(3)
	if h.Now() != core.Tick(3) {
		t.Fatalf("expected tick 3, got %v", h.Now())
	}
}

func TestHostTwoNodeBootstrap(t *testing.T) {
	h := NewHost(testRouterCfg())
	n0 := h.AddNode(NewPosition(0, 0), core.OraclePolicy{})
	n1 := h.AddNode(NewPosition(3, 4), core.OraclePolicy{})

	n1.Node.Enqueue(&core.NodeAction{
		Kind: core.ActBootstrap, Target: n0.Node.ID(), Addr: n0.Node.Addr(),
	})
	h.Tick(120)

	r01, ok := n0.Node.Remote(n1.Node.ID())
	if !ok || r01.Session == nil {
		t.Fatalf("expected n0 to hold a session with n1")
	}
	r10, ok := n1.Node.Remote(n0.Node.ID())
	if !ok || r10.Session == nil {
		t.Fatalf("expected n1 to hold a session with n0")
	}
	if r01.Session.ID != r10.Session.ID {
		t.Fatalf("expected both nodes to share one session id, got %s / %s", r01.Session.ID, r10.Session.ID)
	}
	if r01.Dist() <= 0 || r10.Dist() <= 0 {
		t.Fatalf("expected both trackers seeded, got %v / %v", r01.Dist(), r10.Dist())
	}
	if !r01.IsPeer || !r10.IsPeer {
		t.Fatalf("expected each node to elect the other as a peer")
	}
	if n0.Node.Coord() == nil || n1.Node.Coord() == nil {
		t.Fatalf("expected both nodes to have oracle coordinates")
	}
}

func TestHostTraceDropsWithoutPeers(t *testing.T) {
	h := NewHost(testRouterCfg())
	a := h.AddNode(NewPosition(0, 0), core.OraclePolicy{})
	b := h.AddNode(NewPosition(1, 1), core.OraclePolicy{})

	trace := h.Trace(a.Node.ID(), b.Node.ID())
	if trace.Outcome != RouteDropped {
		t.Fatalf("expected a route with no peers yet to drop immediately, got %v", trace.Outcome)
	}
}
