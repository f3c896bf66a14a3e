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
)

// SimNode is a core.Node placed at a physical Position in the field,
// with a small integer id for display.
type SimNode struct {
	*core.Node
	id  int
	Pos *Position
}

// NewSimNode wraps a freshly created core.Node with its simulated
// physical position.
func NewSimNode(id int, node *core.Node, pos *Position) *SimNode {
	return &SimNode{Node: node, id: id, Pos: pos}
}

// ID returns the short display identifier for the node.
func (n *SimNode) ID() int {
	return n.id
}

func (n *SimNode) String() string {
	if n == nil {
		return "SimNode{nil}"
	}
	return fmt.Sprintf("SimNode{#%d %s @ %s}", n.id, n.Node.ID(), n.Pos)
}

// Draw renders the node and its session links on a Canvas: one edge
// per direct, established session, drawn blue when the remote is a
// current peer and gray when it is merely direct.
func (n *SimNode) Draw(c Canvas, host *Host) {
	c.Circle(n.Pos.x, n.Pos.y, 2, 0, nil, ClrRed)
	c.Text(n.Pos.x, n.Pos.y+3, 3, n.Node.ID().String(), "middle")
	for _, r := range n.Node.Remotes() {
		if r.Session == nil || r.Session.Kind != core.SessionDirect {
			continue
		}
		other := host.byID(r.ID)
		if other == nil {
			continue
		}
		clr := ClrGray
		if r.IsPeer {
			clr = ClrBlue
		}
		c.Line(n.Pos.x, n.Pos.y, other.Pos.x, other.Pos.y, 0.5, clr)
	}
}
