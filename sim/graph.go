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

// Render draws every live node and its session links onto c: a node
// at its (labeled) router position, an edge per direct established
// session, colored blue when the remote is a current peer and gray
// when it is merely direct.
func (h *Host) Render(c Canvas) {
	h.mu.RLock()
	nodes := make([]*SimNode, 0, len(h.nodes))
	for _, sn := range h.nodes {
		nodes = append(nodes, sn)
	}
	h.mu.RUnlock()

	for _, sn := range nodes {
		sn.Draw(c, h)
	}
}

// RenderSVG renders the current network state to an SVG file named by
// cfg.File.
func (h *Host) RenderSVG(cfg *RenderCfg) {
	c := GetCanvas(cfg)
	if c == nil {
		return
	}
	c.Open()
	c.Start()
	h.Render(c)
	c.End()
	c.Close()
}

// RenderSVGBytes renders the current network state to an in-memory SVG
// document, used by sim/httpapi's `GET /graph.svg` so the rendering
// never touches disk.
func (h *Host) RenderSVGBytes(width, height float64) []byte {
	c := NewSVGCanvas("", width, height, 10)
	c.Open()
	c.Start()
	h.Render(c)
	c.End()
	return c.Bytes()
}
