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

import "math"

// CoordSample is one observation a CoordPolicy can use to refine a
// node's own route coordinate: a neighbor's known coordinate paired
// with the measured one-way distance to it.
type CoordSample struct {
	Coord RouteCoord
	Dist  float64
}

// CoordPolicy computes or refines a node's own route coordinate from
// its neighbor samples. Two policies exist: the default Oracle policy
// (ground truth, pushed into the node by the simulator host through
// Node.SetOracleCoord, not computed by this interface)
// and an optional MDS policy that estimates a coordinate
// purely from local RTT samples, the way a deployed network without a
// ground-truth oracle would have to.
type CoordPolicy interface {
	// Name identifies the policy for CLI/logging purposes.
	Name() string
	// Refine produces a new coordinate estimate given the node's
	// current guess (may be the zero value) and its latest samples.
	// ok is false if the policy defers to an external source (Oracle).
	Refine(current RouteCoord, samples []CoordSample) (coord RouteCoord, ok bool)
}

//----------------------------------------------------------------------
// OraclePolicy
//----------------------------------------------------------------------

// OraclePolicy never computes a coordinate itself; the simulator host
// pushes the node's exact placed position in through Node.SetOracleCoord
// every tick, and a targetless ActRequestRouteCoord can also read it
// back from the simulator's process-wide directory. This is the default policy.
type OraclePolicy struct{}

func (OraclePolicy) Name() string { return "oracle" }

func (OraclePolicy) Refine(current RouteCoord, samples []CoordSample) (RouteCoord, bool) {
	return current, false
}

//----------------------------------------------------------------------
// MDSPolicy
//----------------------------------------------------------------------

// MDSPolicy estimates a node's route coordinate from neighbor samples
// alone, using an incremental spring-relaxation update (a single-node
// iteration of classical multidimensional scaling): the node is pulled
// toward or away from each neighbor's coordinate until its distance to
// that neighbor matches the measured RTT-derived distance. This is
// the alternative to OraclePolicy for experiments that do not assume a
// ground-truth coordinate source.
type MDSPolicy struct {
	// Rate is the fraction of the positional error corrected per
	// sample, in (0,1]. Smaller values converge more slowly but are
	// less sensitive to noisy single samples.
	Rate float64
}

// NewMDSPolicy returns an MDSPolicy with a conservative default rate.
func NewMDSPolicy() *MDSPolicy {
	return &MDSPolicy{Rate: 0.25}
}

func (p *MDSPolicy) Name() string { return "mds" }

func (p *MDSPolicy) Refine(current RouteCoord, samples []CoordSample) (RouteCoord, bool) {
	if len(samples) == 0 {
		return current, false
	}
	rate := p.Rate
	if rate <= 0 {
		rate = 0.25
	}
	x, y := float64(current.X), float64(current.Y)
	// several passes over the samples in floating point before the
	// single rounding below, so corrections smaller than half a unit
	// are not rounded away on every call.
	const passes = 20
	for pass := 0; pass < passes; pass++ {
		for _, s := range samples {
			dx := x - float64(s.Coord.X)
			dy := y - float64(s.Coord.Y)
			d := math.Hypot(dx, dy)
			if d < 1e-6 {
				// coincident with the neighbor: nudge along an arbitrary
				// axis so the gradient isn't degenerate next iteration.
				dx, dy, d = 1, 0, 1
			}
			err := d - s.Dist
			// unit vector away from the neighbor, scaled by the error and
			// the correction rate, matching the usual Vivaldi update rule.
			ux, uy := dx/d, dy/d
			x -= ux * err * rate
			y -= uy * err * rate
		}
	}
	return RouteCoord{X: int32(math.Round(x)), Y: int32(math.Round(y))}, true
}
