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

// pendingPing is one outstanding round-trip probe, ordered by send time
// so the oldest can be evicted first once the tracker is at capacity.
type pendingPing struct {
	id   PingID
	sent Tick
}

// Tracker measures round-trip latency to one remote and keeps a moving
// average of the one-way distance derived from it. Each
// RemoteNode owns exactly one Tracker.
type Tracker struct {
	pending []pendingPing // FIFO by send time; pending[0] is oldest
	max     int           // bound on len(pending), from Config.MaxPendingPings

	distAvg float64 // moving average of one-way distance (rtt/2)
	window  int     // averaging window, from Config.TrackerWindow
	samples int     // number of samples folded into distAvg so far
}

// NewTracker creates a Tracker using the active configuration's bounds.
func NewTracker() *Tracker {
	return &Tracker{
		max:    cfg.MaxPendingPings,
		window: cfg.TrackerWindow,
	}
}

// GenPing records a freshly sent ping and returns its id. If the
// pending queue is already at capacity, the oldest entry is evicted
// first and presumed lost.
func (t *Tracker) GenPing(now Tick) PingID {
	if len(t.pending) >= t.max {
		t.pending = t.pending[1:]
	}
	id := NewPingID()
	t.pending = append(t.pending, pendingPing{id: id, sent: now})
	return id
}

// AcknowledgePing matches an incoming pong against the pending queue,
// folds the observed one-way distance (rtt/2) into the moving average,
// and removes the matched entry (and anything older than it, which is
// now presumed lost).
func (t *Tracker) AcknowledgePing(id PingID, now Tick) (dist float64, err error) {
	idx := -1
	for i, p := range t.pending {
		if p.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, ErrPingUnknown
	}
	rtt := t.pending[idx].sent.Elapsed(now)
	dist = float64(rtt) / 2
	t.pending = t.pending[idx+1:]
	t.fold(dist)
	return dist, nil
}

// fold updates the moving average with a new sample using a simple
// windowed running mean, so no full sample history is kept.
func (t *Tracker) fold(sample float64) {
	if t.samples == 0 {
		t.distAvg = sample
		t.samples = 1
		return
	}
	n := t.samples
	if n > t.window {
		n = t.window
	}
	t.distAvg = (t.distAvg*float64(n) + sample) / float64(n+1)
	t.samples++
}

// RecordExternal folds a distance sample observed indirectly, as a
// field on another packet (ExchangeInfo, AcceptWantPing) rather than
// our own ping round trip, into the moving average the same way a
// direct measurement would be.
func (t *Tracker) RecordExternal(dist float64) {
	t.fold(dist)
}

// Distance returns the current moving-average one-way distance
// estimate, or -1 if no sample has been folded yet.
func (t *Tracker) Distance() float64 {
	if t.samples == 0 {
		return -1
	}
	return t.distAvg
}

// Pending returns the number of outstanding pings.
func (t *Tracker) Pending() int {
	return len(t.pending)
}
