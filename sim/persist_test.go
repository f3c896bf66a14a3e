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

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	h := NewHost(testRouterCfg())
	a := h.AddNode(NewPosition(3, 4), core.OraclePolicy{})
	_ = h.AddNode(NewPosition(9, 2), core.NewMDSPolicy())
	h.Tick(5)

	blob, err := h.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	restored, err := RestoreHost(testRouterCfg(), blob)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored.Now() != h.Now() {
		t.Fatalf("expected restored tick %v, got %v", h.Now(), restored.Now())
	}
	if len(restored.Nodes()) != 2 {
		t.Fatalf("expected 2 restored nodes, got %d", len(restored.Nodes()))
	}
	rsn, ok := restored.Node(a.Node.ID())
	if !ok {
		t.Fatalf("expected to find restored node matching original identity")
	}
	if rsn.Pos.X() != 3 || rsn.Pos.Y() != 4 {
		t.Fatalf("expected restored position (3,4), got %s", rsn.Pos)
	}
	if rsn.Node.Policy().Name() != "oracle" {
		t.Fatalf("expected restored policy oracle, got %s", rsn.Node.Policy().Name())
	}

	coord, ok := restored.DirectoryRead(a.Node.ID())
	if !ok || coord.X != 3 || coord.Y != 4 {
		t.Fatalf("expected restored directory entry (3,4), got %v (%v)", coord, ok)
	}
}

func TestHostRestoreReplacesInPlace(t *testing.T) {
	h := NewHost(testRouterCfg())
	h.AddNode(NewPosition(1, 1), core.OraclePolicy{})
	blob, err := h.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	fresh := NewHost(testRouterCfg())
	fresh.AddNode(NewPosition(2, 2), core.OraclePolicy{})
	fresh.AddNode(NewPosition(3, 3), core.OraclePolicy{})

	restored, err := RestoreHost(testRouterCfg(), blob)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	fresh.Restore(restored)
	if len(fresh.Nodes()) != 1 {
		t.Fatalf("expected fresh host to now hold 1 node after Restore, got %d", len(fresh.Nodes()))
	}
}
