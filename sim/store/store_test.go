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

package store

import "testing"

func TestMemDirectoryReadWrite(t *testing.T) {
	d := NewMemDirectory()
	if _, _, ok := d.Read("a"); ok {
		t.Fatalf("expected miss on empty directory")
	}
	d.Write("a", 10, -20)
	x, y, ok := d.Read("a")
	if !ok || x != 10 || y != -20 {
		t.Fatalf("expected (10,-20), got (%d,%d,%v)", x, y, ok)
	}
}

func TestMemDirectoryOverwriteAndDelete(t *testing.T) {
	d := NewMemDirectory()
	d.Write("a", 1, 1)
	d.Write("a", 2, 2)
	x, y, ok := d.Read("a")
	if !ok || x != 2 || y != 2 {
		t.Fatalf("expected overwritten value (2,2), got (%d,%d,%v)", x, y, ok)
	}
	d.Delete("a")
	if _, _, ok := d.Read("a"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestMemDirectoryKeys(t *testing.T) {
	d := NewMemDirectory()
	d.Write("a", 0, 0)
	d.Write("b", 0, 0)
	keys := d.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

func TestFilePersistenceRoundTrip(t *testing.T) {
	p, err := NewFilePersistence(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blob := []byte("opaque-snapshot-bytes")
	if err := p.Save("slot-a", blob); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := p.Load("slot-a")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if string(got) != string(blob) {
		t.Fatalf("expected round-tripped blob to match")
	}
	names, err := p.List()
	if err != nil || len(names) != 1 || names[0] != "slot-a" {
		t.Fatalf("expected [slot-a], got %v (err=%v)", names, err)
	}
}
