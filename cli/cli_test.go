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

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/libdither/dbr-sim/sim"
)

func newTestController() (*Controller, *bytes.Buffer) {
	host := sim.NewHost(&sim.RouterCfg{Width: 100, Height: 100, LatencyUnit: 1})
	var out bytes.Buffer
	return New(host, &out), &out
}

func TestDispatchAddAndList(t *testing.T) {
	c, out := newTestController()
	if err := c.Dispatch("add oracle 10 10"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !strings.Contains(out.String(), "added node") {
		t.Fatalf("expected confirmation output, got %q", out.String())
	}
	out.Reset()

	if err := c.Dispatch("list peers"); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out.String(), "#0") {
		t.Fatalf("expected node #0 listed, got %q", out.String())
	}
}

func TestDispatchTickAdvancesClock(t *testing.T) {
	c, out := newTestController()
	if err := c.Dispatch("tick 4"); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if !strings.Contains(out.String(), "tick#4") {
		t.Fatalf("expected tick confirmation, got %q", out.String())
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	c, _ := newTestController()
	if err := c.Dispatch("bogus"); err == nil {
		t.Fatalf("expected an error for an unknown command")
	}
}

func TestDispatchDelUnknownNode(t *testing.T) {
	c, _ := newTestController()
	if err := c.Dispatch("del 999"); err == nil {
		t.Fatalf("expected an error deleting a non-existent node")
	}
}
