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

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/libdither/dbr-sim/core"
	"github.com/libdither/dbr-sim/sim"
)

func testHost() *sim.Host {
	h := sim.NewHost(&sim.RouterCfg{Width: 100, Height: 100, LatencyUnit: 1})
	h.AddNode(sim.NewPosition(1, 1), core.OraclePolicy{})
	return h
}

func TestHandleNodesListsAddedNode(t *testing.T) {
	s := NewServer(testHost())
	req := httptest.NewRequest(http.MethodGet, "/nodes", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"policy": "oracle"`) {
		t.Fatalf("expected oracle policy in response, got %q", rec.Body.String())
	}
}

func TestHandleNodeNotFound(t *testing.T) {
	s := NewServer(testHost())
	req := httptest.NewRequest(http.MethodGet, "/node/12345", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleGraphServesSVG(t *testing.T) {
	s := NewServer(testHost())
	req := httptest.NewRequest(http.MethodGet, "/graph.svg", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("expected svg content type, got %q", ct)
	}
}
