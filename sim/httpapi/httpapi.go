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

// Package httpapi is a small read-only HTTP introspection surface
// over a sim.Host: the same node listing, node detail and graph
// rendering the CLI's `list`/`print`/`graph` commands expose,
// reachable over HTTP instead of a REPL.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/libdither/dbr-sim/core"
	"github.com/libdither/dbr-sim/sim"
)

// Server wraps a mux.Router bound to one sim.Host.
type Server struct {
	host   *sim.Host
	router *mux.Router
	srv    *http.Server
}

// NewServer builds the route table for host. Routes are read-only: the
// simulator's tick loop remains the only writer of its own state.
func NewServer(host *sim.Host) *Server {
	s := &Server{host: host, router: mux.NewRouter()}
	s.router.HandleFunc("/nodes", s.handleNodes).Methods(http.MethodGet)
	s.router.HandleFunc("/node/{addr}", s.handleNode).Methods(http.MethodGet)
	s.router.HandleFunc("/graph.svg", s.handleGraph).Methods(http.MethodGet)
	return s
}

// Start begins serving on addr; cancelling ctx shuts the server down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) {
	s.srv = &http.Server{
		Handler:      s.router,
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[httpapi] server stopped: %s", err.Error())
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutCtx); err != nil {
			log.Printf("[httpapi] shutdown failed: %s", err.Error())
		}
	}()
}

//----------------------------------------------------------------------
// DTOs
//----------------------------------------------------------------------

type nodeSummary struct {
	Disp   int       `json:"disp"`
	ID     string    `json:"id"`
	Addr   uint64    `json:"addr"`
	Coord  *coordDTO `json:"coord,omitempty"`
	Peers  int       `json:"peers"`
	Policy string    `json:"policy"`
}

type coordDTO struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

type nodeDetail struct {
	nodeSummary
	PeerIDs []string `json:"peerIds"`
	Remotes int      `json:"remotes"`
}

func toSummary(sn *sim.SimNode) nodeSummary {
	s := nodeSummary{
		Disp:   sn.ID(),
		ID:     sn.Node.ID().String(),
		Addr:   uint64(sn.Node.Addr()),
		Peers:  len(sn.Node.Peers()),
		Policy: sn.Node.Policy().Name(),
	}
	if c := sn.Node.Coord(); c != nil {
		s.Coord = &coordDTO{X: c.X, Y: c.Y}
	}
	return s
}

//----------------------------------------------------------------------
// Handlers
//----------------------------------------------------------------------

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.host.Nodes()
	out := make([]nodeSummary, 0, len(nodes))
	for _, sn := range nodes {
		out = append(out, toSummary(sn))
	}
	writeJSON(w, out)
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["addr"]
	addr, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "bad address", http.StatusBadRequest)
		return
	}
	sn, ok := s.host.NodeByAddr(core.NetAddr(addr))
	if !ok {
		http.Error(w, "no such node", http.StatusNotFound)
		return
	}
	detail := nodeDetail{nodeSummary: toSummary(sn), Remotes: len(sn.Node.Remotes())}
	for _, p := range sn.Node.Peers() {
		detail.PeerIDs = append(detail.PeerIDs, p.String())
	}
	writeJSON(w, detail)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	width, height := 1000.0, 1000.0
	svg := s.host.RenderSVGBytes(width, height)
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(svg)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
