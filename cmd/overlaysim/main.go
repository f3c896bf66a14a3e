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

// Command overlaysim wires the simulator host, the interactive CLI
// and the read-only HTTP introspection surface into one binary: flag
// parsing, JSON config load, signal-driven shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/libdither/dbr-sim/cli"
	"github.com/libdither/dbr-sim/core"
	"github.com/libdither/dbr-sim/sim"
	"github.com/libdither/dbr-sim/sim/httpapi"
)

func main() {
	log.Println("overlaysim - route-coordinate overlay network simulator")

	var cfgFile, httpAddr string
	var seedNodes int
	flag.StringVar(&cfgFile, "c", "", "JSON-encoded configuration file (optional)")
	flag.StringVar(&httpAddr, "http", "", "address to serve the read-only HTTP introspection API on (optional)")
	flag.IntVar(&seedNodes, "n", 0, "number of nodes to seed at startup")
	flag.Parse()

	if cfgFile != "" {
		if err := sim.ReadConfig(cfgFile); err != nil {
			log.Fatal(err)
		}
	}
	core.SetConfiguration(sim.Cfg.Core)

	host := sim.NewHost(sim.Cfg.Router)
	host.SetListener(func(ev *core.Event) {
		log.Printf("[event] %+v", ev)
	})

	for i := 0; i < seedNodes; i++ {
		x := rand.Float64() * sim.Cfg.Router.Width
		y := rand.Float64() * sim.Cfg.Router.Height
		host.AddNode(sim.NewPosition(x, y), core.OraclePolicy{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		cancel()
	}()

	if httpAddr != "" {
		srv := httpapi.NewServer(host)
		srv.Start(ctx, httpAddr)
		log.Printf("HTTP introspection API listening on %s", httpAddr)
	}

	controller := cli.New(host, os.Stdout)
	if err := controller.Run(); err != nil {
		log.Fatal(err)
	}
}
