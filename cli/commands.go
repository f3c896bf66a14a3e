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
	"fmt"
	"math/rand"
	"strconv"

	"github.com/libdither/dbr-sim/core"
	"github.com/libdither/dbr-sim/sim"
	"github.com/libdither/dbr-sim/sim/store"
)

//----------------------------------------------------------------------
// add / del
//----------------------------------------------------------------------

func (c *Controller) cmdAdd(args []string) error {
	policy := core.CoordPolicy(core.OraclePolicy{})
	x, y := rand.Float64()*sim.Cfg.Router.Width, rand.Float64()*sim.Cfg.Router.Height
	i := 0
	if len(args) > 0 && (args[0] == "oracle" || args[0] == "mds") {
		if args[0] == "mds" {
			policy = core.NewMDSPolicy()
		}
		i = 1
	}
	if len(args) >= i+2 {
		var err error
		if x, err = strconv.ParseFloat(args[i], 64); err != nil {
			return fmt.Errorf("bad x: %w", err)
		}
		if y, err = strconv.ParseFloat(args[i+1], 64); err != nil {
			return fmt.Errorf("bad y: %w", err)
		}
	}
	sn := c.Host.AddNode(sim.NewPosition(x, y), policy)
	fmt.Fprintf(c.Out, "added node #%d %s at %s\n", sn.ID(), sn.Node.ID(), sn.Pos)
	return nil
}

func (c *Controller) cmdDel(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: del <addr>")
	}
	sn, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	c.Host.DelNode(sn.Node.ID())
	fmt.Fprintf(c.Out, "removed node #%d\n", sn.ID())
	return nil
}

//----------------------------------------------------------------------
// tick / graph
//----------------------------------------------------------------------

func (c *Controller) cmdTick(args []string) error {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad tick count: %w", err)
		}
		n = v
	}
	c.Host.Tick(n)
	fmt.Fprintf(c.Out, "now at %s\n", c.Host.Now())
	return nil
}

func (c *Controller) cmdGraph(args []string) error {
	cfg := &sim.RenderCfg{
		Mode:   "svg",
		Width:  int(sim.Cfg.Router.Width),
		Height: int(sim.Cfg.Router.Height),
	}
	if len(args) > 0 {
		cfg.File = args[0]
		c.Host.RenderSVG(cfg)
		fmt.Fprintf(c.Out, "wrote graph to %s\n", args[0])
		return nil
	}
	svg := c.Host.RenderSVGBytes(sim.Cfg.Router.Width, sim.Cfg.Router.Height)
	_, err := c.Out.Write(svg)
	return err
}

//----------------------------------------------------------------------
// list
//----------------------------------------------------------------------

func (c *Controller) cmdList(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: list {directs|peers|sessions|routes|router|all|node <addr>}")
	}
	switch args[0] {
	case "directs":
		return c.listDirects()
	case "peers":
		return c.listPeers()
	case "sessions":
		return c.listSessions()
	case "routes":
		return c.listRoutes()
	case "router":
		return c.listRouter()
	case "all":
		_ = c.listDirects()
		_ = c.listPeers()
		_ = c.listSessions()
		_ = c.listRoutes()
		return c.listRouter()
	case "node":
		if len(args) != 2 {
			return fmt.Errorf("usage: list node <addr>")
		}
		return c.cmdPrint(args[1:])
	default:
		return fmt.Errorf("unknown list target %q", args[0])
	}
}

func (c *Controller) listDirects() error {
	fmt.Fprintln(c.Out, "-- direct sessions --")
	for _, sn := range c.Host.Nodes() {
		for _, r := range sn.Node.Remotes() {
			if r.Session != nil && r.Session.Kind == core.SessionDirect {
				fmt.Fprintf(c.Out, "  #%d -> %s (%s)\n", sn.ID(), r.ID, r.State)
			}
		}
	}
	return nil
}

func (c *Controller) listPeers() error {
	fmt.Fprintln(c.Out, "-- peer sets --")
	for _, sn := range c.Host.Nodes() {
		peers := sn.Node.Peers()
		fmt.Fprintf(c.Out, "  #%d: %d peers\n", sn.ID(), len(peers))
		for _, p := range peers {
			fmt.Fprintf(c.Out, "    %s\n", p)
		}
	}
	return nil
}

func (c *Controller) listSessions() error {
	fmt.Fprintln(c.Out, "-- sessions --")
	for _, sn := range c.Host.Nodes() {
		for _, r := range sn.Node.Remotes() {
			if r.Session != nil {
				fmt.Fprintf(c.Out, "  #%d -> %s: %s\n", sn.ID(), r.ID, r.Session)
			}
		}
	}
	return nil
}

func (c *Controller) listRoutes() error {
	fmt.Fprintln(c.Out, "-- published route coordinates --")
	for _, key := range c.Host.Directory().Keys() {
		x, y, ok := c.Host.Directory().Read(key)
		if ok {
			fmt.Fprintf(c.Out, "  %s -> (%d,%d)\n", key, x, y)
		}
	}
	return nil
}

func (c *Controller) listRouter() error {
	fmt.Fprintf(c.Out, "%s\n", c.Host)
	return nil
}

//----------------------------------------------------------------------
// print
//----------------------------------------------------------------------

func (c *Controller) cmdPrint(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: print <addr>")
	}
	sn, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "%s\n", sn)
	fmt.Fprintf(c.Out, "  policy: %s\n", sn.Node.Policy().Name())
	if coord := sn.Node.Coord(); coord != nil {
		fmt.Fprintf(c.Out, "  coord: %s\n", coord)
	}
	for _, r := range sn.Node.Remotes() {
		state := "no session"
		if r.Session != nil {
			state = r.Session.String()
		}
		fmt.Fprintf(c.Out, "  remote %s [%s] peer=%v handshake=%s\n", r.ID, state, r.IsPeer, r.State)
	}
	return nil
}

//----------------------------------------------------------------------
// node <addr> ...
//----------------------------------------------------------------------

func (c *Controller) cmdNode(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: node <addr> {connect|bootstrap|notify|traverse|route} ...")
	}
	sn, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	verb, rest := args[1], args[2:]
	switch verb {
	case "connect":
		return c.nodeConnect(sn, rest)
	case "bootstrap":
		return c.nodeBootstrap(sn, rest)
	case "notify":
		return c.nodeNotify(sn, rest)
	case "traverse":
		return c.nodeTraverse(sn, rest)
	case "route":
		return c.nodeRoute(sn, rest)
	default:
		return fmt.Errorf("unknown node verb %q", verb)
	}
}

func (c *Controller) nodeConnect(sn *sim.SimNode, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: node <addr> connect <addr2>")
	}
	target, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	sn.Node.Enqueue(&core.NodeAction{Kind: core.ActConnect, Target: target.Node.ID(), Addr: target.Node.Addr()})
	fmt.Fprintf(c.Out, "queued connect #%d -> #%d\n", sn.ID(), target.ID())
	return nil
}

func (c *Controller) nodeBootstrap(sn *sim.SimNode, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: node <addr> bootstrap <addr2>")
	}
	target, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	sn.Node.Enqueue(&core.NodeAction{Kind: core.ActBootstrap, Target: target.Node.ID(), Addr: target.Node.Addr()})
	fmt.Fprintf(c.Out, "queued bootstrap #%d -> #%d\n", sn.ID(), target.ID())
	return nil
}

func (c *Controller) nodeNotify(sn *sim.SimNode, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: node <addr> notify <addr2> <kind> <val>")
	}
	target, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	sn.Node.Enqueue(&core.NodeAction{Kind: core.ActNotify, Target: target.Node.ID(), NotifyKind: args[1], NotifyVal: args[2]})
	fmt.Fprintf(c.Out, "queued notify #%d -> #%d\n", sn.ID(), target.ID())
	return nil
}

func (c *Controller) nodeTraverse(sn *sim.SimNode, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: node <addr> traverse <addr2>")
	}
	target, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	var coord *core.RouteCoord
	if tc := target.Node.Coord(); tc != nil {
		coord = tc
	}
	sn.Node.Enqueue(&core.NodeAction{Kind: core.ActConnectTraversed, Target: target.Node.ID(), Coord: coord})
	fmt.Fprintf(c.Out, "queued traverse #%d -> #%d\n", sn.ID(), target.ID())
	return nil
}

// nodeRoute is a traceroute-style diagnostic: it walks the same
// greedy forwarding rule Traverse uses without sending any packets,
// reporting each hop and how the walk ended.
func (c *Controller) nodeRoute(sn *sim.SimNode, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: node <addr> route <addr2>")
	}
	target, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	trace := c.Host.Trace(sn.Node.ID(), target.Node.ID())
	for i, hop := range trace.Hops {
		fmt.Fprintf(c.Out, "  %d: %s\n", i, hop)
	}
	outcome := "reached"
	switch trace.Outcome {
	case sim.RouteDropped:
		outcome = "dropped (local minimum)"
	case sim.RouteLooped:
		outcome = "looped"
	}
	fmt.Fprintf(c.Out, "outcome: %s\n", outcome)
	return nil
}

//----------------------------------------------------------------------
// net ...
//----------------------------------------------------------------------

const defaultSnapshotDir = "snapshots"

func (c *Controller) persistence() (store.Persistence, error) {
	return store.NewFilePersistence(defaultSnapshotDir)
}

func (c *Controller) cmdNet(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: net {save|load|cache|clear|gen N|print}")
	}
	switch args[0] {
	case "save":
		return c.netSave(args[1:])
	case "load":
		return c.netLoad(args[1:])
	case "cache":
		return c.netCache(args[1:])
	case "clear":
		return c.netClear()
	case "gen":
		return c.netGen(args[1:])
	case "print":
		return c.netPrint()
	default:
		return fmt.Errorf("unknown net subcommand %q", args[0])
	}
}

func (c *Controller) netSave(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: net save <name>")
	}
	blob, err := c.Host.Snapshot()
	if err != nil {
		return err
	}
	p, err := c.persistence()
	if err != nil {
		return err
	}
	if err := p.Save(args[0], blob); err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "saved snapshot %q (%d bytes)\n", args[0], len(blob))
	return nil
}

func (c *Controller) netLoad(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: net load <name>")
	}
	p, err := c.persistence()
	if err != nil {
		return err
	}
	blob, err := p.Load(args[0])
	if err != nil {
		return err
	}
	host, err := sim.RestoreHost(sim.Cfg.Router, blob)
	if err != nil {
		return err
	}
	c.Host.Restore(host)
	fmt.Fprintf(c.Out, "loaded snapshot %q\n", args[0])
	return nil
}

// netCache moves the process-wide route-coordinate directory onto a
// Redis-backed store, preserving
// existing entries.
func (c *Controller) netCache(args []string) error {
	addr := "localhost:6379"
	if len(args) > 0 {
		addr = args[0]
	}
	c.Host.SetDirectory(store.NewRedisDirectory(addr, "", 0))
	fmt.Fprintf(c.Out, "directory now cached via redis at %s\n", addr)
	return nil
}

func (c *Controller) netClear() error {
	for _, sn := range c.Host.Nodes() {
		c.Host.DelNode(sn.Node.ID())
	}
	fmt.Fprintln(c.Out, "network cleared")
	return nil
}

func (c *Controller) netGen(args []string) error {
	n := sim.Cfg.Router.NumNodes
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad count: %w", err)
		}
		n = v
	}
	for i := 0; i < n; i++ {
		x := rand.Float64() * sim.Cfg.Router.Width
		y := rand.Float64() * sim.Cfg.Router.Height
		c.Host.AddNode(sim.NewPosition(x, y), core.OraclePolicy{})
	}
	fmt.Fprintf(c.Out, "generated %d nodes\n", n)
	return nil
}

func (c *Controller) netPrint() error {
	fmt.Fprintf(c.Out, "%s\n", c.Host)
	return c.listRoutes()
}
