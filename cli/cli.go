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

// Package cli is the interactive command parser for the simulator: a
// thin collaborator over sim.Host, wired to a REPL (prompt, read line,
// dispatch, repeat) with history and line editing from
// github.com/peterh/liner.
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/libdither/dbr-sim/core"
	"github.com/libdither/dbr-sim/sim"
)

const historyFile = ".overlaysim_history"

// Controller holds the live simulator state the REPL commands operate
// on. It owns no goroutines: every command runs to completion on the
// REPL's own goroutine, so the Host is only ever driven from one
// place.
type Controller struct {
	Host *sim.Host
	Out  io.Writer
}

// New creates a Controller over host, writing command output to out.
func New(host *sim.Host, out io.Writer) *Controller {
	if out == nil {
		out = os.Stdout
	}
	return &Controller{Host: host, Out: out}
}

// Run starts the interactive REPL loop. It returns when the user
// types `exit`/`quit`, enters EOF (Ctrl-D) or Ctrl-C, or reading a line
// fails with an I/O error, which is returned. Errors from Dispatch are
// printed and the loop continues.
func (c *Controller) Run() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintln(c.Out, "overlaysim interactive shell. Type 'help' for commands, 'exit' to quit.")
	for {
		text, err := line.Prompt("overlaysim> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			break
		}
		if err != nil {
			return &fatalIOError{err}
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		line.AppendHistory(trimmed)

		if trimmed == "exit" || trimmed == "quit" {
			break
		}
		if err := c.Dispatch(trimmed); err != nil {
			fmt.Fprintln(c.Out, "error:", err)
		}
	}

	if f, err := os.Create(historyFile); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
	return nil
}

type fatalIOError struct{ err error }

func (e *fatalIOError) Error() string { return e.err.Error() }
func (e *fatalIOError) Unwrap() error { return e.err }

// Dispatch parses and executes one command line against the
// Controller's host. It is exported separately from Run so tests and
// embedders (e.g. a future scripted-batch mode) can drive commands
// without a terminal.
func (c *Controller) Dispatch(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "help", "?":
		c.printHelp()
	case "add":
		return c.cmdAdd(fields[1:])
	case "del":
		return c.cmdDel(fields[1:])
	case "tick":
		return c.cmdTick(fields[1:])
	case "graph":
		return c.cmdGraph(fields[1:])
	case "list":
		return c.cmdList(fields[1:])
	case "print":
		return c.cmdPrint(fields[1:])
	case "node":
		return c.cmdNode(fields[1:])
	case "net":
		return c.cmdNet(fields[1:])
	default:
		return fmt.Errorf("unknown command %q (try 'help')", fields[0])
	}
	return nil
}

func (c *Controller) printHelp() {
	fmt.Fprintln(c.Out, "Available commands:")
	fmt.Fprintln(c.Out, "  add [oracle|mds] [x y]          create a node")
	fmt.Fprintln(c.Out, "  del <addr>                      remove a node")
	fmt.Fprintln(c.Out, "  tick N                          advance the simulation N ticks")
	fmt.Fprintln(c.Out, "  graph [file]                    render the network graph to file (or stdout)")
	fmt.Fprintln(c.Out, "  list {directs|peers|sessions|routes|router|all|node <addr>}")
	fmt.Fprintln(c.Out, "  print <addr>                    print one node's full state")
	fmt.Fprintln(c.Out, "  node <addr> connect <addr2>")
	fmt.Fprintln(c.Out, "  node <addr> bootstrap <addr2>")
	fmt.Fprintln(c.Out, "  node <addr> notify <addr2> <kind> <val>")
	fmt.Fprintln(c.Out, "  node <addr> traverse <addr2>")
	fmt.Fprintln(c.Out, "  node <addr> route <addr2>       traceroute-style diagnostic")
	fmt.Fprintln(c.Out, "  net {save|load|cache|clear|gen N|print}")
	fmt.Fprintln(c.Out, "  exit / quit")
}

//----------------------------------------------------------------------
// addr resolution
//----------------------------------------------------------------------

func parseAddr(s string) (core.NetAddr, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return core.NetAddr(n), nil
}

func (c *Controller) resolve(s string) (*sim.SimNode, error) {
	addr, err := parseAddr(s)
	if err != nil {
		return nil, err
	}
	sn, ok := c.Host.NodeByAddr(addr)
	if !ok {
		return nil, fmt.Errorf("no such node %s", s)
	}
	return sn, nil
}
