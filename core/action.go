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

import "fmt"

// ActionKind tags the variant of a deferred NodeAction.
type ActionKind int

const (
	ActBootstrap           ActionKind = iota // seed the peer set from a known NetAddr
	ActConnect                               // begin a Direct-session handshake
	ActUpdateRemote                          // refresh Addr/Coord bookkeeping for a remote
	ActCalcRouteCoord                        // (re)compute our own route coordinate
	ActCalculatePeers                        // re-evaluate the peer set against TargetPeerCount
	ActExchangeInformation                   // send ExchangeInfo to a newly established session
	ActNotify                                // deliver a Notify to Target by route coordinate
	ActRequestRouteCoord                     // ask the simulator-intrinsic directory for a coord
	ActConnectTraversed                      // begin a Traversed-session handshake
	ActConnectRouted                         // begin a Routed (onion) session handshake
	ActPacket                                // send an application payload over an existing session
)

func (k ActionKind) String() string {
	switch k {
	case ActBootstrap:
		return "bootstrap"
	case ActConnect:
		return "connect"
	case ActUpdateRemote:
		return "update-remote"
	case ActCalcRouteCoord:
		return "calc-route-coord"
	case ActCalculatePeers:
		return "calculate-peers"
	case ActExchangeInformation:
		return "exchange-information"
	case ActNotify:
		return "notify"
	case ActRequestRouteCoord:
		return "request-route-coord"
	case ActConnectTraversed:
		return "connect-traversed"
	case ActConnectRouted:
		return "connect-routed"
	case ActPacket:
		return "packet"
	default:
		return "unknown"
	}
}

// ConditionKind tags what a Condition action waits on before releasing
// its wrapped action into the queue.
type ConditionKind int

const (
	// CondSession waits until a live Session exists with Who.
	CondSession ConditionKind = iota
	// CondRemoteRouteCoord waits until Who has a known RouteCoord.
	CondRemoteRouteCoord
	// CondRunAt waits until the engine's tick reaches At.
	CondRunAt
)

// Condition gates an inner NodeAction behind a predicate, staying
// queued (ahead of anything pushed later) each tick it is not yet
// satisfied.
type Condition struct {
	Kind  ConditionKind
	Who   *NodeID // used by CondSession / CondRemoteRouteCoord
	At    Tick    // used by CondRunAt
	Inner *NodeAction
}

// Satisfied reports whether the condition currently holds, given the
// engine's view of remotes and the current tick.
func (c *Condition) Satisfied(now Tick, remotes map[string]*RemoteNode) bool {
	switch c.Kind {
	case CondSession:
		r, ok := remotes[c.Who.Key()]
		return ok && r.Session != nil
	case CondRemoteRouteCoord:
		r, ok := remotes[c.Who.Key()]
		return ok && r.Coord != nil
	case CondRunAt:
		return !now.Before(c.At)
	default:
		return true
	}
}

// NodeAction is one deferred unit of work in a Node's action queue.
// Which of the typed payload fields are set depends on Kind.
type NodeAction struct {
	Kind ActionKind

	// Addressing / bootstrap payloads
	Target *NodeID
	Addr   NetAddr

	// ActRequestRouteCoord / ActCalcRouteCoord carry no extra payload.

	// ActConnectTraversed / ActUpdateRemote: a coordinate payload,
	// meaning varies by Kind.
	Coord *RouteCoord

	// ActConnectRouted
	Chain []*NodeID

	// ActPacket
	Payload []byte

	// ActNotify
	NotifyKind string
	NotifyVal  any

	// ActConnect / ActBootstrap: packets to carry on the ConnectionInit,
	// the application data a Connect/Bootstrap/WantPing reply
	// piggy-backs onto the handshake.
	InitPackets []NodePacket

	// ActUpdateRemote: the remote's most recently reported direct
	// session count, folded into peer-selection bookkeeping.
	DirectCount int

	// ActUpdateRemote: the remote's self-reported distance estimate to
	// us, folded into the reverse (remote -> self) tracker edge.
	RemoteDist float64

	// set only when Kind conceptually wraps a Condition; the queue
	// stores Condition values directly rather than nesting them here,
	// see ActionQueue.PushConditional.
}

func (a *NodeAction) String() string {
	if a.Target != nil {
		return fmt.Sprintf("Action{%s %s}", a.Kind, a.Target)
	}
	return fmt.Sprintf("Action{%s}", a.Kind)
}

//----------------------------------------------------------------------
// ActionQueue
//----------------------------------------------------------------------

// queueItem is either a ready NodeAction or a Condition gating one.
type queueItem struct {
	action *NodeAction
	cond   *Condition
}

// ActionQueue is the FIFO queue a Node engine drains once per tick.
// Conditions that are not yet satisfied stay queued in their original
// order, ahead of anything pushed after the drain, while every ready
// action behind them still runs this tick.
type ActionQueue struct {
	items []queueItem
}

// NewActionQueue creates an empty queue.
func NewActionQueue() *ActionQueue {
	return &ActionQueue{}
}

// Push enqueues a ready action.
func (q *ActionQueue) Push(a *NodeAction) {
	q.items = append(q.items, queueItem{action: a})
}

// PushConditional enqueues an action gated behind cond.
func (q *ActionQueue) PushConditional(cond *Condition) {
	q.items = append(q.items, queueItem{cond: cond})
}

// Len reports the number of outstanding items.
func (q *ActionQueue) Len() int {
	return len(q.items)
}

// Drain removes and returns every action ready to run this tick, in
// FIFO order, leaving unsatisfied conditions queued for a later tick.
func (q *ActionQueue) Drain(now Tick, remotes map[string]*RemoteNode) []*NodeAction {
	var ready []*NodeAction
	var deferred []queueItem
	for _, it := range q.items {
		switch {
		case it.action != nil:
			ready = append(ready, it.action)
		case it.cond != nil && it.cond.Satisfied(now, remotes):
			ready = append(ready, it.cond.Inner)
		default:
			deferred = append(deferred, it)
		}
	}
	q.items = deferred
	return ready
}
