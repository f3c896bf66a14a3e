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

// LinkPacket is what actually travels on the simulated wire between two
// NetAddrs: a sender identity, a session tag (zero before a session is
// established) and the opaque NodePacket payload it carries.
type LinkPacket struct {
	Src     NetAddr
	Dest    NetAddr
	Sender  *NodeID
	Session SessionID // zero while handshaking
	Payload NodePacket
	Request bool // true if this packet expects a reply (used by simulator-intrinsic calls)
}

func (l *LinkPacket) String() string {
	return fmt.Sprintf("LinkPacket{%s->%s %s}", l.Src, l.Dest, l.Payload)
}

// Notify is an application-level signal routed to a specific recipient
// by coordinate, the way the CLI's `node notify` command delivers
// arbitrary data to another node without an established session. It
// travels as a Traverse payload like any
// other NodePacket; on arrival it is surfaced to the observer rather
// than dispatched to a session handler.
type Notify struct {
	Recipient  *NodeID
	From       *NodeID
	NotifyKind string
	Val        any
}

func (n *Notify) Kind() int { return PktNotify }

func (n *Notify) String() string {
	return fmt.Sprintf("Notify{->%s %s}", n.Recipient, n.NotifyKind)
}
