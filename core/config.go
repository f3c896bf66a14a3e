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

// Config holds the protocol-level constants for the route-coordinate
// overlay engine.
type Config struct {
	TargetPeerCount  int `json:"targetPeerCount"`   // max. size of a node's peer set
	MaxPendingPings  int `json:"maxPendingPings"`   // bound on the session tracker's ping queue
	MaxRequestPings  int `json:"maxRequestPings"`   // cap on RequestPings' requested count
	RequestPingsIntv int `json:"requestPingsIntv"`  // rate-limit window for RequestPings, in ticks
	AcceptWantIntv   int `json:"acceptWantIntv"`    // rate-limit window for AcceptWantPing, in ticks
	TrackerWindow    int `json:"trackerWindow"`     // moving-average window for the distance tracker
	RoutedSessionMax int `json:"routedSessionHops"` // max proxy-chain length for ConnectRouted
}

// cfg is the package-local configuration with its default values.
var cfg = &Config{
	TargetPeerCount:  8,
	MaxPendingPings:  25,
	MaxRequestPings:  5,
	RequestPingsIntv: 2000,
	AcceptWantIntv:   300,
	TrackerWindow:    10,
	RoutedSessionMax: 3,
}

// SetConfiguration installs c as the active configuration, before any
// node is constructed. Zero/negative fields keep their default.
func SetConfiguration(c *Config) {
	if c.TargetPeerCount > 0 {
		cfg.TargetPeerCount = c.TargetPeerCount
	}
	if c.MaxPendingPings > 0 {
		cfg.MaxPendingPings = c.MaxPendingPings
	}
	if c.MaxRequestPings > 0 {
		cfg.MaxRequestPings = c.MaxRequestPings
	}
	if c.RequestPingsIntv > 0 {
		cfg.RequestPingsIntv = c.RequestPingsIntv
	}
	if c.AcceptWantIntv > 0 {
		cfg.AcceptWantIntv = c.AcceptWantIntv
	}
	if c.TrackerWindow > 0 {
		cfg.TrackerWindow = c.TrackerWindow
	}
	if c.RoutedSessionMax > 0 {
		cfg.RoutedSessionMax = c.RoutedSessionMax
	}
}

// Configuration returns a copy of the active configuration.
func Configuration() Config {
	return *cfg
}
