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

package sim

import (
	"encoding/json"
	"github.com/libdither/dbr-sim/core"
	"math/rand"
	"os"
)

// Random generator (deterministic) for reproducible tests
func init() {
	rand.Seed(19031962)
}

// RouterCfg configures the latency router.
type RouterCfg struct {
	Width       float64 `json:"width"`       // field width, in coordinate units
	Height      float64 `json:"height"`      // field height, in coordinate units
	NumNodes    int     `json:"numNodes"`    // initial node count
	LatencyUnit float64 `json:"latencyUnit"` // ticks per unit of coordinate distance
	Jitter      float64 `json:"jitter"`      // stddev of per-packet jitter, in ticks
	DropRate    float64 `json:"dropRate"`    // optional packet loss, off (0) by default
}

// NodeCfg controls simulated node bring-up timing.
type NodeCfg struct {
	BootupVariance int `json:"bootupVariance"` // +/- ticks jitter on node start
}

// RenderCfg options for graph export.
type RenderCfg struct {
	Mode   string `json:"mode"` // "none" or "svg"
	File   string `json:"file"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Option for CLI/runner control flags.
type Option struct {
	MaxRepeat  int  `json:"maxRepeat"`
	StopOnLoop bool `json:"stopOnLoop"`
	StopAt     int  `json:"stopAt"`
}

// Config is the full simulator configuration.
type Config struct {
	Core    *core.Config `json:"core"`
	Router  *RouterCfg   `json:"router"`
	Node    *NodeCfg     `json:"node"`
	Options *Option      `json:"options"`
	Render  *RenderCfg   `json:"render"`
}

// Cfg is the global configuration.
var Cfg = &Config{
	Core: &core.Config{
		TargetPeerCount:  8,
		MaxPendingPings:  25,
		MaxRequestPings:  5,
		RequestPingsIntv: 2000,
		AcceptWantIntv:   300,
		TrackerWindow:    10,
		RoutedSessionMax: 3,
	},
	Router: &RouterCfg{
		Width:       1000.,
		Height:      1000.,
		NumNodes:    60,
		LatencyUnit: 1.,
		Jitter:      0.,
		DropRate:    0.,
	},
	Node: &NodeCfg{
		BootupVariance: 0,
	},
	Options: &Option{
		MaxRepeat:  0,
		StopOnLoop: false,
	},
	Render: &RenderCfg{
		Mode: "none",
	},
}

// ReadConfig deserializes a configuration from a JSON file.
func ReadConfig(fn string) error {
	data, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &Cfg)
}
