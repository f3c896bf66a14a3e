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

// Package store provides pluggable backing stores for the simulator's
// process-wide route-coordinate directory and for simulator snapshot
// persistence. It deliberately knows nothing about core.NodeID or
// core.RouteCoord: entries are addressed by opaque string keys, so the
// package stays a thin, swappable storage layer.
package store

import (
	"context"
	"fmt"
	"sync"

	redis "github.com/go-redis/redis/v8"
)

// Directory is the coordinate-directory storage contract: Read/Write a
// node's published (x, y) route coordinate by its NodeID key.
// sim.Host holds one Directory and never talks to a concrete backend
// directly.
type Directory struct {
	impl directoryImpl
}

// directoryImpl is the backend a Directory wraps. Kept unexported so
// callers always go through the uniform Directory type; the choice of
// backend stays a construction-time detail.
type directoryImpl interface {
	Read(key string) (x, y int32, ok bool)
	Write(key string, x, y int32)
	Delete(key string)
	Keys() []string
}

// NewMemDirectory returns a Directory backed by an in-process map, the
// default backend.
func NewMemDirectory() *Directory {
	return &Directory{impl: newMemDirectory()}
}

// NewRedisDirectory returns a Directory backed by a Redis server:
// addr is a "host:port" Redis endpoint, db the logical database index.
func NewRedisDirectory(addr, passwd string, db int) *Directory {
	return &Directory{impl: newRedisDirectory(addr, passwd, db)}
}

// Read returns the coordinate published for key, if any.
func (d *Directory) Read(key string) (x, y int32, ok bool) {
	return d.impl.Read(key)
}

// Write publishes a coordinate for key, overwriting any previous value.
func (d *Directory) Write(key string, x, y int32) {
	d.impl.Write(key, x, y)
}

// Delete removes key's entry, used when a node leaves the simulation.
func (d *Directory) Delete(key string) {
	d.impl.Delete(key)
}

// Keys lists every key currently published, for the CLI's `net print`
// and `list routes` commands.
func (d *Directory) Keys() []string {
	return d.impl.Keys()
}

//----------------------------------------------------------------------
// In-process map backend
//----------------------------------------------------------------------

type coord struct{ x, y int32 }

type memDirectory struct {
	mu      sync.RWMutex
	entries map[string]coord
}

func newMemDirectory() *memDirectory {
	return &memDirectory{entries: make(map[string]coord)}
}

func (m *memDirectory) Read(key string) (int32, int32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.entries[key]
	return c.x, c.y, ok
}

func (m *memDirectory) Write(key string, x, y int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = coord{x, y}
}

func (m *memDirectory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *memDirectory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	return out
}

//----------------------------------------------------------------------
// Redis backend
//----------------------------------------------------------------------

type redisDirectory struct {
	client *redis.Client
	db     int
}

func newRedisDirectory(addr, passwd string, db int) *redisDirectory {
	return &redisDirectory{
		db: db,
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: passwd,
			DB:       db,
		}),
	}
}

func (r *redisDirectory) Read(key string) (x, y int32, ok bool) {
	val, err := r.client.Get(context.Background(), key).Result()
	if err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(val, "%d,%d", &x, &y); err != nil {
		return 0, 0, false
	}
	return x, y, true
}

func (r *redisDirectory) Write(key string, x, y int32) {
	r.client.Set(context.Background(), key, fmt.Sprintf("%d,%d", x, y), 0)
}

func (r *redisDirectory) Delete(key string) {
	r.client.Del(context.Background(), key)
}

func (r *redisDirectory) Keys() []string {
	ctx := context.Background()
	var (
		out  []string
		crs  uint64
		segm []string
		err  error
	)
	for {
		segm, crs, err = r.client.Scan(ctx, crs, "*", 10).Result()
		if err != nil {
			return out
		}
		out = append(out, segm...)
		if crs == 0 {
			break
		}
	}
	return out
}
