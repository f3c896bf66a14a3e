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

package store

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Persistence stores and retrieves the opaque snapshot blob a
// sim.Host.Snapshot/RestoreHost pair produces and consumes. name slots multiple save
// points, the way the CLI's `net save <name>`/`net load <name>`
// subcommands expect.
type Persistence interface {
	Save(name string, blob []byte) error
	Load(name string) ([]byte, error)
	List() ([]string, error)
}

//----------------------------------------------------------------------
// File-backed persistence (default path)
//----------------------------------------------------------------------

// FilePersistence stores each named snapshot as a flat file under dir,
// the default persistence path: the blob written is exactly the one
// sim.Host.Snapshot produced, with no extra framing.
type FilePersistence struct {
	dir string
}

// NewFilePersistence creates a FilePersistence rooted at dir, creating
// it if necessary.
func NewFilePersistence(dir string) (*FilePersistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FilePersistence{dir: dir}, nil
}

func (f *FilePersistence) path(name string) string {
	return fmt.Sprintf("%s/%s.snap", f.dir, name)
}

// Save writes blob to name's file, truncating any previous content.
func (f *FilePersistence) Save(name string, blob []byte) error {
	return os.WriteFile(f.path(name), blob, 0644)
}

// Load reads back the blob previously saved under name.
func (f *FilePersistence) Load(name string) ([]byte, error) {
	return os.ReadFile(f.path(name))
}

// List enumerates the save slots present under dir.
func (f *FilePersistence) List() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > 5 && name[len(name)-5:] == ".snap" {
			out = append(out, name[:len(name)-5])
		}
	}
	return out, nil
}

//----------------------------------------------------------------------
// SQLite-backed persistence
//----------------------------------------------------------------------

// SQLitePersistence stores the same opaque blob FilePersistence writes
// to disk in a `snapshots` table instead, giving multiple named save
// slots inside one database file rather than one file per slot. A
// thin database/sql wrapper around github.com/mattn/go-sqlite3.
type SQLitePersistence struct {
	db *sql.DB
}

// NewSQLitePersistence opens (creating if needed) a sqlite3 database at
// path and ensures the snapshots table exists.
func NewSQLitePersistence(path string) (*SQLitePersistence, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	const schema = `create table if not exists snapshots (
		name text primary key,
		data blob not null,
		updated_at integer not null
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLitePersistence{db: db}, nil
}

// Save upserts blob under name.
func (s *SQLitePersistence) Save(name string, blob []byte) error {
	_, err := s.db.Exec(
		`insert into snapshots(name, data, updated_at) values (?, ?, ?)
		 on conflict(name) do update set data = excluded.data, updated_at = excluded.updated_at`,
		name, blob, time.Now().Unix())
	return err
}

// Load fetches the blob stored under name.
func (s *SQLitePersistence) Load(name string) ([]byte, error) {
	var blob []byte
	row := s.db.QueryRow("select data from snapshots where name = ?", name)
	if err := row.Scan(&blob); err != nil {
		return nil, err
	}
	return blob, nil
}

// List enumerates every save slot in the database.
func (s *SQLitePersistence) List() ([]string, error) {
	rows, err := s.db.Query("select name from snapshots order by updated_at desc")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLitePersistence) Close() error {
	return s.db.Close()
}
