// rnaseq: an RNA-Seq alignment, quantification and aggregation pipeline.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/rnaseq/blob/master/LICENSE.txt>.

package config

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/exascience/rnaseq/internal"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultStorePath returns the default location of the option store.
func DefaultStorePath() string {
	return filepath.Join(os.Getenv("HOME"), ".rnaseq", "rnaseq.sqlite")
}

// A Store persists option values and the run history in a SQLite
// database.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens the option store at path, creating the database and
// its tables when they do not exist yet.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultStorePath()
	}
	path, err := internal.FullPathname(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS pipelineconfig (
		optionname TEXT PRIMARY KEY,
		optionvalue TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create pipelineconfig table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		started TEXT NOT NULL,
		finished TEXT NOT NULL,
		status TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close the store.
func (s *Store) Close() error { return s.db.Close() }

// Values returns all stored option values.
func (s *Store) Values() (values map[string]string, err error) {
	rows, err := s.db.Query(`SELECT optionname, optionvalue FROM pipelineconfig`)
	if err != nil {
		return nil, fmt.Errorf("select options: %w", err)
	}
	defer func() { _ = rows.Close() }()
	values = make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		values[name] = value
	}
	return values, rows.Err()
}

// Set validates value and stores it for the named option.
func (s *Store) Set(name, value string) error {
	value, err := Validate(name, value)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`INSERT INTO pipelineconfig(optionname, optionvalue) VALUES(?, ?)
		ON CONFLICT(optionname) DO UPDATE SET optionvalue=excluded.optionvalue`, name, value); err != nil {
		return fmt.Errorf("upsert %v: %w", name, err)
	}
	return nil
}

// Unset removes the stored value of the named option.
func (s *Store) Unset(name string) error {
	if _, ok := Lookup(name); !ok {
		return &InvalidOptionError{Option: name, Reason: "unknown option"}
	}
	if _, err := s.db.Exec(`DELETE FROM pipelineconfig WHERE optionname = ?`, name); err != nil {
		return fmt.Errorf("delete %v: %w", name, err)
	}
	return nil
}

// Load resolves the stored values into a Config.
func (s *Store) Load() (*Config, error) {
	values, err := s.Values()
	if err != nil {
		return nil, err
	}
	return Resolve(values)
}

// WriteOptions prints every option with its stored value, or its
// default in parentheses when it is not stored.
func (s *Store) WriteOptions(w io.Writer) error {
	values, err := s.Values()
	if err != nil {
		return err
	}
	for _, option := range Schema {
		value, ok := values[option.Name]
		if !ok {
			value = "(" + option.Default + ")"
		}
		if _, err := fmt.Fprintf(w, "[%v]: %v\t%v\n", option.Name, value, option.Description); err != nil {
			return err
		}
		delete(values, option.Name)
	}
	var unknown []string
	for name := range values {
		unknown = append(unknown, name)
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		if _, err := fmt.Fprintf(w, "[%v]: %v\tunknown option\n", name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// A Run is one entry of the run history.
type Run struct {
	ID                string
	Command           string
	Started, Finished time.Time
	Status            string
}

// RecordRun adds or replaces a run history entry.
func (s *Store) RecordRun(run Run) error {
	if _, err := s.db.Exec(`INSERT INTO runs(id, command, started, finished, status) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET finished=excluded.finished, status=excluded.status`,
		run.ID, run.Command, run.Started.UTC().Format(time.RFC3339Nano), run.Finished.UTC().Format(time.RFC3339Nano), run.Status); err != nil {
		return fmt.Errorf("record run %v: %w", run.ID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(limit int) (runs []Run, err error) {
	rows, err := s.db.Query(`SELECT id, command, started, finished, status FROM runs ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var run Run
		var started, finished string
		if err := rows.Scan(&run.ID, &run.Command, &started, &finished, &run.Status); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if run.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, err
		}
		if run.Finished, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
