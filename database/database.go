// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package database persists admitted ballots in badger and indexes built
// vote results in sqlite
package database

import (
	"errors"
	"io"
	"log/slog"

	"github.com/blinklabs-io/offvote/database/plugin/blob/badger"
	"github.com/blinklabs-io/offvote/database/plugin/metadata/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// DataDir holds both stores. Empty keeps everything in memory.
	DataDir string
}

type Database struct {
	logger  *slog.Logger
	ballots *badger.BallotStoreBadger
	results *sqlite.ResultStoreSqlite
	dataDir string
}

// New opens both stores under the configured data dir. If the stores
// disagree on their last commit the database is returned along with a
// CommitTimestampError.
func New(cfg Config) (*Database, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	ballots, err := badger.New(
		badger.WithLogger(logger),
		badger.WithDataDir(cfg.DataDir),
		badger.WithPromRegistry(cfg.PromRegistry),
	)
	if err != nil {
		return nil, err
	}
	results, err := sqlite.New(
		sqlite.WithLogger(logger),
		sqlite.WithDataDir(cfg.DataDir),
		sqlite.WithPromRegistry(cfg.PromRegistry),
	)
	if err != nil {
		if results != nil {
			_ = results.Close()
		}
		_ = ballots.Close()
		return nil, err
	}
	db := &Database{
		logger:  logger.With("component", "database"),
		ballots: ballots,
		results: results,
		dataDir: cfg.DataDir,
	}
	if err := db.checkCommitTimestamp(); err != nil {
		return db, err
	}
	return db, nil
}

// Ballots returns the underlying ballot store
func (d *Database) Ballots() *badger.BallotStoreBadger {
	return d.ballots
}

// Results returns the underlying result store
func (d *Database) Results() *sqlite.ResultStoreSqlite {
	return d.results
}

func (d *Database) DataDir() string {
	return d.dataDir
}

func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Transaction starts a transaction spanning both stores
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

func (d *Database) Close() error {
	return errors.Join(
		d.results.Close(),
		d.ballots.Close(),
	)
}
