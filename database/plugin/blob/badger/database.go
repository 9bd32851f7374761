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

// Package badger stores signed ballots in BadgerDB
package badger

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
)

// Default cache sizes for BadgerDB (in bytes)
const (
	DefaultBlockCacheSize = 64 << 20
	DefaultIndexCacheSize = 16 << 20
	DefaultGcInterval     = 5 * time.Minute
)

// BallotStoreBadger keeps ballots in badger. Nothing is persisted when no
// data dir is set.
type BallotStoreBadger struct {
	promRegistry   prometheus.Registerer
	metrics        *storeMetrics
	db             *badger.DB
	logger         *slog.Logger
	gcTicker       *time.Ticker
	gcStopCh       chan struct{}
	dataDir        string
	gcWg           sync.WaitGroup
	gcInterval     time.Duration
	blockCacheSize uint64
	indexCacheSize uint64
	gcEnabled      bool
}

// New opens the ballot store
func New(opts ...BallotStoreBadgerOptionFunc) (*BallotStoreBadger, error) {
	db := &BallotStoreBadger{
		gcEnabled:      true,
		gcInterval:     DefaultGcInterval,
		blockCacheSize: DefaultBlockCacheSize,
		indexCacheSize: DefaultIndexCacheSize,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var badgerOpts badger.Options
	if db.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
		// value log GC does not apply in memory
		db.gcEnabled = false
	} else {
		if _, err := os.Stat(db.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(db.dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(db.dataDir, "ballots")).
			WithBlockCacheSize(int64(db.blockCacheSize)). //nolint:gosec
			WithIndexCacheSize(int64(db.indexCacheSize)). //nolint:gosec
			WithCompression(options.Snappy)
	}
	badgerOpts = badgerOpts.
		WithLogger(NewBadgerLogger(db.logger)).
		// INFO is noisy
		WithLoggingLevel(badger.WARNING)
	ballotDb, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	db.db = ballotDb
	if db.promRegistry != nil {
		db.registerMetrics()
	}
	if db.gcEnabled {
		db.gcTicker = time.NewTicker(db.gcInterval)
		db.gcStopCh = make(chan struct{})
		db.gcWg.Add(1)
		go db.valueLogGc(db.gcTicker, db.gcStopCh)
	}
	return db, nil
}

func (d *BallotStoreBadger) valueLogGc(t *time.Ticker, stop <-chan struct{}) {
	defer d.gcWg.Done()
	for {
		select {
		case <-t.C:
			for {
				err := d.db.RunValueLogGC(0.5)
				if err == nil {
					// rewrote a file, try the next one
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					d.logger.Warn(
						"ballot store value log GC failed",
						"component", "database",
						"error", err,
					)
				}
				break
			}
		case <-stop:
			return
		}
	}
}

// DB returns the underlying badger handle
func (d *BallotStoreBadger) DB() *badger.DB {
	return d.db
}

// NewTransaction starts a badger transaction. The caller must Commit or
// Discard it.
func (d *BallotStoreBadger) NewTransaction(update bool) *badger.Txn {
	return d.db.NewTransaction(update)
}

func (d *BallotStoreBadger) Close() error {
	if d.gcTicker != nil {
		d.gcTicker.Stop()
		close(d.gcStopCh)
		d.gcWg.Wait()
		d.gcTicker = nil
	}
	return d.db.Close()
}
