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

package database

import (
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"gorm.io/gorm"
)

// Txn coordinates a badger transaction and a sqlite transaction. Read-only
// transactions only open the badger side.
type Txn struct {
	db        *Database
	ballotTxn *badger.Txn
	resultTxn *gorm.DB
	nowFunc   func() time.Time
	lock      sync.Mutex
	finished  bool
	readWrite bool
}

func NewTxn(db *Database, readWrite bool) *Txn {
	t := &Txn{
		db:        db,
		readWrite: readWrite,
		nowFunc:   time.Now,
		ballotTxn: db.ballots.NewTransaction(readWrite),
	}
	if readWrite {
		t.resultTxn = db.results.Transaction()
	}
	return t
}

func (t *Txn) DB() *Database {
	return t.db
}

// Ballots returns the badger transaction
func (t *Txn) Ballots() *badger.Txn {
	return t.ballotTxn
}

// Results returns the sqlite transaction, or the plain handle for a
// read-only Txn
func (t *Txn) Results() *gorm.DB {
	if t.resultTxn == nil {
		return t.db.results.DB()
	}
	return t.resultTxn
}

// Do runs fn and commits, or rolls back if fn fails
func (t *Txn) Do(fn func(*Txn) error) error {
	if err := fn(t); err != nil {
		if err2 := t.Rollback(); err2 != nil {
			return fmt.Errorf("rollback failed: %w: original error: %w", err2, err)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// Commit records a shared commit timestamp in both stores, then commits
// badger before sqlite
func (t *Txn) Commit() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return nil
	}
	if !t.readWrite {
		return t.rollback()
	}
	if t.resultTxn != nil && t.resultTxn.Error != nil {
		_ = t.rollback()
		return fmt.Errorf("result transaction: %w", t.resultTxn.Error)
	}
	ts := t.nowFunc().UnixMilli()
	if err := t.db.updateCommitTimestamp(t, ts); err != nil {
		_ = t.rollback()
		return fmt.Errorf("failed to update commit timestamp: %w", err)
	}
	if err := t.ballotTxn.Commit(); err != nil {
		t.resultTxn.Rollback()
		t.finished = true
		return fmt.Errorf("ballot commit failed: %w", err)
	}
	if err := t.resultTxn.Commit().Error; err != nil {
		t.db.logger.Error(
			"partial commit: ballots committed, results failed",
			"error", err,
		)
		t.finished = true
		return fmt.Errorf("partial commit: result commit failed after ballot commit: %w", err)
	}
	t.finished = true
	return nil
}

func (t *Txn) Rollback() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.rollback()
}

func (t *Txn) rollback() error {
	if t.finished {
		return nil
	}
	var errs []error
	t.ballotTxn.Discard()
	if t.resultTxn != nil {
		if err := t.resultTxn.Rollback().Error; err != nil {
			errs = append(errs, fmt.Errorf("result rollback: %w", err))
		}
	}
	t.finished = true
	return errors.Join(errs...)
}

// Release rolls back an unfinished transaction and logs any failure. Use it
// in defer statements.
func (t *Txn) Release() {
	if err := t.Rollback(); err != nil {
		t.db.logger.Debug(
			"transaction release failed",
			"error", err,
			"read_write", t.readWrite,
		)
	}
}
