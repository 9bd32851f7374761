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

import "fmt"

type CommitTimestampError struct {
	ResultTimestamp int64
	BallotTimestamp int64
}

func (e CommitTimestampError) Error() string {
	return fmt.Sprintf(
		"commit timestamp mismatch: %d (results) != %d (ballots)",
		e.ResultTimestamp,
		e.BallotTimestamp,
	)
}

func (d *Database) checkCommitTimestamp() error {
	resultTimestamp, err := d.results.GetCommitTimestamp()
	if err != nil {
		return fmt.Errorf("failed to get result store commit timestamp: %w", err)
	}
	// nothing committed yet
	if resultTimestamp <= 0 {
		return nil
	}
	ballotTimestamp, err := d.ballots.GetCommitTimestamp()
	if err != nil {
		return fmt.Errorf("failed to get ballot store commit timestamp: %w", err)
	}
	if ballotTimestamp != resultTimestamp {
		return CommitTimestampError{
			ResultTimestamp: resultTimestamp,
			BallotTimestamp: ballotTimestamp,
		}
	}
	return nil
}

func (d *Database) updateCommitTimestamp(txn *Txn, timestamp int64) error {
	if err := d.results.SetCommitTimestamp(txn.resultTxn, timestamp); err != nil {
		return err
	}
	return d.ballots.SetCommitTimestamp(txn.ballotTxn, timestamp)
}

// RecoverCommitTimestamp realigns the stores after an interrupted commit.
// Ballots stay as they are; a result that did not commit is rebuilt on the
// next request.
func (d *Database) RecoverCommitTimestamp() error {
	if err := d.Transaction(true).Do(func(*Txn) error { return nil }); err != nil {
		return err
	}
	return d.checkCommitTimestamp()
}
