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

package badger

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/offvote/database/models"
	"github.com/blinklabs-io/offvote/database/types"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
)

func (d *BallotStoreBadger) SetBallot(txn *badger.Txn, ballot *models.Ballot) error {
	data, err := cbor.Marshal(ballot)
	if err != nil {
		return fmt.Errorf("encode ballot: %w", err)
	}
	if err := txn.Set(types.BallotKey(ballot.ProposalID, ballot.Member), data); err != nil {
		return err
	}
	if d.metrics != nil {
		d.metrics.writes.Inc()
	}
	return nil
}

func (d *BallotStoreBadger) GetBallot(
	txn *badger.Txn,
	proposalID common.Hash,
	member common.Address,
) (*models.Ballot, error) {
	item, err := txn.Get(types.BallotKey(proposalID, member))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, types.ErrBallotNotFound
		}
		return nil, err
	}
	var ret models.Ballot
	if err := item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &ret)
	}); err != nil {
		return nil, fmt.Errorf("decode ballot: %w", err)
	}
	if d.metrics != nil {
		d.metrics.reads.Inc()
	}
	return &ret, nil
}

func (d *BallotStoreBadger) DeleteBallot(
	txn *badger.Txn,
	proposalID common.Hash,
	member common.Address,
) error {
	key := types.BallotKey(proposalID, member)
	if _, err := txn.Get(key); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return types.ErrBallotNotFound
		}
		return err
	}
	return txn.Delete(key)
}

// ProposalBallots returns every ballot stored for a proposal in member
// address order
func (d *BallotStoreBadger) ProposalBallots(
	txn *badger.Txn,
	proposalID common.Hash,
) ([]models.Ballot, error) {
	return d.scan(txn, types.BallotProposalPrefix(proposalID))
}

// AllBallots returns every stored ballot
func (d *BallotStoreBadger) AllBallots(txn *badger.Txn) ([]models.Ballot, error) {
	return d.scan(txn, []byte(types.BallotKeyPrefix))
}

func (d *BallotStoreBadger) scan(txn *badger.Txn, prefix []byte) ([]models.Ballot, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	var ret []models.Ballot
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var ballot models.Ballot
		if err := it.Item().Value(func(val []byte) error {
			return cbor.Unmarshal(val, &ballot)
		}); err != nil {
			return nil, fmt.Errorf("decode ballot %x: %w", it.Item().Key(), err)
		}
		ret = append(ret, ballot)
	}
	if d.metrics != nil {
		d.metrics.reads.Add(float64(len(ret)))
	}
	return ret, nil
}
