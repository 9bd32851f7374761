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
	"github.com/blinklabs-io/offvote/database/models"
	"github.com/ethereum/go-ethereum/common"
)

// BallotSet stores a ballot, replacing any ballot of the same member for
// the same proposal. A nil txn runs in its own transaction.
func (d *Database) BallotSet(ballot *models.Ballot, txn *Txn) error {
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.ballots.SetBallot(txn.Ballots(), ballot)
		})
	}
	return d.ballots.SetBallot(txn.Ballots(), ballot)
}

func (d *Database) BallotGet(
	proposalID common.Hash,
	member common.Address,
	txn *Txn,
) (*models.Ballot, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	return d.ballots.GetBallot(txn.Ballots(), proposalID, member)
}

// BallotDelete removes a stored ballot, returning types.ErrBallotNotFound
// if there is none
func (d *Database) BallotDelete(
	proposalID common.Hash,
	member common.Address,
	txn *Txn,
) error {
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.ballots.DeleteBallot(txn.Ballots(), proposalID, member)
		})
	}
	return d.ballots.DeleteBallot(txn.Ballots(), proposalID, member)
}

// BallotsByProposal returns the stored ballots of a proposal
func (d *Database) BallotsByProposal(proposalID common.Hash, txn *Txn) ([]models.Ballot, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	return d.ballots.ProposalBallots(txn.Ballots(), proposalID)
}

// BallotsAll returns every stored ballot
func (d *Database) BallotsAll(txn *Txn) ([]models.Ballot, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	return d.ballots.AllBallots(txn.Ballots())
}
