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
	"fmt"
	"slices"
	"time"

	"github.com/blinklabs-io/offvote/database/models"
	"github.com/blinklabs-io/offvote/database/types"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/blinklabs-io/offvote/votestep"
	"github.com/blinklabs-io/offvote/voting"
	"github.com/ethereum/go-ethereum/common"
)

// StoredResult is a vote result as read back from the result index
type StoredResult struct {
	voting.Result
	Snapshot  uint64
	CreatedAt time.Time
}

// ResultSave indexes a built result at a snapshot block. An earlier result
// for the same proposal and DAO is replaced. A nil txn runs in its own
// transaction.
func (d *Database) ResultSave(res *voting.Result, snapshot uint64, txn *Txn) error {
	record := resultToModel(res, snapshot)
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.results.SaveResult(txn.Results(), record)
		})
	}
	return d.results.SaveResult(txn.Results(), record)
}

// ResultGet returns the stored result of a proposal with its steps
func (d *Database) ResultGet(proposalID common.Hash, dao common.Address) (*StoredResult, error) {
	record, err := d.results.GetResult(proposalID, dao)
	if err != nil {
		return nil, err
	}
	return modelToResult(record)
}

// ResultStep returns one stored step with its proof
func (d *Database) ResultStep(
	proposalID common.Hash,
	dao common.Address,
	index uint32,
) (*votestep.VoteStep, error) {
	record, err := d.results.GetStep(proposalID, dao, index)
	if err != nil {
		return nil, err
	}
	step, err := modelToStep(record)
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// ResultList returns recent results without steps
func (d *Database) ResultList(limit int) ([]StoredResult, error) {
	records, err := d.results.ListResults(limit)
	if err != nil {
		return nil, err
	}
	ret := make([]StoredResult, 0, len(records))
	for i := range records {
		res, err := modelToResult(&records[i])
		if err != nil {
			return nil, err
		}
		ret = append(ret, *res)
	}
	return ret, nil
}

func resultToModel(res *voting.Result, snapshot uint64) *models.Result {
	record := &models.Result{
		ProposalID:    res.ProposalID.Bytes(),
		Dao:           res.Domain.VerifyingContract.Bytes(),
		DomainName:    res.Domain.Name,
		DomainVersion: res.Domain.Version,
		ChainID:       types.Uint64(res.Domain.ChainID),
		VotingAction:  res.Domain.ActionID.Bytes(),
		Root:          res.Root.Bytes(),
		RootSignature: slices.Clone(res.RootSignature),
		Submitter:     res.Submitter.Bytes(),
		NbYes:         types.NewTally(res.LastStep.NbYes),
		NbNo:          types.NewTally(res.LastStep.NbNo),
		Outcome:       res.Outcome.String(),
		Snapshot:      types.Uint64(snapshot),
		Steps:         make([]models.Step, 0, len(res.Steps)),
	}
	for _, step := range res.Steps {
		proof := make([]byte, 0, len(step.Proof)*common.HashLength)
		for _, h := range step.Proof {
			proof = append(proof, h.Bytes()...)
		}
		record.Steps = append(record.Steps, models.Step{
			Index:      step.Index,
			Account:    step.Account.Bytes(),
			ProposalID: step.ProposalID.Bytes(),
			Choice:     uint32(step.Choice),
			Timestamp:  types.Uint64(step.Timestamp),
			Signature:  slices.Clone(step.Signature),
			NbYes:      types.NewTally(step.NbYes),
			NbNo:       types.NewTally(step.NbNo),
			Proof:      proof,
		})
	}
	return record
}

func modelToResult(record *models.Result) (*StoredResult, error) {
	var outcome voting.Outcome
	if err := outcome.UnmarshalText([]byte(record.Outcome)); err != nil {
		return nil, err
	}
	ret := &StoredResult{
		Result: voting.Result{
			RootSignature: record.RootSignature,
			Domain: typeddata.Domain{
				Name:              record.DomainName,
				Version:           record.DomainVersion,
				ChainID:           uint64(record.ChainID),
				VerifyingContract: common.BytesToAddress(record.Dao),
				ActionID:          common.BytesToAddress(record.VotingAction),
			},
			Submitter:  common.BytesToAddress(record.Submitter),
			ProposalID: common.BytesToHash(record.ProposalID),
			Root:       common.BytesToHash(record.Root),
			Outcome:    outcome,
		},
		Snapshot:  uint64(record.Snapshot),
		CreatedAt: record.CreatedAt,
	}
	for i := range record.Steps {
		step, err := modelToStep(&record.Steps[i])
		if err != nil {
			return nil, err
		}
		ret.Steps = append(ret.Steps, step)
	}
	if len(ret.Steps) > 0 {
		ret.LastStep = ret.Steps[len(ret.Steps)-1].Clone()
	} else {
		ret.LastStep = votestep.VoteStep{
			NbYes:      types.NewTally(record.NbYes.Int).Int,
			NbNo:       types.NewTally(record.NbNo.Int).Int,
			ProposalID: ret.ProposalID,
		}
	}
	return ret, nil
}

func modelToStep(record *models.Step) (votestep.VoteStep, error) {
	if len(record.Proof)%common.HashLength != 0 {
		return votestep.VoteStep{}, fmt.Errorf(
			"step %d: proof length %d is not a multiple of %d",
			record.Index,
			len(record.Proof),
			common.HashLength,
		)
	}
	proof := make([]common.Hash, 0, len(record.Proof)/common.HashLength)
	for i := 0; i < len(record.Proof); i += common.HashLength {
		proof = append(proof, common.BytesToHash(record.Proof[i:i+common.HashLength]))
	}
	return votestep.VoteStep{
		NbYes:      types.NewTally(record.NbYes.Int).Int,
		NbNo:       types.NewTally(record.NbNo.Int).Int,
		Signature:  record.Signature,
		Proof:      proof,
		Timestamp:  uint64(record.Timestamp),
		Index:      record.Index,
		Choice:     votestep.Choice(record.Choice),
		Account:    common.BytesToAddress(record.Account),
		ProposalID: common.BytesToHash(record.ProposalID),
	}, nil
}
