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

// Package votestep turns an ordered list of member ballots into the
// sequence of cumulative tally steps committed to by a vote result.
package votestep

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TallyBits is the width of the nbYes/nbNo fields in the vote-step message
const TallyBits = 88

var (
	ErrInvalidChoice    = errors.New("invalid vote choice")
	ErrProposalMismatch = errors.New("vote entry is for a different proposal")
	ErrTallyOverflow    = errors.New("cumulative tally exceeds 88 bits")
	ErrTooManyEntries   = errors.New("too many vote entries")
	ErrMemberMismatch   = errors.New("vote entry does not belong to member")
)

var maxTally = new(uint256.Int).Sub(
	new(uint256.Int).Lsh(uint256.NewInt(1), TallyBits),
	uint256.NewInt(1),
)

type Choice uint32

const (
	ChoiceNone Choice = 0
	ChoiceYes  Choice = 1
	ChoiceNo   Choice = 2
)

func (c Choice) Valid() bool {
	return c == ChoiceNone || c == ChoiceYes || c == ChoiceNo
}

func (c Choice) String() string {
	switch c {
	case ChoiceNone:
		return "none"
	case ChoiceYes:
		return "yes"
	case ChoiceNo:
		return "no"
	default:
		return fmt.Sprintf("choice(%d)", uint32(c))
	}
}

// VoteEntry is one member's signed ballot, or the placeholder for a member
// that did not vote
type VoteEntry struct {
	Weight     *uint256.Int
	Signature  []byte
	Timestamp  uint64
	Choice     Choice
	Voter      common.Address
	ProposalID common.Hash
}

// Message returns the vote message the entry's signature covers
func (e VoteEntry) Message() typeddata.Message {
	return typeddata.VoteMessage{
		Timestamp:  e.Timestamp,
		Choice:     uint32(e.Choice),
		ProposalID: e.ProposalID,
	}.Message()
}

// VoteStep is the cumulative tally after a member's entry
type VoteStep struct {
	NbYes      *uint256.Int
	NbNo       *uint256.Int
	Signature  []byte
	Proof      []common.Hash
	Timestamp  uint64
	Index      uint32
	Choice     Choice
	Account    common.Address
	ProposalID common.Hash
}

// Message returns the vote-step message whose digest is the step's leaf
func (s VoteStep) Message() typeddata.Message {
	return StepMessage(s)
}

// StepMessage maps a step onto the vote-step typed message
func StepMessage(s VoteStep) typeddata.Message {
	return typeddata.VoteStepMessage{
		Account:    s.Account,
		Timestamp:  s.Timestamp,
		NbYes:      s.NbYes,
		NbNo:       s.NbNo,
		Index:      s.Index,
		Choice:     uint32(s.Choice),
		ProposalID: s.ProposalID,
		Sig:        s.Signature,
	}.Message()
}

// Clone returns a deep copy of the step
func (s VoteStep) Clone() VoteStep {
	ret := s
	if s.NbYes != nil {
		ret.NbYes = s.NbYes.Clone()
	}
	if s.NbNo != nil {
		ret.NbNo = s.NbNo.Clone()
	}
	ret.Signature = slices.Clone(s.Signature)
	ret.Proof = slices.Clone(s.Proof)
	return ret
}

// Build scans the entries left to right and returns one step per entry.
// Step i carries the tallies of step i-1 plus the weight of entry i on the
// branch selected by its choice. The entry order is the member order and
// becomes the step index.
func Build(proposalID common.Hash, entries []VoteEntry) ([]VoteStep, error) {
	if uint64(len(entries)) > math.MaxUint32 {
		return nil, ErrTooManyEntries
	}
	steps := make([]VoteStep, 0, len(entries))
	nbYes := new(uint256.Int)
	nbNo := new(uint256.Int)
	for i, entry := range entries {
		if !entry.Choice.Valid() {
			return nil, fmt.Errorf("entry %d: %w: %d", i, ErrInvalidChoice, entry.Choice)
		}
		if entry.Choice != ChoiceNone && entry.ProposalID != proposalID {
			return nil, fmt.Errorf(
				"entry %d: %w: %s",
				i,
				ErrProposalMismatch,
				entry.ProposalID.Hex(),
			)
		}
		weight := entry.Weight
		if weight == nil {
			weight = new(uint256.Int)
		}
		switch entry.Choice {
		case ChoiceYes:
			if err := addTally(nbYes, weight); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
		case ChoiceNo:
			if err := addTally(nbNo, weight); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
		}
		step := VoteStep{
			Index:      uint32(i), //nolint:gosec // bounded above
			Account:    entry.Voter,
			NbYes:      nbYes.Clone(),
			NbNo:       nbNo.Clone(),
			Choice:     entry.Choice,
			ProposalID: proposalID,
			Timestamp:  entry.Timestamp,
		}
		if entry.Choice != ChoiceNone {
			step.Signature = slices.Clone(entry.Signature)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func addTally(total *uint256.Int, weight *uint256.Int) error {
	sum, overflow := new(uint256.Int).AddOverflow(total, weight)
	if overflow || sum.Gt(maxTally) {
		return ErrTallyOverflow
	}
	total.Set(sum)
	return nil
}

// Align places ballots at their member's registration index. members is the
// DAO member list in registration order; weights holds each member's
// voting weight at the proposal snapshot. A member without a ballot, or
// with zero weight, gets a ChoiceNone entry with zero weight.
func Align(
	proposalID common.Hash,
	members []common.Address,
	weights []*uint256.Int,
	ballots map[common.Address]VoteEntry,
) ([]VoteEntry, error) {
	if len(weights) != len(members) {
		return nil, fmt.Errorf(
			"members and weights differ in length: %d != %d",
			len(members),
			len(weights),
		)
	}
	entries := make([]VoteEntry, len(members))
	for i, member := range members {
		entries[i] = VoteEntry{
			ProposalID: proposalID,
			Voter:      member,
			Choice:     ChoiceNone,
			Weight:     new(uint256.Int),
		}
		ballot, ok := ballots[member]
		if !ok || weights[i] == nil || weights[i].IsZero() {
			continue
		}
		if ballot.Voter != (common.Address{}) && ballot.Voter != member {
			return nil, fmt.Errorf(
				"member %d: %w: %s",
				i,
				ErrMemberMismatch,
				ballot.Voter.Hex(),
			)
		}
		ballot.Voter = member
		ballot.Weight = weights[i].Clone()
		ballot.Signature = slices.Clone(ballot.Signature)
		entries[i] = ballot
	}
	return entries, nil
}
