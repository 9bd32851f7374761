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

// Package verifier replays the checks the DAO contracts apply to a
// submitted vote result, so a result can be validated before it is sent
// on-chain and bad steps can be found for a challenge.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/blinklabs-io/offvote/chainstate"
	"github.com/blinklabs-io/offvote/merkle"
	"github.com/blinklabs-io/offvote/signer"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/blinklabs-io/offvote/votestep"
	"github.com/blinklabs-io/offvote/voting"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidProof         = errors.New("step proof does not match result root")
	ErrBadRootSignature     = errors.New("result root signature does not match submitter")
	ErrSubmitterNotMember   = errors.New("result submitter is not a member")
	ErrIncompleteResult     = errors.New("result does not cover every member")
	ErrStepOutOfOrder       = errors.New("result step index does not match position")
	ErrMissingChainState    = errors.New("no chain state reader configured")
	ErrMissingSignatureSvc  = errors.New("no signature service configured")
	ErrEmptyMemberList      = errors.New("dao has no members")
	ErrMissingVotingAdapter = errors.New("voting adapter address not configured")
)

type Config struct {
	Logger       *slog.Logger
	State        chainstate.Reader
	Signatures   *signer.Service
	ChainID      uint64
	VotingAction common.Address
}

type Verifier struct {
	config Config
}

func New(cfg Config) (*Verifier, error) {
	if cfg.State == nil {
		return nil, ErrMissingChainState
	}
	if cfg.Signatures == nil {
		return nil, ErrMissingSignatureSvc
	}
	if cfg.VotingAction == (common.Address{}) {
		return nil, ErrMissingVotingAdapter
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "verifier")
	return &Verifier{config: cfg}, nil
}

// Domain returns the voting domain of a DAO
func (v *Verifier) Domain(dao common.Address) typeddata.Domain {
	return typeddata.NewDomain(v.config.ChainID, dao, v.config.VotingAction)
}

// Context is the chain state a step is classified against
type Context struct {
	Members          []common.Address
	Domain           typeddata.Domain
	Root             common.Hash
	ProposalID       common.Hash
	Snapshot         uint64
	GracePeriodStart uint64
	// SubmitNewVote allows votes cast after the voting period, as when a
	// result is resubmitted after a successful challenge
	SubmitNewVote bool
}

// Classify applies the on-chain bad node checks to a step, in the same
// order. A step whose proof does not verify against the root cannot be
// classified and yields ErrInvalidProof.
func (v *Verifier) Classify(
	ctx context.Context,
	node votestep.VoteStep,
	vc Context,
) (BadNodeError, error) {
	leaf, err := voting.StepLeaf(v.config.Signatures.Hasher(), node, vc.Domain)
	if err != nil {
		return OK, err
	}
	if !merkle.Verify(vc.Root, leaf, node.Proof) {
		return OK, fmt.Errorf("%w: step %d", ErrInvalidProof, node.Index)
	}
	if int(node.Index) >= len(vc.Members) {
		return IndexOutOfBound, nil
	}
	member := vc.Members[node.Index]
	if len(node.Signature) == 0 && node.Choice != votestep.ChoiceNone {
		return InvalidChoice, nil
	}
	if len(node.Signature) > 0 &&
		node.Choice != votestep.ChoiceYes &&
		node.Choice != votestep.ChoiceNo {
		return InvalidChoice, nil
	}
	if node.ProposalID != vc.ProposalID {
		return WrongProposalID, nil
	}
	if !vc.SubmitNewVote && node.Timestamp > vc.GracePeriodStart {
		return AfterVotingPeriod, nil
	}
	if len(node.Signature) > 0 {
		voter, err := v.config.State.DelegateKey(ctx, member, vc.Snapshot)
		if err != nil {
			return OK, fmt.Errorf("read delegate key of %s: %w", member.Hex(), err)
		}
		ballot := votestep.VoteEntry{
			Timestamp:  node.Timestamp,
			Choice:     node.Choice,
			ProposalID: node.ProposalID,
		}
		msg, err := typeddata.Canonicalize(ballot.Message())
		if err != nil {
			return OK, err
		}
		if !v.config.Signatures.Verify(msg, vc.Domain, node.Signature, voter) {
			return BadSignature, nil
		}
	}
	if node.Choice != votestep.ChoiceNone {
		weight, err := v.config.State.VotingWeight(ctx, member, vc.Snapshot)
		if err != nil {
			return OK, fmt.Errorf("read weight of %s: %w", member.Hex(), err)
		}
		if weight.IsZero() {
			return VoteNotAllowed, nil
		}
	}
	return OK, nil
}

// CheckStep reports whether current correctly extends previous with the
// member weight. previous is nil for the first step.
func CheckStep(previous *votestep.VoteStep, current votestep.VoteStep, weight *uint256.Int) bool {
	prevYes := new(uint256.Int)
	prevNo := new(uint256.Int)
	expectedIndex := uint32(0)
	if previous != nil {
		if previous.NbYes == nil || previous.NbNo == nil {
			return false
		}
		prevYes.Set(previous.NbYes)
		prevNo.Set(previous.NbNo)
		expectedIndex = previous.Index + 1
	}
	if current.NbYes == nil || current.NbNo == nil || current.Index != expectedIndex {
		return false
	}
	if weight == nil {
		weight = new(uint256.Int)
	}
	switch current.Choice {
	case votestep.ChoiceNone:
		return current.NbYes.Eq(prevYes) && current.NbNo.Eq(prevNo)
	case votestep.ChoiceYes:
		sum, overflow := new(uint256.Int).AddOverflow(prevYes, weight)
		return !overflow && current.NbYes.Eq(sum) && current.NbNo.Eq(prevNo)
	case votestep.ChoiceNo:
		sum, overflow := new(uint256.Int).AddOverflow(prevNo, weight)
		return !overflow && current.NbNo.Eq(sum) && current.NbYes.Eq(prevYes)
	default:
		return false
	}
}

// Submission is a vote result as sent to the voting adapter
type Submission struct {
	Steps         []votestep.VoteStep
	RootSignature []byte
	Submitter     common.Address
	Root          common.Hash
	Snapshot      uint64
	VotingStart   uint64
	SubmitNewVote bool
}

type Report struct {
	BadNodes   []BadNode        `json:"badNodes"`
	BadSteps   []uint32         `json:"badSteps"`
	NbYes      *uint256.Int     `json:"nbYes"`
	NbNo       *uint256.Int     `json:"nbNo"`
	Outcome    voting.Outcome   `json:"outcome"`
	Submitter  common.Address   `json:"submitter"`
	ProposalID common.Hash      `json:"proposalId"`
	Root       common.Hash      `json:"root"`
	Domain     typeddata.Domain `json:"domain"`
	Members    int              `json:"members"`
}

// Accepted reports whether no step can be challenged. BadSteps holds steps
// whose tallies do not follow from the previous step.
func (r *Report) Accepted() bool {
	return len(r.BadNodes) == 0 && len(r.BadSteps) == 0
}

// SubmitVoteResult validates a complete result for a proposal of dao. Errors
// mean the adapter would reject the submission outright; challengeable steps
// are listed in the report instead.
func (v *Verifier) SubmitVoteResult(
	ctx context.Context,
	dao common.Address,
	proposalID common.Hash,
	sub Submission,
) (*Report, error) {
	domain := v.Domain(dao)
	rootMsg, err := typeddata.Canonicalize(
		typeddata.ResultMessage{Root: sub.Root}.Message(),
	)
	if err != nil {
		return nil, err
	}
	if !v.config.Signatures.Verify(rootMsg, domain, sub.RootSignature, sub.Submitter) {
		return nil, ErrBadRootSignature
	}
	members, err := v.config.State.Members(ctx, sub.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("read members: %w", err)
	}
	if len(members) == 0 {
		return nil, ErrEmptyMemberList
	}
	if err := v.checkSubmitter(ctx, members, sub); err != nil {
		return nil, err
	}
	if len(sub.Steps) != len(members) {
		return nil, fmt.Errorf(
			"%w: %d steps for %d members",
			ErrIncompleteResult,
			len(sub.Steps),
			len(members),
		)
	}
	graceStart, err := chainstate.VotingWindow(ctx, v.config.State, sub.VotingStart)
	if err != nil {
		return nil, err
	}
	vc := Context{
		Members:          members,
		Domain:           domain,
		Root:             sub.Root,
		ProposalID:       proposalID,
		Snapshot:         sub.Snapshot,
		GracePeriodStart: graceStart,
		SubmitNewVote:    sub.SubmitNewVote,
	}
	report := &Report{
		ProposalID: proposalID,
		Root:       sub.Root,
		Domain:     domain,
		Submitter:  sub.Submitter,
		Members:    len(members),
	}
	for i := range sub.Steps {
		step := sub.Steps[i]
		if int(step.Index) != i {
			return nil, fmt.Errorf("%w: position %d has index %d", ErrStepOutOfOrder, i, step.Index)
		}
		class, err := v.Classify(ctx, step, vc)
		if err != nil {
			return nil, err
		}
		if class != OK {
			report.BadNodes = append(report.BadNodes, BadNode{Index: step.Index, Error: class})
			continue
		}
		weight, err := v.config.State.VotingWeight(ctx, members[i], sub.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("read weight of %s: %w", members[i].Hex(), err)
		}
		var previous *votestep.VoteStep
		if i > 0 {
			previous = &sub.Steps[i-1]
		}
		if !CheckStep(previous, step, weight) {
			report.BadSteps = append(report.BadSteps, step.Index)
		}
	}
	last := sub.Steps[len(sub.Steps)-1]
	report.NbYes = cloneOrZero(last.NbYes)
	report.NbNo = cloneOrZero(last.NbNo)
	report.Outcome = voting.OutcomeOf(report.NbYes, report.NbNo)
	v.config.Logger.Debug(
		"verified vote result",
		"proposal", proposalID.Hex(),
		"root", sub.Root.Hex(),
		"badNodes", len(report.BadNodes),
		"badSteps", len(report.BadSteps),
	)
	return report, nil
}

// checkSubmitter accepts a member or the delegate key of a member
func (v *Verifier) checkSubmitter(ctx context.Context, members []common.Address, sub Submission) error {
	if slices.Contains(members, sub.Submitter) {
		return nil
	}
	for _, m := range members {
		key, err := v.config.State.DelegateKey(ctx, m, sub.Snapshot)
		if err != nil {
			return fmt.Errorf("read delegate key of %s: %w", m.Hex(), err)
		}
		if key == sub.Submitter {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrSubmitterNotMember, sub.Submitter.Hex())
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
