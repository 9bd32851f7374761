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

package voting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blinklabs-io/offvote/merkle"
	"github.com/blinklabs-io/offvote/signer"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/blinklabs-io/offvote/votestep"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const submitterKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testDAO      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	votingAction = common.HexToAddress("0x2222222222222222222222222222222222222222")
	otherAction  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testProposal = common.HexToHash("0x7a")
)

type harness struct {
	svc       *signer.Service
	orch      *Orchestrator
	fixture   *Fixture
	submitter *signer.LocalSigner
	reg       *prometheus.Registry
}

func newHarness(t *testing.T, weights []uint64, verify bool) *harness {
	t.Helper()
	h, err := typeddata.NewHasher(0)
	require.NoError(t, err)
	svc := signer.New(h)
	reg := prometheus.NewRegistry()
	orch, err := NewOrchestrator(OrchestratorConfig{
		Signatures:    svc,
		PromRegistry:  reg,
		Workers:       3,
		VerifyBallots: verify,
	})
	require.NoError(t, err)
	binder := typeddata.NewDomainBinder(1337, testDAO).
		WithAction(typeddata.ActionVoting, votingAction)
	fixture, err := NewFixture(svc, binder, "orchestrator-test", weights)
	require.NoError(t, err)
	fixture.Clock = func() time.Time { return time.Unix(1700000000, 0) }
	submitter, err := signer.NewLocalSignerFromHex(svc, submitterKeyHex)
	require.NoError(t, err)
	return &harness{
		svc:       svc,
		orch:      orch,
		fixture:   fixture,
		submitter: submitter,
		reg:       reg,
	}
}

func (h *harness) build(t *testing.T, strategy Strategy) (*Result, error) {
	t.Helper()
	ctx := context.Background()
	entries, err := h.fixture.CastVotes(ctx, testProposal, strategy)
	require.NoError(t, err)
	domain, err := h.fixture.Domain()
	require.NoError(t, err)
	return h.orch.BuildResult(ctx, Request{
		ProposalID: testProposal,
		Domain:     domain,
		Entries:    entries,
		Submitter:  h.submitter,
	})
}

func TestBuildResultAllYes(t *testing.T) {
	h := newHarness(t, []uint64{1, 2, 3, 4, 5}, true)
	res, err := h.build(t, AllYes)
	require.NoError(t, err)

	require.Len(t, res.Steps, 5)
	assert.Equal(t, uint64(15), res.LastStep.NbYes.Uint64())
	assert.True(t, res.LastStep.NbNo.IsZero())
	assert.Equal(t, OutcomePass, res.Outcome)
	assert.Equal(t, h.submitter.Address(), res.Submitter)

	// Every proof verifies against the root
	for i, step := range res.Steps {
		leaf, err := StepLeaf(h.svc.Hasher(), step, res.Domain)
		require.NoError(t, err)
		assert.True(t, merkle.Verify(res.Root, leaf, step.Proof), "step %d", i)
	}

	// The root signature recovers to the submitter
	msg, err := typeddata.Canonicalize(typeddata.ResultMessage{Root: res.Root}.Message())
	require.NoError(t, err)
	assert.True(t, h.svc.Verify(msg, res.Domain, res.RootSignature, h.submitter.Address()))

	assert.InDelta(t, 1, testutil.ToFloat64(h.orch.metrics.resultsBuilt), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(h.orch.metrics.stepsCommitted), 0)
}

func TestBuildResultTie(t *testing.T) {
	h := newHarness(t, []uint64{5, 5, 5, 5}, true)
	res, err := h.build(t, Tie)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.LastStep.NbYes.Uint64())
	assert.Equal(t, uint64(10), res.LastStep.NbNo.Uint64())
	assert.Equal(t, OutcomeTie, res.Outcome)

	// The first half votes yes before anyone votes no
	expected := [][2]uint64{{5, 0}, {10, 0}, {10, 5}, {10, 10}}
	require.Len(t, res.Steps, len(expected))
	for i, step := range res.Steps {
		assert.Equal(t, expected[i][0], step.NbYes.Uint64(), "step %d yes", i)
		assert.Equal(t, expected[i][1], step.NbNo.Uint64(), "step %d no", i)
	}

	// An odd member count leaves the extra member on the no side
	h = newHarness(t, []uint64{1, 1, 1}, true)
	res, err = h.build(t, Tie)
	require.NoError(t, err)
	assert.Equal(t, votestep.ChoiceYes, res.Steps[0].Choice)
	assert.Equal(t, votestep.ChoiceNo, res.Steps[1].Choice)
	assert.Equal(t, uint64(1), res.LastStep.NbYes.Uint64())
	assert.Equal(t, uint64(2), res.LastStep.NbNo.Uint64())
}

func TestBuildResultStrategies(t *testing.T) {
	testDefs := []struct {
		name     string
		strategy Strategy
		yes, no  uint64
		outcome  Outcome
	}{
		{name: "all no", strategy: AllNo, yes: 0, no: 10, outcome: OutcomeFail},
		{name: "abstain", strategy: Abstain, yes: 0, no: 0, outcome: OutcomeTie},
		{name: "single yes", strategy: SingleVote(2, votestep.ChoiceYes), yes: 3, no: 0, outcome: OutcomePass},
		{name: "single no", strategy: SingleVote(0, votestep.ChoiceNo), yes: 0, no: 1, outcome: OutcomeFail},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			h := newHarness(t, []uint64{1, 2, 3, 4}, true)
			res, err := h.build(t, testDef.strategy)
			require.NoError(t, err)
			require.Len(t, res.Steps, 4)
			assert.Equal(t, testDef.yes, res.LastStep.NbYes.Uint64())
			assert.Equal(t, testDef.no, res.LastStep.NbNo.Uint64())
			assert.Equal(t, testDef.outcome, res.Outcome)
		})
	}
}

func TestBuildResultDeterministic(t *testing.T) {
	h := newHarness(t, []uint64{3, 1, 4, 1, 5, 9, 2, 6}, true)
	first, err := h.build(t, Tie)
	require.NoError(t, err)
	for range 5 {
		again, err := h.build(t, Tie)
		require.NoError(t, err)
		assert.Equal(t, first.Root, again.Root)
		assert.Equal(t, first.RootSignature, again.RootSignature)
		for i := range first.Steps {
			assert.Equal(t, first.Steps[i].Proof, again.Steps[i].Proof)
		}
	}
}

func TestBuildResultMonotonic(t *testing.T) {
	h := newHarness(t, []uint64{2, 7, 1, 8, 2, 8}, true)
	res, err := h.build(t, Tie)
	require.NoError(t, err)
	for i := 1; i < len(res.Steps); i++ {
		prev, cur := res.Steps[i-1], res.Steps[i]
		assert.False(t, cur.NbYes.Lt(prev.NbYes), "step %d yes decreased", i)
		assert.False(t, cur.NbNo.Lt(prev.NbNo), "step %d no decreased", i)
		assert.Equal(t, uint32(i), cur.Index)
	}
}

func TestBuildResultTamperDetection(t *testing.T) {
	h := newHarness(t, []uint64{1, 2, 3, 4}, true)
	res, err := h.build(t, AllYes)
	require.NoError(t, err)
	const target = 2
	original := res.Steps[target]

	testDefs := []struct {
		name   string
		mutate func(s *votestep.VoteStep)
	}{
		{name: "account", mutate: func(s *votestep.VoteStep) { s.Account = testDAO }},
		{name: "timestamp", mutate: func(s *votestep.VoteStep) { s.Timestamp++ }},
		{name: "nbYes", mutate: func(s *votestep.VoteStep) { s.NbYes.AddUint64(s.NbYes, 1) }},
		{name: "nbNo", mutate: func(s *votestep.VoteStep) { s.NbNo.AddUint64(s.NbNo, 1) }},
		{name: "index", mutate: func(s *votestep.VoteStep) { s.Index++ }},
		{name: "choice", mutate: func(s *votestep.VoteStep) { s.Choice = votestep.ChoiceNo }},
		{name: "proposalId", mutate: func(s *votestep.VoteStep) { s.ProposalID = common.HexToHash("0x7b") }},
		{name: "sig", mutate: func(s *votestep.VoteStep) { s.Signature[0] ^= 0xff }},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			step := original.Clone()
			testDef.mutate(&step)
			leaf, err := StepLeaf(h.svc.Hasher(), step, res.Domain)
			require.NoError(t, err)
			assert.False(t, merkle.Verify(res.Root, leaf, original.Proof))
		})
	}

	// The untouched step still verifies
	leaf, err := StepLeaf(h.svc.Hasher(), original, res.Domain)
	require.NoError(t, err)
	assert.True(t, merkle.Verify(res.Root, leaf, original.Proof))
}

func TestStepLeafCommitsPosition(t *testing.T) {
	h := newHarness(t, []uint64{1, 2, 3, 4}, true)
	res, err := h.build(t, AllYes)
	require.NoError(t, err)

	// Siblings 0 and 1 trade places and are re-indexed to match
	moved := []votestep.VoteStep{res.Steps[1].Clone(), res.Steps[0].Clone()}
	moved[0].Index, moved[1].Index = 0, 1
	for i, step := range moved {
		leaf, err := StepLeaf(h.svc.Hasher(), step, res.Domain)
		require.NoError(t, err)
		assert.False(t, merkle.Verify(res.Root, leaf, res.Steps[i].Proof), "position %d", i)
	}
}

func TestBuildResultDomainIsolation(t *testing.T) {
	h := newHarness(t, []uint64{1, 1}, true)
	res, err := h.build(t, AllYes)
	require.NoError(t, err)

	other := res.Domain.WithActionID(otherAction)
	msg, err := typeddata.Canonicalize(typeddata.ResultMessage{Root: res.Root}.Message())
	require.NoError(t, err)
	assert.False(t, h.svc.Verify(msg, other, res.RootSignature, h.submitter.Address()))

	leaf, err := StepLeaf(h.svc.Hasher(), res.Steps[0], other)
	require.NoError(t, err)
	assert.False(t, merkle.Verify(res.Root, leaf, res.Steps[0].Proof))
}

func TestBuildResultRejectsForgedBallot(t *testing.T) {
	h := newHarness(t, []uint64{1, 1, 1}, true)
	ctx := context.Background()
	entries, err := h.fixture.CastVotes(ctx, testProposal, AllYes)
	require.NoError(t, err)
	// Member 1 ballot signed by member 2
	entries[1].Signature = entries[2].Signature
	domain, err := h.fixture.Domain()
	require.NoError(t, err)

	res, err := h.orch.BuildResult(ctx, Request{
		ProposalID: testProposal,
		Domain:     domain,
		Entries:    entries,
		Submitter:  h.submitter,
	})
	require.Error(t, err)
	assert.Nil(t, res)
	var rbf *ResultBuildFailed
	require.ErrorAs(t, err, &rbf)
	assert.Equal(t, StageVerifyBallot, rbf.Stage)
	assert.Equal(t, 1, rbf.MemberIndex)
	assert.Equal(t, testProposal, rbf.ProposalID)
	assert.ErrorIs(t, err, ErrBallotSignature)
	assert.InDelta(
		t,
		1,
		testutil.ToFloat64(h.orch.metrics.buildFailures.WithLabelValues(string(StageVerifyBallot))),
		0,
	)
}

func TestBuildResultDelegates(t *testing.T) {
	h := newHarness(t, []uint64{1, 1}, true)
	ctx := context.Background()
	entries, err := h.fixture.CastVotes(ctx, testProposal, AllYes)
	require.NoError(t, err)
	domain, err := h.fixture.Domain()
	require.NoError(t, err)
	req := Request{
		ProposalID: testProposal,
		Domain:     domain,
		Entries:    entries,
		Submitter:  h.submitter,
		Delegates:  []common.Address{entries[1].Voter, entries[0].Voter},
	}
	_, err = h.orch.BuildResult(ctx, req)
	assert.ErrorIs(t, err, ErrBallotSignature)

	req.Delegates = []common.Address{entries[0].Voter}
	_, err = h.orch.BuildResult(ctx, req)
	assert.ErrorIs(t, err, ErrDelegateCount)
}

func TestBuildResultValidation(t *testing.T) {
	h := newHarness(t, []uint64{1}, false)
	ctx := context.Background()
	domain, err := h.fixture.Domain()
	require.NoError(t, err)

	_, err = h.orch.BuildResult(ctx, Request{ProposalID: testProposal, Domain: domain, Submitter: h.submitter})
	assert.ErrorIs(t, err, ErrNoEntries)

	entries, err := h.fixture.CastVotes(ctx, testProposal, AllYes)
	require.NoError(t, err)
	_, err = h.orch.BuildResult(ctx, Request{ProposalID: testProposal, Domain: domain, Entries: entries})
	assert.ErrorIs(t, err, ErrNilSubmitter)

	// Ballot for another proposal
	entries[0].ProposalID = common.HexToHash("0x01")
	_, err = h.orch.BuildResult(ctx, Request{
		ProposalID: testProposal,
		Domain:     domain,
		Entries:    entries,
		Submitter:  h.submitter,
	})
	var rbf *ResultBuildFailed
	require.ErrorAs(t, err, &rbf)
	assert.Equal(t, StageBuildSteps, rbf.Stage)
	assert.ErrorIs(t, err, votestep.ErrProposalMismatch)
}

type failingSigner struct {
	addr common.Address
}

func (f failingSigner) Address() common.Address { return f.addr }

func (f failingSigner) SignTypedData(
	context.Context,
	typeddata.Canonical,
	typeddata.Domain,
) ([]byte, error) {
	return nil, errors.New("wallet rejected request")
}

func TestBuildResultSignFailure(t *testing.T) {
	h := newHarness(t, []uint64{1, 2}, false)
	ctx := context.Background()
	entries, err := h.fixture.CastVotes(ctx, testProposal, AllYes)
	require.NoError(t, err)
	domain, err := h.fixture.Domain()
	require.NoError(t, err)
	res, err := h.orch.BuildResult(ctx, Request{
		ProposalID: testProposal,
		Domain:     domain,
		Entries:    entries,
		Submitter:  failingSigner{},
	})
	assert.Nil(t, res)
	var rbf *ResultBuildFailed
	require.ErrorAs(t, err, &rbf)
	assert.Equal(t, StageSignRoot, rbf.Stage)
	assert.Equal(t, -1, rbf.MemberIndex)
	assert.Contains(t, err.Error(), "wallet rejected request")
}

func TestNewOrchestratorRequiresSignatures(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorConfig{})
	assert.ErrorIs(t, err, ErrMissingSignatures)
}

func TestFixtureDeterministicMembers(t *testing.T) {
	h := newHarness(t, []uint64{1, 2, 3}, false)
	again, err := NewFixture(h.svc, h.fixture.Binder, "orchestrator-test", []uint64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, h.fixture.Addresses(), again.Addresses())
	other, err := NewFixture(h.svc, h.fixture.Binder, "other-seed", []uint64{1, 2, 3})
	require.NoError(t, err)
	assert.NotEqual(t, h.fixture.Addresses(), other.Addresses())

	_, err = NewFixture(h.svc, h.fixture.Binder, "x", nil)
	assert.ErrorIs(t, err, ErrFixtureNoMembers)
	_, err = h.fixture.Key(3)
	assert.ErrorIs(t, err, ErrMemberOutOfRange)
}

func TestOutcomeText(t *testing.T) {
	for _, o := range []Outcome{OutcomePass, OutcomeFail, OutcomeTie} {
		text, err := o.MarshalText()
		require.NoError(t, err)
		var back Outcome
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, o, back)
	}
	var o Outcome
	assert.Error(t, o.UnmarshalText([]byte("MAYBE")))
}
