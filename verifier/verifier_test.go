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

package verifier

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/blinklabs-io/offvote/chainstate"
	"github.com/blinklabs-io/offvote/merkle"
	"github.com/blinklabs-io/offvote/signer"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/blinklabs-io/offvote/votestep"
	"github.com/blinklabs-io/offvote/voting"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const voteTime = 1700000000

var (
	testDAO      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	votingAction = common.HexToAddress("0x2222222222222222222222222222222222222222")
	couponAction = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testMember   = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testProposal = common.HexToHash("0x99")
)

type env struct {
	svc       *signer.Service
	fixture   *voting.Fixture
	state     *chainstate.Static
	verifier  *Verifier
	submitter *signer.LocalSigner
	domain    typeddata.Domain
}

func newEnv(t *testing.T, weights []uint64) *env {
	t.Helper()
	h, err := typeddata.NewHasher(0)
	require.NoError(t, err)
	svc := signer.New(h)
	binder := typeddata.NewDomainBinder(1337, testDAO).
		WithAction(typeddata.ActionVoting, votingAction)
	fixture, err := voting.NewFixture(svc, binder, "verifier-test", weights)
	require.NoError(t, err)
	fixture.Clock = func() time.Time { return time.Unix(voteTime, 0) }
	state := chainstate.NewStatic().
		SetConfiguration(chainstate.VotingPeriodKey, 3600).
		SetSnapshot(10)
	for _, m := range fixture.Members {
		state.AddMember(m.Address, m.Weight)
	}
	v, err := New(Config{
		State:        state,
		Signatures:   svc,
		ChainID:      1337,
		VotingAction: votingAction,
	})
	require.NoError(t, err)
	submitter, err := signer.NewLocalSigner(svc, fixture.Members[0].Key)
	require.NoError(t, err)
	domain, err := fixture.Domain()
	require.NoError(t, err)
	return &env{
		svc:       svc,
		fixture:   fixture,
		state:     state,
		verifier:  v,
		submitter: submitter,
		domain:    domain,
	}
}

func (e *env) steps(t *testing.T, strategy voting.Strategy) []votestep.VoteStep {
	t.Helper()
	entries, err := e.fixture.CastVotes(context.Background(), testProposal, strategy)
	require.NoError(t, err)
	steps, err := votestep.Build(testProposal, entries)
	require.NoError(t, err)
	return steps
}

// seal commits to the steps as given and signs the root, so tests can
// submit results containing steps the orchestrator would never produce
func (e *env) seal(t *testing.T, steps []votestep.VoteStep) Submission {
	t.Helper()
	leaves := make([]common.Hash, len(steps))
	for i, step := range steps {
		leaf, err := voting.StepLeaf(e.svc.Hasher(), step, e.domain)
		require.NoError(t, err)
		leaves[i] = leaf
	}
	tree, err := merkle.New(leaves)
	require.NoError(t, err)
	for i := range steps {
		steps[i].Proof, err = tree.Proof(i)
		require.NoError(t, err)
	}
	msg, err := typeddata.Canonicalize(typeddata.ResultMessage{Root: tree.Root()}.Message())
	require.NoError(t, err)
	sig, err := e.submitter.SignTypedData(context.Background(), msg, e.domain)
	require.NoError(t, err)
	return Submission{
		Steps:         steps,
		RootSignature: sig,
		Submitter:     e.submitter.Address(),
		Root:          tree.Root(),
		Snapshot:      10,
		VotingStart:   voteTime - 100,
	}
}

func TestSubmitOrchestratedResult(t *testing.T) {
	e := newEnv(t, []uint64{1, 2, 3, 4, 5})
	orch, err := voting.NewOrchestrator(voting.OrchestratorConfig{Signatures: e.svc, VerifyBallots: true})
	require.NoError(t, err)
	entries, err := e.fixture.CastVotes(context.Background(), testProposal, voting.Tie)
	require.NoError(t, err)
	res, err := orch.BuildResult(context.Background(), voting.Request{
		ProposalID: testProposal,
		Domain:     e.domain,
		Entries:    entries,
		Submitter:  e.submitter,
	})
	require.NoError(t, err)

	report, err := e.verifier.SubmitVoteResult(context.Background(), testDAO, testProposal, Submission{
		Steps:         res.Steps,
		RootSignature: res.RootSignature,
		Submitter:     res.Submitter,
		Root:          res.Root,
		Snapshot:      10,
		VotingStart:   voteTime - 100,
	})
	require.NoError(t, err)
	assert.True(t, report.Accepted(), "bad nodes: %v", report.BadNodes)
	// 1 + 2 yes against 3 + 4 + 5 no
	assert.Equal(t, uint64(3), report.NbYes.Uint64())
	assert.Equal(t, uint64(12), report.NbNo.Uint64())
	assert.Equal(t, voting.OutcomeFail, report.Outcome)
	assert.Equal(t, res.Outcome, report.Outcome)
	assert.Equal(t, 5, report.Members)
}

func TestSubmitClassifiesBadNodes(t *testing.T) {
	other := common.HexToHash("0x98")
	testDefs := []struct {
		name     string
		mutate   func(e *env, steps []votestep.VoteStep)
		newVote  bool
		expected BadNodeError
	}{
		{
			name:     "missing signature",
			mutate:   func(_ *env, s []votestep.VoteStep) { s[1].Signature = nil },
			expected: InvalidChoice,
		},
		{
			name:     "signed unknown choice",
			mutate:   func(_ *env, s []votestep.VoteStep) { s[1].Choice = 3 },
			expected: InvalidChoice,
		},
		{
			name:     "wrong proposal",
			mutate:   func(_ *env, s []votestep.VoteStep) { s[1].ProposalID = other },
			expected: WrongProposalID,
		},
		{
			name:     "late vote",
			mutate:   func(_ *env, s []votestep.VoteStep) { s[1].Timestamp = voteTime + 10000 },
			expected: AfterVotingPeriod,
		},
		{
			name:     "late vote on resubmission",
			mutate:   func(_ *env, s []votestep.VoteStep) { s[1].Timestamp = voteTime + 10000 },
			newVote:  true,
			expected: BadSignature,
		},
		{
			name:     "foreign signature",
			mutate:   func(_ *env, s []votestep.VoteStep) { s[1].Signature = s[2].Signature },
			expected: BadSignature,
		},
		{
			name: "no voting weight",
			mutate: func(e *env, _ []votestep.VoteStep) {
				e.state.AddMember(e.fixture.Members[1].Address, uint256.NewInt(0))
			},
			expected: VoteNotAllowed,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			e := newEnv(t, []uint64{1, 2, 3})
			steps := e.steps(t, voting.AllYes)
			testDef.mutate(e, steps)
			sub := e.seal(t, steps)
			sub.SubmitNewVote = testDef.newVote
			report, err := e.verifier.SubmitVoteResult(context.Background(), testDAO, testProposal, sub)
			require.NoError(t, err)
			assert.False(t, report.Accepted())
			assert.Equal(t, []BadNode{{Index: 1, Error: testDef.expected}}, report.BadNodes)
			// Later steps still accumulate correctly from the bad one
			assert.Empty(t, report.BadSteps)
		})
	}
}

func TestSubmitDetectsBadTally(t *testing.T) {
	e := newEnv(t, []uint64{1, 2, 3})
	steps := e.steps(t, voting.AllYes)
	steps[1].NbYes = uint256.NewInt(100)
	report, err := e.verifier.SubmitVoteResult(context.Background(), testDAO, testProposal, e.seal(t, steps))
	require.NoError(t, err)
	assert.Empty(t, report.BadNodes)
	assert.Equal(t, []uint32{1, 2}, report.BadSteps)
	assert.False(t, report.Accepted())
}

func TestSubmitRejects(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, []uint64{1, 2, 3})

	sub := e.seal(t, e.steps(t, voting.AllYes))
	sub.Submitter = testMember
	_, err := e.verifier.SubmitVoteResult(ctx, testDAO, testProposal, sub)
	assert.ErrorIs(t, err, ErrBadRootSignature)

	// Signed for another DAO
	sub = e.seal(t, e.steps(t, voting.AllYes))
	_, err = e.verifier.SubmitVoteResult(ctx, testMember, testProposal, sub)
	assert.ErrorIs(t, err, ErrBadRootSignature)

	sub = e.seal(t, e.steps(t, voting.AllYes)[:2])
	_, err = e.verifier.SubmitVoteResult(ctx, testDAO, testProposal, sub)
	assert.ErrorIs(t, err, ErrIncompleteResult)

	steps := e.steps(t, voting.AllYes)
	steps[0], steps[1] = steps[1], steps[0]
	_, err = e.verifier.SubmitVoteResult(ctx, testDAO, testProposal, e.seal(t, steps))
	assert.ErrorIs(t, err, ErrStepOutOfOrder)

	sub = e.seal(t, e.steps(t, voting.AllYes))
	sub.Steps[1].Proof = nil
	_, err = e.verifier.SubmitVoteResult(ctx, testDAO, testProposal, sub)
	assert.ErrorIs(t, err, ErrInvalidProof)

	outsider, err := voting.DeriveKey("outsider", 0)
	require.NoError(t, err)
	e.submitter, err = signer.NewLocalSigner(e.svc, outsider)
	require.NoError(t, err)
	_, err = e.verifier.SubmitVoteResult(ctx, testDAO, testProposal, e.seal(t, e.steps(t, voting.AllYes)))
	assert.ErrorIs(t, err, ErrSubmitterNotMember)

	// A delegate key may submit on behalf of its member
	e.state.SetDelegate(e.fixture.Members[2].Address, signer.AddressOf(outsider))
	_, err = e.verifier.SubmitVoteResult(ctx, testDAO, testProposal, e.seal(t, e.steps(t, voting.Abstain)))
	assert.NoError(t, err)
}

func TestClassifyIndexOutOfBound(t *testing.T) {
	e := newEnv(t, []uint64{1, 2})
	sub := e.seal(t, e.steps(t, voting.AllNo))
	vc := Context{
		Members:          e.fixture.Addresses()[:1],
		Domain:           e.domain,
		Root:             sub.Root,
		ProposalID:       testProposal,
		GracePeriodStart: voteTime + 100,
	}
	class, err := e.verifier.Classify(context.Background(), sub.Steps[1], vc)
	require.NoError(t, err)
	assert.Equal(t, IndexOutOfBound, class)
	class, err = e.verifier.Classify(context.Background(), sub.Steps[0], vc)
	require.NoError(t, err)
	assert.Equal(t, OK, class)
}

func TestCheckStep(t *testing.T) {
	step := func(index uint32, choice votestep.Choice, yes, no uint64) votestep.VoteStep {
		return votestep.VoteStep{
			Index:  index,
			Choice: choice,
			NbYes:  uint256.NewInt(yes),
			NbNo:   uint256.NewInt(no),
		}
	}
	first := step(0, votestep.ChoiceYes, 4, 0)
	assert.True(t, CheckStep(nil, first, uint256.NewInt(4)))
	assert.False(t, CheckStep(nil, first, uint256.NewInt(3)))
	assert.False(t, CheckStep(nil, step(1, votestep.ChoiceYes, 4, 0), uint256.NewInt(4)))

	testDefs := []struct {
		name string
		cur  votestep.VoteStep
		ok   bool
	}{
		{name: "yes", cur: step(1, votestep.ChoiceYes, 6, 0), ok: true},
		{name: "no", cur: step(1, votestep.ChoiceNo, 4, 2), ok: true},
		{name: "abstain", cur: step(1, votestep.ChoiceNone, 4, 0), ok: true},
		{name: "abstain changed tally", cur: step(1, votestep.ChoiceNone, 5, 0)},
		{name: "yes touched no", cur: step(1, votestep.ChoiceYes, 6, 1)},
		{name: "decreasing", cur: step(1, votestep.ChoiceNo, 3, 2)},
		{name: "wrong weight", cur: step(1, votestep.ChoiceNo, 4, 3)},
		{name: "skipped index", cur: step(2, votestep.ChoiceYes, 6, 0)},
		{name: "invalid choice", cur: step(1, votestep.Choice(7), 4, 0)},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			assert.Equal(t, testDef.ok, CheckStep(&first, testDef.cur, uint256.NewInt(2)))
		})
	}
}

func TestHashCouponMessageMatchesHasher(t *testing.T) {
	h, err := typeddata.NewHasher(0)
	require.NoError(t, err)

	coupon := typeddata.CouponMessage{
		AuthorizedMember: testMember,
		Amount:           big.NewInt(100),
		Nonce:            big.NewInt(7),
	}
	oracle, err := HashCouponMessage(testDAO, couponAction, 1, coupon)
	require.NoError(t, err)
	assert.Equal(
		t,
		common.HexToHash("0xdf95a7710fa5259796be70986bee10cd609fe8073e36495254ccadee97144238"),
		oracle,
	)

	testDefs := []struct {
		chainID uint64
		amount  *big.Int
		nonce   *big.Int
	}{
		{chainID: 1, amount: big.NewInt(100), nonce: big.NewInt(7)},
		{chainID: 1337, amount: big.NewInt(0), nonce: big.NewInt(0)},
		{chainID: 5, amount: new(big.Int).Lsh(big.NewInt(1), 200), nonce: big.NewInt(123456789)},
	}
	for _, testDef := range testDefs {
		c := typeddata.CouponMessage{
			AuthorizedMember: testMember,
			Amount:           testDef.amount,
			Nonce:            testDef.nonce,
		}
		expected, err := HashCouponMessage(testDAO, couponAction, testDef.chainID, c)
		require.NoError(t, err)
		digest, err := h.HashMessage(c.Message(), typeddata.NewDomain(testDef.chainID, testDAO, couponAction))
		require.NoError(t, err)
		assert.Equal(t, expected, digest, "chain %d", testDef.chainID)
	}

	_, err = HashCouponMessage(testDAO, couponAction, 1, typeddata.CouponMessage{})
	assert.ErrorIs(t, err, ErrIncompleteCoupon)
}

func TestBadNodeErrorString(t *testing.T) {
	assert.Equal(t, "VOTE_NOT_ALLOWED", VoteNotAllowed.String())
	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "BadNodeError(42)", BadNodeError(42).String())
}

func TestNewRequiresCollaborators(t *testing.T) {
	h, err := typeddata.NewHasher(0)
	require.NoError(t, err)
	_, err = New(Config{Signatures: signer.New(h), VotingAction: votingAction})
	assert.ErrorIs(t, err, ErrMissingChainState)
	_, err = New(Config{State: chainstate.NewStatic(), VotingAction: votingAction})
	assert.ErrorIs(t, err, ErrMissingSignatureSvc)
	_, err = New(Config{State: chainstate.NewStatic(), Signatures: signer.New(h)})
	assert.ErrorIs(t, err, ErrMissingVotingAdapter)
}
