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
	"crypto/ecdsa"
	"fmt"
	"runtime"
	"time"

	"github.com/blinklabs-io/offvote/signer"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/blinklabs-io/offvote/votestep"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
)

// Strategy picks the choice of the member at index out of count members
type Strategy func(index int, count int) votestep.Choice

var (
	AllYes Strategy = func(int, int) votestep.Choice { return votestep.ChoiceYes }
	AllNo  Strategy = func(int, int) votestep.Choice { return votestep.ChoiceNo }
	// Abstain casts no ballots at all
	Abstain Strategy = func(int, int) votestep.Choice { return votestep.ChoiceNone }
	// Tie has the first half of the members vote yes and the rest vote no.
	// With equal weights and an even member count the tallies end level.
	Tie Strategy = func(index int, count int) votestep.Choice {
		if index < count/2 {
			return votestep.ChoiceYes
		}
		return votestep.ChoiceNo
	}
)

// SingleVote has only the member at voter cast a ballot
func SingleVote(voter int, choice votestep.Choice) Strategy {
	return func(index int, _ int) votestep.Choice {
		if index == voter {
			return choice
		}
		return votestep.ChoiceNone
	}
}

type FixtureMember struct {
	Key     *ecdsa.PrivateKey
	Weight  *uint256.Int
	Address common.Address
}

// Fixture is a DAO with locally held member keys, used to produce signed
// ballots for tests and dry runs
type Fixture struct {
	Signatures *signer.Service
	Binder     *typeddata.DomainBinder
	Clock      func() time.Time
	Members    []FixtureMember
	Workers    int
}

// NewFixture creates one member per weight. Member keys are derived from
// seed so the same seed always yields the same addresses.
func NewFixture(
	signatures *signer.Service,
	binder *typeddata.DomainBinder,
	seed string,
	weights []uint64,
) (*Fixture, error) {
	if len(weights) == 0 {
		return nil, ErrFixtureNoMembers
	}
	members := make([]FixtureMember, len(weights))
	for i, w := range weights {
		key, err := DeriveKey(seed, i)
		if err != nil {
			return nil, err
		}
		members[i] = FixtureMember{
			Key:     key,
			Weight:  uint256.NewInt(w),
			Address: signer.AddressOf(key),
		}
	}
	return &Fixture{
		Signatures: signatures,
		Binder:     binder,
		Clock:      time.Now,
		Members:    members,
	}, nil
}

// DeriveKey returns the deterministic key of fixture member index
func DeriveKey(seed string, index int) (*ecdsa.PrivateKey, error) {
	for attempt := 0; ; attempt++ {
		raw := crypto.Keccak256(fmt.Appendf(nil, "%s/%d/%d", seed, index, attempt))
		key, err := crypto.ToECDSA(raw)
		if err == nil {
			return key, nil
		}
		if attempt > 8 {
			return nil, fmt.Errorf("derive fixture key %d: %w", index, err)
		}
	}
}

func (f *Fixture) Addresses() []common.Address {
	ret := make([]common.Address, len(f.Members))
	for i, m := range f.Members {
		ret[i] = m.Address
	}
	return ret
}

func (f *Fixture) Weights() []*uint256.Int {
	ret := make([]*uint256.Int, len(f.Members))
	for i, m := range f.Members {
		ret[i] = m.Weight.Clone()
	}
	return ret
}

func (f *Fixture) Domain() (typeddata.Domain, error) {
	return f.Binder.Bind(typeddata.KindVote)
}

// CastVotes signs a ballot for every member the strategy selects and returns
// the entries aligned to the member list. Ballots are signed concurrently.
func (f *Fixture) CastVotes(
	ctx context.Context,
	proposalID common.Hash,
	strategy Strategy,
) ([]votestep.VoteEntry, error) {
	domain, err := f.Domain()
	if err != nil {
		return nil, err
	}
	now := f.Clock()
	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	choices := make([]votestep.Choice, len(f.Members))
	for i := range choices {
		choices[i] = strategy(i, len(f.Members))
		if !choices[i].Valid() {
			return nil, fmt.Errorf("member %d: %w", i, votestep.ErrInvalidChoice)
		}
	}
	ballots := make([]votestep.VoteEntry, len(f.Members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, choice := range choices {
		if choice == votestep.ChoiceNone {
			continue
		}
		g.Go(func() error {
			entry := votestep.VoteEntry{
				ProposalID: proposalID,
				Choice:     choice,
				Timestamp:  uint64(now.Unix()), //nolint:gosec
				Voter:      f.Members[i].Address,
			}
			msg, err := typeddata.Canonicalize(entry.Message())
			if err != nil {
				return err
			}
			sig, err := f.Signatures.Sign(gctx, msg, f.Members[i].Key, domain)
			if err != nil {
				return fmt.Errorf("sign ballot of member %d: %w", i, err)
			}
			entry.Signature = sig
			ballots[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	cast := make(map[common.Address]votestep.VoteEntry, len(ballots))
	for _, b := range ballots {
		if b.Choice != votestep.ChoiceNone {
			cast[b.Voter] = b
		}
	}
	return votestep.Align(proposalID, f.Addresses(), f.Weights(), cast)
}

// Key returns the signing key of the member at index
func (f *Fixture) Key(index int) (*ecdsa.PrivateKey, error) {
	if index < 0 || index >= len(f.Members) {
		return nil, fmt.Errorf("%w: %d", ErrMemberOutOfRange, index)
	}
	return f.Members[index].Key, nil
}
