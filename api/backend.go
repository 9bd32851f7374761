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

package api

import (
	"context"

	"github.com/blinklabs-io/offvote/ballotpool"
	"github.com/blinklabs-io/offvote/database"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/blinklabs-io/offvote/verifier"
	"github.com/blinklabs-io/offvote/votestep"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is what the API server needs from the running service. It keeps
// the HTTP layer independent of the concrete service and lets tests use a
// mock.
type Backend interface {
	// AddBallot verifies a signed ballot and adds it to the pool
	AddBallot(ctx context.Context, ballot ballotpool.Ballot) error

	// Ballots returns the pooled ballots of a proposal
	Ballots(proposalID common.Hash) []ballotpool.Ballot

	// BuildResult builds, signs and stores the result of a proposal from
	// its pooled ballots
	BuildResult(ctx context.Context, proposalID common.Hash) (*database.StoredResult, error)

	// Result returns the stored result of a proposal
	Result(proposalID common.Hash) (*database.StoredResult, error)

	// Step returns one step of a stored result
	Step(proposalID common.Hash, index uint32) (*votestep.VoteStep, error)

	// VerifyResult checks a stored result the way the voting adapter would
	// on submission, for a proposal whose voting started at votingStart
	VerifyResult(ctx context.Context, proposalID common.Hash, votingStart uint64) (*verifier.Report, error)

	// Results returns the most recent stored results
	Results(limit int) ([]database.StoredResult, error)

	Hasher() *typeddata.Hasher

	// Healthy reports an error when the service cannot serve requests
	Healthy(ctx context.Context) error
}
