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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blinklabs-io/offvote/ballotpool"
	"github.com/blinklabs-io/offvote/database"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/blinklabs-io/offvote/verifier"
	"github.com/blinklabs-io/offvote/votestep"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var errBadChoice = errors.New("choice must be yes, no, 1 or 2")

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

type HealthResponse struct {
	IsHealthy bool   `json:"is_healthy"`
	Message   string `json:"message,omitempty"`
}

// Choice accepts either the choice name or its number
type Choice votestep.Choice

func (c *Choice) UnmarshalJSON(data []byte) error {
	var num uint32
	if err := json.Unmarshal(data, &num); err == nil {
		*c = Choice(num)
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return errBadChoice
	}
	switch strings.ToLower(name) {
	case "yes":
		*c = Choice(votestep.ChoiceYes)
	case "no":
		*c = Choice(votestep.ChoiceNo)
	default:
		return fmt.Errorf("%w: %q", errBadChoice, name)
	}
	return nil
}

func (c Choice) MarshalJSON() ([]byte, error) {
	return json.Marshal(votestep.Choice(c).String())
}

// BallotRequest is the body of POST /v1/ballots
type BallotRequest struct {
	ProposalID common.Hash    `json:"proposalId"`
	Member     common.Address `json:"member"`
	Choice     Choice         `json:"choice"`
	Timestamp  uint64         `json:"timestamp"`
	Signature  hexutil.Bytes  `json:"signature"`
}

type BallotResponse struct {
	ProposalID common.Hash    `json:"proposalId"`
	Member     common.Address `json:"member"`
	Voter      common.Address `json:"voter"`
	Choice     Choice         `json:"choice"`
	Timestamp  uint64         `json:"timestamp"`
	Signature  hexutil.Bytes  `json:"signature"`
	AddedAt    time.Time      `json:"addedAt"`
}

func newBallotResponse(b ballotpool.Ballot) BallotResponse {
	return BallotResponse{
		ProposalID: b.ProposalID,
		Member:     b.Member,
		Voter:      b.Voter,
		Choice:     Choice(b.Choice),
		Timestamp:  b.Timestamp,
		Signature:  b.Signature,
		AddedAt:    b.AddedAt,
	}
}

type ResultResponse struct {
	ProposalID    common.Hash      `json:"proposalId"`
	Root          common.Hash      `json:"root"`
	RootSignature hexutil.Bytes    `json:"rootSignature"`
	Submitter     common.Address   `json:"submitter"`
	Domain        typeddata.Domain `json:"domain"`
	NbYes         string           `json:"nbYes"`
	NbNo          string           `json:"nbNo"`
	Outcome       string           `json:"outcome"`
	Snapshot      uint64           `json:"snapshot"`
	Steps         int              `json:"steps"`
	CreatedAt     time.Time        `json:"createdAt"`
}

func newResultResponse(res *database.StoredResult) ResultResponse {
	ret := ResultResponse{
		ProposalID:    res.ProposalID,
		Root:          res.Root,
		RootSignature: res.RootSignature,
		Submitter:     res.Submitter,
		Domain:        res.Domain,
		NbYes:         "0",
		NbNo:          "0",
		Outcome:       res.Outcome.String(),
		Snapshot:      res.Snapshot,
		Steps:         len(res.Steps),
		CreatedAt:     res.CreatedAt,
	}
	if res.LastStep.NbYes != nil {
		ret.NbYes = res.LastStep.NbYes.Dec()
	}
	if res.LastStep.NbNo != nil {
		ret.NbNo = res.LastStep.NbNo.Dec()
	}
	return ret
}

type StepResponse struct {
	Index      uint32         `json:"index"`
	Account    common.Address `json:"account"`
	ProposalID common.Hash    `json:"proposalId"`
	Choice     Choice         `json:"choice"`
	Timestamp  uint64         `json:"timestamp"`
	Signature  hexutil.Bytes  `json:"signature"`
	NbYes      string         `json:"nbYes"`
	NbNo       string         `json:"nbNo"`
	Leaf       common.Hash    `json:"leaf"`
	Root       common.Hash    `json:"root"`
	Proof      []common.Hash  `json:"proof"`
}

// HashRequest is the body of POST /v1/hash
type HashRequest struct {
	Message typeddata.Message `json:"message"`
	Domain  typeddata.Domain  `json:"domain"`
}

type HashResponse struct {
	Kind            typeddata.Kind      `json:"type"`
	DomainSeparator common.Hash         `json:"domainSeparator"`
	StructHash      common.Hash         `json:"structHash"`
	Digest          common.Hash         `json:"digest"`
	TypedData       typeddata.TypedData `json:"typedData"`
}

// ReportResponse is a verifier report with its verdict
type ReportResponse struct {
	*verifier.Report
	Accepted bool `json:"accepted"`
}
