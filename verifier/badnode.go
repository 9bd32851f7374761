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

import "fmt"

// BadNodeError classifies a vote result step the way the on-chain
// challenge logic does
type BadNodeError uint8

const (
	OK BadNodeError = iota
	WrongProposalID
	InvalidChoice
	AfterVotingPeriod
	BadSignature
	IndexOutOfBound
	VoteNotAllowed
)

var badNodeNames = map[BadNodeError]string{
	OK:                "OK",
	WrongProposalID:   "WRONG_PROPOSAL_ID",
	InvalidChoice:     "INVALID_CHOICE",
	AfterVotingPeriod: "AFTER_VOTING_PERIOD",
	BadSignature:      "BAD_SIGNATURE",
	IndexOutOfBound:   "INDEX_OUT_OF_BOUND",
	VoteNotAllowed:    "VOTE_NOT_ALLOWED",
}

func (e BadNodeError) String() string {
	if name, ok := badNodeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("BadNodeError(%d)", uint8(e))
}

func (e BadNodeError) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// BadNode is a step the verifier would accept a challenge against
type BadNode struct {
	Index uint32       `json:"index"`
	Error BadNodeError `json:"error"`
}
