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

package types

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

const BallotKeyPrefix = "b"

// BallotProposalPrefix is the key prefix of every ballot for a proposal
func BallotProposalPrefix(proposalID common.Hash) []byte {
	return slices.Concat([]byte(BallotKeyPrefix), proposalID.Bytes())
}

func BallotKey(proposalID common.Hash, member common.Address) []byte {
	return slices.Concat(BallotProposalPrefix(proposalID), member.Bytes())
}
