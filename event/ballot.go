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

package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	BallotAddedEventType   = EventType("ballot.added")
	BallotRemovedEventType = EventType("ballot.removed")
	ResultBuiltEventType   = EventType("result.built")
)

// BallotAddedEvent is emitted when the ballot pool admits a signed ballot
type BallotAddedEvent struct {
	ProposalID common.Hash
	Member     common.Address
	// Voter is the key that signed the ballot, the member or its delegate
	Voter  common.Address
	Choice uint32
}

// BallotRemovedEvent is emitted when a ballot leaves the pool
type BallotRemovedEvent struct {
	ProposalID common.Hash
	Member     common.Address
	Reason     string
}

// ResultBuiltEvent is emitted once a vote result has been built and its
// root signed
type ResultBuiltEvent struct {
	ProposalID common.Hash
	Root       common.Hash
	Submitter  common.Address
	NbYes      *uint256.Int
	NbNo       *uint256.Int
	Outcome    string
	Steps      int
}
