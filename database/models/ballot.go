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

package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
)

// Ballot is a signed ballot as persisted in the ballot store
type Ballot struct {
	ProposalID common.Hash    `cbor:"1,keyasint"`
	Member     common.Address `cbor:"2,keyasint"`
	Voter      common.Address `cbor:"3,keyasint"`
	Choice     uint32         `cbor:"4,keyasint"`
	Timestamp  uint64         `cbor:"5,keyasint"`
	Signature  []byte         `cbor:"6,keyasint"`
	AddedAt    int64          `cbor:"7,keyasint"`
}

var ballotEncMode, _ = cbor.CoreDetEncOptions().EncMode()

// MarshalCBOR encodes the ballot with deterministic map key order
func (b *Ballot) MarshalCBOR() ([]byte, error) {
	type plain Ballot
	return ballotEncMode.Marshal((*plain)(b))
}

func (b *Ballot) UnmarshalCBOR(data []byte) error {
	type plain Ballot
	return cbor.Unmarshal(data, (*plain)(b))
}
