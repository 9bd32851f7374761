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

package typeddata

import (
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Payload is the raw, not yet canonical content of a message. Proposal,
// draft and vote messages carry their inner fields in a nested "payload"
// object.
type Payload map[string]any

// Message is a raw message of a given kind
type Message struct {
	Payload Payload `json:"payload"`
	Kind    Kind    `json:"type"`
}

type VoteMessage struct {
	Timestamp  uint64
	Choice     uint32
	ProposalID common.Hash
}

func (m VoteMessage) Message() Message {
	return Message{
		Kind: KindVote,
		Payload: Payload{
			"timestamp": m.Timestamp,
			"payload": map[string]any{
				"choice":     m.Choice,
				"proposalId": m.ProposalID,
			},
		},
	}
}

type ProposalMessage struct {
	Space     string
	Name      string
	Body      string
	Choices   []string
	Timestamp uint64
	Start     uint64
	End       uint64
	Snapshot  uint64
}

func (m ProposalMessage) Message() Message {
	return Message{
		Kind: KindProposal,
		Payload: Payload{
			"timestamp": m.Timestamp,
			"space":     m.Space,
			"payload": map[string]any{
				"name":     m.Name,
				"body":     m.Body,
				"choices":  slices.Clone(m.Choices),
				"start":    m.Start,
				"end":      m.End,
				"snapshot": m.Snapshot,
			},
		},
	}
}

type DraftMessage struct {
	Space     string
	Name      string
	Body      string
	Choices   []string
	Timestamp uint64
}

func (m DraftMessage) Message() Message {
	return Message{
		Kind: KindDraft,
		Payload: Payload{
			"timestamp": m.Timestamp,
			"space":     m.Space,
			"payload": map[string]any{
				"name":    m.Name,
				"body":    m.Body,
				"choices": slices.Clone(m.Choices),
			},
		},
	}
}

type ResultMessage struct {
	Root common.Hash
}

func (m ResultMessage) Message() Message {
	return Message{
		Kind:    KindResult,
		Payload: Payload{"root": m.Root},
	}
}

type CouponMessage struct {
	Amount           *big.Int
	Nonce            *big.Int
	AuthorizedMember common.Address
}

func (m CouponMessage) Message() Message {
	return Message{
		Kind: KindCoupon,
		Payload: Payload{
			"authorizedMember": m.AuthorizedMember,
			"amount":           m.Amount,
			"nonce":            m.Nonce,
		},
	}
}

type CouponKycMessage struct {
	KycedMember common.Address
}

func (m CouponKycMessage) Message() Message {
	return Message{
		Kind:    KindCouponKyc,
		Payload: Payload{"kycedMember": m.KycedMember},
	}
}

// VoteStepMessage is the leaf content of the vote result tree
type VoteStepMessage struct {
	NbYes      *uint256.Int
	NbNo       *uint256.Int
	Sig        []byte
	Timestamp  uint64
	Index      uint32
	Choice     uint32
	Account    common.Address
	ProposalID common.Hash
}

func (m VoteStepMessage) Message() Message {
	return Message{
		Kind: KindVoteStep,
		Payload: Payload{
			"account":    m.Account,
			"timestamp":  m.Timestamp,
			"nbYes":      m.NbYes,
			"nbNo":       m.NbNo,
			"index":      m.Index,
			"choice":     m.Choice,
			"proposalId": m.ProposalID,
			"sig":        slices.Clone(m.Sig),
		},
	}
}
