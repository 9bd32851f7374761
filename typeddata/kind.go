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

// Package typeddata implements the typed structured messages signed by DAO
// members off-chain: the per-kind field schemas, the signing domain, the
// canonical form of a raw message and the EIP-712 digest computed over it.
package typeddata

import (
	"fmt"
)

// Kind identifies one of the fixed message layouts
type Kind uint8

const (
	KindUnknown Kind = iota
	KindProposal
	KindDraft
	KindVote
	KindVoteStep
	KindResult
	KindCoupon
	KindCouponKyc
)

var kindNames = map[Kind]string{
	KindProposal:  "proposal",
	KindDraft:     "draft",
	KindVote:      "vote",
	KindVoteStep:  "vote-step",
	KindResult:    "result",
	KindCoupon:    "coupon",
	KindCouponKyc: "coupon-kyc",
}

// Kinds returns every supported message kind
func Kinds() []Kind {
	return []Kind{
		KindProposal,
		KindDraft,
		KindVote,
		KindVoteStep,
		KindResult,
		KindCoupon,
		KindCouponKyc,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid returns true for the supported message kinds
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind returns the Kind with the given name
func ParseKind(name string) (Kind, error) {
	for k, v := range kindNames {
		if v == name {
			return k, nil
		}
	}
	return KindUnknown, &UnsupportedMessageKindError{Kind: name}
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, &UnsupportedMessageKindError{Kind: k.String()}
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	tmp, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = tmp
	return nil
}
