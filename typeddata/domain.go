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
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultDomainName    = "Snapshot Message"
	DefaultDomainVersion = "4"
)

// Domain scopes a signature to one DAO, one adapter action and one chain.
// It is comparable: two domains are equal iff all fields are equal.
type Domain struct {
	Name              string         `json:"name"              yaml:"name"`
	Version           string         `json:"version"           yaml:"version"`
	ChainID           uint64         `json:"chainId"           yaml:"chainId"`
	VerifyingContract common.Address `json:"verifyingContract" yaml:"verifyingContract"`
	ActionID          common.Address `json:"actionId"          yaml:"actionId"`
}

// NewDomain returns a domain with the default name and version
func NewDomain(chainID uint64, dao common.Address, actionID common.Address) Domain {
	return Domain{
		Name:              DefaultDomainName,
		Version:           DefaultDomainVersion,
		ChainID:           chainID,
		VerifyingContract: dao,
		ActionID:          actionID,
	}
}

func (d Domain) Equal(other Domain) bool {
	return d == other
}

func (d Domain) WithActionID(actionID common.Address) Domain {
	d.ActionID = actionID
	return d
}

func (d Domain) String() string {
	return fmt.Sprintf(
		"%s/%s chain=%d contract=%s action=%s",
		d.Name,
		d.Version,
		d.ChainID,
		d.VerifyingContract.Hex(),
		d.ActionID.Hex(),
	)
}

// fields returns the domain as a typed data message
func (d Domain) fields() map[string]any {
	return map[string]any{
		"name":              d.Name,
		"version":           d.Version,
		"chainId":           strconv.FormatUint(d.ChainID, 10),
		"verifyingContract": d.VerifyingContract.Hex(),
		"actionId":          d.ActionID.Hex(),
	}
}

// Action names the DAO adapter whose address is the action id of a domain
type Action uint8

const (
	ActionVoting Action = iota + 1
	ActionCoupon
	ActionKyc
)

func (a Action) String() string {
	switch a {
	case ActionVoting:
		return "voting"
	case ActionCoupon:
		return "coupon"
	case ActionKyc:
		return "kyc"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// ActionFor returns the adapter action a message kind is signed under
func ActionFor(kind Kind) (Action, error) {
	switch kind {
	case KindProposal, KindDraft, KindVote, KindVoteStep, KindResult:
		return ActionVoting, nil
	case KindCoupon:
		return ActionCoupon, nil
	case KindCouponKyc:
		return ActionKyc, nil
	default:
		return 0, &UnsupportedMessageKindError{Kind: kind.String()}
	}
}

// DomainBinder builds the signing domain of each message kind for one DAO
type DomainBinder struct {
	Actions map[Action]common.Address
	ChainID uint64
	DAO     common.Address
}

func NewDomainBinder(chainID uint64, dao common.Address) *DomainBinder {
	return &DomainBinder{
		ChainID: chainID,
		DAO:     dao,
		Actions: make(map[Action]common.Address),
	}
}

// WithAction registers the adapter address for an action and returns the
// binder for chaining
func (b *DomainBinder) WithAction(action Action, addr common.Address) *DomainBinder {
	if b.Actions == nil {
		b.Actions = make(map[Action]common.Address)
	}
	b.Actions[action] = addr
	return b
}

// Bind returns the domain for the given message kind
func (b *DomainBinder) Bind(kind Kind) (Domain, error) {
	action, err := ActionFor(kind)
	if err != nil {
		return Domain{}, err
	}
	addr, ok := b.Actions[action]
	if !ok {
		return Domain{}, fmt.Errorf(
			"%w: %s (%s)",
			ErrNoActionForKind,
			kind,
			action,
		)
	}
	return NewDomain(b.ChainID, b.DAO, addr), nil
}
