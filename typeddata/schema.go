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
	"slices"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	PrimaryType = "Message"
	PayloadType = "MessagePayload"
	DomainType  = "EIP712Domain"
)

// Field is a single named, typed member of a struct type
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema is the static field layout of one message kind. Types always holds
// PrimaryType and may hold nested struct types referenced by it.
type Schema struct {
	Types map[string][]Field
	Kind  Kind
}

var domainFields = []Field{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
	{Name: "actionId", Type: "address"},
}

// DomainFields returns the field layout of the signing domain
func DomainFields() []Field {
	return slices.Clone(domainFields)
}

// SchemaFor returns the field layout for a message kind. The returned value
// is a fresh copy owned by the caller.
func SchemaFor(kind Kind) (Schema, error) {
	var types map[string][]Field
	switch kind {
	case KindProposal:
		types = map[string][]Field{
			PrimaryType: {
				{Name: "timestamp", Type: "uint64"},
				{Name: "spaceHash", Type: "bytes32"},
				{Name: "payload", Type: PayloadType},
			},
			PayloadType: {
				{Name: "nameHash", Type: "bytes32"},
				{Name: "bodyHash", Type: "bytes32"},
				{Name: "choices", Type: "string[]"},
				{Name: "start", Type: "uint64"},
				{Name: "end", Type: "uint64"},
				{Name: "snapshot", Type: "string"},
			},
		}
	case KindDraft:
		types = map[string][]Field{
			PrimaryType: {
				{Name: "timestamp", Type: "uint64"},
				{Name: "spaceHash", Type: "bytes32"},
				{Name: "payload", Type: PayloadType},
			},
			PayloadType: {
				{Name: "nameHash", Type: "bytes32"},
				{Name: "bodyHash", Type: "bytes32"},
				{Name: "choices", Type: "string[]"},
			},
		}
	case KindVote:
		types = map[string][]Field{
			PrimaryType: {
				{Name: "timestamp", Type: "uint64"},
				{Name: "payload", Type: PayloadType},
			},
			PayloadType: {
				{Name: "choice", Type: "uint32"},
				{Name: "proposalId", Type: "bytes32"},
			},
		}
	case KindVoteStep:
		types = map[string][]Field{
			PrimaryType: {
				{Name: "account", Type: "address"},
				{Name: "timestamp", Type: "uint64"},
				{Name: "nbYes", Type: "uint88"},
				{Name: "nbNo", Type: "uint88"},
				{Name: "index", Type: "uint32"},
				{Name: "choice", Type: "uint32"},
				{Name: "proposalId", Type: "bytes32"},
				{Name: "sig", Type: "bytes"},
			},
		}
	case KindResult:
		types = map[string][]Field{
			PrimaryType: {
				{Name: "root", Type: "bytes32"},
			},
		}
	case KindCoupon:
		types = map[string][]Field{
			PrimaryType: {
				{Name: "authorizedMember", Type: "address"},
				{Name: "amount", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
			},
		}
	case KindCouponKyc:
		types = map[string][]Field{
			PrimaryType: {
				{Name: "kycedMember", Type: "address"},
			},
		}
	default:
		return Schema{}, &UnsupportedMessageKindError{Kind: kind.String()}
	}
	return Schema{Kind: kind, Types: types}, nil
}

// Fields returns the fields of the primary type
func (s Schema) Fields() []Field {
	return slices.Clone(s.Types[PrimaryType])
}

// EncodeType returns the EIP-712 type string of the primary type followed by
// its referenced types in alphabetical order
func (s Schema) EncodeType() string {
	var sb strings.Builder
	writeType := func(name string) {
		sb.WriteString(name)
		sb.WriteByte('(')
		for i, f := range s.Types[name] {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(f.Type)
			sb.WriteByte(' ')
			sb.WriteString(f.Name)
		}
		sb.WriteByte(')')
	}
	writeType(PrimaryType)
	deps := make([]string, 0, len(s.Types)-1)
	for name := range s.Types {
		if name != PrimaryType {
			deps = append(deps, name)
		}
	}
	sort.Strings(deps)
	for _, dep := range deps {
		writeType(dep)
	}
	return sb.String()
}

// TypeHash returns keccak256 of the encoded primary type
func (s Schema) TypeHash() common.Hash {
	return crypto.Keccak256Hash([]byte(s.EncodeType()))
}

func (s Schema) isStruct(typ string) bool {
	_, ok := s.Types[typ]
	return ok
}

// apiTypes converts the schema plus the domain layout into the go-ethereum
// typed data representation
func (s Schema) apiTypes() apitypes.Types {
	ret := make(apitypes.Types, len(s.Types)+1)
	for name, fields := range s.Types {
		ret[name] = toAPIFields(fields)
	}
	ret[DomainType] = toAPIFields(domainFields)
	return ret
}

func toAPIFields(fields []Field) []apitypes.Type {
	ret := make([]apitypes.Type, 0, len(fields))
	for _, f := range fields {
		ret = append(ret, apitypes.Type{Name: f.Name, Type: f.Type})
	}
	return ret
}
