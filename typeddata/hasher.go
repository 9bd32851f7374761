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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultSeparatorCacheSize = 256

// TypedData is the payload handed to an external typed-data signer (wallet)
type TypedData struct {
	Types       map[string][]Field `json:"types"`
	Domain      map[string]any     `json:"domain"`
	Message     map[string]any     `json:"message"`
	PrimaryType string             `json:"primaryType"`
}

// Hasher computes EIP-712 digests of canonical messages. It is safe for
// concurrent use.
type Hasher struct {
	separators *lru.Cache[Domain, common.Hash]
}

// NewHasher returns a Hasher memoizing up to cacheSize domain separators
func NewHasher(cacheSize int) (*Hasher, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultSeparatorCacheSize
	}
	cache, err := lru.New[Domain, common.Hash](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create separator cache: %w", err)
	}
	return &Hasher{separators: cache}, nil
}

// DomainSeparator returns hashStruct(EIP712Domain) for the given domain
func (h *Hasher) DomainSeparator(d Domain) (common.Hash, error) {
	if sep, ok := h.separators.Get(d); ok {
		return sep, nil
	}
	td := apitypes.TypedData{
		Types: apitypes.Types{
			DomainType: toAPIFields(domainFields),
		},
		Domain: apiDomain(d),
	}
	raw, err := td.HashStruct(DomainType, d.fields())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash domain: %w", err)
	}
	sep := common.BytesToHash(raw)
	h.separators.Add(d, sep)
	return sep, nil
}

// HashStruct returns hashStruct(Message) of a canonical message
func (h *Hasher) HashStruct(c Canonical) (common.Hash, error) {
	schema, err := SchemaFor(c.kind)
	if err != nil {
		return common.Hash{}, err
	}
	td := apitypes.TypedData{
		Types:       schema.apiTypes(),
		PrimaryType: PrimaryType,
		// The domain only has to be non-empty to pass validation here
		Domain: apitypes.TypedDataDomain{Name: DefaultDomainName},
	}
	raw, err := td.HashStruct(PrimaryType, c.Fields())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash %s message: %w", c.kind, err)
	}
	return common.BytesToHash(raw), nil
}

// Digest returns keccak256("\x19\x01" || domainSeparator || hashStruct(message)),
// the value that is signed and that the verifier recomputes
func (h *Hasher) Digest(c Canonical, d Domain) (common.Hash, error) {
	sep, err := h.DomainSeparator(d)
	if err != nil {
		return common.Hash{}, err
	}
	structHash, err := h.HashStruct(c)
	if err != nil {
		return common.Hash{}, err
	}
	return EncodeDigest(sep, structHash), nil
}

// HashMessage canonicalizes a raw message and returns its digest
func (h *Hasher) HashMessage(msg Message, d Domain) (common.Hash, error) {
	c, err := Canonicalize(msg)
	if err != nil {
		return common.Hash{}, err
	}
	return h.Digest(c, d)
}

// TypedData returns the wallet signing payload for a canonical message
func (h *Hasher) TypedData(c Canonical, d Domain) (TypedData, error) {
	schema, err := SchemaFor(c.kind)
	if err != nil {
		return TypedData{}, err
	}
	types := make(map[string][]Field, len(schema.Types)+1)
	for name, fields := range schema.Types {
		types[name] = append([]Field{}, fields...)
	}
	types[DomainType] = DomainFields()
	domain := d.fields()
	domain["chainId"] = d.ChainID
	return TypedData{
		Types:       types,
		PrimaryType: PrimaryType,
		Domain:      domain,
		Message:     c.Fields(),
	}, nil
}

// EncodeDigest joins a domain separator and a struct hash into the final
// signed digest
func EncodeDigest(separator common.Hash, structHash common.Hash) common.Hash {
	raw := make([]byte, 0, 2+2*common.HashLength)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, separator.Bytes()...)
	raw = append(raw, structHash.Bytes()...)
	return crypto.Keccak256Hash(raw)
}

func apiDomain(d Domain) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(d.ChainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}
