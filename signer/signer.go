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

// Package signer signs canonical typed messages with secp256k1 keys and
// recovers the signing address from a signature.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const SignatureLength = crypto.SignatureLength

var (
	ErrNilKey             = errors.New("nil signing key")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrSignatureMalformed = errors.New("malformed signature")
)

// Signer produces typed data signatures for a single address. Wallet
// integrations implement it as well as LocalSigner.
type Signer interface {
	Address() common.Address
	SignTypedData(ctx context.Context, msg typeddata.Canonical, domain typeddata.Domain) ([]byte, error)
}

// Service signs and verifies canonical messages. It holds no key material.
type Service struct {
	hasher *typeddata.Hasher
}

func New(hasher *typeddata.Hasher) *Service {
	return &Service{hasher: hasher}
}

func (s *Service) Hasher() *typeddata.Hasher {
	return s.hasher
}

// Sign returns the 65 byte [R || S || V] signature of the message digest
// with V in {27, 28}. Nonces are derived per RFC 6979, so the output is
// deterministic for a given key, message and domain.
func (s *Service) Sign(
	ctx context.Context,
	msg typeddata.Canonical,
	key *ecdsa.PrivateKey,
	domain typeddata.Domain,
) ([]byte, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest, err := s.hasher.Digest(msg, domain)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("sign %s message: %w", msg.Kind(), err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the address that produced sig over the message
func (s *Service) Recover(
	msg typeddata.Canonical,
	domain typeddata.Domain,
	sig []byte,
) (common.Address, error) {
	digest, err := s.hasher.Digest(msg, domain)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverDigest(digest, sig)
}

// Verify reports whether sig was produced over the message by expected.
// Malformed input yields false.
func (s *Service) Verify(
	msg typeddata.Canonical,
	domain typeddata.Domain,
	sig []byte,
	expected common.Address,
) bool {
	addr, err := s.Recover(msg, domain, sig)
	if err != nil {
		return false
	}
	return SameAddress(addr.Hex(), expected.Hex())
}

// VerifyHex is Verify for a 0x encoded signature and a textual address
func (s *Service) VerifyHex(
	msg typeddata.Canonical,
	domain typeddata.Domain,
	sig string,
	expected string,
) bool {
	raw, err := DecodeSignature(sig)
	if err != nil {
		return false
	}
	if !common.IsHexAddress(expected) {
		return false
	}
	addr, err := s.Recover(msg, domain, raw)
	if err != nil {
		return false
	}
	return SameAddress(addr.Hex(), expected)
}

// RecoverDigest recovers the signer of a 65 byte signature over a digest.
// V must be 27 or 28 and s must be in the lower half of the curve order,
// as enforced by ECDSA.recover on chain.
func RecoverDigest(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf(
			"%w: length %d",
			ErrSignatureMalformed,
			len(sig),
		)
	}
	v := sig[crypto.RecoveryIDOffset]
	if v != 27 && v != 28 {
		return common.Address{}, fmt.Errorf(
			"%w: recovery id %d",
			ErrSignatureMalformed,
			v,
		)
	}
	r := new(big.Int).SetBytes(sig[:32])
	sv := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v-27, r, sv, true) {
		return common.Address{}, fmt.Errorf(
			"%w: signature values out of range",
			ErrInvalidSignature,
		)
	}
	tmp := make([]byte, SignatureLength)
	copy(tmp, sig)
	tmp[crypto.RecoveryIDOffset] = v - 27
	pub, err := crypto.SigToPub(digest.Bytes(), tmp)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SameAddress compares two hex addresses ignoring case
func SameAddress(a, b string) bool {
	return strings.EqualFold(
		strings.TrimPrefix(strings.ToLower(a), "0x"),
		strings.TrimPrefix(strings.ToLower(b), "0x"),
	)
}

func EncodeSignature(sig []byte) string {
	return hexutil.Encode(sig)
}

func DecodeSignature(sig string) ([]byte, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureMalformed, err)
	}
	if len(raw) != SignatureLength {
		return nil, fmt.Errorf(
			"%w: length %d",
			ErrSignatureMalformed,
			len(raw),
		)
	}
	return raw, nil
}

// AddressOf returns the address controlled by a private key
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
