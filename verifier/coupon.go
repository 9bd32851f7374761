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

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrIncompleteCoupon = errors.New("coupon amount and nonce are required")

var (
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract,address actionId)",
	))
	couponTypeHash = crypto.Keccak256Hash([]byte(
		"Message(address authorizedMember,uint256 amount,uint256 nonce)",
	))
)

var (
	bytes32Type = mustType("bytes32")
	uint256Type = mustType("uint256")
	addressType = mustType("address")
)

func mustType(name string) abi.Type {
	ret, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return ret
}

// HashCouponMessage computes the coupon digest the way the coupon adapter
// does on-chain, with abi.encode over each struct. It shares no code with
// typeddata.Hasher and serves as a cross-check for it.
func HashCouponMessage(
	dao common.Address,
	actionID common.Address,
	chainID uint64,
	coupon typeddata.CouponMessage,
) (common.Hash, error) {
	domainArgs := abi.Arguments{
		{Type: bytes32Type},
		{Type: bytes32Type},
		{Type: bytes32Type},
		{Type: uint256Type},
		{Type: addressType},
		{Type: addressType},
	}
	domainEnc, err := domainArgs.Pack(
		domainTypeHash,
		crypto.Keccak256Hash([]byte(typeddata.DefaultDomainName)),
		crypto.Keccak256Hash([]byte(typeddata.DefaultDomainVersion)),
		new(big.Int).SetUint64(chainID),
		dao,
		actionID,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode domain: %w", err)
	}
	if coupon.Amount == nil || coupon.Nonce == nil {
		return common.Hash{}, ErrIncompleteCoupon
	}
	msgArgs := abi.Arguments{
		{Type: bytes32Type},
		{Type: addressType},
		{Type: uint256Type},
		{Type: uint256Type},
	}
	msgEnc, err := msgArgs.Pack(
		couponTypeHash,
		coupon.AuthorizedMember,
		coupon.Amount,
		coupon.Nonce,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode coupon: %w", err)
	}
	return crypto.Keccak256Hash(
		[]byte{0x19, 0x01},
		crypto.Keccak256(domainEnc),
		crypto.Keccak256(msgEnc),
	), nil
}
