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

package signer_test

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/blinklabs-io/offvote/signer"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known development key (hardhat account #0)
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testDAO    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	actionA    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	actionB    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testMember = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func setup(t *testing.T) (*signer.Service, *ecdsa.PrivateKey) {
	t.Helper()
	h, err := typeddata.NewHasher(0)
	require.NoError(t, err)
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	return signer.New(h), key
}

func voteCanonical(t *testing.T, choice uint32) typeddata.Canonical {
	t.Helper()
	c, err := typeddata.Canonicalize(typeddata.VoteMessage{
		Timestamp:  1700000000,
		Choice:     choice,
		ProposalID: common.HexToHash("0x01"),
	}.Message())
	require.NoError(t, err)
	return c
}

func TestAddressOf(t *testing.T) {
	_, key := setup(t)
	assert.Equal(
		t,
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		signer.AddressOf(key),
	)
}

func TestSignVerify(t *testing.T) {
	svc, key := setup(t)
	ctx := context.Background()
	domain := typeddata.NewDomain(1, testDAO, actionA)
	msg := voteCanonical(t, 1)

	sig, err := svc.Sign(ctx, msg, key, domain)
	require.NoError(t, err)
	require.Len(t, sig, signer.SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])

	assert.True(t, svc.Verify(msg, domain, sig, signer.AddressOf(key)))

	addr, err := svc.Recover(msg, domain, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.AddressOf(key), addr)

	// Deterministic nonce derivation
	again, err := svc.Sign(ctx, msg, key, domain)
	require.NoError(t, err)
	assert.Equal(t, sig, again)
}

func TestVerifyRejectsOtherMessage(t *testing.T) {
	svc, key := setup(t)
	domain := typeddata.NewDomain(1, testDAO, actionA)
	sig, err := svc.Sign(context.Background(), voteCanonical(t, 1), key, domain)
	require.NoError(t, err)
	assert.False(t, svc.Verify(voteCanonical(t, 2), domain, sig, signer.AddressOf(key)))
	assert.False(t, svc.Verify(voteCanonical(t, 1), domain, sig, testMember))
}

func TestVerifyDomainIsolation(t *testing.T) {
	svc, key := setup(t)
	msg := voteCanonical(t, 1)
	sig, err := svc.Sign(
		context.Background(),
		msg,
		key,
		typeddata.NewDomain(1, testDAO, actionA),
	)
	require.NoError(t, err)
	assert.True(t, svc.Verify(msg, typeddata.NewDomain(1, testDAO, actionA), sig, signer.AddressOf(key)))
	assert.False(t, svc.Verify(msg, typeddata.NewDomain(1, testDAO, actionB), sig, signer.AddressOf(key)))
	assert.False(t, svc.Verify(msg, typeddata.NewDomain(2, testDAO, actionA), sig, signer.AddressOf(key)))
}

func TestVerifyCaseInsensitive(t *testing.T) {
	svc, key := setup(t)
	domain := typeddata.NewDomain(1, testDAO, actionA)
	msg := voteCanonical(t, 1)
	sig, err := svc.Sign(context.Background(), msg, key, domain)
	require.NoError(t, err)
	sigHex := signer.EncodeSignature(sig)
	assert.True(t, svc.VerifyHex(msg, domain, sigHex, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"))
	assert.True(t, svc.VerifyHex(msg, domain, sigHex, "0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266"))
	assert.False(t, svc.VerifyHex(msg, domain, sigHex, "not an address"))
}

func TestVerifyMalformedSignature(t *testing.T) {
	svc, key := setup(t)
	domain := typeddata.NewDomain(1, testDAO, actionA)
	msg := voteCanonical(t, 1)
	expected := signer.AddressOf(key)

	good, err := svc.Sign(context.Background(), msg, key, domain)
	require.NoError(t, err)
	badV := append([]byte{}, good...)
	badV[64] = 9

	testDefs := []struct {
		name string
		sig  []byte
	}{
		{name: "nil", sig: nil},
		{name: "short", sig: good[:64]},
		{name: "long", sig: append(append([]byte{}, good...), 0)},
		{name: "zeros", sig: make([]byte, 65)},
		{name: "bad recovery id", sig: badV},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, svc.Verify(msg, domain, testDef.sig, expected))
			})
		})
	}
	for _, sigHex := range []string{"", "0x", "zz", "0x1234"} {
		assert.False(t, svc.VerifyHex(msg, domain, sigHex, expected.Hex()))
	}
}

func TestVerifyRejectsMalleableSignature(t *testing.T) {
	svc, key := setup(t)
	domain := typeddata.NewDomain(1, testDAO, actionA)
	msg := voteCanonical(t, 1)
	expected := signer.AddressOf(key)
	sig, err := svc.Sign(context.Background(), msg, key, domain)
	require.NoError(t, err)
	require.True(t, svc.Verify(msg, domain, sig, expected))

	// Same key and digest with s replaced by n - s and V flipped
	highS := append([]byte{}, sig...)
	s := new(big.Int).SetBytes(sig[32:64])
	s.Sub(crypto.S256().Params().N, s)
	s.FillBytes(highS[32:64])
	highS[64] = 27 + 28 - sig[64]
	rawID := append([]byte{}, sig...)
	rawID[64] -= 27

	testDefs := []struct {
		name string
		sig  []byte
	}{
		{name: "high s", sig: highS},
		{name: "raw recovery id", sig: rawID},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			assert.False(t, svc.Verify(msg, domain, testDef.sig, expected))
			_, err := svc.Recover(msg, domain, testDef.sig)
			assert.Error(t, err)
		})
	}
}

func TestCouponReplayHashesIdentically(t *testing.T) {
	svc, key := setup(t)
	domain := typeddata.NewDomain(1, testDAO, actionB)
	coupon := typeddata.CouponMessage{
		AuthorizedMember: testMember,
		Amount:           big.NewInt(100),
		Nonce:            big.NewInt(1),
	}.Message()
	c, err := typeddata.Canonicalize(coupon)
	require.NoError(t, err)
	sig, err := svc.Sign(context.Background(), c, key, domain)
	require.NoError(t, err)

	hash1, err := svc.Hasher().Digest(c, domain)
	require.NoError(t, err)
	c2, err := typeddata.Canonicalize(coupon)
	require.NoError(t, err)
	hash2, err := svc.Hasher().Digest(c2, domain)
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)
	assert.True(t, svc.Verify(c2, domain, sig, signer.AddressOf(key)))
}

func TestSignNilKeyAndCancelledContext(t *testing.T) {
	svc, key := setup(t)
	domain := typeddata.NewDomain(1, testDAO, actionA)
	_, err := svc.Sign(context.Background(), voteCanonical(t, 1), nil, domain)
	assert.ErrorIs(t, err, signer.ErrNilKey)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Sign(ctx, voteCanonical(t, 1), key, domain)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalSigner(t *testing.T) {
	svc, key := setup(t)
	ls, err := signer.NewLocalSignerFromHex(svc, "0x"+testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, signer.AddressOf(key), ls.Address())

	var s signer.Signer = ls
	domain := typeddata.NewDomain(1, testDAO, actionA)
	msg := voteCanonical(t, 2)
	sig, err := s.SignTypedData(context.Background(), msg, domain)
	require.NoError(t, err)
	assert.True(t, svc.Verify(msg, domain, sig, s.Address()))

	_, err = signer.NewLocalSignerFromHex(svc, "0xnothex")
	assert.Error(t, err)
	_, err = signer.NewLocalSigner(svc, nil)
	assert.ErrorIs(t, err, signer.ErrNilKey)
}
