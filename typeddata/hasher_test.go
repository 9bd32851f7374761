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
	"encoding/json"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDAO    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testVoting = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testCoupon = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testMember = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(0)
	require.NoError(t, err)
	return h
}

func TestDomainSeparatorKnownValue(t *testing.T) {
	h := newTestHasher(t)
	sep, err := h.DomainSeparator(NewDomain(1, testDAO, testCoupon))
	require.NoError(t, err)
	assert.Equal(
		t,
		common.HexToHash("0x432dc5eedbae14e0230947962e88bfc6501dd3d81e581160c381b28a0d2c61ad"),
		sep,
	)
	// Served from cache the second time
	again, err := h.DomainSeparator(NewDomain(1, testDAO, testCoupon))
	require.NoError(t, err)
	assert.Equal(t, sep, again)
	assert.Equal(t, 1, h.separators.Len())
}

func TestDigestKnownValues(t *testing.T) {
	h := newTestHasher(t)
	testDefs := []struct {
		name     string
		msg      Message
		domain   Domain
		expected string
	}{
		{
			name: "coupon",
			msg: CouponMessage{
				AuthorizedMember: testMember,
				Amount:           big.NewInt(100),
				Nonce:            big.NewInt(7),
			}.Message(),
			domain:   NewDomain(1, testDAO, testCoupon),
			expected: "0xdf95a7710fa5259796be70986bee10cd609fe8073e36495254ccadee97144238",
		},
		{
			name: "vote",
			msg: VoteMessage{
				Timestamp:  1700000000,
				Choice:     1,
				ProposalID: common.HexToHash("0x01"),
			}.Message(),
			domain:   NewDomain(1337, testDAO, testVoting),
			expected: "0x944d3e84c6f2dab85b9bfdb536b11cf784cb2f8aeded00ff2146cdfe8456a029",
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			digest, err := h.HashMessage(testDef.msg, testDef.domain)
			require.NoError(t, err)
			assert.Equal(t, common.HexToHash(testDef.expected), digest)
		})
	}
}

func TestDigestDeterministic(t *testing.T) {
	h := newTestHasher(t)
	domain := NewDomain(1, testDAO, testVoting)
	c, err := Canonicalize(testProposal().Message())
	require.NoError(t, err)
	first, err := h.Digest(c, domain)
	require.NoError(t, err)

	// Concurrent callers share the separator cache
	var wg sync.WaitGroup
	results := make([]common.Hash, 16)
	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			d, err := h.Digest(c, domain)
			if err == nil {
				results[idx] = d
			}
		}(i)
	}
	wg.Wait()
	for _, d := range results {
		assert.Equal(t, first, d)
	}
}

func TestDigestDomainIsolation(t *testing.T) {
	h := newTestHasher(t)
	msg := VoteMessage{Timestamp: 1, Choice: 1, ProposalID: common.HexToHash("0xaa")}.Message()
	a, err := h.HashMessage(msg, NewDomain(1, testDAO, testVoting))
	require.NoError(t, err)
	b, err := h.HashMessage(msg, NewDomain(1, testDAO, testCoupon))
	require.NoError(t, err)
	c, err := h.HashMessage(msg, NewDomain(5, testDAO, testVoting))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDigestAllKinds(t *testing.T) {
	h := newTestHasher(t)
	domain := NewDomain(1, testDAO, testVoting)
	msgs := []Message{
		testProposal().Message(),
		DraftMessage{Timestamp: 1, Space: "s", Name: "n", Body: "b", Choices: []string{"Yes", "No"}}.Message(),
		VoteMessage{Timestamp: 1, Choice: 2, ProposalID: common.HexToHash("0x02")}.Message(),
		ResultMessage{Root: common.HexToHash("0xabcdef")}.Message(),
		CouponMessage{AuthorizedMember: testMember, Amount: big.NewInt(1), Nonce: big.NewInt(1)}.Message(),
		CouponKycMessage{KycedMember: testMember}.Message(),
		VoteStepMessage{
			Account:    testMember,
			Timestamp:  1,
			NbYes:      nil,
			NbNo:       nil,
			ProposalID: common.HexToHash("0x02"),
		}.Message(),
	}
	seen := make(map[common.Hash]Kind)
	for _, msg := range msgs {
		digest, err := h.HashMessage(msg, domain)
		if msg.Kind == KindVoteStep {
			// nil tallies are missing fields
			assert.ErrorIs(t, err, ErrMissingField)
			continue
		}
		require.NoError(t, err, msg.Kind.String())
		_, dup := seen[digest]
		assert.False(t, dup, msg.Kind.String())
		seen[digest] = msg.Kind
	}
}

func TestTypedDataPayload(t *testing.T) {
	h := newTestHasher(t)
	c, err := Canonicalize(VoteMessage{Timestamp: 1, Choice: 1, ProposalID: common.HexToHash("0x01")}.Message())
	require.NoError(t, err)
	td, err := h.TypedData(c, NewDomain(1, testDAO, testVoting))
	require.NoError(t, err)
	assert.Equal(t, PrimaryType, td.PrimaryType)
	assert.Contains(t, td.Types, DomainType)
	assert.Contains(t, td.Types, PayloadType)
	assert.Equal(t, testVoting.Hex(), td.Domain["actionId"])
	assert.Equal(t, uint64(1), td.Domain["chainId"])

	out, err := json.Marshal(td)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"primaryType":"Message"`)
}
