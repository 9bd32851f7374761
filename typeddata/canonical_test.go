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
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProposal() ProposalMessage {
	return ProposalMessage{
		Timestamp: 1700000000,
		Space:     "tribute",
		Name:      "Fund the grants program",
		Body:      "## Summary\nAllocate 100 units to grants.",
		Choices:   []string{"Yes", "No"},
		Start:     1700000100,
		End:       1700086500,
		Snapshot:  18000000,
	}
}

func TestCanonicalizeProposal(t *testing.T) {
	c, err := Canonicalize(testProposal().Message())
	require.NoError(t, err)
	assert.Equal(t, KindProposal, c.Kind())

	fields := c.Fields()
	assert.Len(t, fields, 3)
	assert.Equal(t, "1700000000", fields["timestamp"])
	assert.Equal(t, crypto.Keccak256Hash([]byte("tribute")).Hex(), fields["spaceHash"])

	payload, ok := fields["payload"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, payload, 6)
	assert.Equal(
		t,
		crypto.Keccak256Hash([]byte("Fund the grants program")).Hex(),
		payload["nameHash"],
	)
	assert.Equal(
		t,
		crypto.Keccak256Hash([]byte("## Summary\nAllocate 100 units to grants.")).Hex(),
		payload["bodyHash"],
	)
	assert.Equal(t, []any{"Yes", "No"}, payload["choices"])
	assert.Equal(t, "18000000", payload["snapshot"])
	assert.Equal(t, "1700000100", payload["start"])
	assert.Equal(t, "1700086500", payload["end"])
}

func TestCanonicalizeDeterministic(t *testing.T) {
	msg := testProposal().Message()
	first, err := Canonicalize(msg)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	for range 10 {
		again, err := Canonicalize(msg)
		require.NoError(t, err)
		againJSON, err := json.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, firstJSON, againJSON)
		assert.Equal(t, first.Fields(), again.Fields())
	}
}

func TestCanonicalizeDoesNotMutateInput(t *testing.T) {
	msg := testProposal().Message()
	before, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	c, err := Canonicalize(msg)
	require.NoError(t, err)
	after, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	_, hasName := msg.Payload["payload"].(map[string]any)["nameHash"]
	assert.False(t, hasName)

	// Mutating the returned fields does not leak into the Canonical
	fields := c.Fields()
	fields["payload"].(map[string]any)["choices"] = []any{"tampered"}
	assert.Equal(t, []any{"Yes", "No"}, c.Fields()["payload"].(map[string]any)["choices"])
}

func TestCanonicalizeIdempotent(t *testing.T) {
	for _, msg := range []Message{
		testProposal().Message(),
		DraftMessage{Timestamp: 1, Space: "s", Name: "n", Body: "b", Choices: []string{"a"}}.Message(),
		VoteMessage{Timestamp: 5, Choice: 2, ProposalID: common.HexToHash("0x01")}.Message(),
		CouponMessage{
			AuthorizedMember: common.HexToAddress("0x4444444444444444444444444444444444444444"),
			Amount:           big.NewInt(100),
			Nonce:            big.NewInt(7),
		}.Message(),
	} {
		first, err := Canonicalize(msg)
		require.NoError(t, err)
		second, err := Canonicalize(first.Message())
		require.NoError(t, err)
		assert.Equal(t, first.Fields(), second.Fields(), msg.Kind.String())
	}
}

func TestCanonicalizeMissingField(t *testing.T) {
	testDefs := []struct {
		name     string
		msg      Message
		expected string
	}{
		{
			name: "vote choice",
			msg: Message{
				Kind: KindVote,
				Payload: Payload{
					"timestamp": uint64(1),
					"payload":   map[string]any{"proposalId": common.Hash{}},
				},
			},
			expected: "payload.choice",
		},
		{
			name: "vote payload",
			msg: Message{
				Kind:    KindVote,
				Payload: Payload{"timestamp": uint64(1)},
			},
			expected: "payload",
		},
		{
			name: "proposal space",
			msg: func() Message {
				m := testProposal().Message()
				delete(m.Payload, "space")
				return m
			}(),
			expected: "space",
		},
		{
			name: "proposal body",
			msg: func() Message {
				m := testProposal().Message()
				delete(m.Payload["payload"].(map[string]any), "body")
				return m
			}(),
			expected: "payload.body",
		},
		{
			name:     "coupon nil amount",
			msg:      CouponMessage{AuthorizedMember: common.Address{1}, Nonce: big.NewInt(1)}.Message(),
			expected: "amount",
		},
		{
			name:     "result root",
			msg:      Message{Kind: KindResult, Payload: Payload{}},
			expected: "root",
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			_, err := Canonicalize(testDef.msg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingField)
			var fieldErr *MissingFieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, testDef.expected, fieldErr.Name)
		})
	}
}

func TestCanonicalizeInvalidField(t *testing.T) {
	testDefs := []struct {
		name string
		msg  Message
	}{
		{
			name: "choice too wide",
			msg: Message{
				Kind: KindVote,
				Payload: Payload{
					"timestamp": 1,
					"payload": map[string]any{
						"choice":     uint64(1) << 40,
						"proposalId": common.Hash{},
					},
				},
			},
		},
		{
			name: "negative timestamp",
			msg: Message{
				Kind: KindVote,
				Payload: Payload{
					"timestamp": -1,
					"payload":   map[string]any{"choice": 1, "proposalId": common.Hash{}},
				},
			},
		},
		{
			name: "short proposal id",
			msg: Message{
				Kind: KindVote,
				Payload: Payload{
					"timestamp": 1,
					"payload":   map[string]any{"choice": 1, "proposalId": "0x01"},
				},
			},
		},
		{
			name: "bad address",
			msg:  Message{Kind: KindCouponKyc, Payload: Payload{"kycedMember": "not-an-address"}},
		},
		{
			name: "tally over 88 bits",
			msg: VoteStepMessage{
				NbYes: new(uint256.Int).Lsh(uint256.NewInt(1), 88),
				NbNo:  uint256.NewInt(0),
			}.Message(),
		},
		{
			name: "payload not an object",
			msg: Message{
				Kind:    KindVote,
				Payload: Payload{"timestamp": 1, "payload": "choice=1"},
			},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			_, err := Canonicalize(testDef.msg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidField)
		})
	}
}

func TestCanonicalizeUnknownKind(t *testing.T) {
	_, err := Canonicalize(Message{Kind: Kind(42), Payload: Payload{}})
	assert.ErrorIs(t, err, ErrUnsupportedMessageKind)
}

func TestCanonicalizeAcceptsJSONInput(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "vote",
		"payload": {
			"timestamp": 1700000000,
			"payload": {
				"choice": 1,
				"proposalId": "0x0000000000000000000000000000000000000000000000000000000000000001"
			}
		}
	}`), &msg))
	fromJSON, err := Canonicalize(msg)
	require.NoError(t, err)
	typed, err := Canonicalize(VoteMessage{
		Timestamp:  1700000000,
		Choice:     1,
		ProposalID: common.HexToHash("0x01"),
	}.Message())
	require.NoError(t, err)
	assert.Equal(t, typed.Fields(), fromJSON.Fields())
}

func TestCanonicalizeAddressChecksum(t *testing.T) {
	raw := "0xde709f2102306220921060314715629080e2fb77"
	c, err := Canonicalize(Message{
		Kind:    KindCouponKyc,
		Payload: Payload{"kycedMember": raw},
	})
	require.NoError(t, err)
	addr, ok := c.String("kycedMember")
	require.True(t, ok)
	assert.True(t, strings.EqualFold(raw, addr))
	assert.Equal(t, common.HexToAddress(raw).Hex(), addr)
}
