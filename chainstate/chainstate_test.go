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

package chainstate

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testRegistry = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testBank     = common.HexToAddress("0x5555555555555555555555555555555555555555")
	memberA      = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	memberB      = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	delegateB    = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
)

func TestConfigKeys(t *testing.T) {
	assert.Equal(
		t,
		common.HexToHash("0x5747c91a28cbec9252486e322546a68a0eb195f6f01518b0442207980ad3884c"),
		VotingPeriodKey,
	)
	assert.Equal(
		t,
		common.HexToHash("0x2324ddf5530d2241228494f4f2da5f930e5133943b8dd5669a10fe763085bf8c"),
		GracePeriodKey,
	)
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := NewStatic().
		AddMember(memberA, uint256.NewInt(3)).
		AddMember(memberB, uint256.NewInt(0)).
		SetDelegate(memberB, delegateB).
		SetConfiguration(VotingPeriodKey, 600).
		SetAddressConfiguration(common.HexToHash("0x01"), testBank).
		SetSnapshot(42)

	block, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), block)

	members, err := s.Members(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{memberA, memberB}, members)

	w, err := s.VotingWeight(ctx, memberA, block)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), w.Uint64())
	w, err = s.VotingWeight(ctx, common.Address{}, block)
	require.NoError(t, err)
	assert.True(t, w.IsZero())

	key, err := s.DelegateKey(ctx, memberA, block)
	require.NoError(t, err)
	assert.Equal(t, memberA, key)
	key, err = s.DelegateKey(ctx, memberB, block)
	require.NoError(t, err)
	assert.Equal(t, delegateB, key)

	grace, err := VotingWindow(ctx, s, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1600), grace)

	_, err = s.GetConfiguration(ctx, GracePeriodKey)
	assert.ErrorIs(t, err, ErrConfigurationNotFound)
	_, err = VotingWindow(ctx, NewStatic(), 1000)
	assert.ErrorIs(t, err, ErrConfigurationNotFound)

	addr, err := s.GetAddressConfiguration(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, testBank, addr)

	idx, err := MemberIndex(members, memberB)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	_, err = MemberIndex(members, delegateB)
	assert.ErrorIs(t, err, ErrMemberNotFound)

	weights, err := Weights(ctx, s, members, block)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), weights[0].Uint64())
	assert.True(t, weights[1].IsZero())
}

func TestVotingWindowOverflow(t *testing.T) {
	s := NewStatic().SetConfiguration(VotingPeriodKey, ^uint64(0))
	_, err := VotingWindow(context.Background(), s, 2)
	assert.ErrorIs(t, err, ErrVotingPeriodOverflow)
}

// fakeNode answers eth_blockNumber and eth_call for the registry and bank
// contracts
type fakeNode struct {
	mutex sync.Mutex
	calls map[string]int
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type callArgs struct {
	To    common.Address `json:"to"`
	Input hexutil.Bytes  `json:"input"`
	Data  hexutil.Bytes  `json:"data"`
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var result any
	switch req.Method {
	case "eth_blockNumber":
		result = hexutil.Uint64(77)
	case "eth_call":
		var args callArgs
		if err := json.Unmarshal(req.Params[0], &args); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := args.Input
		if len(data) == 0 {
			data = args.Data
		}
		out, err := f.call(args.To, data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result = hexutil.Bytes(out)
	default:
		http.Error(w, "unsupported method", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  result,
	})
}

func (f *fakeNode) call(to common.Address, data []byte) ([]byte, error) {
	contract := registryABI
	if to == testBank {
		contract = bankABI
	}
	method, err := contract.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	f.mutex.Lock()
	f.calls[method.Name]++
	f.mutex.Unlock()
	return f.answer(method, args)
}

func (f *fakeNode) answer(method *abi.Method, args []any) ([]byte, error) {
	switch method.Name {
	case "getConfiguration":
		key := common.Hash(args[0].([32]byte))
		if key == VotingPeriodKey {
			return method.Outputs.Pack(big.NewInt(3600))
		}
		return method.Outputs.Pack(big.NewInt(0))
	case "getAddressConfiguration":
		return method.Outputs.Pack(testBank)
	case "getNbMembers":
		return method.Outputs.Pack(big.NewInt(2))
	case "getMemberAddress":
		if args[0].(*big.Int).Int64() == 0 {
			return method.Outputs.Pack(memberA)
		}
		return method.Outputs.Pack(memberB)
	case "getPriorDelegateKey":
		if args[0].(common.Address) == memberB {
			return method.Outputs.Pack(delegateB)
		}
		return method.Outputs.Pack(args[0].(common.Address))
	case "getPriorAmount":
		if args[1].(common.Address) != UnitsToken {
			return method.Outputs.Pack(big.NewInt(0))
		}
		if args[0].(common.Address) == memberA {
			return method.Outputs.Pack(big.NewInt(10))
		}
		return method.Outputs.Pack(big.NewInt(25))
	}
	return nil, nil
}

func TestRPC(t *testing.T) {
	node := &fakeNode{calls: make(map[string]int)}
	server := httptest.NewServer(node)
	defer server.Close()

	ctx := context.Background()
	reader, err := Dial(ctx, server.URL, RPCConfig{
		Registry: testRegistry,
		Bank:     testBank,
	})
	require.NoError(t, err)
	defer reader.Close()

	block, err := reader.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), block)

	members, err := reader.Members(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{memberA, memberB}, members)

	weight, err := reader.VotingWeight(ctx, memberB, block)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), weight.Uint64())

	key, err := reader.DelegateKey(ctx, memberB, block)
	require.NoError(t, err)
	assert.Equal(t, delegateB, key)
	key, err = reader.DelegateKey(ctx, memberA, block)
	require.NoError(t, err)
	assert.Equal(t, memberA, key)

	grace, err := VotingWindow(ctx, reader, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(3700), grace)

	addr, err := reader.GetAddressConfiguration(ctx, common.HexToHash("0x02"))
	require.NoError(t, err)
	assert.Equal(t, testBank, addr)

	node.mutex.Lock()
	defer node.mutex.Unlock()
	assert.Equal(t, 2, node.calls["getMemberAddress"])
	assert.Equal(t, 1, node.calls["getNbMembers"])
}

func TestRPCMissingBank(t *testing.T) {
	reader := NewRPC(nil, RPCConfig{Registry: testRegistry})
	_, err := reader.VotingWeight(context.Background(), memberA, 1)
	assert.ErrorIs(t, err, ErrMissingBank)
}
