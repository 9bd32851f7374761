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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
)

// UnitsToken is the internal bank token that carries voting weight
var UnitsToken = common.HexToAddress("0x00000000000000000000000000000000000FF1CC")

const registryABIJSON = `[
{"type":"function","name":"getConfiguration","stateMutability":"view","inputs":[{"name":"key","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getAddressConfiguration","stateMutability":"view","inputs":[{"name":"key","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"getNbMembers","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getMemberAddress","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"getPriorDelegateKey","stateMutability":"view","inputs":[{"name":"memberAddr","type":"address"},{"name":"blockNumber","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}
]`

const bankABIJSON = `[
{"type":"function","name":"getPriorAmount","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"tokenAddr","type":"address"},{"name":"blockNumber","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	registryABI = mustParseABI(registryABIJSON)
	bankABI     = mustParseABI(bankABIJSON)
)

var ErrMissingBank = errors.New("bank extension address not configured")

func mustParseABI(def string) abi.ABI {
	ret, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return ret
}

// Caller is the subset of ethclient.Client used by RPC
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type RPCConfig struct {
	Logger   *slog.Logger
	Registry common.Address
	Bank     common.Address
	// Concurrency bounds parallel member lookups. Defaults to 8.
	Concurrency int
}

// RPC reads chain state from the DAO registry and bank extension contracts
// over JSON-RPC
type RPC struct {
	client Caller
	config RPCConfig
}

// Dial connects to a JSON-RPC endpoint
func Dial(ctx context.Context, url string, cfg RPCConfig) (*RPC, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewRPC(client, cfg), nil
}

func NewRPC(client Caller, cfg RPCConfig) *RPC {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "chainstate")
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &RPC{client: client, config: cfg}
}

// Close closes the underlying client if it supports it
func (r *RPC) Close() {
	if c, ok := r.client.(interface{ Close() }); ok {
		c.Close()
	}
}

func (r *RPC) Snapshot(ctx context.Context) (uint64, error) {
	return r.client.BlockNumber(ctx)
}

func (r *RPC) GetConfiguration(ctx context.Context, key common.Hash) (*uint256.Int, error) {
	var ret *big.Int
	if err := r.call(ctx, registryABI, r.config.Registry, nil, &ret, "getConfiguration", key); err != nil {
		return nil, err
	}
	v, overflow := uint256.FromBig(ret)
	if overflow {
		return nil, fmt.Errorf("configuration %s overflows uint256", key.Hex())
	}
	return v, nil
}

func (r *RPC) GetAddressConfiguration(ctx context.Context, key common.Hash) (common.Address, error) {
	var ret common.Address
	if err := r.call(ctx, registryABI, r.config.Registry, nil, &ret, "getAddressConfiguration", key); err != nil {
		return common.Address{}, err
	}
	return ret, nil
}

// Members returns the registered members in registration order
func (r *RPC) Members(ctx context.Context, snapshot uint64) ([]common.Address, error) {
	block := blockArg(snapshot)
	var count *big.Int
	if err := r.call(ctx, registryABI, r.config.Registry, block, &count, "getNbMembers"); err != nil {
		return nil, err
	}
	if !count.IsInt64() || count.Int64() > 1<<20 {
		return nil, fmt.Errorf("unreasonable member count: %s", count)
	}
	members := make([]common.Address, count.Int64())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)
	for i := range members {
		g.Go(func() error {
			return r.call(
				gctx,
				registryABI,
				r.config.Registry,
				block,
				&members[i],
				"getMemberAddress",
				big.NewInt(int64(i)),
			)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.config.Logger.Debug(
		"read member list",
		"snapshot", snapshot,
		"members", len(members),
	)
	return members, nil
}

// VotingWeight returns the member's units held in the bank at snapshot
func (r *RPC) VotingWeight(ctx context.Context, member common.Address, snapshot uint64) (*uint256.Int, error) {
	if r.config.Bank == (common.Address{}) {
		return nil, ErrMissingBank
	}
	var ret *big.Int
	err := r.call(
		ctx,
		bankABI,
		r.config.Bank,
		nil,
		&ret,
		"getPriorAmount",
		member,
		UnitsToken,
		new(big.Int).SetUint64(snapshot),
	)
	if err != nil {
		return nil, err
	}
	v, overflow := uint256.FromBig(ret)
	if overflow {
		return nil, fmt.Errorf("weight of %s overflows uint256", member.Hex())
	}
	return v, nil
}

func (r *RPC) DelegateKey(ctx context.Context, member common.Address, snapshot uint64) (common.Address, error) {
	var ret common.Address
	err := r.call(
		ctx,
		registryABI,
		r.config.Registry,
		nil,
		&ret,
		"getPriorDelegateKey",
		member,
		new(big.Int).SetUint64(snapshot),
	)
	if err != nil {
		return common.Address{}, err
	}
	return ret, nil
}

func (r *RPC) call(
	ctx context.Context,
	contract abi.ABI,
	to common.Address,
	block *big.Int,
	out any,
	method string,
	args ...any,
) error {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := r.client.CallContract(
		ctx,
		ethereum.CallMsg{To: &to, Data: data},
		block,
	)
	if err != nil {
		return fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	values, err := contract.Unpack(method, raw)
	if err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(values))
	}
	if err := assign(out, values[0]); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

func assign(out any, val any) error {
	switch o := out.(type) {
	case **big.Int:
		v, ok := val.(*big.Int)
		if !ok {
			return fmt.Errorf("unexpected type %T", val)
		}
		*o = v
	case *common.Address:
		v, ok := val.(common.Address)
		if !ok {
			return fmt.Errorf("unexpected type %T", val)
		}
		*o = v
	default:
		return fmt.Errorf("unsupported output %T", out)
	}
	return nil
}

// blockArg maps a zero snapshot to the latest block
func blockArg(snapshot uint64) *big.Int {
	if snapshot == 0 {
		return nil
	}
	return new(big.Int).SetUint64(snapshot)
}
