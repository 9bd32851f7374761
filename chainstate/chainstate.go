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

// Package chainstate reads the DAO state that vote results depend on:
// configuration values, the member list and per-member weights and
// delegate keys at a snapshot block.
package chainstate

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	ErrConfigurationNotFound = errors.New("configuration value not set")
	ErrMemberNotFound        = errors.New("member not found")
	ErrVotingPeriodOverflow  = errors.New("voting period overflows timestamp")
)

// Well-known configuration keys of the off-chain voting adapter
var (
	VotingPeriodKey = ConfigKey("offchainvoting.votingPeriod")
	GracePeriodKey  = ConfigKey("offchainvoting.gracePeriod")
)

// ConfigKey returns the registry key for a configuration name
func ConfigKey(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// Reader provides the DAO state read before a result is built or checked.
// Snapshot-dependent values are read as of the given block number.
type Reader interface {
	Snapshot(ctx context.Context) (uint64, error)
	GetConfiguration(ctx context.Context, key common.Hash) (*uint256.Int, error)
	GetAddressConfiguration(ctx context.Context, key common.Hash) (common.Address, error)
	Members(ctx context.Context, snapshot uint64) ([]common.Address, error)
	VotingWeight(ctx context.Context, member common.Address, snapshot uint64) (*uint256.Int, error)
	DelegateKey(ctx context.Context, member common.Address, snapshot uint64) (common.Address, error)
}

// VotingWindow returns the time the grace period of a proposal starts, which
// is the end of its voting period
func VotingWindow(ctx context.Context, reader Reader, start uint64) (uint64, error) {
	period, err := reader.GetConfiguration(ctx, VotingPeriodKey)
	if err != nil {
		return 0, fmt.Errorf("read voting period: %w", err)
	}
	if !period.IsUint64() || period.Uint64() > math.MaxUint64-start {
		return 0, ErrVotingPeriodOverflow
	}
	return start + period.Uint64(), nil
}

// MemberIndex returns the registration index of member
func MemberIndex(members []common.Address, member common.Address) (int, error) {
	for i, m := range members {
		if m == member {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrMemberNotFound, member.Hex())
}

// Weights reads the voting weight of every member at snapshot
func Weights(
	ctx context.Context,
	reader Reader,
	members []common.Address,
	snapshot uint64,
) ([]*uint256.Int, error) {
	ret := make([]*uint256.Int, len(members))
	for i, m := range members {
		w, err := reader.VotingWeight(ctx, m, snapshot)
		if err != nil {
			return nil, fmt.Errorf("read weight of member %s: %w", m.Hex(), err)
		}
		ret[i] = w
	}
	return ret, nil
}
