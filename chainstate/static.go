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
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Static is an in-memory Reader. Snapshot block numbers are ignored.
type Static struct {
	config        map[common.Hash]*uint256.Int
	addressConfig map[common.Hash]common.Address
	weights       map[common.Address]*uint256.Int
	delegates     map[common.Address]common.Address
	members       []common.Address
	block         uint64
	mutex         sync.RWMutex
}

func NewStatic() *Static {
	return &Static{
		config:        make(map[common.Hash]*uint256.Int),
		addressConfig: make(map[common.Hash]common.Address),
		weights:       make(map[common.Address]*uint256.Int),
		delegates:     make(map[common.Address]common.Address),
	}
}

// AddMember registers a member at the next index with the given weight
func (s *Static) AddMember(member common.Address, weight *uint256.Int) *Static {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !slices.Contains(s.members, member) {
		s.members = append(s.members, member)
	}
	if weight == nil {
		weight = new(uint256.Int)
	}
	s.weights[member] = weight.Clone()
	return s
}

// SetDelegate sets the key that signs ballots on behalf of member
func (s *Static) SetDelegate(member common.Address, key common.Address) *Static {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.delegates[member] = key
	return s
}

func (s *Static) SetConfiguration(key common.Hash, value uint64) *Static {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.config[key] = uint256.NewInt(value)
	return s
}

func (s *Static) SetAddressConfiguration(key common.Hash, value common.Address) *Static {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.addressConfig[key] = value
	return s
}

func (s *Static) SetSnapshot(block uint64) *Static {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.block = block
	return s
}

func (s *Static) Snapshot(context.Context) (uint64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.block, nil
}

func (s *Static) GetConfiguration(_ context.Context, key common.Hash) (*uint256.Int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	v, ok := s.config[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigurationNotFound, key.Hex())
	}
	return v.Clone(), nil
}

func (s *Static) GetAddressConfiguration(_ context.Context, key common.Hash) (common.Address, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	v, ok := s.addressConfig[key]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrConfigurationNotFound, key.Hex())
	}
	return v, nil
}

func (s *Static) Members(context.Context, uint64) ([]common.Address, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return slices.Clone(s.members), nil
}

func (s *Static) VotingWeight(_ context.Context, member common.Address, _ uint64) (*uint256.Int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	w, ok := s.weights[member]
	if !ok {
		return new(uint256.Int), nil
	}
	return w.Clone(), nil
}

// DelegateKey returns the member address itself unless a delegate was set
func (s *Static) DelegateKey(_ context.Context, member common.Address, _ uint64) (common.Address, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if key, ok := s.delegates[member]; ok {
		return key, nil
	}
	return member, nil
}
