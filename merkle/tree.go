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

// Package merkle builds the binary hash tree committed to by a vote result.
//
// Interior nodes are keccak256 over the two children concatenated in
// ascending byte order, which is the rule applied by OpenZeppelin's
// MerkleProof.verify on-chain. An unpaired node at the end of a level is
// promoted to the next level unchanged. Leaves keep the order they were
// given in.
package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrEmptyTree       = errors.New("merkle tree needs at least one leaf")
	ErrIndexOutOfRange = errors.New("leaf index out of range")
)

// Tree is an immutable Merkle tree. layers[0] holds the leaves and the last
// layer holds the root.
type Tree struct {
	layers [][]common.Hash
}

// New builds a tree over the given leaves
func New(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	layers := [][]common.Hash{slices.Clone(leaves)}
	for level := layers[0]; len(level) > 1; {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, HashPair(level[i], level[i+1]))
		}
		layers = append(layers, next)
		level = next
	}
	return &Tree{layers: layers}, nil
}

func (t *Tree) Root() common.Hash {
	return t.layers[len(t.layers)-1][0]
}

// Len returns the number of leaves
func (t *Tree) Len() int {
	return len(t.layers[0])
}

func (t *Tree) Leaf(index int) (common.Hash, error) {
	if index < 0 || index >= t.Len() {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return t.layers[0][index], nil
}

// Proof returns the sibling hashes from the leaf at index up to the root.
// Levels where the node was promoted without a sibling contribute nothing.
func (t *Tree) Proof(index int) ([]common.Hash, error) {
	if index < 0 || index >= t.Len() {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	proof := make([]common.Hash, 0, len(t.layers)-1)
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := index ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		index /= 2
	}
	return proof, nil
}

// Verify folds the proof into the leaf and compares the result to root
func Verify(root common.Hash, leaf common.Hash, proof []common.Hash) bool {
	computed := leaf
	for _, p := range proof {
		computed = HashPair(computed, p)
	}
	return computed == root
}

// HashPair returns keccak256(min(a, b) || max(a, b))
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}
