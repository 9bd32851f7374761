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

package signer

import (
	"context"
	"crypto/ecdsa"

	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalSigner signs with an in-process private key
type LocalSigner struct {
	service *Service
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewLocalSigner(service *Service, key *ecdsa.PrivateKey) (*LocalSigner, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	return &LocalSigner{
		service: service,
		key:     key,
		address: AddressOf(key),
	}, nil
}

// NewLocalSignerFromHex parses a hex encoded secp256k1 private key
func NewLocalSignerFromHex(service *Service, keyHex string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(keyHex))
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(service, key)
}

func (l *LocalSigner) Address() common.Address {
	return l.address
}

func (l *LocalSigner) SignTypedData(
	ctx context.Context,
	msg typeddata.Canonical,
	domain typeddata.Domain,
) ([]byte, error) {
	return l.service.Sign(ctx, msg, l.key, domain)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
