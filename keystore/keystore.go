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

// Package keystore loads the secp256k1 key a vote result submitter signs
// with. Keys live in a plain JSON key file, a sops encrypted key file, or a
// go-ethereum V3 keystore file.
package keystore

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/offvote/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Common errors returned by KeyStore operations.
var (
	ErrKeyNotLoaded       = errors.New("signing key not loaded")
	ErrNoKeyPath          = errors.New("no signing key path configured")
	ErrNoKey              = errors.New("no signing key")
	ErrMissingSignatures  = errors.New("no signature service configured")
	ErrPassphraseRequired = errors.New("keystore file requires a passphrase")
	ErrUnknownKeyType     = errors.New("unknown key type")
	ErrInsecureFileMode   = errors.New("insecure file permissions")
)

// KeyStoreConfig holds configuration for the KeyStore.
type KeyStoreConfig struct {
	// KeyPath is the path to the signing key file
	KeyPath string
	// Passphrase decrypts a V3 keystore file. Unused for plain key files.
	Passphrase string
	Signatures *signer.Service
	Logger     *slog.Logger
}

// KeyStore holds the submitter signing key
type KeyStore struct {
	config KeyStoreConfig
	logger *slog.Logger

	mu          sync.RWMutex
	signer      *signer.LocalSigner
	description string
}

func NewKeyStore(config KeyStoreConfig) *KeyStore {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &KeyStore{
		config: config,
		logger: config.Logger.With("component", "keystore"),
	}
}

// LoadFromFile loads the signing key from the configured path
func (ks *KeyStore) LoadFromFile() error {
	if ks.config.KeyPath == "" {
		return ErrNoKeyPath
	}
	if ks.config.Signatures == nil {
		return ErrMissingSignatures
	}
	key, err := loadKeyFromFile(ks.config.KeyPath, ks.config.Passphrase)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	local, err := signer.NewLocalSigner(ks.config.Signatures, key.Key)
	if err != nil {
		return err
	}
	ks.mu.Lock()
	ks.signer = local
	ks.description = key.Description
	ks.mu.Unlock()
	ks.logger.Info(
		"signing key loaded",
		"address", local.Address().Hex(),
		"path", ks.config.KeyPath,
	)
	return nil
}

func (ks *KeyStore) IsLoaded() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.signer != nil
}

// Signer returns the loaded key as a signer.Signer
func (ks *KeyStore) Signer() (*signer.LocalSigner, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.signer == nil {
		return nil, ErrKeyNotLoaded
	}
	return ks.signer, nil
}

func (ks *KeyStore) Address() (common.Address, error) {
	s, err := ks.Signer()
	if err != nil {
		return common.Address{}, err
	}
	return s.Address(), nil
}

func (ks *KeyStore) Description() string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.description
}

// GenerateKeyFile creates a new signing key and writes it to path, sops
// encrypted when encrypt is set. The address of the new key is returned.
func GenerateKeyFile(path string, description string, encrypt bool) (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("generate key: %w", err)
	}
	if err := writeKey(path, key, description, encrypt); err != nil {
		return common.Address{}, err
	}
	return signer.AddressOf(key), nil
}

func writeKey(path string, key *ecdsa.PrivateKey, description string, encrypt bool) error {
	data, err := MarshalKeyFile(key, description)
	if err != nil {
		return err
	}
	if encrypt {
		data, err = EncryptKeyFile(data)
		if err != nil {
			return err
		}
	}
	return WriteKeyFile(path, data)
}
