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

package keystore

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	ethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	SigningKeyType        = "Secp256k1SigningKey"
	defaultKeyDescription = "Vote Result Submitter Signing Key"

	// Valid key files are well under this size
	maxKeyFileSize = 1 << 20
)

// keyFileEnvelope is the JSON layout of a plain signing key file
type keyFileEnvelope struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	KeyHex      string `json:"keyHex"`
}

type loadedKey struct {
	Description string
	Key         *ecdsa.PrivateKey
}

// loadKeyFromFile reads a signing key file. Permissions are checked on the
// open handle so the file cannot be swapped between the check and the read.
// sops documents are decrypted first. Files in the go-ethereum V3 keystore
// format are decrypted with passphrase.
func loadKeyFromFile(path string, passphrase string) (*loadedKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file %q: %w", path, err)
	}
	defer f.Close()

	if err := checkOpenFilePermissions(f); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(f, maxKeyFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %q: %w", path, err)
	}
	if isSopsEncrypted(data) {
		data, err = DecryptKeyFile(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt key file %q: %w", path, err)
		}
	}
	key, err := parseKeyFile(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %q: %w", path, err)
	}
	return key, nil
}

func parseKeyFile(data []byte, passphrase string) (*loadedKey, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("could not parse key file: %w", err)
	}
	_, lower := probe["crypto"]
	_, upper := probe["Crypto"]
	if lower || upper {
		if passphrase == "" {
			return nil, ErrPassphraseRequired
		}
		k, err := ethkeystore.DecryptKey(data, passphrase)
		if err != nil {
			return nil, fmt.Errorf("could not decrypt keystore file: %w", err)
		}
		return &loadedKey{Key: k.PrivateKey}, nil
	}
	return parseKeyEnvelope(data)
}

func parseKeyEnvelope(data []byte) (*loadedKey, error) {
	var env keyFileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("could not parse key file envelope: %w", err)
	}
	if env.Type != SigningKeyType {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyType, env.Type)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(env.KeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("could not decode key from hex: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 key: %w", err)
	}
	return &loadedKey{Description: env.Description, Key: key}, nil
}

// MarshalKeyFile renders key as a plain signing key file
func MarshalKeyFile(key *ecdsa.PrivateKey, description string) ([]byte, error) {
	if key == nil {
		return nil, ErrNoKey
	}
	if description == "" {
		description = defaultKeyDescription
	}
	return json.MarshalIndent(
		keyFileEnvelope{
			Type:        SigningKeyType,
			Description: description,
			KeyHex:      hex.EncodeToString(crypto.FromECDSA(key)),
		},
		"",
		"    ",
	)
}

// WriteKeyFile writes data to a new file readable only by its owner. An
// existing file is never overwritten.
func WriteKeyFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key file %q: %w", path, err)
	}
	return f.Close()
}
