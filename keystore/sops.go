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
	"encoding/json"
	"errors"
	"fmt"
	"os"

	sopsapi "github.com/getsops/sops/v3"
	"github.com/getsops/sops/v3/aes"
	scommon "github.com/getsops/sops/v3/cmd/sops/common"
	"github.com/getsops/sops/v3/config"
	"github.com/getsops/sops/v3/decrypt"
	"github.com/getsops/sops/v3/gcpkms"
	skeys "github.com/getsops/sops/v3/keys"
	awskms "github.com/getsops/sops/v3/kms"
	jsonstore "github.com/getsops/sops/v3/stores/json"
	"github.com/getsops/sops/v3/version"
)

const (
	envGCPKMSResourceID = "OFFVOTE_GCP_KMS_RESOURCE_ID"
	envAWSKMSKeyARNs    = "OFFVOTE_AWS_KMS_KEY_ARNS"
	envAWSKMSProfile    = "OFFVOTE_AWS_KMS_PROFILE"
)

var (
	ErrAlreadyEncrypted = errors.New("key file is already sops encrypted")
	ErrNoMasterKeys     = errors.New(
		"sops requires at least one master key: set " + envGCPKMSResourceID +
			" and/or " + envAWSKMSKeyARNs,
	)
)

// isSopsEncrypted reports whether data is a sops JSON document
func isSopsEncrypted(data []byte) bool {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	_, ok := doc["sops"]
	return ok
}

// DecryptKeyFile returns the plaintext of a key file encrypted with
// EncryptKeyFile
func DecryptKeyFile(data []byte) ([]byte, error) {
	ret, err := decrypt.Data(data, "binary")
	if err != nil {
		return nil, fmt.Errorf("sops decrypt: %w", err)
	}
	return ret, nil
}

// EncryptKeyFile encrypts a key file with the KMS master keys named in the
// environment
func EncryptKeyFile(data []byte) ([]byte, error) {
	if isSopsEncrypted(data) {
		return nil, ErrAlreadyEncrypted
	}
	storeConfig := &config.JSONBinaryStoreConfig{}
	input := jsonstore.NewBinaryStore(storeConfig)
	output := jsonstore.NewBinaryStore(storeConfig)

	branches, err := input.LoadPlainFile(data)
	if err != nil {
		return nil, fmt.Errorf("load key file: %w", err)
	}
	keyGroups, err := masterKeyGroupsFromEnv()
	if err != nil {
		return nil, err
	}
	tree := sopsapi.Tree{
		Branches: branches,
		Metadata: sopsapi.Metadata{
			KeyGroups: keyGroups,
			Version:   version.Version,
		},
	}
	dataKey, errs := tree.GenerateDataKey()
	if len(errs) > 0 {
		return nil, fmt.Errorf("generate data key: %v", errs)
	}
	if err := scommon.EncryptTree(scommon.EncryptTreeOpts{
		DataKey: dataKey,
		Tree:    &tree,
		Cipher:  aes.NewCipher(),
	}); err != nil {
		return nil, fmt.Errorf("encrypt key file: %w", err)
	}
	encrypted, err := output.EmitEncryptedFile(tree)
	if err != nil {
		return nil, fmt.Errorf("emit encrypted key file: %w", err)
	}
	return encrypted, nil
}

func masterKeyGroupsFromEnv() ([]sopsapi.KeyGroup, error) {
	keyGroups := []sopsapi.KeyGroup{}
	if rid := os.Getenv(envGCPKMSResourceID); rid != "" {
		keys := []skeys.MasterKey{}
		for _, k := range gcpkms.MasterKeysFromResourceIDString(rid) {
			keys = append(keys, k)
		}
		if len(keys) > 0 {
			keyGroups = append(keyGroups, keys)
		}
	}
	if arns := os.Getenv(envAWSKMSKeyARNs); arns != "" {
		keys := []skeys.MasterKey{}
		profile := os.Getenv(envAWSKMSProfile)
		for _, k := range awskms.MasterKeysFromArnString(arns, nil, profile) {
			keys = append(keys, k)
		}
		if len(keys) > 0 {
			keyGroups = append(keyGroups, keys)
		}
	}
	if len(keyGroups) == 0 {
		return nil, ErrNoMasterKeys
	}
	return keyGroups, nil
}
