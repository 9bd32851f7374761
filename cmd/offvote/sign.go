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

package main

import (
	"errors"

	"github.com/blinklabs-io/offvote/internal/config"
	"github.com/blinklabs-io/offvote/keystore"
	"github.com/blinklabs-io/offvote/signer"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type signOutput struct {
	Signer    common.Address `json:"signer"`
	Digest    common.Hash    `json:"digest"`
	Signature string         `json:"signature"`
}

func signCommand() *cobra.Command {
	var action, keyFile string
	cmd := &cobra.Command{
		Use:   "sign <message.json|->",
		Short: "Sign a message with the submitter key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			if keyFile == "" {
				keyFile = cfg.SubmitterKeyFile
			}
			if keyFile == "" {
				return errors.New("no key file given, use --key or submitterKeyFile")
			}
			msg, err := readMessage(cmd, args[0])
			if err != nil {
				return err
			}
			domain, err := messageDomain(cfg, msg.Kind(), action)
			if err != nil {
				return err
			}
			hasher, err := typeddata.NewHasher(0)
			if err != nil {
				return err
			}
			svc := signer.New(hasher)
			ks := keystore.NewKeyStore(keystore.KeyStoreConfig{
				KeyPath:    keyFile,
				Passphrase: cfg.SubmitterKeyPass,
				Signatures: svc,
				Logger:     toolLogger(),
			})
			if err := ks.LoadFromFile(); err != nil {
				return err
			}
			local, err := ks.Signer()
			if err != nil {
				return err
			}
			sig, err := local.SignTypedData(cmd.Context(), msg, domain)
			if err != nil {
				return err
			}
			digest, err := hasher.Digest(msg, domain)
			if err != nil {
				return err
			}
			return printJSON(cmd, signOutput{
				Signer:    local.Address(),
				Digest:    digest,
				Signature: signer.EncodeSignature(sig),
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "adapter address used as the domain action ID")
	cmd.Flags().StringVar(&keyFile, "key", "", "key file, defaults to the configured submitter key")
	return cmd
}
