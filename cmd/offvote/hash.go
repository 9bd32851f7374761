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
	"github.com/blinklabs-io/offvote/internal/config"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type hashOutput struct {
	Kind            typeddata.Kind      `json:"type"`
	Domain          typeddata.Domain    `json:"domain"`
	DomainSeparator common.Hash         `json:"domainSeparator"`
	StructHash      common.Hash         `json:"structHash"`
	Digest          common.Hash         `json:"digest"`
	TypedData       typeddata.TypedData `json:"typedData"`
}

func hashCommand() *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "hash <message.json|->",
		Short: "Print the EIP-712 hashes of a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
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
			sep, err := hasher.DomainSeparator(domain)
			if err != nil {
				return err
			}
			structHash, err := hasher.HashStruct(msg)
			if err != nil {
				return err
			}
			typed, err := hasher.TypedData(msg, domain)
			if err != nil {
				return err
			}
			return printJSON(cmd, hashOutput{
				Kind:            msg.Kind(),
				Domain:          domain,
				DomainSeparator: sep,
				StructHash:      structHash,
				Digest:          typeddata.EncodeDigest(sep, structHash),
				TypedData:       typed,
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "adapter address used as the domain action ID")
	return cmd
}
