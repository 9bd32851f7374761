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
	"fmt"

	"github.com/blinklabs-io/offvote/internal/config"
	"github.com/blinklabs-io/offvote/signer"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type verifyOutput struct {
	Valid     bool           `json:"valid"`
	Expected  string         `json:"expected"`
	Recovered common.Address `json:"recovered"`
}

func verifyCommand() *cobra.Command {
	var action, signature, address string
	cmd := &cobra.Command{
		Use:   "verify <message.json|->",
		Short: "Check a message signature against an address",
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
			svc := signer.New(hasher)
			sig, err := signer.DecodeSignature(signature)
			if err != nil {
				return err
			}
			recovered, err := svc.Recover(msg, domain, sig)
			if err != nil {
				return err
			}
			out := verifyOutput{
				Valid:     svc.VerifyHex(msg, domain, signature, address),
				Expected:  address,
				Recovered: recovered,
			}
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			if !out.Valid {
				return fmt.Errorf("signature does not match %s", address)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "adapter address used as the domain action ID")
	cmd.Flags().StringVar(&signature, "signature", "", "0x encoded signature")
	cmd.Flags().StringVar(&address, "address", "", "expected signer address")
	_ = cmd.MarkFlagRequired("signature")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}
