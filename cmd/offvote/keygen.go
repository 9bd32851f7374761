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

	"github.com/blinklabs-io/offvote/keystore"
	"github.com/spf13/cobra"
)

func keygenCommand() *cobra.Command {
	var description string
	var encrypt bool
	cmd := &cobra.Command{
		Use:   "keygen <path>",
		Short: "Generate a submitter key file",
		Args:  cobra.ExactArgs(1),
		// Skip config loading
		PersistentPreRun: func(*cobra.Command, []string) {},
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := keystore.GenerateKeyFile(args[0], description, encrypt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "offvote submitter key", "key description")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "encrypt the key file with sops")
	return cmd
}
