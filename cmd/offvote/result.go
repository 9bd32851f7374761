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
	"fmt"
	"time"

	"github.com/blinklabs-io/offvote"
	"github.com/blinklabs-io/offvote/ballotpool"
	"github.com/blinklabs-io/offvote/database"
	"github.com/blinklabs-io/offvote/internal/config"
	"github.com/blinklabs-io/offvote/internal/node"
	"github.com/blinklabs-io/offvote/verifier"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

type resultOutput struct {
	ProposalID    common.Hash      `json:"proposalId"`
	Root          common.Hash      `json:"root"`
	RootSignature hexutil.Bytes    `json:"rootSignature"`
	Submitter     common.Address   `json:"submitter"`
	NbYes         string           `json:"nbYes"`
	NbNo          string           `json:"nbNo"`
	Outcome       string           `json:"outcome"`
	Snapshot      uint64           `json:"snapshot"`
	Steps         int              `json:"steps"`
	CreatedAt     time.Time        `json:"createdAt"`
	Report        *verifier.Report `json:"report,omitempty"`
}

func newResultOutput(res *database.StoredResult) resultOutput {
	return resultOutput{
		ProposalID:    res.ProposalID,
		Root:          res.Root,
		RootSignature: res.RootSignature,
		Submitter:     res.Submitter,
		NbYes:         res.LastStep.NbYes.Dec(),
		NbNo:          res.LastStep.NbNo.Dec(),
		Outcome:       res.Outcome.String(),
		Snapshot:      res.Snapshot,
		Steps:         len(res.Steps),
		CreatedAt:     res.CreatedAt,
	}
}

func resultCommand() *cobra.Command {
	var show bool
	var votingStart uint64
	cmd := &cobra.Command{
		Use:   "result <proposal-id>",
		Short: "Build the result of a proposal from the stored ballots",
		Long: "Build, sign and store the result of a proposal from the ballots in the " +
			"database. The database must not be in use by a running server.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			raw, err := hexutil.Decode(args[0])
			if err != nil || len(raw) != common.HashLength {
				return fmt.Errorf("invalid proposal id: %q", args[0])
			}
			proposalID := common.BytesToHash(raw)
			// No API server for a one-shot run
			offline := *cfg
			offline.ApiPort = 0
			opts, err := node.ServiceOptions(&offline, toolLogger())
			if err != nil {
				return err
			}
			svc, err := offvote.New(offvote.NewConfig(opts...))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			startErr := svc.Start(ctx)
			defer func() {
				_ = svc.Stop()
			}()
			if startErr != nil {
				return startErr
			}
			var res *database.StoredResult
			if show {
				res, err = svc.Result(proposalID)
			} else {
				res, err = svc.BuildResult(ctx, proposalID)
				if errors.Is(err, ballotpool.ErrProposalClosed) {
					return fmt.Errorf("%w (use --show to print it)", err)
				}
			}
			if err != nil {
				return err
			}
			out := newResultOutput(res)
			if cmd.Flags().Changed("voting-start") {
				out.Report, err = svc.VerifyResult(ctx, proposalID, votingStart)
				if err != nil {
					return err
				}
			}
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			if out.Report != nil && !out.Report.Accepted() {
				return errors.New("result has challengeable steps")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print the stored result instead of building one")
	cmd.Flags().Uint64Var(&votingStart, "voting-start", 0, "verify the result for a proposal whose voting started at this time")
	return cmd
}
