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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/blinklabs-io/offvote/internal/config"
	"github.com/blinklabs-io/offvote/typeddata"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var errNoAction = errors.New("no adapter address for this message type, use --action")

// readMessage loads a raw {"type": ..., "payload": ...} message from path,
// or from stdin when path is "-"
func readMessage(cmd *cobra.Command, path string) (typeddata.Canonical, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return typeddata.Canonical{}, err
		}
		defer f.Close()
		r = f
	}
	var msg typeddata.Message
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&msg); err != nil {
		return typeddata.Canonical{}, fmt.Errorf("decode message: %w", err)
	}
	return typeddata.Canonicalize(msg)
}

// messageDomain returns the signing domain of kind for the configured DAO.
// A non-empty action overrides the adapter address.
func messageDomain(cfg *config.Config, kind typeddata.Kind, action string) (typeddata.Domain, error) {
	if cfg.ChainId == 0 || cfg.DaoAddress == "" {
		return typeddata.Domain{}, fmt.Errorf("%w: chainId and daoAddress are required", config.ErrInvalidConfig)
	}
	binder := typeddata.NewDomainBinder(cfg.ChainId, common.HexToAddress(cfg.DaoAddress))
	if cfg.VotingAction != "" {
		binder.WithAction(typeddata.ActionVoting, common.HexToAddress(cfg.VotingAction))
	}
	if action != "" {
		if !common.IsHexAddress(action) {
			return typeddata.Domain{}, fmt.Errorf("invalid action address: %q", action)
		}
		adapter, err := typeddata.ActionFor(kind)
		if err != nil {
			return typeddata.Domain{}, err
		}
		binder.WithAction(adapter, common.HexToAddress(action))
	}
	domain, err := binder.Bind(kind)
	if errors.Is(err, typeddata.ErrNoActionForKind) {
		return typeddata.Domain{}, errNoAction
	}
	return domain, err
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
