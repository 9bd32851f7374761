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

package models

import (
	"time"

	"github.com/blinklabs-io/offvote/database/types"
)

// Result is a built vote result. Hashes and addresses are stored as raw
// bytes.
type Result struct {
	ID            uint         `gorm:"primarykey"`
	ProposalID    []byte       `gorm:"uniqueIndex:idx_result_proposal_dao;size:32"`
	Dao           []byte       `gorm:"uniqueIndex:idx_result_proposal_dao;size:20"`
	DomainName    string
	DomainVersion string
	ChainID       types.Uint64 `gorm:"type:text"`
	VotingAction  []byte       `gorm:"size:20"`
	Root          []byte       `gorm:"index;size:32"`
	RootSignature []byte
	Submitter     []byte      `gorm:"size:20"`
	NbYes         types.Tally `gorm:"type:text"`
	NbNo          types.Tally `gorm:"type:text"`
	Outcome       string
	Snapshot      types.Uint64 `gorm:"type:text"`
	CreatedAt     time.Time
	Steps         []Step `gorm:"constraint:OnDelete:CASCADE"`
}

func (Result) TableName() string {
	return "result"
}

// Step is one vote step of a result, with its Merkle proof packed as
// consecutive 32 byte hashes
type Step struct {
	ID         uint         `gorm:"primarykey"`
	ResultID   uint         `gorm:"uniqueIndex:idx_step_result_index"`
	Index      uint32       `gorm:"uniqueIndex:idx_step_result_index"`
	Account    []byte       `gorm:"size:20"`
	ProposalID []byte       `gorm:"size:32"`
	Choice     uint32
	Timestamp  types.Uint64 `gorm:"type:text"`
	Signature  []byte
	NbYes      types.Tally `gorm:"type:text"`
	NbNo       types.Tally `gorm:"type:text"`
	Proof      []byte
}

func (Step) TableName() string {
	return "result_step"
}
