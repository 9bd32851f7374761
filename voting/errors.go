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

package voting

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoEntries         = errors.New("no vote entries")
	ErrNilSubmitter      = errors.New("no result submitter")
	ErrBallotSignature   = errors.New("ballot signature does not match voter")
	ErrDelegateCount     = errors.New("delegate list does not match entries")
	ErrStepIndexMismatch = errors.New("step index does not match position")
	ErrMissingSignatures = errors.New("no signature service configured")
	ErrFixtureNoMembers  = errors.New("fixture has no members")
	ErrMemberOutOfRange  = errors.New("fixture member index out of range")
)

// Stage names the part of a result build that failed
type Stage string

const (
	StageValidate     Stage = "validate"
	StageVerifyBallot Stage = "verify-ballot"
	StageBuildSteps   Stage = "build-steps"
	StageHashSteps    Stage = "hash-steps"
	StageBuildTree    Stage = "build-tree"
	StageSignRoot     Stage = "sign-root"
)

// ResultBuildFailed is returned for every failed result build. MemberIndex
// is -1 when the failure is not tied to a single member.
type ResultBuildFailed struct {
	Cause       error
	Stage       Stage
	MemberIndex int
	ProposalID  common.Hash
}

func (e *ResultBuildFailed) Error() string {
	if e.MemberIndex >= 0 {
		return fmt.Sprintf(
			"build result for proposal %s: %s failed at member %d: %v",
			e.ProposalID.Hex(),
			e.Stage,
			e.MemberIndex,
			e.Cause,
		)
	}
	return fmt.Sprintf(
		"build result for proposal %s: %s failed: %v",
		e.ProposalID.Hex(),
		e.Stage,
		e.Cause,
	)
}

func (e *ResultBuildFailed) Unwrap() error {
	return e.Cause
}
