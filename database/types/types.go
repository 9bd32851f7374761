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

package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
)

var (
	ErrBallotNotFound = errors.New("ballot not found")
	ErrResultNotFound = errors.New("result not found")
	ErrStepNotFound   = errors.New("result step not found")
)

// Tally is a vote tally stored as a decimal string
//
//nolint:recvcheck
type Tally struct {
	*uint256.Int
}

func NewTally(v *uint256.Int) Tally {
	if v == nil {
		return Tally{Int: new(uint256.Int)}
	}
	return Tally{Int: v.Clone()}
}

func (t Tally) Value() (driver.Value, error) {
	if t.Int == nil {
		return "0", nil
	}
	return t.Dec(), nil
}

func (t *Tally) Scan(val any) error {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf(
			"value was not expected type, wanted string, got %T",
			val,
		)
	}
	tmp, err := uint256.FromDecimal(s)
	if err != nil {
		return fmt.Errorf("failed to parse tally %q: %w", s, err)
	}
	t.Int = tmp
	return nil
}

// Uint64 is stored as a decimal string since sqlite integers are signed
//
//nolint:recvcheck
type Uint64 uint64

func (u Uint64) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(u), 10), nil
}

func (u *Uint64) Scan(val any) error {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf(
			"value was not expected type, wanted string, got %T",
			val,
		)
	}
	tmpUint, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*u = Uint64(tmpUint)
	return nil
}
