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
	"fmt"

	"github.com/holiman/uint256"
)

type Outcome uint8

const (
	OutcomeTie Outcome = iota
	OutcomePass
	OutcomeFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTie:
		return "TIE"
	case OutcomePass:
		return "PASS"
	case OutcomeFail:
		return "FAIL"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "TIE":
		*o = OutcomeTie
	case "PASS":
		*o = OutcomePass
	case "FAIL":
		*o = OutcomeFail
	default:
		return fmt.Errorf("unknown outcome: %q", string(text))
	}
	return nil
}

// OutcomeOf compares the final tallies
func OutcomeOf(nbYes, nbNo *uint256.Int) Outcome {
	switch nbYes.Cmp(nbNo) {
	case 1:
		return OutcomePass
	case -1:
		return OutcomeFail
	default:
		return OutcomeTie
	}
}
