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

package keystore

import (
	"fmt"
	"strings"
)

// Well-known groups that must not be granted access to a key file, by SDDL
// abbreviation and by full SID
var insecureTrustees = map[string]string{
	"WD":           "Everyone",
	"S-1-1-0":      "Everyone",
	"BU":           "BUILTIN\\Users",
	"S-1-5-32-545": "BUILTIN\\Users",
	"AU":           "Authenticated Users",
	"S-1-5-11":     "Authenticated Users",
}

// daclAllowTrustees returns the trustees of the access allowed ACEs in the
// DACL of an SDDL string. ok is false when there is no DACL.
func daclAllowTrustees(sddl string) (trustees []string, ok bool) {
	idx := strings.Index(sddl, "D:")
	if idx < 0 {
		return nil, false
	}
	dacl := sddl[idx+2:]
	if end := strings.Index(dacl, "S:"); end >= 0 {
		dacl = dacl[:end]
	}
	for {
		start := strings.IndexByte(dacl, '(')
		if start < 0 {
			break
		}
		end := strings.IndexByte(dacl[start:], ')')
		if end < 0 {
			break
		}
		ace := dacl[start+1 : start+end]
		dacl = dacl[start+end+1:]
		// type;flags;rights;object;inherit;trustee
		fields := strings.Split(ace, ";")
		if len(fields) < 6 || fields[0] != "A" {
			continue
		}
		trustees = append(trustees, fields[5])
	}
	return trustees, true
}

func checkSDDL(path, sddl string) error {
	trustees, ok := daclAllowTrustees(sddl)
	if !ok {
		return fmt.Errorf("key file %q has no DACL: %w", path, ErrInsecureFileMode)
	}
	for _, trustee := range trustees {
		if name, bad := insecureTrustees[trustee]; bad {
			return fmt.Errorf(
				"key file %q grants access to %s: %w",
				path,
				name,
				ErrInsecureFileMode,
			)
		}
	}
	return nil
}
