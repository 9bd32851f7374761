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

//go:build windows

package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func setDACL(t *testing.T, path string, sddl string) {
	t.Helper()
	sd, err := windows.SecurityDescriptorFromString(sddl)
	require.NoError(t, err)
	dacl, _, err := sd.DACL()
	require.NoError(t, err)
	require.NoError(t, windows.SetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION|
			windows.PROTECTED_DACL_SECURITY_INFORMATION,
		nil, nil, dacl, nil,
	))
}

func currentUserSID(t *testing.T) string {
	t.Helper()
	var token windows.Token
	require.NoError(t, windows.OpenProcessToken(
		windows.CurrentProcess(),
		windows.TOKEN_QUERY,
		&token,
	))
	defer token.Close()
	user, err := token.GetTokenUser()
	require.NoError(t, err)
	return user.User.Sid.String()
}

func TestWindowsKeyFileACL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submitter.skey")
	require.NoError(t, os.WriteFile(path, []byte(testKeyJSON), 0o600))

	setDACL(t, path, fmt.Sprintf("D:P(A;;GA;;;%s)", currentUserSID(t)))
	ks := NewKeyStore(KeyStoreConfig{KeyPath: path, Signatures: testService(t)})
	require.NoError(t, ks.LoadFromFile())

	setDACL(t, path, fmt.Sprintf("D:P(A;;GA;;;%s)(A;;GR;;;WD)", currentUserSID(t)))
	ks = NewKeyStore(KeyStoreConfig{KeyPath: path, Signatures: testService(t)})
	err := ks.LoadFromFile()
	assert.ErrorIs(t, err, ErrInsecureFileMode)
	assert.Contains(t, err.Error(), "Everyone")
}
