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

// Package testutil holds synchronization helpers shared by the event bus,
// ballot pool and service tests
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds waits on asynchronous event delivery
const DefaultTimeout = time.Second

// WaitForCondition polls condition until it holds or timeout expires
func WaitForCondition(
	t *testing.T,
	condition func() bool,
	timeout time.Duration,
	msg string,
) {
	t.Helper()
	require.Eventually(t, condition, timeout, 10*time.Millisecond, msg)
}

// RequireReceive returns the next value from ch, failing the test if none
// arrives within timeout or ch is closed
func RequireReceive[T any](
	t *testing.T,
	ch <-chan T,
	timeout time.Duration,
	msg string,
) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting: %s", msg)
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for channel receive: %s", msg)
	}
	var zero T
	return zero
}

// RequireNoReceive fails the test if ch yields a value within duration
func RequireNoReceive[T any](
	t *testing.T,
	ch <-chan T,
	duration time.Duration,
	msg string,
) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value received on channel: %v: %s", v, msg)
	case <-time.After(duration):
	}
}
