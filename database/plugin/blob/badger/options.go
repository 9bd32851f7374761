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

package badger

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type BallotStoreBadgerOptionFunc func(*BallotStoreBadger)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) BallotStoreBadgerOptionFunc {
	return func(b *BallotStoreBadger) {
		b.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(
	registry prometheus.Registerer,
) BallotStoreBadgerOptionFunc {
	return func(b *BallotStoreBadger) {
		b.promRegistry = registry
	}
}

// WithDataDir specifies the data directory to use for storage
func WithDataDir(dataDir string) BallotStoreBadgerOptionFunc {
	return func(b *BallotStoreBadger) {
		b.dataDir = dataDir
	}
}

func WithBlockCacheSize(size uint64) BallotStoreBadgerOptionFunc {
	return func(b *BallotStoreBadger) {
		b.blockCacheSize = size
	}
}

func WithIndexCacheSize(size uint64) BallotStoreBadgerOptionFunc {
	return func(b *BallotStoreBadger) {
		b.indexCacheSize = size
	}
}

// WithGc specifies whether value log garbage collection runs, and how often
func WithGc(enabled bool, interval time.Duration) BallotStoreBadgerOptionFunc {
	return func(b *BallotStoreBadger) {
		b.gcEnabled = enabled
		if interval > 0 {
			b.gcInterval = interval
		}
	}
}
