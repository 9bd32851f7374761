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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamePrefix = "offvote_database_ballot_"

type storeMetrics struct {
	reads  prometheus.Counter
	writes prometheus.Counter
}

func (d *BallotStoreBadger) registerMetrics() {
	factory := promauto.With(d.promRegistry)
	d.metrics = &storeMetrics{
		reads: factory.NewCounter(prometheus.CounterOpts{
			Name: metricNamePrefix + "reads_total",
			Help: "ballot records read from badger",
		}),
		writes: factory.NewCounter(prometheus.CounterOpts{
			Name: metricNamePrefix + "writes_total",
			Help: "ballot records written to badger",
		}),
	}
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricNamePrefix + "lsm_size_bytes",
			Help: "size of the badger LSM tree",
		},
		func() float64 {
			lsm, _ := d.db.Size()
			return float64(lsm)
		},
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricNamePrefix + "vlog_size_bytes",
			Help: "size of the badger value log",
		},
		func() float64 {
			_, vlog := d.db.Size()
			return float64(vlog)
		},
	)
}
