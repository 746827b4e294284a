// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package metrics exposes the appenderator's Prometheus instrumentation.
// Metrics are package-level and registered once in init, the same
// eager-registration idiom used for the VSA store's churn counters:
// registration is harmless even when no /metrics endpoint is ever served.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RowsInMemory = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "appenderator_rows_in_memory",
		Help: "Current count of rows held in memory across all live sinks.",
	})
	BytesInMemory = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "appenderator_bytes_in_memory",
		Help: "Current estimated bytes held in memory across all live sinks, including hydrant overhead.",
	})
	PersistsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appenderator_persists_total",
		Help: "Total number of persistHydrant calls that completed successfully.",
	})
	FailedPersistsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appenderator_failed_persists_total",
		Help: "Total number of persistHydrant calls whose index Persist step failed.",
	})
	HandoffsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appenderator_handoffs_total",
		Help: "Total number of segments successfully merged and pushed to deep storage.",
	})
	FailedHandoffsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appenderator_failed_handoffs_total",
		Help: "Total number of mergeAndPush calls that returned an error.",
	})
	PersistDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "appenderator_persist_duration_seconds",
		Help:    "Wall-clock duration of persistHydrant calls.",
		Buckets: prometheus.DefBuckets,
	})
	PushDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "appenderator_push_duration_seconds",
		Help:    "Wall-clock duration of mergeAndPush calls.",
		Buckets: prometheus.DefBuckets,
	})
	BackpressureWarningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appenderator_backpressure_warnings_total",
		Help: "Total number of persist submissions whose scheduling delay exceeded 1000ms.",
	})
)

func init() {
	prometheus.MustRegister(
		RowsInMemory,
		BytesInMemory,
		PersistsTotal,
		FailedPersistsTotal,
		HandoffsTotal,
		FailedHandoffsTotal,
		PersistDurationSeconds,
		PushDurationSeconds,
		BackpressureWarningsTotal,
	)
}

// ObservePersistDuration records d against the persist duration histogram.
func ObservePersistDuration(d time.Duration) { PersistDurationSeconds.Observe(d.Seconds()) }

// ObservePushDuration records d against the push duration histogram.
func ObservePushDuration(d time.Duration) { PushDurationSeconds.Observe(d.Seconds()) }
