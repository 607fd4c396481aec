// Copyright 2026 The XA Coordinator Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics defines the coordinator's prometheus instrumentation:
// package-level Vec variables registered once via init, namespaced
// under "xa".
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CommandTotal counts every XA command handled, by command name and
	// outcome ("ok" or an xaerr mnemonic).
	CommandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xa",
			Subsystem: "coordinator",
			Name:      "command_total",
			Help:      "Total number of XA commands handled, by command and result.",
		}, []string{"command", "result"})

	// RecoveryDecisionTotal counts each decision the RecoveryResolver
	// made during a startup scan, by decision.
	RecoveryDecisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xa",
			Subsystem: "recovery",
			Name:      "decision_total",
			Help:      "Total number of recovery decisions made at startup, by decision.",
		}, []string{"decision"})

	// CachedBranches reports the number of branches currently held in
	// the TransactionCache.
	CachedBranches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xa",
			Subsystem: "coordinator",
			Name:      "cached_branches",
			Help:      "Current number of branches held in the transaction cache.",
		})

	// CommitLockWaitSeconds tracks how long the foreign-XID finalize
	// sequence waited to acquire the MDL commit lock.
	CommitLockWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "xa",
			Subsystem: "coordinator",
			Name:      "commit_lock_wait_seconds",
			Help:      "Bucketed histogram of time spent waiting for the MDL commit lock.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.0, 16),
		})
)

func init() {
	prometheus.MustRegister(CommandTotal, RecoveryDecisionTotal, CachedBranches, CommitLockWaitSeconds)
}
