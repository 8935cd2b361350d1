/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package monitor

import "github.com/prometheus/client_golang/prometheus"

// Registry collects all monitor metrics. The surrounding application exposes
// it (e.g. via promhttp.HandlerFor) if it wants scraping; the monitor itself
// serves nothing.
var Registry = prometheus.NewRegistry()

var (
	pollTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "startupmgr_monitor_poll_ticks_total",
		Help: "Total number of completed poll ticks.",
	})
	snapshotErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "startupmgr_monitor_snapshot_errors_total",
		Help: "Total number of poll ticks whose process enumeration failed.",
	})
	terminations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "startupmgr_monitor_terminations_total",
		Help: "Total number of addon process terminations by outcome.",
	}, []string{"outcome"})
	trackedProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "startupmgr_monitor_tracked_processes",
		Help: "Number of addon pids currently tracked.",
	})
	eventDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "startupmgr_monitor_event_drops_total",
		Help: "Total number of events dropped due to a full delivery queue.",
	})
	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "startupmgr_monitor_tick_duration_seconds",
		Help:    "Poll tick duration, including any termination pass.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})
)

// Termination outcomes.
const (
	outcomeGraceful = "graceful"
	outcomeKilled   = "killed"
	outcomeFailed   = "failed"
)

func init() {
	Registry.MustRegister(
		pollTicks,
		snapshotErrors,
		terminations,
		trackedProcesses,
		eventDrops,
		tickDuration,
	)
	// A vec with no children gathers as nothing; initialize the outcome
	// series so they are scrapeable from startup.
	terminations.WithLabelValues(outcomeGraceful)
	terminations.WithLabelValues(outcomeKilled)
	terminations.WithLabelValues(outcomeFailed)
}
