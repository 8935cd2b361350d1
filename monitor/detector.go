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

import (
	"sort"

	"github.com/Errandil85/MSFS-Startup-Manager/internal/ps"
)

// simState is the detector's view of the simulator after one poll.
type simState struct {
	running bool
	pids    []int32
	names   map[string]string // normalized name -> name as configured
}

// detector decides whether the simulator is running, based purely on the
// presence of configured executable names in each snapshot, and computes
// the start/stop edges between consecutive polls.
type detector struct {
	watched  map[string]string // normalized name -> name as configured
	prev     simState
	absent   int // consecutive polls with no simulator process
	debounce int
}

func newDetector(names []string, debounce int) *detector {
	watched := make(map[string]string, len(names))
	for _, n := range names {
		watched[ps.NormalizeName(n)] = n
	}
	return &detector{
		watched:  watched,
		debounce: debounce,
		prev:     simState{names: map[string]string{}},
	}
}

// observe intersects the snapshot against the watched name set and returns
// the new state plus the per-name edges. started holds names that appeared
// since the previous poll; stopped is non-empty only on the running -> not
// running transition and then holds every name that disappeared.
func (d *detector) observe(snapshot []ps.ProcessRecord) (cur simState, started, stopped []string) {
	cur = simState{names: map[string]string{}}
	for _, rec := range snapshot {
		if display, ok := d.watched[ps.NormalizeName(rec.Name)]; ok {
			cur.names[ps.NormalizeName(rec.Name)] = display
			cur.pids = append(cur.pids, rec.PID)
		}
	}
	cur.running = len(cur.pids) > 0

	if cur.running {
		d.absent = 0
		for norm, display := range cur.names {
			if _, seen := d.prev.names[norm]; !seen {
				started = append(started, display)
			}
		}
		sort.Strings(started)
	} else if d.prev.running {
		d.absent++
		if d.absent < d.debounce {
			// Hold the previous state until enough consecutive absent
			// polls confirm the stop.
			cur = d.prev
			return cur, nil, nil
		}
		for _, display := range d.prev.names {
			stopped = append(stopped, display)
		}
		sort.Strings(stopped)
	}

	d.prev = cur
	return cur, started, stopped
}

// peek reports whether the snapshot contains any watched executable,
// without advancing edge state. Used for the initial state decision.
func (d *detector) peek(snapshot []ps.ProcessRecord) bool {
	for _, rec := range snapshot {
		if _, ok := d.watched[ps.NormalizeName(rec.Name)]; ok {
			return true
		}
	}
	return false
}
