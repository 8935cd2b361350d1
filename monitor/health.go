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
	"fmt"
	"time"

	"github.com/heptiolabs/healthcheck"
)

// HealthHandler returns an HTTP health handler with a liveness check bound
// to the poll loop's heartbeat. A stopped monitor is healthy (stopping is
// intentional); a running loop that has not ticked within the stall window
// is not. The stall window allows for a full termination pass, which
// legally blocks the loop.
func (m *Monitor) HealthHandler() healthcheck.Handler {
	h := healthcheck.NewHandler()
	stall := 3*m.conf.PollInterval + m.conf.TerminateTimeout + m.conf.KillWait
	h.AddLivenessCheck("poll-loop", func() error {
		if m.State() == StateStopped {
			return nil
		}
		last := m.lastTick()
		if last.IsZero() {
			// Started but no tick yet; only stale after the window.
			return nil
		}
		if age := time.Since(last); age > stall {
			return fmt.Errorf("poll loop stalled for %v", age)
		}
		return nil
	})
	return h
}
