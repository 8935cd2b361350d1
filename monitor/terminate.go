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
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Errandil85/MSFS-Startup-Manager/internal/ps"
)

// terminator applies the graceful-then-forced termination procedure to
// tracked addon processes. Individual failures (process already gone,
// access denied) never abort a batch; the result is the count of processes
// that actually ended.
type terminator struct {
	timeout  time.Duration // graceful wait before force kill
	killWait time.Duration // wait for the force kill to take effect
	probe    time.Duration // liveness re-check interval during waits

	pool *ants.Pool
}

func newTerminator(conf *Config) (*terminator, error) {
	pool, err := ants.NewPool(conf.TerminationWorkers)
	if err != nil {
		return nil, err
	}
	return &terminator{
		timeout:  conf.TerminateTimeout,
		killWait: conf.KillWait,
		probe:    conf.TerminateProbe,
		pool:     pool,
	}, nil
}

func (t *terminator) release() {
	t.pool.Release()
}

// terminateBatch runs the termination procedure for each addon of the batch
// on the worker pool and waits for all of them. Returns the total number of
// processes terminated. onTerminated, when non-nil, is invoked for every
// pid that ended.
func (t *terminator) terminateBatch(batch []addonPids, onTerminated func(addon string, pid int32)) int {
	if len(batch) == 0 {
		return 0
	}
	var total int64
	var wg sync.WaitGroup
	for _, ap := range batch {
		ap := ap
		wg.Add(1)
		job := func() {
			defer wg.Done()
			n := t.terminatePids(ap.addon, ap.pids, onTerminated)
			atomic.AddInt64(&total, int64(n))
		}
		if err := t.pool.Submit(job); err != nil {
			// Pool released or overloaded; never skip a termination.
			job()
		}
	}
	wg.Wait()
	return int(atomic.LoadInt64(&total))
}

// terminatePids ends each pid still alive: graceful signal, bounded wait,
// force kill on timeout. A pid that exited before the signal counts as a
// no-op success. Returns how many processes actually ended.
func (t *terminator) terminatePids(addon string, records []ps.ProcessRecord, onTerminated func(addon string, pid int32)) int {
	terminated := 0
	for _, rec := range records {
		if !ps.Alive(rec.PID) {
			// Already exited, nothing to do.
			continue
		}
		internalLogger.infof("terminating %s (pid %d) for addon %q", rec.Name, rec.PID, addon)
		if err := ps.Terminate(rec.PID); err != nil {
			if err == ps.ErrProcessGone {
				continue
			}
			internalLogger.warnf("terminate pid %d failed: %v", rec.PID, err)
			terminations.WithLabelValues(outcomeFailed).Inc()
			continue
		}
		if t.waitExit(rec.PID, t.timeout) {
			terminations.WithLabelValues(outcomeGraceful).Inc()
			terminated++
			if onTerminated != nil {
				onTerminated(addon, rec.PID)
			}
			continue
		}
		internalLogger.warnf("force killing %s (pid %d) for addon %q", rec.Name, rec.PID, addon)
		if err := ps.Kill(rec.PID); err != nil && err != ps.ErrProcessGone {
			internalLogger.warnf("kill pid %d failed: %v", rec.PID, err)
			terminations.WithLabelValues(outcomeFailed).Inc()
			continue
		}
		if t.waitExit(rec.PID, t.killWait) {
			terminations.WithLabelValues(outcomeKilled).Inc()
			terminated++
			if onTerminated != nil {
				onTerminated(addon, rec.PID)
			}
		} else {
			internalLogger.errorf("pid %d survived force kill", rec.PID)
			terminations.WithLabelValues(outcomeFailed).Inc()
		}
	}
	return terminated
}

// waitExit polls pid liveness until it exits or the deadline passes.
func (t *terminator) waitExit(pid int32, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !ps.Alive(pid) {
			return true
		}
		time.Sleep(t.probe)
	}
	return !ps.Alive(pid)
}
