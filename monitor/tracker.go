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
	"os"
	"path/filepath"
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/Errandil85/MSFS-Startup-Manager/internal/ps"
)

// registration is one addon registered for monitoring. Immutable after
// creation; re-registering a name replaces the whole value.
type registration struct {
	Name          string
	Path          string // normalized absolute path
	BaseName      string // normalized base executable name
	AutoTerminate bool

	// degraded marks a registration whose executable path could not be
	// resolved on disk; matching falls back to name-only, which may claim
	// unrelated processes that share the executable name.
	degraded bool

	order int64 // registration sequence, first-registered wins claims
}

// addonEvent is a tracker-produced start/stop observation.
type addonEvent struct {
	addon string
	pid   int32
}

// addonPids pairs an addon with a copy of its tracked records, for
// termination batches.
type addonPids struct {
	addon string
	pids  []ps.ProcessRecord
}

// tracker maintains the addon registrations and the pids currently believed
// to belong to each. Registrations are mutated from the control context
// while the poll goroutine reads them, hence the concurrent map; the
// known-pid bookkeeping is only touched under mu.
type tracker struct {
	regs cmap.ConcurrentMap[string, *registration]

	mu      sync.Mutex
	known   map[string]map[int32]ps.ProcessRecord // addon -> pid -> first observation
	claimed map[int32]string                      // pid -> owning addon
	nextOrd int64
}

func newTracker() *tracker {
	return &tracker{
		regs:    cmap.New[*registration](),
		known:   make(map[string]map[int32]ps.ProcessRecord),
		claimed: make(map[int32]string),
	}
}

// register adds or replaces an addon registration. A path that does not
// resolve on disk degrades matching to name-only; the registration still
// takes effect and the condition is surfaced through the returned flag.
func (t *tracker) register(name, path string, autoTerminate bool) (degraded bool) {
	norm := ps.NormalizePath(path)
	reg := &registration{
		Name:          name,
		Path:          norm,
		BaseName:      ps.NormalizeName(filepath.Base(path)),
		AutoTerminate: autoTerminate,
	}
	if _, err := os.Stat(path); err != nil {
		reg.degraded = true
		internalLogger.warnf("addon %q: executable path %q not resolvable, matching by name only", name, path)
	}
	t.mu.Lock()
	reg.order = t.nextOrd
	t.nextOrd++
	t.mu.Unlock()
	t.regs.Set(name, reg)
	return reg.degraded
}

// unregister removes an addon and returns its tracked records plus whether
// the registration asked for termination on teardown.
func (t *tracker) unregister(name string) (records []ps.ProcessRecord, autoTerminate bool) {
	reg, ok := t.regs.Get(name)
	t.regs.Remove(name)

	t.mu.Lock()
	defer t.mu.Unlock()
	for pid, rec := range t.known[name] {
		records = append(records, rec)
		delete(t.claimed, pid)
	}
	delete(t.known, name)
	t.syncGaugeLocked()
	if !ok {
		return records, false
	}
	return records, reg.AutoTerminate
}

// refresh diffs the snapshot against the tracked state: newly matched pids
// are claimed and vanished pids are retired. A pid never belongs to two
// addons. Claiming runs in rounds of one pid per registration, in
// registration order, so that when several same-named registrations can
// only match by name (paths unresolvable) the ambiguous pids are spread
// deterministically, first-registered first, instead of the earliest
// registration swallowing all of them.
func (t *tracker) refresh(snapshot []ps.ProcessRecord) (started, stopped []addonEvent) {
	regs := t.orderedRegs()

	ordered := append([]ps.ProcessRecord(nil), snapshot...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PID < ordered[j].PID })
	alive := make(map[int32]ps.ProcessRecord, len(ordered))
	for _, rec := range ordered {
		alive[rec.PID] = rec
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for progress := true; progress; {
		progress = false
		for _, reg := range regs {
			for _, rec := range ordered {
				if _, taken := t.claimed[rec.PID]; taken {
					continue
				}
				if !t.matches(reg, rec) {
					continue
				}
				if t.known[reg.Name] == nil {
					t.known[reg.Name] = make(map[int32]ps.ProcessRecord)
				}
				t.known[reg.Name][rec.PID] = rec
				t.claimed[rec.PID] = reg.Name
				started = append(started, addonEvent{addon: reg.Name, pid: rec.PID})
				progress = true
				break // one claim per registration per round
			}
		}
	}

	for addon, pids := range t.known {
		for pid := range pids {
			if _, ok := alive[pid]; ok {
				continue
			}
			delete(pids, pid)
			delete(t.claimed, pid)
			stopped = append(stopped, addonEvent{addon: addon, pid: pid})
		}
		if len(pids) == 0 {
			delete(t.known, addon)
		}
	}
	t.syncGaugeLocked()

	sort.Slice(started, func(i, j int) bool { return started[i].pid < started[j].pid })
	sort.Slice(stopped, func(i, j int) bool { return stopped[i].pid < stopped[j].pid })
	return started, stopped
}

// matches applies the identity rules: base name equality always, path
// equality when both sides resolved. Records without a resolvable path and
// degraded registrations fall back to name-only matching.
func (t *tracker) matches(reg *registration, rec ps.ProcessRecord) bool {
	if ps.NormalizeName(rec.Name) != reg.BaseName {
		return false
	}
	if reg.degraded || rec.Path == "" {
		return true
	}
	return ps.NormalizePath(rec.Path) == reg.Path
}

// seed force-adds a pid to an addon's tracked set, used when the caller
// launched the process itself and already knows the pid.
func (t *tracker) seed(name string, rec ps.ProcessRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if owner, taken := t.claimed[rec.PID]; taken && owner != name {
		internalLogger.warnf("pid %d already tracked by %q, not seeding for %q", rec.PID, owner, name)
		return
	}
	if t.known[name] == nil {
		t.known[name] = make(map[int32]ps.ProcessRecord)
	}
	t.known[name][rec.PID] = rec
	t.claimed[rec.PID] = name
	t.syncGaugeLocked()
}

// take removes and returns the addon's tracked records so the caller can
// terminate them. The pids are forgotten regardless of the termination
// outcome, per the termination policy.
func (t *tracker) take(name string) []ps.ProcessRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	records := make([]ps.ProcessRecord, 0, len(t.known[name]))
	for pid, rec := range t.known[name] {
		records = append(records, rec)
		delete(t.claimed, pid)
	}
	delete(t.known, name)
	t.syncGaugeLocked()
	sort.Slice(records, func(i, j int) bool { return records[i].PID < records[j].PID })
	return records
}

// takeAutoTerminate removes and returns the tracked records of every
// registration marked auto-terminate, grouped per addon.
func (t *tracker) takeAutoTerminate() []addonPids {
	var batch []addonPids
	for _, reg := range t.orderedRegs() {
		if !reg.AutoTerminate {
			continue
		}
		if records := t.take(reg.Name); len(records) > 0 {
			batch = append(batch, addonPids{addon: reg.Name, pids: records})
		}
	}
	return batch
}

// orderedRegs returns registrations in registration order so claims are
// deterministic.
func (t *tracker) orderedRegs() []*registration {
	regs := make([]*registration, 0, t.regs.Count())
	for _, reg := range t.regs.Items() {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].order < regs[j].order })
	return regs
}

// processCount reports how many pids are tracked for the addon.
func (t *tracker) processCount(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.known[name])
}

// runningNames lists addons with at least one tracked pid, sorted.
func (t *tracker) runningNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.known))
	for name := range t.known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// trackedRecords returns a copy of every tracked record, grouped per addon,
// sorted for stable presentation.
func (t *tracker) trackedRecords() []addonPids {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]addonPids, 0, len(t.known))
	for addon, pids := range t.known {
		ap := addonPids{addon: addon, pids: make([]ps.ProcessRecord, 0, len(pids))}
		for _, rec := range pids {
			ap.pids = append(ap.pids, rec)
		}
		sort.Slice(ap.pids, func(i, j int) bool { return ap.pids[i].PID < ap.pids[j].PID })
		out = append(out, ap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].addon < out[j].addon })
	return out
}

// syncGaugeLocked updates the tracked-process gauge; call with mu held.
func (t *tracker) syncGaugeLocked() {
	total := 0
	for _, pids := range t.known {
		total += len(pids)
	}
	trackedProcesses.Set(float64(total))
}
