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

// Package monitor watches the simulator's process lifecycle and ties
// companion addon processes to it: a background poll loop detects simulator
// start/stop edges, tracks addon processes by executable identity, and
// terminates auto-close addons when the simulator exits.
package monitor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Errandil85/MSFS-Startup-Manager/internal/ps"
)

// State is the monitor's lifecycle state.
type State int32

const (
	// StateStopped means no poll loop is running.
	StateStopped State = iota
	// StateWaitingForSimulator means the loop is polling but the simulator
	// has not been seen yet (or has stopped).
	StateWaitingForSimulator
	// StateMonitoring means the simulator is running and addons are
	// tracked against it.
	StateMonitoring
	// StateCleaningUp means a stop edge fired and tracked addons are being
	// terminated.
	StateCleaningUp
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateWaitingForSimulator:
		return "waiting-for-simulator"
	case StateMonitoring:
		return "monitoring"
	case StateCleaningUp:
		return "cleaning-up"
	default:
		return "unknown"
	}
}

// ErrPathUnresolved is returned by RegisterAddon when the executable path
// does not resolve on disk. The registration still takes effect; matching
// degrades to name-only, which can claim unrelated processes that share the
// executable name.
var ErrPathUnresolved = errors.New("executable path not resolvable, matching degraded to name-only")

// AddonProcessStatus describes one tracked pid for status reporting.
type AddonProcessStatus struct {
	Addon  string
	PID    int32
	Name   string
	Uptime time.Duration
}

// Status is a point-in-time view of the monitor, accurate to the last
// completed poll.
type Status struct {
	State            State
	SimulatorRunning bool
	SimulatorPIDs    []int32
	TrackedProcesses int
	Processes        []AddonProcessStatus
}

// Monitor owns all tracking state and the poll goroutine. Construct with
// New, control with Start/Stop, dispose with Close. All methods are safe to
// call from any goroutine.
type Monitor struct {
	conf *Config
	trk  *tracker
	term *terminator
	disp *dispatcher

	// snapshot is swapped in tests to feed synthetic process tables.
	snapshot func() ([]ps.ProcessRecord, error)

	mu      sync.Mutex // guards the lifecycle fields below
	running bool
	det     *detector
	stopCh  chan struct{}
	done    chan struct{}

	simMu   sync.RWMutex
	lastSim simState

	state     atomic.Int32
	heartbeat atomic.Int64 // unix nanos of the last tick start
}

// New validates conf and builds a stopped monitor. Subscriptions and addon
// registrations may happen before Start.
func New(conf *Config) (*Monitor, error) {
	if conf == nil {
		conf = DefaultConfig()
	}
	if err := VerifyConfig(conf); err != nil {
		return nil, err
	}
	term, err := newTerminator(conf)
	if err != nil {
		return nil, err
	}
	m := &Monitor{
		conf:     conf,
		trk:      newTracker(),
		term:     term,
		disp:     newDispatcher(conf.EventQueueSize),
		snapshot: ps.Snapshot,
	}
	m.state.Store(int32(StateStopped))
	return m, nil
}

// Subscribe registers a callback for lifecycle events and returns its
// cancel function. Callbacks run on a dedicated dispatch goroutine in event
// order; they must not block for long.
func (m *Monitor) Subscribe(fn func(Event)) func() {
	return m.disp.subscribe(fn)
}

// Start begins monitoring the given simulator edition. Idempotent: starting
// a running monitor is a no-op. A restart after Stop waits for the previous
// loop to finish its cleanup first. An immediate snapshot decides whether
// the loop starts out monitoring or waiting.
func (m *Monitor) Start(edition string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		internalLogger.debugf("monitor already running")
		return nil
	}
	if m.done != nil {
		// A previous loop may still be inside its final cleanup; let it
		// settle so it cannot clobber the new loop's state.
		<-m.done
	}
	names, ok := m.conf.Editions[edition]
	if !ok {
		return fmt.Errorf("unknown simulator edition %q", edition)
	}
	m.det = newDetector(names, m.conf.StopDebouncePolls)

	runningNow := false
	if snap, err := m.snapshot(); err == nil {
		runningNow = m.det.peek(snap)
	} else {
		internalLogger.warnf("initial snapshot failed: %v", err)
	}
	if runningNow {
		m.setState(StateMonitoring)
	} else {
		m.setState(StateWaitingForSimulator)
	}

	internalLogger.infof("starting process monitor for edition %q", edition)
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.loop(m.stopCh, m.done)
	return nil
}

// Stop requests the loop to exit, waits for it, and runs a final
// termination pass over auto-terminate addons. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	internalLogger.infof("stopping process monitor")
	close(m.stopCh)
	done := m.done
	m.running = false
	m.mu.Unlock()
	<-done
}

// Close stops the monitor and releases its worker pool and event
// dispatcher. The monitor must not be reused afterwards.
func (m *Monitor) Close() {
	m.Stop()
	m.disp.close()
	m.term.release()
}

// loop is the poll worker. It observes the stop channel at the top of each
// iteration and while sleeping, and performs the final cleanup before
// exiting.
func (m *Monitor) loop(stopCh, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stopCh:
			m.finalCleanup()
			return
		default:
		}
		sleep := m.tick()
		select {
		case <-stopCh:
			m.finalCleanup()
			return
		case <-time.After(sleep):
		}
	}
}

// tick performs one poll cycle and returns the sleep before the next one.
// A panic inside the cycle is contained here; the loop continues after the
// error sleep.
func (m *Monitor) tick() (sleep time.Duration) {
	sleep = m.conf.PollInterval
	defer func() {
		if r := recover(); r != nil {
			internalLogger.errorf("poll tick panic: %v", r)
			sleep = m.conf.ErrorSleep
		}
	}()

	start := time.Now()
	m.heartbeat.Store(start.UnixNano())

	snap, err := m.takeSnapshot()
	if err != nil {
		// Treat the cycle as an empty process table. With the default
		// single-poll stop debounce this can declare a false stop; see
		// Config.StopDebouncePolls.
		snapshotErrors.Inc()
		internalLogger.warnf("process enumeration failed, treating snapshot as empty: %v", err)
		snap = nil
	}

	cur, simStarted, simStopped := m.det.observe(snap)
	m.storeSim(cur)
	for _, name := range simStarted {
		internalLogger.infof("simulator %s started", name)
		m.publish(Event{Type: EventSimulatorStarted, Name: name})
	}
	if cur.running && m.State() == StateWaitingForSimulator {
		m.setState(StateMonitoring)
	} else if !cur.running && len(simStopped) == 0 && m.State() == StateMonitoring {
		// The simulator vanished between the initial snapshot and the first
		// observed edge; the detector never saw it running, so no stop edge
		// will fire. Correct the state instead of reporting monitoring
		// forever.
		m.setState(StateWaitingForSimulator)
	}

	addStarted, addStopped := m.trk.refresh(snap)
	for _, ev := range addStarted {
		internalLogger.infof("addon %q process %d started", ev.addon, ev.pid)
		m.publish(Event{Type: EventAddonStarted, Name: ev.addon, PID: ev.pid})
	}
	for _, ev := range addStopped {
		internalLogger.infof("addon %q process %d ended naturally", ev.addon, ev.pid)
		m.publish(Event{Type: EventAddonStopped, Name: ev.addon, PID: ev.pid})
	}

	if len(simStopped) > 0 {
		for _, name := range simStopped {
			internalLogger.infof("simulator %s stopped", name)
			m.publish(Event{Type: EventSimulatorStopped, Name: name})
		}
		m.setState(StateCleaningUp)
		n := m.term.terminateBatch(m.trk.takeAutoTerminate(), m.publishTerminated)
		internalLogger.infof("terminated %d addon processes", n)
		if m.conf.Instrumenter != nil {
			m.conf.Instrumenter.ObserveTermination(n)
		}
		m.setState(StateWaitingForSimulator)
	}

	pollTicks.Inc()
	d := time.Since(start)
	tickDuration.Observe(d.Seconds())
	if m.conf.Instrumenter != nil {
		m.conf.Instrumenter.ObserveTick(d)
	}
	return sleep
}

// takeSnapshot enumerates processes, retrying transient failures a couple
// of times within the tick before giving up on the cycle.
func (m *Monitor) takeSnapshot() ([]ps.ProcessRecord, error) {
	var snap []ps.ProcessRecord
	op := func() error {
		var err error
		snap, err = m.snapshot()
		return err
	}
	err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 2))
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// finalCleanup runs the termination policy once more on shutdown.
func (m *Monitor) finalCleanup() {
	batch := m.trk.takeAutoTerminate()
	if len(batch) > 0 {
		internalLogger.infof("final cleanup of tracked addon processes")
		m.setState(StateCleaningUp)
		m.term.terminateBatch(batch, m.publishTerminated)
	}
	m.setState(StateStopped)
}

// RegisterAddon registers an addon for tracking (and, when autoTerminate is
// set, for termination on simulator stop). Re-registering a name replaces
// the previous registration. Returns ErrPathUnresolved when path does not
// resolve on disk; the registration is still in effect then, matching by
// name only.
func (m *Monitor) RegisterAddon(name, path string, autoTerminate bool) error {
	if name == "" {
		return errors.New("addon name must not be empty")
	}
	if path == "" {
		return errors.New("addon executable path must not be empty")
	}
	if m.trk.register(name, path, autoTerminate) {
		return ErrPathUnresolved
	}
	return nil
}

// UnregisterAddon removes an addon from monitoring. When its registration
// was marked auto-terminate, its tracked processes are terminated; the
// number of processes ended is returned.
func (m *Monitor) UnregisterAddon(name string) int {
	records, autoTerminate := m.trk.unregister(name)
	if !autoTerminate || len(records) == 0 {
		return 0
	}
	return m.term.terminatePids(name, records, m.publishTerminated)
}

// TerminateAddon manually terminates the addon's tracked processes,
// regardless of its auto-terminate flag, and returns how many ended.
// Idempotent: a second call with no process changes returns 0.
func (m *Monitor) TerminateAddon(name string) int {
	records := m.trk.take(name)
	if len(records) == 0 {
		return 0
	}
	return m.term.terminatePids(name, records, m.publishTerminated)
}

// State returns the monitor's current lifecycle state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// IsSimulatorRunning reports the latest-known simulator state, accurate to
// the last completed poll.
func (m *Monitor) IsSimulatorRunning() bool {
	m.simMu.RLock()
	defer m.simMu.RUnlock()
	return m.lastSim.running
}

// AddonProcessCount returns how many pids are currently tracked for the
// addon.
func (m *Monitor) AddonProcessCount(name string) int {
	return m.trk.processCount(name)
}

// RunningAddonNames lists the addons with at least one tracked process.
func (m *Monitor) RunningAddonNames() []string {
	return m.trk.runningNames()
}

// Status returns a consistent point-in-time view for presentation.
func (m *Monitor) Status() Status {
	m.simMu.RLock()
	sim := m.lastSim
	m.simMu.RUnlock()

	st := Status{
		State:            m.State(),
		SimulatorRunning: sim.running,
		SimulatorPIDs:    append([]int32(nil), sim.pids...),
	}
	now := time.Now()
	for _, ap := range m.trk.trackedRecords() {
		for _, rec := range ap.pids {
			st.Processes = append(st.Processes, AddonProcessStatus{
				Addon:  ap.addon,
				PID:    rec.PID,
				Name:   rec.Name,
				Uptime: now.Sub(rec.ObservedAt),
			})
		}
	}
	st.TrackedProcesses = len(st.Processes)
	return st
}

func (m *Monitor) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		internalLogger.debugf("monitor state %s -> %s", old, s)
		m.publish(Event{Type: EventStateChanged, From: old, To: s})
	}
}

func (m *Monitor) storeSim(s simState) {
	m.simMu.Lock()
	m.lastSim = s
	m.simMu.Unlock()
}

func (m *Monitor) publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.disp.publish(e)
}

func (m *Monitor) publishTerminated(addon string, pid int32) {
	m.publish(Event{Type: EventAddonTerminated, Name: addon, PID: pid})
}

// lastTick returns when the poll loop last started a tick.
func (m *Monitor) lastTick() time.Time {
	ns := m.heartbeat.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
