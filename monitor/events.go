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
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
)

// EventType identifies a lifecycle event raised by the monitor.
type EventType int

const (
	// EventSimulatorStarted fires once per simulator executable name the
	// first time that name appears in the process table.
	EventSimulatorStarted EventType = iota
	// EventSimulatorStopped fires for each simulator executable name when
	// the simulator transitions from running to not running.
	EventSimulatorStopped
	// EventAddonStarted fires when a new pid is matched to a registered
	// addon.
	EventAddonStarted
	// EventAddonStopped fires when a tracked pid disappears from the
	// process table on its own.
	EventAddonStopped
	// EventAddonTerminated fires for each pid the termination policy
	// successfully ended.
	EventAddonTerminated
	// EventStateChanged fires on every monitor state transition.
	EventStateChanged
)

func (t EventType) String() string {
	switch t {
	case EventSimulatorStarted:
		return "simulator-started"
	case EventSimulatorStopped:
		return "simulator-stopped"
	case EventAddonStarted:
		return "addon-started"
	case EventAddonStopped:
		return "addon-stopped"
	case EventAddonTerminated:
		return "addon-terminated"
	case EventStateChanged:
		return "state-changed"
	default:
		return "unknown"
	}
}

// Event is delivered asynchronously to subscribers. Name carries the
// simulator executable name or the addon name depending on Type; PID is set
// for addon events; From/To are set for state changes.
type Event struct {
	Type EventType
	Name string
	PID  int32
	From State
	To   State
	At   time.Time
}

// dispatcher decouples event production on the poll goroutine from
// subscriber callbacks. Events flow through a bounded queue into a single
// delivery goroutine, preserving per-tick ordering. A full queue drops the
// incoming event instead of stalling the poll loop.
type dispatcher struct {
	mu     sync.Mutex
	subs   map[int]func(Event)
	nextID int

	q    *queuepkg.Queue
	size int64
	done chan struct{}
}

func newDispatcher(size int) *dispatcher {
	d := &dispatcher{
		subs: make(map[int]func(Event)),
		q:    queuepkg.New(int64(size)),
		size: int64(size),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// subscribe registers fn and returns its cancel function. The callback runs
// on the dispatch goroutine; it must not block for long.
func (d *dispatcher) subscribe(fn func(Event)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.subs[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs, id)
	}
}

// publish enqueues an event for delivery. Never blocks.
func (d *dispatcher) publish(e Event) {
	if d.q.Disposed() {
		return
	}
	if d.q.Len() >= d.size {
		eventDrops.Inc()
		internalLogger.warnf("event queue full, dropping %s event for %q", e.Type, e.Name)
		return
	}
	if err := d.q.Put(e); err != nil {
		eventDrops.Inc()
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		items, err := d.q.Get(1)
		if err != nil {
			// queue disposed, dispatcher shutting down
			return
		}
		e, ok := items[0].(Event)
		if !ok {
			continue
		}
		for _, fn := range d.snapshotSubs() {
			d.deliver(fn, e)
		}
	}
}

// snapshotSubs copies the subscriber list so callbacks can subscribe or
// unsubscribe without deadlocking delivery.
func (d *dispatcher) snapshotSubs() []func(Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fns := make([]func(Event), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	return fns
}

func (d *dispatcher) deliver(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			internalLogger.errorf("subscriber panic on %s event: %v", e.Type, r)
		}
	}()
	fn(e)
}

// close drains pending events (bounded wait) and stops delivery.
func (d *dispatcher) close() {
	deadline := time.Now().Add(time.Second)
	for d.q.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	d.q.Dispose()
	<-d.done
}
