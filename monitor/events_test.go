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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) add(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *eventCollector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *eventCollector) count(t EventType) int {
	n := 0
	for _, e := range c.all() {
		if e.Type == t {
			n++
		}
	}
	return n
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	d := newDispatcher(16)
	defer d.close()

	var c eventCollector
	cancel := d.subscribe(c.add)
	defer cancel()

	for i := int32(1); i <= 5; i++ {
		d.publish(Event{Type: EventAddonStarted, Name: "a", PID: i})
	}

	require.Eventually(t, func() bool { return len(c.all()) == 5 }, time.Second, 5*time.Millisecond)
	for i, e := range c.all() {
		assert.Equal(t, int32(i+1), e.PID)
	}
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := newDispatcher(16)
	defer d.close()

	var c eventCollector
	cancel := d.subscribe(c.add)

	d.publish(Event{Type: EventAddonStarted, Name: "a", PID: 1})
	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	d.publish(Event{Type: EventAddonStarted, Name: "a", PID: 2})
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, c.all(), 1)
}

func TestDispatcherSubscriberPanicContained(t *testing.T) {
	d := newDispatcher(16)
	defer d.close()

	var c eventCollector
	cancelPanic := d.subscribe(func(Event) { panic("boom") })
	defer cancelPanic()
	cancel := d.subscribe(c.add)
	defer cancel()

	d.publish(Event{Type: EventSimulatorStarted, Name: "Sim.exe"})
	d.publish(Event{Type: EventSimulatorStopped, Name: "Sim.exe"})

	require.Eventually(t, func() bool { return len(c.all()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherOverflowDropsNotBlocks(t *testing.T) {
	d := newDispatcher(2)
	defer d.close()

	gate := make(chan struct{})
	var c eventCollector
	cancel := d.subscribe(func(e Event) {
		c.add(e)
		<-gate
	})
	defer cancel()

	// First event occupies the dispatch goroutine.
	d.publish(Event{Type: EventAddonStarted, PID: 1})
	require.Eventually(t, func() bool { return d.q.Len() == 0 }, time.Second, time.Millisecond)

	// Two more fill the queue; a fourth must be dropped, not block.
	d.publish(Event{Type: EventAddonStarted, PID: 2})
	d.publish(Event{Type: EventAddonStarted, PID: 3})

	published := make(chan struct{})
	go func() {
		d.publish(Event{Type: EventAddonStarted, PID: 4})
		close(published)
	}()
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full queue")
	}

	close(gate)
	require.Eventually(t, func() bool { return len(c.all()) == 3 }, time.Second, 5*time.Millisecond)
}
