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
)

// Instrumenter receives monitor timing signals. Implementations live outside
// the core (see the adapter package for an OpenTelemetry-backed one).
type Instrumenter interface {
	// ObserveTick records the duration of one completed poll tick.
	ObserveTick(d time.Duration)
	// ObserveTermination records the size of one completed termination batch.
	ObserveTermination(count int)
}

// Config holds monitor tuning parameters. Use DefaultConfig and adjust;
// a zero-valued Config is rejected by VerifyConfig.
type Config struct {
	// PollInterval is the sleep between poll ticks. Shorter intervals
	// improve termination responsiveness at CPU cost.
	PollInterval time.Duration
	// ErrorSleep replaces PollInterval after a failed tick.
	ErrorSleep time.Duration

	// TerminateTimeout bounds the wait for a process to exit after the
	// graceful terminate signal, before it is force-killed.
	TerminateTimeout time.Duration
	// KillWait bounds the wait for a force-killed process to disappear.
	KillWait time.Duration
	// TerminateProbe is the liveness re-check interval during both waits.
	TerminateProbe time.Duration

	// StopDebouncePolls is the number of consecutive polls the simulator
	// must be absent before a stop is declared. The default of 1 matches
	// the historical behavior: a single missed poll triggers cleanup.
	StopDebouncePolls int

	// EventQueueSize bounds the event delivery queue. When full, newly
	// published events are dropped rather than stalling the poll loop.
	EventQueueSize int

	// TerminationWorkers sizes the goroutine pool that terminates the
	// addons of one cleanup batch in parallel.
	TerminationWorkers int

	// Editions maps a simulator edition identifier to the executable base
	// names that identify it in the process table.
	Editions map[string][]string

	// Instrumenter optionally receives tick/termination timings.
	Instrumenter Instrumenter
}

// DefaultConfig returns the configuration used by the desktop application:
// 2s polling, 5s graceful-termination window, and the known executable
// names of both simulator editions.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:       2 * time.Second,
		ErrorSleep:         5 * time.Second,
		TerminateTimeout:   5 * time.Second,
		KillWait:           5 * time.Second,
		TerminateProbe:     100 * time.Millisecond,
		StopDebouncePolls:  1,
		EventQueueSize:     256,
		TerminationWorkers: 4,
		Editions: map[string][]string{
			"MSFS2020": {"FlightSimulator.exe", "Microsoft.FlightSimulator.exe"},
			"MSFS2024": {"FlightSimulator2024.exe", "Microsoft.FlightSimulator.exe"},
		},
	}
}

// VerifyConfig checks that a configuration is usable.
func VerifyConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("PollInterval must be positive, got %v", c.PollInterval)
	}
	if c.ErrorSleep <= 0 {
		return fmt.Errorf("ErrorSleep must be positive, got %v", c.ErrorSleep)
	}
	if c.TerminateTimeout <= 0 {
		return fmt.Errorf("TerminateTimeout must be positive, got %v", c.TerminateTimeout)
	}
	if c.KillWait <= 0 {
		return fmt.Errorf("KillWait must be positive, got %v", c.KillWait)
	}
	if c.TerminateProbe <= 0 || c.TerminateProbe > c.TerminateTimeout {
		return fmt.Errorf("TerminateProbe must be in (0, TerminateTimeout], got %v", c.TerminateProbe)
	}
	if c.StopDebouncePolls < 1 {
		return fmt.Errorf("StopDebouncePolls must be at least 1, got %d", c.StopDebouncePolls)
	}
	if c.EventQueueSize < 1 {
		return fmt.Errorf("EventQueueSize must be at least 1, got %d", c.EventQueueSize)
	}
	if c.TerminationWorkers < 1 {
		return fmt.Errorf("TerminationWorkers must be at least 1, got %d", c.TerminationWorkers)
	}
	if len(c.Editions) == 0 {
		return fmt.Errorf("at least one simulator edition must be configured")
	}
	for edition, names := range c.Editions {
		if len(names) == 0 {
			return fmt.Errorf("edition %q has no executable names", edition)
		}
	}
	return nil
}
