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
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Errandil85/MSFS-Startup-Manager/internal/ps"
)

func testTerminator(t *testing.T, timeout time.Duration) *terminator {
	t.Helper()
	conf := DefaultConfig()
	conf.TerminateTimeout = timeout
	conf.KillWait = 2 * time.Second
	conf.TerminateProbe = 20 * time.Millisecond
	term, err := newTerminator(conf)
	require.Nil(t, err)
	t.Cleanup(term.release)
	return term
}

func spawn(t *testing.T, name string, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(name, args...)
	require.Nil(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestTerminateGraceful(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test spawns unix processes")
	}
	cmd := spawn(t, "sleep", "60")
	pid := int32(cmd.Process.Pid)
	go func() { _ = cmd.Wait() }()

	term := testTerminator(t, 2*time.Second)
	n := term.terminatePids("sleeper", []ps.ProcessRecord{{PID: pid, Name: "sleep"}}, nil)
	assert.Equal(t, 1, n)
	require.Eventually(t, func() bool { return !ps.Alive(pid) }, 2*time.Second, 20*time.Millisecond)
}

func TestForceKillAfterTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test spawns unix processes")
	}
	// The shell ignores SIGTERM, forcing the kill path.
	cmd := spawn(t, "sh", "-c", `trap "" TERM; sleep 60`)
	pid := int32(cmd.Process.Pid)
	go func() { _ = cmd.Wait() }()

	timeout := 500 * time.Millisecond
	term := testTerminator(t, timeout)

	start := time.Now()
	n := term.terminatePids("stubborn", []ps.ProcessRecord{{PID: pid, Name: "sh"}}, nil)
	elapsed := time.Since(start)

	assert.Equal(t, 1, n)
	assert.False(t, ps.Alive(pid))
	// Graceful window plus a small implementation bound, never the full
	// kill wait on a process that dies promptly under SIGKILL.
	assert.Less(t, elapsed, timeout+time.Second)
}

func TestTerminateAlreadyExited(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test spawns unix processes")
	}
	cmd := spawn(t, "sleep", "0")
	pid := int32(cmd.Process.Pid)
	require.Nil(t, cmd.Wait())

	term := testTerminator(t, time.Second)
	// Idempotent no-op success: zero work, zero count, no error.
	n := term.terminatePids("gone", []ps.ProcessRecord{{PID: pid, Name: "sleep"}}, nil)
	assert.Equal(t, 0, n)
}

func TestTerminateBatchEmpty(t *testing.T) {
	term := testTerminator(t, time.Second)
	assert.Equal(t, 0, term.terminateBatch(nil, nil))
	assert.Equal(t, 0, term.terminatePids("none", nil, nil))
}

func TestTerminateBatchParallel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test spawns unix processes")
	}
	a := spawn(t, "sleep", "60")
	b := spawn(t, "sleep", "60")
	go func() { _ = a.Wait() }()
	go func() { _ = b.Wait() }()

	term := testTerminator(t, 2*time.Second)
	var events eventCollector
	n := term.terminateBatch([]addonPids{
		{addon: "A", pids: []ps.ProcessRecord{{PID: int32(a.Process.Pid), Name: "sleep"}}},
		{addon: "B", pids: []ps.ProcessRecord{{PID: int32(b.Process.Pid), Name: "sleep"}}},
	}, func(addon string, pid int32) {
		events.add(Event{Type: EventAddonTerminated, Name: addon, PID: pid})
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, events.count(EventAddonTerminated))
}
