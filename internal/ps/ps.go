// Package ps provides point-in-time enumeration of OS processes and the
// platform primitives the monitor needs to match and terminate them:
// executable identity (base name plus best-effort absolute path), liveness
// probes, and graceful/forced termination.
//
// Platform-specific path normalization and liveness fallbacks live in
// build-tagged files (norm_unix.go, norm_windows.go, alive_unix.go,
// alive_windows.go).
package ps

import (
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrProcessGone reports that the target process no longer exists. Callers
// treat it as a successful no-op during termination.
var ErrProcessGone = errors.New("process gone")

// ProcessRecord describes one process observed in a snapshot. Records are
// never mutated after creation; each poll cycle produces fresh ones.
type ProcessRecord struct {
	PID        int32
	Name       string // base executable name as reported by the OS
	Path       string // absolute executable path, empty when unresolvable
	ObservedAt time.Time
}

// Snapshot enumerates all processes currently visible to the caller.
// Processes that vanish or deny access mid-enumeration are skipped; only a
// failure of the enumeration itself is returned as an error.
func Snapshot() ([]ProcessRecord, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	records := make([]ProcessRecord, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			// Vanished or access denied between listing and inspection.
			continue
		}
		rec := ProcessRecord{PID: p.Pid, Name: name, ObservedAt: now}
		if exe, err := p.Exe(); err == nil && exe != "" {
			rec.Path = exe
		}
		records = append(records, rec)
	}
	return records, nil
}

// Alive reports whether a process with the given pid currently exists.
func Alive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(pid)
	if err == nil {
		return exists
	}
	return pidAlive(pid)
}

// Terminate sends the platform's standard terminate signal to pid.
// Returns ErrProcessGone when the process had already exited.
func Terminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return ErrProcessGone
	}
	if err := p.Terminate(); err != nil {
		if !Alive(pid) {
			return ErrProcessGone
		}
		return err
	}
	return nil
}

// Kill unconditionally terminates pid. Returns ErrProcessGone when the
// process had already exited.
func Kill(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return ErrProcessGone
	}
	if err := p.Kill(); err != nil {
		if !Alive(pid) {
			return ErrProcessGone
		}
		return err
	}
	return nil
}
