// Package api defines the contracts the surrounding application (UI,
// configuration layer) consumes from the process monitor core.
package api

import (
	"github.com/Errandil85/MSFS-Startup-Manager/monitor"
)

// Monitor is the lifecycle-monitor contract: lifecycle control, addon
// registration, manual termination, and point-in-time queries. Queries
// return latest-known state, accurate to the poll interval.
type Monitor interface {
	Start(edition string) error
	Stop()

	RegisterAddon(name, path string, autoTerminate bool) error
	UnregisterAddon(name string) int
	LaunchAddon(name, path, args string, autoTerminate bool) (int32, error)
	TerminateAddon(name string) int

	Subscribe(fn func(monitor.Event)) func()

	IsSimulatorRunning() bool
	AddonProcessCount(name string) int
	RunningAddonNames() []string
	State() monitor.State
	Status() monitor.Status
}

var _ Monitor = (*monitor.Monitor)(nil)
