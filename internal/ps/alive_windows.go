//go:build windows

package ps

import "golang.org/x/sys/windows"

const stillActive = 259 // STILL_ACTIVE exit code

// pidAlive checks process existence via a limited-information handle. A
// handle can still be opened for a recently exited process, so the exit
// code is consulted as well.
func pidAlive(pid int32) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h) //nolint:errcheck // probe handle
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return true
	}
	return code == stillActive
}
