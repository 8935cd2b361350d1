//go:build !windows

package ps

import (
	"errors"

	"golang.org/x/sys/unix"
)

// pidAlive probes pid with signal 0. EPERM means the process exists but
// belongs to another user.
func pidAlive(pid int32) bool {
	err := unix.Kill(int(pid), 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
