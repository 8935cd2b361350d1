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
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Errandil85/MSFS-Startup-Manager/internal/ps"
)

// LaunchAddon starts the addon's executable, registers the addon, and seeds
// the new pid into tracking so the termination policy covers it immediately
// instead of waiting for the next poll to discover it. args is split on
// whitespace. Returns the pid of the launched process.
func (m *Monitor) LaunchAddon(name, path, args string, autoTerminate bool) (int32, error) {
	if err := m.RegisterAddon(name, path, autoTerminate); err != nil && err != ErrPathUnresolved {
		return 0, err
	}

	var argv []string
	if args != "" {
		argv = strings.Fields(args)
	}
	cmd := exec.Command(path, argv...)
	cmd.Dir = filepath.Dir(path)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("launch %q: %w", path, err)
	}
	pid := int32(cmd.Process.Pid)

	m.trk.seed(name, ps.ProcessRecord{
		PID:        pid,
		Name:       filepath.Base(path),
		Path:       ps.NormalizePath(path),
		ObservedAt: time.Now(),
	})
	m.publish(Event{Type: EventAddonStarted, Name: name, PID: pid})
	internalLogger.infof("launched addon %q: %s (pid %d)", name, filepath.Base(path), pid)

	// Reap the child so it never lingers as a zombie after exiting or
	// being terminated.
	go func() {
		_ = cmd.Wait()
	}()
	return pid, nil
}
