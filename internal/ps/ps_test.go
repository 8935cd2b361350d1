package ps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotContainsSelf(t *testing.T) {
	records, err := Snapshot()
	require.Nil(t, err)
	require.NotEmpty(t, records)

	self := int32(os.Getpid())
	var found *ProcessRecord
	for i := range records {
		if records[i].PID == self {
			found = &records[i]
			break
		}
	}
	require.NotNil(t, found, "snapshot should include the test process")
	assert.NotEmpty(t, found.Name)
	assert.False(t, found.ObservedAt.IsZero())
}

func TestAlive(t *testing.T) {
	assert.True(t, Alive(int32(os.Getpid())))
	assert.False(t, Alive(0))
	assert.False(t, Alive(-1))
}

func TestTerminateGoneProcess(t *testing.T) {
	// Pid far above any real process table entry.
	err := Terminate(1 << 30)
	assert.ErrorIs(t, err, ErrProcessGone)
	err = Kill(1 << 30)
	assert.ErrorIs(t, err, ErrProcessGone)
}

func TestNormalizePath(t *testing.T) {
	base := string(filepath.Separator) + filepath.Join("opt", "tools")
	messy := filepath.Join(base, "sub", "..", "helper")
	assert.Equal(t, NormalizePath(filepath.Join(base, "helper")), NormalizePath(messy))
	assert.Equal(t, "", NormalizePath(""))

	switch runtime.GOOS {
	case "windows":
		assert.Equal(t, NormalizePath(`C:\Tools\Helper.exe`), NormalizePath(`c:\tools\helper.exe`))
		assert.Equal(t, "helper.exe", NormalizeName("Helper.EXE"))
	default:
		assert.NotEqual(t, NormalizeName("Helper"), NormalizeName("helper"))
	}
}
