package reliability

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/rao/internal/testing"
)

func newMaintenanceJob(t *testing.T, freeBytes uint64, usageErr error) *DailyMaintenanceJob {
	t.Helper()
	db, _ := testingpkg.NewTestDB(t, "runs")

	job := NewDailyMaintenanceJob(db, t.TempDir(), zerolog.Nop())
	job.usage = func(path string) (*disk.UsageStat, error) {
		if usageErr != nil {
			return nil, usageErr
		}
		return &disk.UsageStat{Path: path, Free: freeBytes}, nil
	}
	return job
}

func TestDailyMaintenanceJob_Run(t *testing.T) {
	job := newMaintenanceJob(t, 50e9, nil)
	assert.Equal(t, "daily_maintenance", job.Name())
	assert.NoError(t, job.Run())
}

func TestDailyMaintenanceJob_LowDiskStillSucceeds(t *testing.T) {
	assert.NoError(t, newMaintenanceJob(t, 2e9, nil).Run())
}

func TestDailyMaintenanceJob_CriticalDisk(t *testing.T) {
	err := newMaintenanceJob(t, 1e8, nil).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0.10 GB free")
}

func TestDailyMaintenanceJob_UsageError(t *testing.T) {
	err := newMaintenanceJob(t, 0, errors.New("no such device")).Run()
	assert.ErrorContains(t, err, "failed to stat filesystem")
}
