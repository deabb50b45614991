// Package di wires the application's dependencies.
package di

import (
	"github.com/aristath/rao/internal/database"
	"github.com/aristath/rao/internal/events"
	"github.com/aristath/rao/internal/modules/rao"
	"github.com/aristath/rao/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and handed to the server.
type Container struct {
	RunsDB *database.DB

	EventBus     *events.Bus
	EventManager *events.Manager

	Optimizer  *rao.Optimizer
	RunRepo    *rao.Repository
	RunService *rao.Service
	Archiver   rao.Archiver // nil when archiving is disabled

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered housekeeping jobs for manual triggering
type JobInstances struct {
	RunRetention     scheduler.Job
	WALCheckpoints   scheduler.Job
	DailyMaintenance scheduler.Job
}

// Close releases the container's resources
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.RunsDB != nil {
		return c.RunsDB.Close()
	}
	return nil
}
