// Package events provides the in-process event bus for run lifecycle events.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	RunStarted     EventType = "RUN_STARTED"
	RunIteration   EventType = "RUN_ITERATION"
	RunCompleted   EventType = "RUN_COMPLETED"
	RunFailed      EventType = "RUN_FAILED"
	BatchCompleted EventType = "BATCH_COMPLETED"
	RunArchived    EventType = "RUN_ARCHIVED"
	RunsPurged     EventType = "RUNS_PURGED"
	ErrorOccurred  EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type, in declaration order.
var AllTypes = []EventType{
	RunStarted,
	RunIteration,
	RunCompleted,
	RunFailed,
	BatchCompleted,
	RunArchived,
	RunsPurged,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
