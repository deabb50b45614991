package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	EventType() EventType
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID        string `json:"run_id"`
	BatchID      string `json:"batch_id,omitempty"`
	MainState    string `json:"main_state"`
	Cnecs        int    `json:"cnecs"`
	RangeActions int    `json:"range_actions"`
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// RunIterationData contains data for RunIteration events
type RunIterationData struct {
	RunID        string  `json:"run_id"`
	Iteration    int     `json:"iteration"`
	SolverStatus string  `json:"solver_status"`
	WorstMargin  float64 `json:"worst_margin"`
}

// EventType returns the event type for RunIterationData
func (d *RunIterationData) EventType() EventType {
	return RunIteration
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	RunID        string  `json:"run_id"`
	Status       string  `json:"status"`
	SolverStatus string  `json:"solver_status"`
	Iterations   int     `json:"iterations"`
	WorstMargin  float64 `json:"worst_margin"`
	DurationMs   int64   `json:"duration_ms"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType {
	return RunCompleted
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}

// BatchCompletedData contains data for BatchCompleted events
type BatchCompletedData struct {
	BatchID string   `json:"batch_id"`
	RunIDs  []string `json:"run_ids"`
	Failed  int      `json:"failed"`
}

// EventType returns the event type for BatchCompletedData
func (d *BatchCompletedData) EventType() EventType {
	return BatchCompleted
}

// RunArchivedData contains data for RunArchived events
type RunArchivedData struct {
	RunID string `json:"run_id"`
	Key   string `json:"key"`
}

// EventType returns the event type for RunArchivedData
func (d *RunArchivedData) EventType() EventType {
	return RunArchived
}

// RunsPurgedData contains data for RunsPurged events
type RunsPurgedData struct {
	Deleted int64     `json:"deleted"`
	Before  time.Time `json:"before"`
}

// EventType returns the event type for RunsPurgedData
func (d *RunsPurgedData) EventType() EventType {
	return RunsPurged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// TypedData converts the map carried by e back into its typed form. Unknown
// types come back as GenericEventData.
func (e *Event) TypedData() (EventData, error) {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return decodeEventData(e.Type, raw)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 {
		return nil
	}
	typed, err := decodeEventData(aux.Type, aux.Data)
	if err != nil {
		return err
	}
	e.Data = typed
	return nil
}

func decodeEventData(eventType EventType, raw []byte) (EventData, error) {
	var eventData EventData
	switch eventType {
	case RunStarted:
		eventData = &RunStartedData{}
	case RunIteration:
		eventData = &RunIterationData{}
	case RunCompleted:
		eventData = &RunCompletedData{}
	case RunFailed:
		eventData = &RunFailedData{}
	case BatchCompleted:
		eventData = &BatchCompletedData{}
	case RunArchived:
		eventData = &RunArchivedData{}
	case RunsPurged:
		eventData = &RunsPurgedData{}
	case ErrorOccurred:
		eventData = &ErrorEventData{}
	default:
		generic := &GenericEventData{Type: eventType}
		if err := json.Unmarshal(raw, &generic.Data); err != nil {
			return nil, err
		}
		return generic, nil
	}
	if err := json.Unmarshal(raw, eventData); err != nil {
		return nil, err
	}
	return eventData, nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}
