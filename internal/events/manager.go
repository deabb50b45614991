package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus for subscribers
func (m *Manager) Bus() *Bus {
	return m.bus
}

// EmitTyped emits an event with typed data to the bus and logs it
func (m *Manager) EmitTyped(module string, data EventData) {
	eventType := data.EventType()
	dataMap := convertEventDataToMap(data)

	m.bus.Emit(eventType, module, dataMap)

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      dataMap,
		Module:    module,
	}
	eventJSON, _ := json.Marshal(event)
	m.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.EmitTyped(module, &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	})
}

// convertEventDataToMap flattens typed data into the map carried by Event
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}
	return result
}
