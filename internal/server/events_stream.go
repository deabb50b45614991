package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/rao/internal/events"
	"github.com/aristath/rao/internal/utils"
)

const (
	streamBufferSize   = 100
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// EventsStreamHandler streams bus events to websocket clients.
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws. The optional "types" query parameter
// is a comma-separated list of event types; all types are sent when absent.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.eventBus == nil {
		http.Error(w, "Event stream not available", http.StatusServiceUnavailable)
		return
	}

	types := parseTypesFilter(r.URL.Query().Get("types"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// CORS already allows any origin
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket handshake failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Client messages are ignored; ctx ends when the client goes away
	ctx := conn.CloseRead(r.Context())

	eventChan := make(chan *events.Event, streamBufferSize)
	handler := func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("Event stream buffer full, dropping event")
		}
	}
	for _, t := range types {
		unsubscribe := h.eventBus.Subscribe(t, handler)
		defer unsubscribe()
	}

	h.log.Info().Int("types", len(types)).Msg("Event stream client connected")

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Event stream client disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-eventChan:
			if err := h.write(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("Failed to write event")
				return
			}
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Event stream ping failed")
				return
			}
		}
	}
}

func (h *EventsStreamHandler) write(ctx context.Context, conn *websocket.Conn, event *events.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, event)
}

func parseTypesFilter(filter string) []events.EventType {
	if filter == "" {
		return events.AllTypes
	}

	var types []events.EventType
	for _, t := range utils.ParseCSV(filter) {
		types = append(types, events.EventType(t))
	}
	return types
}
