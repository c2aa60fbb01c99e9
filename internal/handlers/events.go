package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/williamsharkey/nimbus/internal/hub"
	"github.com/williamsharkey/nimbus/internal/logger"
	"github.com/williamsharkey/nimbus/internal/models"
)

// EventsHandler streams hub broadcasts to control subscribers as
// Server-Sent Events
type EventsHandler struct {
	hub *hub.Hub
}

// NewEventsHandler creates an events handler
func NewEventsHandler(h *hub.Hub) *EventsHandler {
	return &EventsHandler{hub: h}
}

// RegisterRoutes registers the subscribe route
func (h *EventsHandler) RegisterRoutes(v1 fiber.Router) {
	v1.Get("/events", h.HandleSSE)
}

// HandleSSE streams endpoint and session events to the caller.
// Each message is a JSON StreamMessage on a `data:` line; a heartbeat goes
// out every 30 seconds to keep intermediaries from dropping the connection.
// @Summary Server-Sent Events stream of endpoint and session events
// @Tags events
// @Produce text/event-stream
// @Router /v1/events [get]
func (h *EventsHandler) HandleSSE(c *fiber.Ctx) error {
	// Reject non-SSE clients up-front
	if ah := c.Get("Accept"); ah != "" && !strings.Contains(ah, "text/event-stream") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "This endpoint only accepts Server-Sent Events (text/event-stream)",
		})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // disable nginx buffering

	subID, ch := h.hub.Subscribe()
	logger.Infof("Event subscriber connected: %s from %s", subID, c.IP())

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unsubscribe(subID)

		send := func(msg models.StreamMessage) bool {
			b, _ := json.Marshal(msg)
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return false
			}
			return w.Flush() == nil
		}

		// Initial state: a heartbeat plus the current liveness of every
		// registered endpoint
		if !send(h.makeHeartbeat()) {
			return
		}
		for key, live := range h.hub.Status() {
			msg := models.StreamMessage{
				Event: models.AppEvent{
					Type:     models.EndpointConnectedEvent,
					Endpoint: key,
					Payload:  models.EndpointStatusPayload{Live: live},
				},
				Timestamp: time.Now().UnixMilli(),
				ID:        uuid.New().String(),
			}
			if !send(msg) {
				return
			}
		}

		tick := time.NewTicker(30 * time.Second)
		defer tick.Stop()

		for {
			select {
			case msg, ok := <-ch:
				if !ok || !send(msg) {
					return
				}
			case <-tick.C:
				if !send(h.makeHeartbeat()) {
					return
				}
			}
		}
	}))

	return nil
}

func (h *EventsHandler) makeHeartbeat() models.StreamMessage {
	return models.StreamMessage{
		Event: models.AppEvent{
			Type: models.HeartbeatEvent,
			Payload: models.HeartbeatPayload{
				Timestamp: time.Now().UnixMilli(),
				Uptime:    h.hub.Uptime().Milliseconds(),
			},
		},
		Timestamp: time.Now().UnixMilli(),
		ID:        uuid.New().String(),
	}
}
