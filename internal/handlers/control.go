package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/williamsharkey/nimbus/internal/history"
	"github.com/williamsharkey/nimbus/internal/hub"
	"github.com/williamsharkey/nimbus/internal/logger"
	"github.com/williamsharkey/nimbus/internal/models"
	"github.com/williamsharkey/nimbus/internal/session"
)

// ControlHandler exposes the control-facing request/response surface
type ControlHandler struct {
	hub      *hub.Hub
	sessions *session.Manager
	history  *history.Store
}

// NewControlHandler creates a control handler
func NewControlHandler(h *hub.Hub, sessions *session.Manager, records *history.Store) *ControlHandler {
	return &ControlHandler{hub: h, sessions: sessions, history: records}
}

// RegisterRoutes registers the control routes
func (h *ControlHandler) RegisterRoutes(v1 fiber.Router) {
	v1.Post("/submit", h.Submit)
	v1.Get("/status", h.Status)
	v1.Get("/requests", h.RecentRequests)
	v1.Get("/requests/:id", h.GetRequest)
}

// SubmitRequest is the body of a submit call
type SubmitRequest struct {
	Endpoint string          `json:"endpoint"`
	Payload  json.RawMessage `json:"payload"`
}

// SubmitResponse carries the outcome of a routed request. Code distinguishes
// "never reached the endpoint" (no_such_endpoint) from "the endpoint may have
// run it but the answer was lost" (timeout, connection_lost).
type SubmitResponse struct {
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Code      string          `json:"code,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Submit routes a payload to a live endpoint and waits for the result
// @Summary Submit a request to an execution endpoint
// @Tags control
// @Router /v1/submit [post]
func (h *ControlHandler) Submit(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Endpoint == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "endpoint is required"})
	}

	handle, err := h.hub.RouteRequest(req.Endpoint, req.Payload)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(SubmitResponse{
			Error: err.Error(),
			Code:  models.ErrorCode(err),
		})
	}
	submittedAt := time.Now()

	result, err := handle.Wait(c.Context())
	record := history.Record{
		RequestID:   handle.ID,
		Endpoint:    req.Endpoint,
		SubmittedAt: submittedAt,
		CompletedAt: time.Now(),
		Result:      result,
	}
	if err != nil {
		record.Error = err.Error()
		record.Code = models.ErrorCode(err)

		var epErr *hub.EndpointError
		switch {
		case errors.As(err, &epErr):
			// The endpoint ran the request and reported a failure
			record.Error, record.Code = epErr.Message, "endpoint_error"
			h.history.Add(record)
			return c.JSON(SubmitResponse{Error: epErr.Message, Code: "endpoint_error"})
		case errors.Is(err, models.ErrRequestTimeout):
			h.history.Add(record)
			return c.Status(fiber.StatusGatewayTimeout).JSON(SubmitResponse{
				Error: err.Error(),
				Code:  models.ErrorCode(err),
			})
		case errors.Is(err, models.ErrConnectionLost):
			h.history.Add(record)
			return c.Status(fiber.StatusBadGateway).JSON(SubmitResponse{
				Error: err.Error(),
				Code:  models.ErrorCode(err),
			})
		default:
			logger.Warnf("Submit to %q failed: %v", req.Endpoint, err)
			h.history.Add(record)
			return c.Status(fiber.StatusInternalServerError).JSON(SubmitResponse{
				Error: err.Error(),
				Code:  models.ErrorCode(err),
			})
		}
	}

	h.history.Add(record)
	return c.JSON(SubmitResponse{Result: result, RequestID: handle.ID})
}

// RecentRequests returns the newest stored request outcomes
// @Summary List recent request outcomes
// @Tags control
// @Router /v1/requests [get]
func (h *ControlHandler) RecentRequests(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	records := h.history.Recent(limit)
	return c.JSON(fiber.Map{
		"requests": records,
		"count":    len(records),
		"stats":    h.history.Stats(),
	})
}

// GetRequest returns one stored request outcome by ID
// @Summary Look up a request outcome
// @Tags control
// @Router /v1/requests/{id} [get]
func (h *ControlHandler) GetRequest(c *fiber.Ctx) error {
	record, ok := h.history.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "request not found"})
	}
	return c.JSON(record)
}

// StatusResponse is the read-only liveness snapshot
type StatusResponse struct {
	Endpoints map[string]bool                 `json:"endpoints"`
	Sessions  map[string]models.ActivityState `json:"sessions"`
}

// Status reports endpoint liveness and capture session states
// @Summary Endpoint and session status snapshot
// @Tags control
// @Router /v1/status [get]
func (h *ControlHandler) Status(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Endpoints: h.hub.Status(),
		Sessions:  h.sessions.States(),
	})
}
