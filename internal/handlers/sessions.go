package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/williamsharkey/nimbus/internal/logger"
	"github.com/williamsharkey/nimbus/internal/models"
	"github.com/williamsharkey/nimbus/internal/session"
)

// SessionsHandler manages capture sessions over REST
type SessionsHandler struct {
	manager *session.Manager
}

// NewSessionsHandler creates a sessions handler
func NewSessionsHandler(manager *session.Manager) *SessionsHandler {
	return &SessionsHandler{manager: manager}
}

// RegisterRoutes registers the session routes
func (h *SessionsHandler) RegisterRoutes(v1 fiber.Router) {
	v1.Post("/sessions", h.Create)
	v1.Get("/sessions", h.List)
	v1.Post("/sessions/:key/send", h.Send)
	v1.Post("/sessions/:key/interrupt", h.Interrupt)
	v1.Delete("/sessions/:key", h.Delete)
}

// CreateSessionRequest starts observing either a command run under a local
// PTY or an existing tmux pane. Exactly one of Command and Pane must be set.
type CreateSessionRequest struct {
	Key     string `json:"key"`
	Command string `json:"command,omitempty"`
	Pane    string `json:"pane,omitempty"`
}

// SessionInfo describes one capture session
type SessionInfo struct {
	Key   string               `json:"key"`
	State models.ActivityState `json:"state"`
}

// Create starts a capture session. An existing session under the same key is
// stopped and replaced.
// @Summary Start a capture session
// @Tags sessions
// @Router /v1/sessions [post]
func (h *SessionsHandler) Create(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key is required"})
	}
	if (req.Command == "") == (req.Pane == "") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "exactly one of command and pane is required"})
	}

	var (
		capture *session.Capture
		err     error
	)
	if req.Command != "" {
		capture, err = h.manager.StartCommand(req.Key, req.Command)
	} else {
		capture, err = h.manager.StartPane(req.Key, req.Pane)
	}
	if err != nil {
		logger.Warnf("Failed to start session %q: %v", req.Key, err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(SessionInfo{Key: req.Key, State: capture.State()})
}

// List returns every capture session and its state
// @Summary List capture sessions
// @Tags sessions
// @Router /v1/sessions [get]
func (h *SessionsHandler) List(c *fiber.Ctx) error {
	states := h.manager.States()
	sessions := make([]SessionInfo, 0, len(states))
	for key, state := range states {
		sessions = append(sessions, SessionInfo{Key: key, State: state})
	}
	return c.JSON(fiber.Map{"sessions": sessions, "count": len(sessions)})
}

// SendRequest carries input for the session's terminal
type SendRequest struct {
	Data string `json:"data"`
}

// Send writes input to the session's terminal and re-arms classification
// @Summary Send input to a capture session
// @Tags sessions
// @Router /v1/sessions/{key}/send [post]
func (h *SessionsHandler) Send(c *fiber.Ctx) error {
	capture, ok := h.manager.Get(c.Params("key"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}

	var req SendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := capture.Send([]byte(req.Data)); err != nil {
		return sessionError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Interrupt sends a best-effort interrupt to the session's terminal
// @Summary Interrupt a capture session
// @Tags sessions
// @Router /v1/sessions/{key}/interrupt [post]
func (h *SessionsHandler) Interrupt(c *fiber.Ctx) error {
	capture, ok := h.manager.Get(c.Params("key"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}

	if err := capture.Interrupt(); err != nil {
		return sessionError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Delete stops and removes a capture session
// @Summary Stop a capture session
// @Tags sessions
// @Router /v1/sessions/{key} [delete]
func (h *SessionsHandler) Delete(c *fiber.Ctx) error {
	if !h.manager.Stop(c.Params("key")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

func sessionError(c *fiber.Ctx, err error) error {
	if errors.Is(err, models.ErrSessionEnded) {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"error": err.Error(),
			"code":  models.ErrorCode(err),
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
