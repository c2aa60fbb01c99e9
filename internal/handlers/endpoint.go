package handlers

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/williamsharkey/nimbus/internal/hub"
	"github.com/williamsharkey/nimbus/internal/logger"
	"github.com/williamsharkey/nimbus/internal/models"
)

const writeWait = 10 * time.Second

// EndpointHandler upgrades execution-endpoint connections to websocket and
// pumps their messages into the hub
type EndpointHandler struct {
	hub *hub.Hub
}

// NewEndpointHandler creates an endpoint websocket handler
func NewEndpointHandler(h *hub.Hub) *EndpointHandler {
	return &EndpointHandler{hub: h}
}

// RegisterRoutes registers the endpoint websocket route
func (h *EndpointHandler) RegisterRoutes(v1 fiber.Router) {
	v1.Get("/endpoint", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection for an execution endpoint
// @Summary Execution endpoint websocket
// @Tags endpoint
// @Router /v1/endpoint [get]
func (h *EndpointHandler) HandleWebSocket(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(h.handleConn)(c)
	}
	return fiber.ErrUpgradeRequired
}

// wsConn adapts a websocket connection to the hub's Conn interface
type wsConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) Send(msg models.InvokeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsConn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

// handleConn runs the read loop for one endpoint connection. The connection
// registers itself with a ready message; everything before that is dropped.
func (h *EndpointHandler) handleConn(ws *websocket.Conn) {
	conn := &wsConn{ws: ws}
	var key string
	registered := false

	defer func() {
		if registered {
			h.hub.Unregister(key, conn)
		}
		_ = conn.Close("read loop ended")
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if registered {
				logger.Debugf("Endpoint %q read ended: %v", key, err)
			}
			return
		}

		msg, err := models.ParseEndpointMessage(data)
		if err != nil {
			logger.Warnf("Dropping bad endpoint message: %v", err)
			continue
		}

		switch msg.Type {
		case models.MessageReady:
			if registered {
				logger.Warnf("Endpoint %q sent a second ready message, ignoring", key)
				continue
			}
			key = msg.Ready.Endpoint
			registered = true
			// Transport-level pongs count as liveness replies too
			endpointKey := key
			ws.SetPongHandler(func(string) error {
				h.hub.MarkAlive(endpointKey)
				return nil
			})
			h.hub.Register(key, conn)

		case models.MessageResult:
			if !registered {
				logger.Warn("Dropping result from unregistered endpoint connection")
				continue
			}
			h.hub.CompleteRequest(msg.Result.RequestID, msg.Result.Result, msg.Result.Error)

		case models.MessageEvent:
			if !registered {
				logger.Warn("Dropping event from unregistered endpoint connection")
				continue
			}
			h.hub.PublishEvent(key, msg.Event.Payload)

		case models.MessagePong:
			if registered {
				h.hub.MarkAlive(key)
			}
		}
	}
}
