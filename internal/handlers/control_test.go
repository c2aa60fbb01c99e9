package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williamsharkey/nimbus/internal/config"
	"github.com/williamsharkey/nimbus/internal/history"
	"github.com/williamsharkey/nimbus/internal/hub"
	"github.com/williamsharkey/nimbus/internal/models"
	"github.com/williamsharkey/nimbus/internal/session"
)

// echoConn completes every routed request with a fixed result
type echoConn struct {
	hub    *hub.Hub
	result json.RawMessage
	errStr string

	mu   sync.Mutex
	sent []models.InvokeMessage
}

func (c *echoConn) Send(msg models.InvokeMessage) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	go c.hub.CompleteRequest(msg.RequestID, c.result, c.errStr)
	return nil
}

func (c *echoConn) Ping() error              { return nil }
func (c *echoConn) Close(reason string) error { return nil }

func newControlApp(t *testing.T) (*fiber.App, *hub.Hub) {
	t.Helper()
	h := hub.New(time.Second, time.Minute)
	classifier := session.NewClassifier(config.DefaultMarkers())
	manager := session.NewManager(classifier, h, time.Hour, 40, 10)
	t.Cleanup(manager.StopAll)
	records := history.New(history.Config{MaxSize: 100, TTL: time.Minute})
	t.Cleanup(func() { _ = records.Close() })

	app := fiber.New()
	NewControlHandler(h, manager, records).RegisterRoutes(app.Group("/v1"))
	return app, h
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestSubmit_NoSuchEndpoint(t *testing.T) {
	app, h := newControlApp(t)

	status, body := postJSON(t, app, "/v1/submit", SubmitRequest{
		Endpoint: "shiro",
		Payload:  json.RawMessage(`{"run":"pwd"}`),
	})

	assert.Equal(t, 404, status)
	assert.Equal(t, "no_such_endpoint", body["code"])
	assert.Equal(t, 0, h.PendingCount())
}

func TestSubmit_RoundTrip(t *testing.T) {
	app, h := newControlApp(t)
	conn := &echoConn{hub: h, result: json.RawMessage(`"ok"`)}
	h.Register("shiro", conn)

	status, body := postJSON(t, app, "/v1/submit", SubmitRequest{
		Endpoint: "shiro",
		Payload:  json.RawMessage(`{"run":"pwd"}`),
	})

	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", body["result"])
	assert.Equal(t, 0, h.PendingCount())
}

func TestSubmit_EndpointReportedError(t *testing.T) {
	app, h := newControlApp(t)
	conn := &echoConn{hub: h, errStr: "eval failed"}
	h.Register("shiro", conn)

	status, body := postJSON(t, app, "/v1/submit", SubmitRequest{
		Endpoint: "shiro",
		Payload:  json.RawMessage(`{}`),
	})

	assert.Equal(t, 200, status)
	assert.Equal(t, "eval failed", body["error"])
	assert.Equal(t, "endpoint_error", body["code"])
}

func TestSubmit_Timeout(t *testing.T) {
	app := fiber.New()
	h := hub.New(30*time.Millisecond, time.Minute)
	classifier := session.NewClassifier(config.DefaultMarkers())
	manager := session.NewManager(classifier, h, time.Hour, 40, 10)
	records := history.New(history.Config{MaxSize: 100, TTL: time.Minute})
	NewControlHandler(h, manager, records).RegisterRoutes(app.Group("/v1"))

	// A connection that swallows requests without completing them
	silent := &echoConn{hub: hub.New(time.Second, time.Minute)}
	h.Register("shiro", silent)

	status, body := postJSON(t, app, "/v1/submit", SubmitRequest{
		Endpoint: "shiro",
		Payload:  json.RawMessage(`{}`),
	})

	assert.Equal(t, 504, status)
	assert.Equal(t, "timeout", body["code"])
}

func TestSubmit_MissingEndpoint(t *testing.T) {
	app, _ := newControlApp(t)

	status, _ := postJSON(t, app, "/v1/submit", SubmitRequest{})
	assert.Equal(t, 400, status)
}

func TestRequestHistory_Lookup(t *testing.T) {
	app, h := newControlApp(t)
	conn := &echoConn{hub: h, result: json.RawMessage(`"ok"`)}
	h.Register("shiro", conn)

	status, body := postJSON(t, app, "/v1/submit", SubmitRequest{
		Endpoint: "shiro",
		Payload:  json.RawMessage(`{}`),
	})
	require.Equal(t, 200, status)
	id, _ := body["request_id"].(string)
	require.NotEmpty(t, id)

	req := httptest.NewRequest("GET", "/v1/requests/"+id, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var record map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, "shiro", record["endpoint"])

	req = httptest.NewRequest("GET", "/v1/requests/nope", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	req = httptest.NewRequest("GET", "/v1/requests", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var list map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.EqualValues(t, 1, list["count"])
}

func TestStatus_Snapshot(t *testing.T) {
	app, h := newControlApp(t)
	h.Register("shiro", &echoConn{hub: h})

	req := httptest.NewRequest("GET", "/v1/status", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Endpoints["shiro"])
	assert.NotNil(t, body.Sessions)
}
