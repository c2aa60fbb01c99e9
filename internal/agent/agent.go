package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os/exec"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/williamsharkey/nimbus/internal/config"
	"github.com/williamsharkey/nimbus/internal/logger"
	"github.com/williamsharkey/nimbus/internal/models"
	"github.com/williamsharkey/nimbus/internal/recovery"
	"github.com/williamsharkey/nimbus/internal/session"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// ExecFunc runs one invoke payload and returns its result
type ExecFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Agent is the execution-endpoint client. It dials the hub, registers under
// its endpoint key, and serves invoke requests until its context is
// cancelled, reconnecting with backoff when the connection drops.
type Agent struct {
	server   string
	endpoint string
	command  string
	timeout  time.Duration

	// Exec runs invoke payloads. Defaults to shell execution.
	Exec ExecFunc

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates an agent for the given hub URL and endpoint key. If command is
// non-empty the agent also runs it under a local PTY and streams its capture
// output to the hub as event messages.
func New(server, endpoint, command string) *Agent {
	a := &Agent{
		server:   server,
		endpoint: endpoint,
		command:  command,
		timeout:  config.Runtime.RequestTimeout,
	}
	a.Exec = a.shellExec
	return a
}

// Run connects to the hub and serves requests until ctx is cancelled
func (a *Agent) Run(ctx context.Context) error {
	if a.command != "" {
		capture, err := a.startCapture()
		if err != nil {
			return err
		}
		defer capture.Stop()
	}

	backoff := initialBackoff
	for {
		err := a.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("Connection to %s lost: %v, reconnecting in %v", a.server, err, backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (a *Agent) serve(ctx context.Context) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	// Answer the hub's liveness ping with both the protocol pong (gorilla's
	// default handler) and the application-level one.
	defaultPong := conn.PingHandler()
	conn.SetPingHandler(func(appData string) error {
		if err := a.writeJSON(models.PongMessage{Type: string(models.MessagePong)}); err != nil {
			return err
		}
		return defaultPong(appData)
	})

	ready := models.ReadyMessage{Type: string(models.MessageReady), Endpoint: a.endpoint}
	if err := a.writeJSON(ready); err != nil {
		return fmt.Errorf("failed to register endpoint %q: %w", a.endpoint, err)
	}
	logger.Infof("Registered endpoint %q with %s", a.endpoint, a.server)

	// Unblock ReadMessage on cancellation
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg models.InvokeMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "invoke" {
			logger.Warnf("Discarding unexpected message from hub: %s", data)
			continue
		}
		go a.handleInvoke(ctx, msg)
	}
}

func (a *Agent) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(a.server)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", a.server, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/v1/endpoint"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hub: %w", err)
	}
	return conn, nil
}

func (a *Agent) handleInvoke(ctx context.Context, msg models.InvokeMessage) {
	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	reply := models.ResultMessage{
		Type:      string(models.MessageResult),
		RequestID: msg.RequestID,
	}

	result, err := a.Exec(runCtx, msg.Payload)
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.Result = result
	}

	if err := a.writeJSON(reply); err != nil {
		logger.Warnf("Failed to send result for request %s: %v", msg.RequestID, err)
	}
}

// RunPayload is the payload shape the default executor understands
type RunPayload struct {
	Action  string `json:"action"`
	Command string `json:"command"`
}

// RunResult is the default executor's result shape
type RunResult struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
}

func (a *Agent) shellExec(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req RunPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}
	if req.Action != "run" {
		return nil, fmt.Errorf("unsupported action %q", req.Action)
	}
	if req.Command == "" {
		return nil, fmt.Errorf("command is required")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", req.Command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return nil, fmt.Errorf("failed to run command: %w", err)
		}
	}
	return json.Marshal(RunResult{
		Output:   string(output),
		ExitCode: cmd.ProcessState.ExitCode(),
	})
}

func (a *Agent) writeJSON(v any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := a.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return a.conn.WriteJSON(v)
}

func (a *Agent) startCapture() (*session.Capture, error) {
	markers, err := config.LoadMarkers(config.Runtime.MarkerConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load marker config: %w", err)
	}

	source, err := session.StartPTY(a.command, config.Runtime.TermCols, config.Runtime.TermRows)
	if err != nil {
		return nil, fmt.Errorf("failed to start command %q: %w", a.command, err)
	}

	classifier := session.NewClassifier(markers)
	capture := session.NewCapture(a.endpoint, source, classifier, eventForwarder{a},
		config.Runtime.CaptureInterval, config.Runtime.TermCols, config.Runtime.TermRows)
	recovery.SafeGoWithCleanup("agent-capture-"+a.endpoint, capture.Run, capture.Stop)
	return capture, nil
}

// eventForwarder relays local capture events to the hub as event messages
type eventForwarder struct {
	agent *Agent
}

func (f eventForwarder) Broadcast(event models.AppEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	msg := models.EventMessage{Type: string(models.MessageEvent), Payload: payload}
	if err := f.agent.writeJSON(msg); err != nil {
		logger.Debugf("Dropping capture event, hub not reachable: %v", err)
	}
}
