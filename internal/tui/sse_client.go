package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/williamsharkey/nimbus/internal/models"
)

type sseConnectedMsg struct{}
type sseDisconnectedMsg struct{}
type sseEventMsg struct {
	event models.AppEvent
}

// SSEClient consumes the hub's event stream and feeds it into the program
type SSEClient struct {
	url       string
	program   *tea.Program
	stopChan  chan struct{}
	connected bool
}

// NewSSEClient creates an SSE client for the hub's events URL
func NewSSEClient(url string, program *tea.Program) *SSEClient {
	return &SSEClient{
		url:      url,
		program:  program,
		stopChan: make(chan struct{}),
	}
}

// Start begins listening for events
func (c *SSEClient) Start() {
	go c.connect()
}

// Stop closes the stream
func (c *SSEClient) Stop() {
	close(c.stopChan)
}

func (c *SSEClient) connect() {
	retryCount := 0
	for {
		select {
		case <-c.stopChan:
			return
		default:
			if err := c.handleConnection(); err != nil {
				if c.connected {
					c.connected = false
					c.program.Send(sseDisconnectedMsg{})
				}
				retryCount++
				delay := time.Duration(retryCount) * 2 * time.Second
				if delay > 30*time.Second {
					delay = 30 * time.Second
				}
				select {
				case <-c.stopChan:
					return
				case <-time.After(delay):
				}
			} else {
				retryCount = 0
			}
		}
	}
}

func (c *SSEClient) handleConnection() error {
	req, err := http.NewRequest("GET", c.url+"?client=dash", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// No timeout, the stream is long-lived
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream connection failed: %s", resp.Status)
	}

	if !c.connected {
		c.connected = true
		c.program.Send(sseConnectedMsg{})
	}

	scanner := bufio.NewScanner(resp.Body)
	var eventData strings.Builder

	for scanner.Scan() {
		select {
		case <-c.stopChan:
			return nil
		default:
		}

		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			eventData.WriteString(strings.TrimPrefix(line, "data: "))
		} else if line == "" && eventData.Len() > 0 {
			c.processEvent(eventData.String())
			eventData.Reset()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return fmt.Errorf("event stream ended")
}

func (c *SSEClient) processEvent(data string) {
	var msg models.StreamMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return
	}
	c.program.Send(sseEventMsg{event: msg.Event})
}
