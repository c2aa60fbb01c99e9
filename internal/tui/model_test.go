package tui

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/williamsharkey/nimbus/internal/models"
)

func TestModel_AppliesEndpointEvents(t *testing.T) {
	m := NewModel("http://localhost:8080")

	m.applyEvent(models.AppEvent{Type: models.EndpointConnectedEvent, Endpoint: "shiro"})
	assert.True(t, m.endpoints["shiro"])

	m.applyEvent(models.AppEvent{
		Type:     models.EndpointDisconnectedEvent,
		Endpoint: "shiro",
		Payload:  map[string]any{"reason": "heartbeat"},
	})
	assert.False(t, m.endpoints["shiro"])
}

func TestModel_AppliesSessionEvents(t *testing.T) {
	m := NewModel("http://localhost:8080")

	m.applyEvent(models.AppEvent{
		Type:     models.SessionStatusEvent,
		Endpoint: "shiro",
		Payload:  map[string]any{"state": "busy"},
	})
	assert.Equal(t, models.ActivityBusy, m.sessions["shiro"])

	m.applyEvent(models.AppEvent{
		Type:     models.SessionLogEvent,
		Endpoint: "shiro",
		Payload:  map[string]any{"content": "line one\nline two\n"},
	})
	assert.Len(t, m.log, 3)
}

func TestModel_LogIsBounded(t *testing.T) {
	m := NewModel("http://localhost:8080")

	for i := 0; i < maxLogLines+50; i++ {
		m.applyEvent(models.AppEvent{
			Type:     models.SessionLogEvent,
			Endpoint: "shiro",
			Payload:  map[string]any{"content": fmt.Sprintf("line %d", i)},
		})
	}
	assert.Len(t, m.log, maxLogLines)
}
