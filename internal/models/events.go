package models

// EventType represents the type of event streamed to control subscribers
type EventType string

// Event type constants consumed by dashboard clients
const (
	EndpointConnectedEvent    EventType = "endpoint:connected"
	EndpointDisconnectedEvent EventType = "endpoint:disconnected"
	EndpointEventEvent        EventType = "endpoint:event"
	SessionLogEvent           EventType = "session:log"
	SessionStatusEvent        EventType = "session:status"
	HeartbeatEvent            EventType = "heartbeat"
)

// AppEvent is one broadcast event, tagged with the endpoint key it concerns.
// Events produced by the hub itself (heartbeat) carry an empty key.
type AppEvent struct {
	Type     EventType `json:"type"`
	Endpoint string    `json:"endpoint,omitempty"`
	Payload  any       `json:"payload,omitempty"`
}

// StreamMessage wraps an AppEvent for delivery on the subscribe stream
type StreamMessage struct {
	Event     AppEvent `json:"event"`
	Timestamp int64    `json:"timestamp"`
	ID        string   `json:"id"`
}

// EndpointStatusPayload reports connection liveness for one endpoint key
type EndpointStatusPayload struct {
	Live   bool   `json:"live"`
	Reason string `json:"reason,omitempty"`
}

// SessionLogPayload carries incremental rendered output from a capture session
type SessionLogPayload struct {
	Content string `json:"content"`
}

// SessionStatusPayload reports an activity state change for a capture session
type SessionStatusPayload struct {
	State ActivityState `json:"state"`
}

// HeartbeatPayload keeps subscribe streams alive and reports uptime
type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
	Uptime    int64 `json:"uptime"`
}
