package models

import (
	"encoding/json"
	"fmt"
)

// EndpointMessageType tags messages sent from an endpoint connection to the hub
type EndpointMessageType string

// Message types an endpoint may send
const (
	MessageReady  EndpointMessageType = "ready"
	MessageResult EndpointMessageType = "result"
	MessageEvent  EndpointMessageType = "event"
	MessagePong   EndpointMessageType = "liveness-pong"
)

// EndpointMessage is the decoded form of one endpoint-to-hub message. Exactly
// one of the variant fields is non-nil, selected by Type.
type EndpointMessage struct {
	Type   EndpointMessageType
	Ready  *ReadyMessage
	Result *ResultMessage
	Event  *EventMessage
	Pong   *PongMessage
}

// ReadyMessage registers the connection under an endpoint key
type ReadyMessage struct {
	Type     string `json:"type"`
	Endpoint string `json:"endpoint"`
}

// ResultMessage completes a previously routed request
type ResultMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// EventMessage carries an unsolicited payload to broadcast to control callers
type EventMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PongMessage is the application-level heartbeat reply
type PongMessage struct {
	Type string `json:"type"`
}

// InvokeMessage is the single hub-to-endpoint message: a routed request.
// The liveness ping travels as a websocket control frame with no body.
type InvokeMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

// NewInvokeMessage builds an invoke message for a routed request
func NewInvokeMessage(requestID string, payload json.RawMessage) InvokeMessage {
	return InvokeMessage{Type: "invoke", RequestID: requestID, Payload: payload}
}

type messageEnvelope struct {
	Type EndpointMessageType `json:"type"`
}

// ParseEndpointMessage decodes one raw endpoint message into its tagged
// variant. Unknown or missing type tags are an error so that a new message
// kind cannot slip through undetected.
func ParseEndpointMessage(data []byte) (EndpointMessage, error) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return EndpointMessage{}, fmt.Errorf("malformed endpoint message: %w", err)
	}

	msg := EndpointMessage{Type: env.Type}
	switch env.Type {
	case MessageReady:
		msg.Ready = &ReadyMessage{}
		if err := json.Unmarshal(data, msg.Ready); err != nil {
			return EndpointMessage{}, fmt.Errorf("malformed ready message: %w", err)
		}
		if msg.Ready.Endpoint == "" {
			return EndpointMessage{}, fmt.Errorf("ready message missing endpoint key")
		}
	case MessageResult:
		msg.Result = &ResultMessage{}
		if err := json.Unmarshal(data, msg.Result); err != nil {
			return EndpointMessage{}, fmt.Errorf("malformed result message: %w", err)
		}
		if msg.Result.RequestID == "" {
			return EndpointMessage{}, fmt.Errorf("result message missing requestId")
		}
	case MessageEvent:
		msg.Event = &EventMessage{}
		if err := json.Unmarshal(data, msg.Event); err != nil {
			return EndpointMessage{}, fmt.Errorf("malformed event message: %w", err)
		}
	case MessagePong:
		msg.Pong = &PongMessage{}
	default:
		return EndpointMessage{}, fmt.Errorf("unknown endpoint message type %q", env.Type)
	}
	return msg, nil
}
