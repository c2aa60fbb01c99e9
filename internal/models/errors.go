package models

import "errors"

// Routing and completion failures surfaced to control callers. Callers that
// care about exactly-once side effects must treat ErrRequestTimeout and
// ErrConnectionLost as ambiguous: the endpoint may have executed the request
// even though the answer was lost.
var (
	// ErrNoSuchEndpoint means no live connection holds the requested key.
	// The request never reached an endpoint.
	ErrNoSuchEndpoint = errors.New("no such endpoint")

	// ErrRequestTimeout means the request deadline elapsed with no completion
	ErrRequestTimeout = errors.New("request timed out")

	// ErrConnectionLost means the endpoint connection died while the request
	// was in flight
	ErrConnectionLost = errors.New("endpoint connection lost")

	// ErrSessionEnded means the capture session's underlying process is gone
	ErrSessionEnded = errors.New("session ended")
)

// ErrorCode maps a routing failure to the wire-level code field so callers
// can distinguish "never reached the endpoint" from "answer lost"
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoSuchEndpoint):
		return "no_such_endpoint"
	case errors.Is(err, ErrRequestTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectionLost):
		return "connection_lost"
	case errors.Is(err, ErrSessionEnded):
		return "session_ended"
	default:
		return "internal"
	}
}
