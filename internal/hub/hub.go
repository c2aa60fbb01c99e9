package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/williamsharkey/nimbus/internal/logger"
	"github.com/williamsharkey/nimbus/internal/models"
)

// Close reason codes passed to Conn.Close
const (
	CloseReasonReplaced = "replaced by new connection"
	CloseReasonDead     = "liveness timeout"
	CloseReasonShutdown = "hub shutting down"
)

// Conn is the transport-side handle the hub holds for a registered endpoint
// connection. Implementations must serialize concurrent Send calls.
type Conn interface {
	// Send writes one invoke message to the endpoint
	Send(msg models.InvokeMessage) error
	// Ping sends a transport-level liveness ping
	Ping() error
	// Close tears the connection down with a reason code. The prior holder of
	// a replaced key observes this as an involuntary close.
	Close(reason string) error
}

type completion struct {
	result json.RawMessage
	err    error
}

// RequestHandle lets the caller of RouteRequest await the outcome
type RequestHandle struct {
	// ID is the correlation ID assigned to the routed request
	ID   string
	done chan completion
}

// Wait blocks until the request resolves, fails, or ctx is cancelled.
// Cancelling ctx abandons the wait but does not cancel the request; a later
// completion is simply dropped.
func (h *RequestHandle) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case c := <-h.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pendingRequest struct {
	id       string
	endpoint string
	done     chan completion
	timer    *time.Timer
}

type endpointConn struct {
	key   string
	conn  Conn
	alive bool // seen pong since last ping
}

type subscriber struct {
	ch          chan models.StreamMessage
	connectedAt time.Time
}

// Hub multiplexes control callers over endpoint connections. It exclusively
// owns the endpoint-key map, the pending-request map, and the subscriber set;
// no other component mutates them.
type Hub struct {
	mu          sync.RWMutex
	endpoints   map[string]*endpointConn
	pending     map[string]*pendingRequest
	subscribers map[string]*subscriber

	requestTimeout    time.Duration
	heartbeatInterval time.Duration
	startTime         time.Time
}

// New creates a hub with the given default request timeout and heartbeat
// sweep interval
func New(requestTimeout, heartbeatInterval time.Duration) *Hub {
	return &Hub{
		endpoints:         make(map[string]*endpointConn),
		pending:           make(map[string]*pendingRequest),
		subscribers:       make(map[string]*subscriber),
		requestTimeout:    requestTimeout,
		heartbeatInterval: heartbeatInterval,
		startTime:         time.Now(),
	}
}

// Run drives the periodic heartbeat sweep until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-ticker.C:
			h.HeartbeatSweep()
		}
	}
}

// Register installs conn as the live connection for key. An existing holder
// of the same key is superseded: its in-flight requests fail with
// ErrConnectionLost and it is closed with the replacement reason code.
func (h *Hub) Register(key string, conn Conn) {
	h.mu.Lock()
	prior := h.endpoints[key]
	h.endpoints[key] = &endpointConn{key: key, conn: conn, alive: true}
	var failed []*pendingRequest
	if prior != nil {
		failed = h.takePendingLocked(key)
	}
	h.mu.Unlock()

	if prior != nil {
		logger.Infof("Endpoint %q reconnected, closing stale connection", key)
		h.resolveAll(failed, nil, models.ErrConnectionLost)
		if err := prior.conn.Close(CloseReasonReplaced); err != nil {
			logger.Debugf("Closing stale connection for %q: %v", key, err)
		}
	} else {
		logger.Infof("Endpoint %q connected", key)
	}

	h.Broadcast(models.AppEvent{
		Type:     models.EndpointConnectedEvent,
		Endpoint: key,
		Payload:  models.EndpointStatusPayload{Live: true},
	})
}

// Unregister removes conn if it is still the live connection for key and
// fails that endpoint's in-flight requests. A superseded connection's
// deferred unregister is a no-op: it must not evict its replacement.
func (h *Hub) Unregister(key string, conn Conn) {
	h.mu.Lock()
	current, ok := h.endpoints[key]
	if !ok || current.conn != conn {
		h.mu.Unlock()
		return
	}
	delete(h.endpoints, key)
	failed := h.takePendingLocked(key)
	h.mu.Unlock()

	logger.Infof("Endpoint %q disconnected (%d in-flight requests failed)", key, len(failed))
	h.resolveAll(failed, nil, models.ErrConnectionLost)

	h.Broadcast(models.AppEvent{
		Type:     models.EndpointDisconnectedEvent,
		Endpoint: key,
		Payload:  models.EndpointStatusPayload{Live: false, Reason: "connection closed"},
	})
}

// RouteRequest allocates a correlation ID, records a pending entry with a
// deadline, and forwards the payload to the live connection for key. It fails
// immediately with ErrNoSuchEndpoint, creating no entry, when no live
// connection holds the key.
//
// The send happens outside the hub lock so a stalled socket cannot block
// registration or completion. Requests from a single caller reach the
// endpoint in call order via the connection's write mutex; concurrent
// callers to the same key have no relative order guarantee.
func (h *Hub) RouteRequest(key string, payload json.RawMessage) (*RequestHandle, error) {
	h.mu.Lock()
	ep, ok := h.endpoints[key]
	if !ok {
		h.mu.Unlock()
		return nil, models.ErrNoSuchEndpoint
	}

	id := uuid.New().String()
	req := &pendingRequest{
		id:       id,
		endpoint: key,
		done:     make(chan completion, 1),
	}
	req.timer = time.AfterFunc(h.requestTimeout, func() {
		h.failRequest(id, models.ErrRequestTimeout)
	})
	h.pending[id] = req
	conn := ep.conn
	h.mu.Unlock()

	logger.Debugf("Routing request %s to endpoint %q", id, key)
	if err := conn.Send(models.NewInvokeMessage(id, payload)); err != nil {
		// The send never reached the endpoint, so withdraw the entry rather
		// than leaving the caller to a timeout.
		h.failRequest(id, models.ErrConnectionLost)
		logger.Warnf("Send to endpoint %q failed: %v", key, err)
	}

	return &RequestHandle{ID: id, done: req.done}, nil
}

// CompleteRequest resolves the pending request for id. An unknown id means
// the request already resolved or timed out; the completion is discarded
// silently so a duplicate result message is a no-op.
func (h *Hub) CompleteRequest(id string, result json.RawMessage, errStr string) {
	h.mu.Lock()
	req, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.mu.Unlock()

	if !ok {
		logger.Debugf("Discarding completion for unknown request %s", id)
		return
	}

	req.timer.Stop()
	if errStr != "" {
		req.done <- completion{err: &EndpointError{Message: errStr}}
	} else {
		req.done <- completion{result: result}
	}
}

// EndpointError is a failure reported by the endpoint itself, as opposed to a
// routing failure produced by the hub
type EndpointError struct {
	Message string
}

func (e *EndpointError) Error() string { return e.Message }

// PublishEvent broadcasts an unsolicited endpoint event to all subscribers,
// tagged with the source endpoint key. The pending-request map is untouched.
func (h *Hub) PublishEvent(key string, payload any) {
	h.Broadcast(models.AppEvent{
		Type:     models.EndpointEventEvent,
		Endpoint: key,
		Payload:  payload,
	})
}

// Broadcast delivers an event to every subscriber. Subscribers whose channel
// is full are evicted unless they connected within the last two seconds.
func (h *Hub) Broadcast(event models.AppEvent) {
	msg := models.StreamMessage{
		Event:     event,
		Timestamp: time.Now().UnixMilli(),
		ID:        uuid.New().String(),
	}

	h.mu.RLock()
	var evict []string
	for id, sub := range h.subscribers {
		select {
		case sub.ch <- msg:
		default:
			if time.Since(sub.connectedAt) < 2*time.Second {
				logger.Debugf("Subscriber %s in grace period, not evicting", id)
			} else {
				evict = append(evict, id)
			}
		}
	}
	h.mu.RUnlock()

	for _, id := range evict {
		logger.Warnf("Evicting slow subscriber %s", id)
		h.Unsubscribe(id)
	}
}

// Subscribe registers a control-side subscriber and returns its id and the
// event stream channel
func (h *Hub) Subscribe() (string, <-chan models.StreamMessage) {
	id := uuid.New().String()
	sub := &subscriber{
		ch:          make(chan models.StreamMessage, 100),
		connectedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[id] = sub
	h.mu.Unlock()

	logger.Debugf("Subscriber %s connected", id)
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. Pending requests
// the subscriber's owner initiated are unaffected.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if ok {
		close(sub.ch)
		logger.Debugf("Subscriber %s removed", id)
	}
}

// MarkAlive records a heartbeat reply for key
func (h *Hub) MarkAlive(key string) {
	h.mu.Lock()
	if ep, ok := h.endpoints[key]; ok {
		ep.alive = true
	}
	h.mu.Unlock()
}

// HeartbeatSweep evicts every endpoint connection that has not replied to the
// previous ping, failing its in-flight requests with ErrConnectionLost, and
// pings the rest. A transport-confirmed death is the only path that
// proactively fails all of an endpoint's requests.
func (h *Hub) HeartbeatSweep() {
	h.mu.Lock()
	var dead []*endpointConn
	var live []*endpointConn
	for _, ep := range h.endpoints {
		if !ep.alive {
			dead = append(dead, ep)
		} else {
			ep.alive = false
			live = append(live, ep)
		}
	}
	failedByKey := make(map[string][]*pendingRequest, len(dead))
	for _, ep := range dead {
		delete(h.endpoints, ep.key)
		failedByKey[ep.key] = h.takePendingLocked(ep.key)
	}
	h.mu.Unlock()

	for _, ep := range dead {
		logger.Warnf("Endpoint %q failed liveness check, closing (%d in-flight requests)",
			ep.key, len(failedByKey[ep.key]))
		h.resolveAll(failedByKey[ep.key], nil, models.ErrConnectionLost)
		if err := ep.conn.Close(CloseReasonDead); err != nil {
			logger.Debugf("Closing dead connection for %q: %v", ep.key, err)
		}
		h.Broadcast(models.AppEvent{
			Type:     models.EndpointDisconnectedEvent,
			Endpoint: ep.key,
			Payload:  models.EndpointStatusPayload{Live: false, Reason: CloseReasonDead},
		})
	}

	for _, ep := range live {
		if err := ep.conn.Ping(); err != nil {
			logger.Debugf("Ping to endpoint %q failed: %v", ep.key, err)
		}
	}
}

// Status returns a read-only liveness snapshot keyed by endpoint
func (h *Hub) Status() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := make(map[string]bool, len(h.endpoints))
	for key := range h.endpoints {
		status[key] = true
	}
	return status
}

// PendingCount reports the number of in-flight requests
func (h *Hub) PendingCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pending)
}

// Uptime reports how long the hub has been running
func (h *Hub) Uptime() time.Duration {
	return time.Since(h.startTime)
}

// failRequest resolves one pending request with err if it is still pending
func (h *Hub) failRequest(id string, err error) {
	h.mu.Lock()
	req, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.mu.Unlock()

	if ok {
		req.timer.Stop()
		req.done <- completion{err: err}
	}
}

// takePendingLocked removes and returns every pending request routed to key.
// Callers must hold h.mu.
func (h *Hub) takePendingLocked(key string) []*pendingRequest {
	var taken []*pendingRequest
	for id, req := range h.pending {
		if req.endpoint == key {
			delete(h.pending, id)
			taken = append(taken, req)
		}
	}
	return taken
}

func (h *Hub) resolveAll(reqs []*pendingRequest, result json.RawMessage, err error) {
	for _, req := range reqs {
		req.timer.Stop()
		req.done <- completion{result: result, err: err}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	endpoints := make([]*endpointConn, 0, len(h.endpoints))
	for _, ep := range h.endpoints {
		endpoints = append(endpoints, ep)
	}
	h.endpoints = make(map[string]*endpointConn)
	subs := h.subscribers
	h.subscribers = make(map[string]*subscriber)
	pending := h.pending
	h.pending = make(map[string]*pendingRequest)
	h.mu.Unlock()

	for _, req := range pending {
		req.timer.Stop()
		req.done <- completion{err: models.ErrConnectionLost}
	}
	for _, ep := range endpoints {
		_ = ep.conn.Close(CloseReasonShutdown)
	}
	for _, sub := range subs {
		close(sub.ch)
	}
	logger.Info("Hub stopped")
}
