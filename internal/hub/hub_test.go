package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williamsharkey/nimbus/internal/models"
)

type fakeConn struct {
	mu          sync.Mutex
	sent        []models.InvokeMessage
	pings       int
	closed      bool
	closeReason string
	sendErr     error
}

func (c *fakeConn) Send(msg models.InvokeMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeReason = reason
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) lastSent() models.InvokeMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}

func (c *fakeConn) isClosed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeReason
}

func newTestHub() *Hub {
	return New(time.Second, time.Minute)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRouteRequest_NoSuchEndpoint(t *testing.T) {
	h := newTestHub()

	before := h.PendingCount()
	handle, err := h.RouteRequest("ghost", json.RawMessage(`{}`))

	require.ErrorIs(t, err, models.ErrNoSuchEndpoint)
	assert.Nil(t, handle)
	assert.Equal(t, before, h.PendingCount(), "no pending entry may be created")
}

func TestCompleteRequest_Idempotent(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}
	h.Register("shiro", conn)

	handle, err := h.RouteRequest("shiro", json.RawMessage(`{"cmd":"ls"}`))
	require.NoError(t, err)
	require.Equal(t, 1, h.PendingCount())

	h.CompleteRequest(handle.ID, json.RawMessage(`"ok"`), "")
	// A second completion for the same ID is a silent no-op
	h.CompleteRequest(handle.ID, json.RawMessage(`"other"`), "")

	result, err := handle.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"ok"`), result)
	assert.Equal(t, 0, h.PendingCount())
}

func TestCompleteRequest_UnknownIDDiscarded(t *testing.T) {
	h := newTestHub()
	// Must not panic or create state
	h.CompleteRequest("never-existed", json.RawMessage(`"x"`), "")
	assert.Equal(t, 0, h.PendingCount())
}

func TestCompleteRequest_EndpointError(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}
	h.Register("shiro", conn)

	handle, err := h.RouteRequest("shiro", json.RawMessage(`{}`))
	require.NoError(t, err)

	h.CompleteRequest(handle.ID, nil, "eval failed")

	_, err = handle.Wait(waitCtx(t))
	require.Error(t, err)
	var epErr *EndpointError
	require.ErrorAs(t, err, &epErr)
	assert.Equal(t, "eval failed", epErr.Message)
}

func TestRegister_StaleConnectionReplacement(t *testing.T) {
	h := newTestHub()
	connA := &fakeConn{}
	connB := &fakeConn{}

	h.Register("shiro", connA)
	handle, err := h.RouteRequest("shiro", json.RawMessage(`{}`))
	require.NoError(t, err)

	h.Register("shiro", connB)

	closed, reason := connA.isClosed()
	assert.True(t, closed, "prior holder must observe an involuntary close")
	assert.Equal(t, CloseReasonReplaced, reason)
	closedB, _ := connB.isClosed()
	assert.False(t, closedB)
	assert.True(t, h.Status()["shiro"], "replacement connection is live")

	// In-flight requests against the superseded connection fail, not re-queue
	_, err = handle.Wait(waitCtx(t))
	assert.ErrorIs(t, err, models.ErrConnectionLost)
	assert.Equal(t, 0, h.PendingCount())

	// The superseded connection's deferred unregister must not evict its
	// replacement
	h.Unregister("shiro", connA)
	assert.True(t, h.Status()["shiro"])

	h.Unregister("shiro", connB)
	assert.False(t, h.Status()["shiro"])
}

func TestRouteRequest_ForwardedInOrder(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}
	h.Register("shiro", conn)

	h1, err := h.RouteRequest("shiro", json.RawMessage(`1`))
	require.NoError(t, err)
	h2, err := h.RouteRequest("shiro", json.RawMessage(`2`))
	require.NoError(t, err)

	require.Equal(t, 2, conn.sentCount())
	assert.Equal(t, h1.ID, conn.sent[0].RequestID)
	assert.Equal(t, h2.ID, conn.sent[1].RequestID)
	assert.Equal(t, "invoke", conn.sent[0].Type)
}

func TestRouteRequest_Timeout(t *testing.T) {
	h := New(30*time.Millisecond, time.Minute)
	conn := &fakeConn{}
	h.Register("shiro", conn)

	handle, err := h.RouteRequest("shiro", json.RawMessage(`{}`))
	require.NoError(t, err)

	_, err = handle.Wait(waitCtx(t))
	assert.ErrorIs(t, err, models.ErrRequestTimeout)
	assert.Equal(t, 0, h.PendingCount())

	// The endpoint might still be working: the connection stays open and a
	// late completion is discarded silently
	closed, _ := conn.isClosed()
	assert.False(t, closed)
	h.CompleteRequest(handle.ID, json.RawMessage(`"late"`), "")
}

func TestHeartbeatSweep_EvictsSilentEndpoint(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}
	h.Register("shiro", conn)

	handle, err := h.RouteRequest("shiro", json.RawMessage(`{}`))
	require.NoError(t, err)

	// First sweep: connection registered alive, so it gets pinged and the
	// liveness flag resets
	h.HeartbeatSweep()
	assert.Equal(t, 1, conn.pings)
	assert.True(t, h.Status()["shiro"])

	// No pong arrives before the second sweep: evict and fail in-flight
	h.HeartbeatSweep()

	closed, reason := conn.isClosed()
	assert.True(t, closed)
	assert.Equal(t, CloseReasonDead, reason)
	assert.False(t, h.Status()["shiro"])

	_, err = handle.Wait(waitCtx(t))
	assert.ErrorIs(t, err, models.ErrConnectionLost)
	assert.Equal(t, 0, h.PendingCount())
}

func TestHeartbeatSweep_PongKeepsConnection(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}
	h.Register("shiro", conn)

	h.HeartbeatSweep()
	h.MarkAlive("shiro")
	h.HeartbeatSweep()

	closed, _ := conn.isClosed()
	assert.False(t, closed)
	assert.True(t, h.Status()["shiro"])
	assert.Equal(t, 2, conn.pings)
}

func TestPublishEvent_BroadcastsTagged(t *testing.T) {
	h := newTestHub()
	id, ch := h.Subscribe()
	defer h.Unsubscribe(id)

	h.PublishEvent("shiro", map[string]string{"line": "hello"})

	select {
	case msg := <-ch:
		assert.Equal(t, models.EndpointEventEvent, msg.Event.Type)
		assert.Equal(t, "shiro", msg.Event.Endpoint)
		assert.NotEmpty(t, msg.ID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestBroadcast_EvictsSlowSubscriber(t *testing.T) {
	h := newTestHub()
	slowID, slowCh := h.Subscribe()

	// Fill the slow subscriber's buffer to capacity without draining
	for i := 0; i < 100; i++ {
		h.PublishEvent("shiro", i)
	}

	// A full channel inside the grace window is tolerated
	h.PublishEvent("shiro", "overflow")
	h.mu.RLock()
	_, present := h.subscribers[slowID]
	h.mu.RUnlock()
	assert.True(t, present, "subscriber evicted during grace window")

	// Past the grace window the next overflowing broadcast evicts
	h.mu.Lock()
	h.subscribers[slowID].connectedAt = time.Now().Add(-5 * time.Second)
	h.mu.Unlock()

	freshID, freshCh := h.Subscribe()
	h.PublishEvent("shiro", "final")

	h.mu.RLock()
	_, present = h.subscribers[slowID]
	h.mu.RUnlock()
	assert.False(t, present, "slow subscriber should be gone")

	// Buffered backlog drains, then the channel reports closed
	drained := 0
	for open := true; open; {
		select {
		case _, ok := <-slowCh:
			if !ok {
				open = false
			} else {
				drained++
			}
		case <-time.After(time.Second):
			t.Fatal("evicted subscriber's channel never closed")
		}
	}
	assert.Equal(t, 100, drained)

	// Healthy subscribers are unaffected by the eviction
	select {
	case msg := <-freshCh:
		assert.Equal(t, "final", msg.Event.Payload)
	case <-time.After(time.Second):
		t.Fatal("healthy subscriber missed the broadcast")
	}

	// Unsubscribing an already-evicted id is a no-op
	h.Unsubscribe(slowID)
	h.Unsubscribe(freshID)
}

func TestUnsubscribe_RemovesFromBroadcastSet(t *testing.T) {
	h := newTestHub()
	id, ch := h.Subscribe()
	h.Unsubscribe(id)

	// Channel closes and later broadcasts land nowhere
	_, open := <-ch
	assert.False(t, open)
	h.PublishEvent("shiro", "dropped")
}

func TestEndToEnd_SubmitFlow(t *testing.T) {
	h := newTestHub()

	// No live connection: immediate failure, no entry
	_, err := h.RouteRequest("shiro", json.RawMessage(`{"run":"pwd"}`))
	require.ErrorIs(t, err, models.ErrNoSuchEndpoint)
	require.Equal(t, 0, h.PendingCount())

	conn := &fakeConn{}
	h.Register("shiro", conn)

	handle, err := h.RouteRequest("shiro", json.RawMessage(`{"run":"pwd"}`))
	require.NoError(t, err)
	require.Equal(t, 1, h.PendingCount())
	require.Equal(t, 1, conn.sentCount())
	assert.Equal(t, handle.ID, conn.lastSent().RequestID)

	// Endpoint answers, caller observes the result
	h.CompleteRequest(handle.ID, json.RawMessage(`"ok"`), "")
	result, err := handle.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"ok"`), result)

	// Duplicate result for the same ID drops silently
	h.CompleteRequest(handle.ID, json.RawMessage(`"ok"`), "")
	assert.Equal(t, 0, h.PendingCount())
}
