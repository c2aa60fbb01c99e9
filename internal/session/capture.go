package session

import (
	"sync"
	"time"

	"github.com/williamsharkey/nimbus/internal/logger"
	"github.com/williamsharkey/nimbus/internal/models"
	"github.com/williamsharkey/nimbus/internal/term"
)

// Publisher receives the log and status events a capture session emits. The
// hub satisfies this.
type Publisher interface {
	Broadcast(event models.AppEvent)
}

// Capture polls one endpoint's live output on a fixed interval, renders it,
// diffs successive screens into incremental log events, and classifies the
// activity state. One capture loop per endpoint key; screens are never shared
// across sessions.
type Capture struct {
	key        string
	source     Source
	classifier *Classifier
	pub        Publisher
	interval   time.Duration
	cols, rows int

	mu       sync.Mutex
	prev     string
	state    models.ActivityState
	suppress bool // interrupted: ignore classifier verdicts until next send

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCapture creates a capture session for key backed by source
func NewCapture(key string, source Source, classifier *Classifier, pub Publisher, interval time.Duration, cols, rows int) *Capture {
	return &Capture{
		key:        key,
		source:     source,
		classifier: classifier,
		pub:        pub,
		interval:   interval,
		cols:       cols,
		rows:       rows,
		state:      models.ActivityStarting,
		stopCh:     make(chan struct{}),
	}
}

// Run drives capture ticks until the session ends or Stop is called.
// Intended to run on its own goroutine.
func (c *Capture) Run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if !c.tick() {
				return
			}
		}
	}
}

// tick performs one sample-render-diff-classify cycle. It returns false once
// the session has reached its terminal error state.
func (c *Capture) tick() bool {
	snapshot, err := c.source.Snapshot()
	if err != nil || len(snapshot) == 0 {
		// An unavailable or empty snapshot is "no change" unless the
		// underlying process is gone.
		if !c.source.Alive() {
			c.end()
			return false
		}
		return true
	}

	// Fresh emulator every tick: the snapshot is always a full buffer, so no
	// escape-sequence state needs to survive between samples.
	emulator := term.NewEmulator(c.cols, c.rows)
	emulator.Write(snapshot)
	screen := emulator.Render()

	c.mu.Lock()
	if c.state == models.ActivityStarting {
		c.setStateLocked(models.ActivityBusy)
	}

	if screen == c.prev {
		c.mu.Unlock()
		return true
	}

	content := term.Diff(c.prev, screen)
	c.prev = screen

	verdict := c.classifier.Classify(screen)
	if !c.suppress {
		switch verdict {
		case VerdictBusy:
			c.setStateLocked(models.ActivityBusy)
		case VerdictIdle:
			c.setStateLocked(models.ActivityIdle)
		}
	}
	c.mu.Unlock()

	if content != "" {
		c.pub.Broadcast(models.AppEvent{
			Type:     models.SessionLogEvent,
			Endpoint: c.key,
			Payload:  models.SessionLogPayload{Content: content},
		})
	}
	return true
}

// end transitions to the terminal error state and stops the loop
func (c *Capture) end() {
	c.mu.Lock()
	c.setStateLocked(models.ActivityError)
	c.mu.Unlock()
	logger.Infof("Capture session %q ended: underlying process gone", c.key)
	c.Stop()
}

// setStateLocked records a state change and broadcasts it. Callers hold c.mu.
func (c *Capture) setStateLocked(state models.ActivityState) {
	if c.state == state {
		return
	}
	c.state = state
	c.pub.Broadcast(models.AppEvent{
		Type:     models.SessionStatusEvent,
		Endpoint: c.key,
		Payload:  models.SessionStatusPayload{State: state},
	})
}

// State returns the current activity state
func (c *Capture) State() models.ActivityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Interrupt sends an interrupt to the underlying terminal and pins the state
// to interrupted; classifier verdicts are ignored until the next Send.
func (c *Capture) Interrupt() error {
	c.mu.Lock()
	if c.state == models.ActivityError {
		c.mu.Unlock()
		return models.ErrSessionEnded
	}
	c.suppress = true
	c.setStateLocked(models.ActivityInterrupted)
	c.mu.Unlock()

	return c.source.Write([]byte{0x03})
}

// Send writes input to the underlying terminal and re-arms classification
// after an interrupt
func (c *Capture) Send(data []byte) error {
	c.mu.Lock()
	if c.state == models.ActivityError {
		c.mu.Unlock()
		return models.ErrSessionEnded
	}
	c.suppress = false
	c.mu.Unlock()

	return c.source.Write(data)
}

// Stop halts the capture loop and closes the source
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if err := c.source.Close(); err != nil {
			logger.Debugf("Closing capture source %q: %v", c.key, err)
		}
	})
}
