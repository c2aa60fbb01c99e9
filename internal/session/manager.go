package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/williamsharkey/nimbus/internal/logger"
	"github.com/williamsharkey/nimbus/internal/models"
	"github.com/williamsharkey/nimbus/internal/recovery"
)

// Manager owns the capture sessions, keyed by endpoint key. Starting a
// session under an existing key stops and replaces the old one, mirroring the
// hub's stale-connection replacement.
type Manager struct {
	classifier *Classifier
	pub        Publisher
	interval   time.Duration
	cols, rows int

	mu       sync.RWMutex
	sessions map[string]*Capture
}

// NewManager creates a session manager
func NewManager(classifier *Classifier, pub Publisher, interval time.Duration, cols, rows int) *Manager {
	return &Manager{
		classifier: classifier,
		pub:        pub,
		interval:   interval,
		cols:       cols,
		rows:       rows,
		sessions:   make(map[string]*Capture),
	}
}

// StartCommand starts a capture session running command under a local PTY
func (m *Manager) StartCommand(key, command string) (*Capture, error) {
	source, err := StartPTY(command, m.cols, m.rows)
	if err != nil {
		return nil, fmt.Errorf("failed to start session %q: %w", key, err)
	}
	return m.install(key, source), nil
}

// StartPane starts a capture session observing an existing tmux pane
func (m *Manager) StartPane(key, pane string) (*Capture, error) {
	source := NewTmuxSource(pane)
	if !source.Alive() {
		return nil, fmt.Errorf("tmux pane %q not found for session %q", pane, key)
	}
	return m.install(key, source), nil
}

func (m *Manager) install(key string, source Source) *Capture {
	capture := NewCapture(key, source, m.classifier, m.pub, m.interval, m.cols, m.rows)

	m.mu.Lock()
	prior := m.sessions[key]
	m.sessions[key] = capture
	m.mu.Unlock()

	if prior != nil {
		logger.Infof("Replacing capture session %q", key)
		prior.Stop()
	}

	// Stop is idempotent; running it as cleanup guarantees the source is
	// closed even when the capture loop panics.
	recovery.SafeGoWithCleanup("capture-"+key, capture.Run, capture.Stop)
	return capture
}

// Get returns the capture session for key
func (m *Manager) Get(key string) (*Capture, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[key]
	return c, ok
}

// States returns a snapshot of every session's activity state
func (m *Manager) States() map[string]models.ActivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]models.ActivityState, len(m.sessions))
	for key, c := range m.sessions {
		states[key] = c.State()
	}
	return states
}

// Stop halts and removes the session for key
func (m *Manager) Stop(key string) bool {
	m.mu.Lock()
	c, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if ok {
		c.Stop()
	}
	return ok
}

// StopAll halts every session, used at shutdown
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Capture)
	m.mu.Unlock()

	for _, c := range sessions {
		c.Stop()
	}
}
