package session

import (
	"bytes"
	"fmt"
	"os/exec"
)

// TmuxSource samples a tmux pane with capture-pane. The pane only ever
// exposes its current visible contents, so every snapshot is a full buffer.
type TmuxSource struct {
	pane string
}

// NewTmuxSource creates a source for a tmux pane target (e.g. "main:0.1")
func NewTmuxSource(pane string) *TmuxSource {
	return &TmuxSource{pane: pane}
}

// Snapshot captures the pane contents with escape sequences preserved
func (s *TmuxSource) Snapshot() ([]byte, error) {
	out, err := exec.Command("tmux", "capture-pane", "-p", "-e", "-t", s.pane).Output()
	if err != nil {
		return nil, fmt.Errorf("tmux capture-pane failed: %w", err)
	}
	return out, nil
}

// Alive reports whether the pane still exists
func (s *TmuxSource) Alive() bool {
	err := exec.Command("tmux", "display-message", "-p", "-t", s.pane, "#{pane_id}").Run()
	return err == nil
}

// Write sends input to the pane. A lone ETX is translated to the C-c key so
// interrupts reach the foreground process instead of being typed literally.
func (s *TmuxSource) Write(data []byte) error {
	if bytes.Equal(data, []byte{0x03}) {
		return exec.Command("tmux", "send-keys", "-t", s.pane, "C-c").Run()
	}
	return exec.Command("tmux", "send-keys", "-l", "-t", s.pane, string(data)).Run()
}

// Close detaches from the pane; the pane itself is left running
func (s *TmuxSource) Close() error {
	return nil
}
