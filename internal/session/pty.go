package session

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/williamsharkey/nimbus/internal/logger"
)

// maxPTYBuffer bounds the raw output kept per session; the tail is what the
// renderer samples, so old data can be discarded.
const maxPTYBuffer = 256 * 1024

// PTYSource runs a command under a pseudo-terminal and keeps a bounded buffer
// of its raw output for snapshot sampling
type PTYSource struct {
	cmd *exec.Cmd
	pty *os.File

	mu     sync.RWMutex
	buffer []byte
	exited bool
}

// StartPTY launches command under a PTY with the given dimensions
func StartPTY(command string, cols, rows int) (*PTYSource, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
	)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start pty: %w", err)
	}

	s := &PTYSource{cmd: cmd, pty: ptmx}
	go s.readLoop()
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.exited = true
		s.mu.Unlock()
		if err != nil {
			logger.Debugf("PTY command exited: %v", err)
		}
	}()
	return s, nil
}

func (s *PTYSource) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.buffer = append(s.buffer, buf[:n]...)
			if len(s.buffer) > maxPTYBuffer {
				s.buffer = s.buffer[len(s.buffer)-maxPTYBuffer:]
			}
			s.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				logger.Debugf("PTY read ended: %v", err)
			}
			return
		}
	}
}

// Snapshot returns a copy of the accumulated raw output
func (s *PTYSource) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, len(s.buffer))
	copy(out, s.buffer)
	return out, nil
}

// Alive reports whether the command is still running
func (s *PTYSource) Alive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.exited
}

// Write sends input bytes to the PTY
func (s *PTYSource) Write(data []byte) error {
	_, err := s.pty.Write(data)
	return err
}

// Close kills the command and closes the PTY
func (s *PTYSource) Close() error {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return s.pty.Close()
}
