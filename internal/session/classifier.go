package session

import (
	"strings"
	"sync"

	"github.com/williamsharkey/nimbus/internal/config"
)

// Verdict is the classifier's judgement of a rendered screen
type Verdict int

// Verdicts. Unknown means the classifier abstains and the current state is
// left unchanged.
const (
	VerdictUnknown Verdict = iota
	VerdictIdle
	VerdictBusy
)

func (v Verdict) String() string {
	switch v {
	case VerdictIdle:
		return "idle"
	case VerdictBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Classifier infers busy/idle from the trailing lines of a rendered screen by
// matching configured marker sets. Matching is case-insensitive. A busy
// marker anywhere in the tail wins over a prompt marker: a tool banner above
// a redrawn prompt still means work is in progress.
type Classifier struct {
	mu  sync.RWMutex
	cfg config.MarkerConfig
}

// NewClassifier creates a classifier with the given marker config
func NewClassifier(cfg config.MarkerConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// SetConfig swaps the marker config, used for hot reload
func (c *Classifier) SetConfig(cfg config.MarkerConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Classify inspects the trailing lines of screen and returns a verdict
func (c *Classifier) Classify(screen string) Verdict {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()

	tail := tailLines(screen, cfg.TailLines)
	if len(tail) == 0 {
		return VerdictUnknown
	}

	for _, line := range tail {
		normalized := strings.ToLower(line)
		for _, marker := range cfg.BusyMarkers {
			if strings.Contains(normalized, strings.ToLower(marker)) {
				return VerdictBusy
			}
		}
	}

	for _, line := range tail {
		if isPromptLine(strings.TrimSpace(line), cfg.PromptMarkers) {
			return VerdictIdle
		}
	}

	return VerdictUnknown
}

// tailLines returns the last n non-blank-trimmed lines of text
func tailLines(text string, n int) []string {
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// isPromptLine reports whether line is exactly a prompt marker or starts with
// one followed by a space
func isPromptLine(line string, markers []string) bool {
	for _, marker := range markers {
		if line == marker || strings.HasPrefix(line, marker+" ") {
			return true
		}
	}
	return false
}
