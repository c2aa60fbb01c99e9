package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"

	"github.com/williamsharkey/nimbus/internal/logger"
)

// MarkerConfig holds the pattern sets the activity classifier matches against
// the trailing rendered lines. The marker heuristic is deliberately
// configuration, not hard-coded literals: which tokens signal "busy" depends
// entirely on what is running inside the observed terminal.
type MarkerConfig struct {
	// PromptMarkers signal an interactive prompt waiting for input
	PromptMarkers []string `yaml:"prompt_markers"`
	// BusyMarkers signal in-progress activity; busy wins over prompt
	BusyMarkers []string `yaml:"busy_markers"`
	// TailLines is how many trailing lines the classifier inspects
	TailLines int `yaml:"tail_lines"`
}

// DefaultMarkers returns the built-in marker sets, tuned for common
// agent CLIs and shells
func DefaultMarkers() MarkerConfig {
	return MarkerConfig{
		PromptMarkers: []string{">", "❯", "›", "$", ">>>"},
		BusyMarkers: []string{
			"esc to interrupt",
			"ctrl+c to interrupt",
			"thinking",
			"processing",
			"generating",
			"Reading",
			"Writing",
			"Running",
			"Searching",
			"Fetching",
		},
		TailLines: 10,
	}
}

// LoadMarkers reads a marker config from a YAML file. An empty path returns
// the defaults. Fields left unset in the file fall back to the defaults.
func LoadMarkers(path string) (MarkerConfig, error) {
	cfg := DefaultMarkers()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read marker config: %w", err)
	}

	var loaded MarkerConfig
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return cfg, fmt.Errorf("failed to parse marker config: %w", err)
	}

	if len(loaded.PromptMarkers) > 0 {
		cfg.PromptMarkers = loaded.PromptMarkers
	}
	if len(loaded.BusyMarkers) > 0 {
		cfg.BusyMarkers = loaded.BusyMarkers
	}
	if loaded.TailLines > 0 {
		cfg.TailLines = loaded.TailLines
	}
	return cfg, nil
}

// MarkerWatcher reloads the marker config whenever the file changes
type MarkerWatcher struct {
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// WatchMarkers watches path and invokes onChange with the freshly loaded
// config after each write. Editors often replace files wholesale, so the
// parent directory is watched and events are filtered by name.
func WatchMarkers(path string, onChange func(MarkerConfig)) (*MarkerWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create marker watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch marker config dir: %w", err)
	}

	w := &MarkerWatcher{watcher: watcher, stopCh: make(chan struct{})}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadMarkers(path)
				if err != nil {
					logger.Warnf("Marker config reload failed: %v", err)
					continue
				}
				logger.Infof("Marker config reloaded from %s", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("Marker watcher error: %v", err)
			case <-w.stopCh:
				return
			}
		}
	}()
	return w, nil
}

// Stop stops watching and releases the underlying watcher
func (w *MarkerWatcher) Stop() {
	close(w.stopCh)
	_ = w.watcher.Close()
}
