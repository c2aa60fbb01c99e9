package config

import (
	"os"
	"strconv"
	"time"
)

// RuntimeConfig holds configuration for the bridge process, resolved from
// environment variables at startup
type RuntimeConfig struct {
	Port              int           // HTTP/websocket listen port
	RequestTimeout    time.Duration // default deadline for routed requests
	HeartbeatInterval time.Duration // liveness sweep period
	CaptureInterval   time.Duration // capture tick period per session
	TermCols          int           // terminal renderer grid width
	TermRows          int           // terminal renderer grid height
	MarkerConfigPath  string        // optional YAML marker config for the classifier
}

var (
	// Runtime is the global runtime configuration instance
	Runtime *RuntimeConfig
)

func init() {
	Runtime = DetectRuntime()
}

// DetectRuntime resolves the runtime configuration from the environment,
// falling back to defaults for anything unset or unparseable
func DetectRuntime() *RuntimeConfig {
	return &RuntimeConfig{
		Port:              envInt("NIMBUS_PORT", 8080),
		RequestTimeout:    envDuration("NIMBUS_REQUEST_TIMEOUT", 10*time.Second),
		HeartbeatInterval: envDuration("NIMBUS_HEARTBEAT_INTERVAL", 15*time.Second),
		CaptureInterval:   envDuration("NIMBUS_CAPTURE_INTERVAL", 1500*time.Millisecond),
		TermCols:          envInt("NIMBUS_TERM_COLS", 120),
		TermRows:          envInt("NIMBUS_TERM_ROWS", 40),
		MarkerConfigPath:  os.Getenv("NIMBUS_MARKERS"),
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	// Accept either a Go duration string ("1.5s") or a bare second count
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
