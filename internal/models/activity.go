package models

// ActivityState represents the coarse activity state of a capture session,
// inferred from rendered screen content plus explicit control actions
type ActivityState string

// Activity states
const (
	ActivityStarting    ActivityState = "starting"
	ActivityIdle        ActivityState = "idle"
	ActivityBusy        ActivityState = "busy"
	ActivityError       ActivityState = "error"
	ActivityInterrupted ActivityState = "interrupted"
)

// Terminal reports whether the state permanently stops the capture loop
func (s ActivityState) Terminal() bool {
	return s == ActivityError
}
