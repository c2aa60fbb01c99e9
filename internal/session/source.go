package session

// Source is the external collaborator a capture session samples. It exposes
// the current visible contents of a live terminal as a full buffer, not a
// delta stream; de-duplication is the capture loop's job.
type Source interface {
	// Snapshot returns the latest raw output buffer. An empty buffer is not
	// an error; it means nothing is visible yet.
	Snapshot() ([]byte, error)
	// Alive reports whether the underlying process still exists
	Alive() bool
	// Write sends input bytes to the underlying terminal
	Write(data []byte) error
	// Close tears the source down
	Close() error
}
