package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSafeGo_RecoversPanic(t *testing.T) {
	ran := make(chan struct{})
	SafeGo("panicky", func() {
		close(ran)
		panic("boom")
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
	// Give the deferred recover a moment; the process surviving is the point
	time.Sleep(50 * time.Millisecond)
}

func TestSafeGoWithCleanup_RunsCleanupOnReturn(t *testing.T) {
	cleaned := make(chan struct{})
	SafeGoWithCleanup("worker", func() {}, func() { close(cleaned) })

	select {
	case <-cleaned:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not run after normal return")
	}
}

func TestSafeGoWithCleanup_RunsCleanupOnPanic(t *testing.T) {
	cleaned := make(chan struct{})
	SafeGoWithCleanup("panicky-worker", func() { panic("boom") }, func() { close(cleaned) })

	select {
	case <-cleaned:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not run after panic")
	}
	require.NotPanics(t, func() { SafeGoWithCleanup("nil-cleanup", func() {}, nil) })
}
