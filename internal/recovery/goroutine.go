package recovery

import (
	"runtime/debug"

	"github.com/williamsharkey/nimbus/internal/logger"
)

// SafeGo runs fn in a goroutine with panic recovery so that a single
// misbehaving connection or capture loop cannot take down the server
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Panic recovered in goroutine %q: %v\n%s", name, r, debug.Stack())
			}
		}()
		fn()
	}()
}

// SafeGoWithCleanup is SafeGo with a cleanup function that runs whether or
// not fn panics
func SafeGoWithCleanup(name string, fn func(), cleanup func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Panic recovered in goroutine %q: %v\n%s", name, r, debug.Stack())
			}
			if cleanup != nil {
				cleanup()
			}
		}()
		fn()
	}()
}
