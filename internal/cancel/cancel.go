// Package cancel provides the termination token shared by the controller,
// the toggle loop and the data handler.
//
// This package offers two implementations of the Canceler interface:
//   - AtomicCanceler: atomic.Bool flag polled by the toggle loop
//   - ContextCanceler: context.Context for the data handler, which waits
//     on a channel between drains
//
// The controller holds the Canceler; workers receive only an Observer.
package cancel

// Observer is the read-only end of a termination token.
//
// Implementations must be safe for concurrent use with Cancel().
type Observer interface {
	// Done returns true if cancellation has been triggered.
	Done() bool
}

// Canceler provides cancellation signaling to workers.
//
// Implementations must be safe for concurrent use:
//   - Multiple goroutines may call Done() concurrently
//   - Cancel() may be called concurrently with Done()
type Canceler interface {
	Observer

	// Cancel triggers cancellation. Safe to call multiple times.
	Cancel()
}
