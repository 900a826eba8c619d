package pkg

import "errors"

// Storage errors.
var (
	// ErrStorage indicates a mount, format, read or write failure of the log store.
	ErrStorage = errors.New("storage error")

	// ErrNotMounted indicates the filesystem is not mounted.
	ErrNotMounted = errors.New("filesystem not mounted")

	// ErrNoFilesystem indicates the media holds no valid filesystem.
	ErrNoFilesystem = errors.New("no filesystem on media")

	// ErrNoSpace indicates the log would exceed its reserved capacity.
	ErrNoSpace = errors.New("no space left on media")

	// ErrMounted indicates the operation requires an unmounted filesystem.
	ErrMounted = errors.New("filesystem mounted")
)

// Event path errors.
var (
	// ErrQueueFull indicates an event was dropped because the queue is full.
	ErrQueueFull = errors.New("event queue full")

	// ErrEngineNotReady indicates the capture engine did not signal readiness.
	ErrEngineNotReady = errors.New("capture engine not ready")
)

// Console errors.
var (
	// ErrLineOverflow indicates a command line exceeded the line buffer capacity.
	ErrLineOverflow = errors.New("command line too long")

	// ErrUnknownCommand indicates a line matched no recognized command.
	ErrUnknownCommand = errors.New("unknown command")
)

// General errors.
var (
	// ErrFatal marks an error after which the system must halt.
	ErrFatal = errors.New("fatal")

	// ErrNotConfigured indicates the transport has no identity attached.
	ErrNotConfigured = errors.New("not configured")

	// ErrAlreadyRunning indicates the component is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the component is not running.
	ErrNotRunning = errors.New("not running")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrCancelled indicates the operation was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// IsFatal reports whether err requires halting the system.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
