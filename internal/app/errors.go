// Package app provides the main application structure and coordination.
package app

import "errors"

// Application errors.
var (
	// ErrQuit signals that the daemon should exit normally.
	ErrQuit = errors.New("quit requested")

	// ErrAlreadyRunning indicates the daemon is already running.
	ErrAlreadyRunning = errors.New("daemon already running")

	// ErrNotRunning indicates the daemon is not running.
	ErrNotRunning = errors.New("daemon not running")

	// ErrInitialization indicates an initialization failure.
	ErrInitialization = errors.New("initialization failed")

	// ErrShutdownTimeout indicates shutdown timed out.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// InitError wraps a failure to initialize a named component during
// startup.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return "init " + e.Component
	}
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
