package adaptor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidState is returned when a lifecycle operation is not valid
	// in the controller's current state.
	ErrInvalidState = errors.New("invalid lifecycle state")

	// ErrClientScriptNotFound is returned when the engine client script
	// cannot be located.
	ErrClientScriptNotFound = errors.New("engine client script not found")

	// ErrSessionStopped is returned by OnStart when the session was stopped
	// before the engine finished starting.
	ErrSessionStopped = errors.New("session stopped during startup")
)

// ValidationError reports a malformed init or run payload.
type ValidationError struct {
	// Payload is "init data" or "run data".
	Payload string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Payload, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StartupTimeoutError reports that the IPC server did not bind in time.
type StartupTimeoutError struct {
	Timeout time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return "Could not find a socket path because the server did not finish initializing"
}

// InitTimeoutError reports that the engine did not drain the bootstrap
// queue before the engine start timeout.
type InitTimeoutError struct {
	Timeout time.Duration
}

func (e *InitTimeoutError) Error() string {
	return fmt.Sprintf("Unreal did not complete initialization actions in %s and failed to start.", e.Timeout)
}

// InitFailureError reports that the engine failed while initializing.
type InitFailureError struct {
	Cause error
}

func (e *InitFailureError) Error() string {
	return "Unreal encountered an error and was not able to complete initialization actions."
}

func (e *InitFailureError) Unwrap() error {
	return e.Cause
}

// NotRunningError reports a run request without a live engine.
type NotRunningError struct{}

func (e *NotRunningError) Error() string {
	return "Cannot render because Unreal is not running."
}

// RenderFailureError reports that the engine exited during a run without
// signalling completion.
type RenderFailureError struct {
	ExitCode int
}

func (e *RenderFailureError) Error() string {
	return fmt.Sprintf("Unreal exited early and did not render successfully, please check render logs. Exit code %d",
		e.ExitCode)
}

// SubprocessLoggedError carries an engine log line that matched an error
// rule.
type SubprocessLoggedError struct {
	Line string
}

func (e *SubprocessLoggedError) Error() string {
	return "Unreal Encountered an Error: " + e.Line
}
