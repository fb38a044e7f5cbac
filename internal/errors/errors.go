// Package errors provides structured CLI error types for the adaptor.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// so every command reports failures the same way.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Exit codes for CLI errors.
const (
	ExitSuccess    = 0  // Successful execution
	ExitGeneral    = 1  // General error
	ExitConfig     = 4  // Configuration error
	ExitTimeout    = 5  // Engine did not respond in time
	ExitExecution  = 6  // Engine or render failure
	ExitCanceled   = 7  // Session canceled
	ExitUsage      = 64 // Command line usage error (BSD convention)
	ExitValidation = 65 // Malformed init or run data (BSD EX_DATAERR)
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- Common error constructors ---

// InvalidPayload returns an error for init or run data that failed schema
// validation.
func InvalidPayload(payload string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Invalid %s", payload),
		Hint:    "Run 'unreal-adaptor validate' to check the payload against the schema",
		Cause:   cause,
		Code:    ExitValidation,
	}
}

// PayloadUnreadable returns an error for a payload that could not be read or
// decoded.
func PayloadUnreadable(source string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Cannot read payload: %s", source),
		Hint:    "Pass inline JSON or YAML, or file://<path> to read it from a file",
		Cause:   cause,
		Code:    ExitUsage,
	}
}

// ConfigFailed returns an error for configuration load or save failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check the config file or run 'unreal-adaptor doctor'",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// UnknownConfigKey returns an error for a config key the adaptor does not
// define.
func UnknownConfigKey(key string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Unknown config key: %s", key),
		Hint:    "Run 'unreal-adaptor config list' to see available keys",
		Code:    ExitUsage,
	}
}

// EngineNotFound returns an error when the engine executable is missing.
func EngineNotFound(executable string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Unreal executable not found: %s", executable),
		Hint:    "Put it on PATH or set engine.executable in the config",
		Code:    ExitConfig,
	}
}

// ClientScriptNotFound returns an error when the engine client script
// cannot be located.
func ClientScriptNotFound(cause error) *CLIError {
	return &CLIError{
		Message: "Engine client script not found",
		Hint:    "Set engine.client_script or add its root to engine.client_search_paths",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// EngineTimedOut returns an error for an engine phase that exceeded its
// timeout.
func EngineTimedOut(phase string, timeout time.Duration, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Unreal %s timed out after %s", phase, timeout),
		Hint:    "Increase the matching adaptor timeout or check the engine log",
		Cause:   cause,
		Code:    ExitTimeout,
	}
}

// EngineFailed returns an error for an engine failure. It detects common
// log patterns and provides specific hints.
func EngineFailed(exitCode int, line string, cause error) *CLIError {
	msg := "Unreal failed"
	hint := ""

	switch {
	case containsAny(line, "ModuleNotFoundError", "ImportError", "No module named"):
		msg = "Unreal could not import the adaptor client"
		hint = "Check engine.python_paths and that the Python plugin is enabled for the project"
	case containsAny(line, "Render Executor"):
		msg = "Movie Render Queue reported an error"
		hint = "Check the level sequence, map and job configuration paths in the run data"
	case containsAny(line, "Custom Step Executor"):
		msg = "Custom step script reported an error"
		hint = "Check the script_path and script_args in the run data"
	case containsAny(line, "LogPython: Error"):
		msg = "Unreal Python reported an error"
		hint = "Run with --log-level=debug to see the full engine output"
	case exitCode < 0:
		msg = "Unreal was killed by a signal"
		hint = fmt.Sprintf("Signal %d; check for out-of-memory kills on the host", -exitCode)
	case exitCode > 0:
		msg = fmt.Sprintf("Unreal exited with code %d", exitCode)
		hint = "Check the render logs for the last engine error"
	default:
		hint = "Run with --log-level=debug to see the full engine output"
	}

	return &CLIError{
		Message: msg,
		Hint:    hint,
		Cause:   cause,
		Code:    ExitExecution,
	}
}

// SessionCanceled returns an error for a session stopped by a signal.
func SessionCanceled() *CLIError {
	return &CLIError{
		Message: "Session canceled",
		Hint:    "The engine was terminated; rerun the task to render again",
		Code:    ExitCanceled,
	}
}

// containsAny checks if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}

	return false
}
