// Package engineerr defines the structural error kinds from spec §7 shared
// by the model wrappers and the engine orchestrator, so the orchestrator
// can classify a failure without knowing which subsystem raised it.
package engineerr

import "fmt"

// LoadFailedError reports a model artifact that is missing, malformed, or
// shape-incompatible. It is returned synchronously from a load call; the
// caller's prior model state is left untouched.
type LoadFailedError struct {
	Path  string
	Cause error
}

func (e *LoadFailedError) Error() string {
	return fmt.Sprintf("load failed for %q: %v", e.Path, e.Cause)
}

func (e *LoadFailedError) Unwrap() error {
	return e.Cause
}

// NotReadyError reports that a processing call arrived before its model
// finished loading, or that the model has escalated out of service after
// repeated transient failures.
type NotReadyError struct {
	Reason string
}

func (e *NotReadyError) Error() string {
	return "not ready: " + e.Reason
}

// ErrNotReady is the NotReadyError raised for "no model loaded", the most
// common case; escalation after repeated failures uses a NotReadyError
// with a more specific Reason instead.
var ErrNotReady = &NotReadyError{Reason: "model not loaded"}

// PermissionDeniedError is raised by the external audio-acquisition
// collaborator; the engine stays idle and surfaces it as an error event.
type PermissionDeniedError struct {
	Cause error
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %v", e.Cause)
}

func (e *PermissionDeniedError) Unwrap() error {
	return e.Cause
}
