package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// ErrUnknownAction is a catalog defect: the action id has no definition.
	ErrUnknownAction = errors.New("unknown action")

	// ErrRemoteUnavailable wraps any network or service failure of the remote store.
	ErrRemoteUnavailable = errors.New("remote progression service unavailable")

	// ErrProgressionNotFound is returned by the remote store for unknown users.
	ErrProgressionNotFound = errors.New("progression record not found")

	// ErrStorageCorruption marks a persisted record that could not be decoded.
	ErrStorageCorruption = errors.New("persisted progression record is corrupt")

	// ErrPushQueueFull is returned when the background push queue is at capacity.
	ErrPushQueueFull = errors.New("push queue is full")

	// ErrInvalidAction is returned when a catalog entry fails validation.
	ErrInvalidAction = errors.New("invalid action definition")
)
