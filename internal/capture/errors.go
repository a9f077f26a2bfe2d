package capture

import "errors"

var (
	// ErrRecognitionFailed is recorded on an item whose recognition call failed
	ErrRecognitionFailed = errors.New("recognition failed")
	// ErrPersistenceFailed is recorded on an item whose create or update failed
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrValidationRejected means a save was refused before any network call
	ErrValidationRejected = errors.New("validation rejected")
	// ErrNotFound means no item with the given id is queued
	ErrNotFound = errors.New("item not found")
	// ErrNotReady means the item is still waiting for or undergoing recognition
	ErrNotReady = errors.New("item not ready")
	// ErrInvalidTransition means the operation does not apply to the item's status
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrEngineStopped is returned by operations issued after the engine shut down
	ErrEngineStopped = errors.New("engine stopped")
)
