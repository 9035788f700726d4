package models

import "errors"

// Error taxonomy shared by repositories, services and handlers.
// Callers wrap these with context and match them with errors.Is.
var (
	// ErrPermissionDenied is returned when the role policy rejects an operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound is returned when a referenced asset, version or tag does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key was claimed by a concurrent writer.
	ErrConflict = errors.New("conflict")
	// ErrValidation is returned for malformed input before any mutation happens.
	ErrValidation = errors.New("validation failed")
	// ErrStorage is returned when the blob store fails to persist or serve a file.
	ErrStorage = errors.New("storage failure")
)
