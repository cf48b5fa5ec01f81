package entity

import "errors"

var (
	// ErrNotFound is returned when a referenced task or assignment does not exist
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the actor lacks the right to perform the operation
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidState is returned when an operation is attempted from a state that does not permit it
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is returned when a payload fails a structural rule
	ErrValidation = errors.New("validation failed")
)
