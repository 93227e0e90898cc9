// Package errs defines the sentinel errors shared across the server.
package errs

import "errors"

var (
	// ErrMalformedCommand is returned when a command has bad arity or argument types
	ErrMalformedCommand = errors.New("malformed command")

	// ErrAuthRequired is returned when a command is issued before login
	ErrAuthRequired = errors.New("authentication required")

	// ErrPermissionDenied is returned when a role-restricted command is attempted
	// by an unauthorized role
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when a referenced task or user does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrUnknownUser is returned when a private-message target cannot be resolved
	ErrUnknownUser = errors.New("unknown user")

	// ErrInvalidCredentials is returned on a failed login
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrValidation is returned when input data is invalid
	ErrValidation = errors.New("invalid input")
)
