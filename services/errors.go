package services

import "errors"

var (
	// ErrUnauthorized is returned when the acting identity lacks a capability.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when a directly addressed entity does not exist
	// or is not visible to the acting identity.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for requests that cannot be degraded into a valid one.
	ErrInvalidInput = errors.New("invalid input")
	// ErrScopeClosed is returned when an elevated Scope is used after its work returned.
	ErrScopeClosed = errors.New("elevated scope already closed")
)
