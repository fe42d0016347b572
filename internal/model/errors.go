package model

import "errors"

var (
	// ErrNotFound covers both missing resources and resources owned by a
	// different user, so callers cannot distinguish the two.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks rejected input. No side effects occur before it.
	ErrValidation = errors.New("validation error")

	// ErrConflict marks unique-constraint violations (duplicate username).
	ErrConflict = errors.New("conflict")

	// ErrInvalidCredentials marks failed login or an invalid/expired token.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnavailable marks an unreachable backing service (model, memory,
	// history, search).
	ErrUnavailable = errors.New("service unavailable")
)
