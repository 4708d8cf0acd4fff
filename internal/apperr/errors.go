// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("unauthorized")

	// ErrSettingsRequired is returned by workflow actions when the CI token or
	// the owner/repo setting is empty.
	ErrSettingsRequired = errors.New("github token and repository are required")

	// ErrSessionClosed marks work whose owning session ended before it finished.
	ErrSessionClosed = errors.New("session closed")
)
