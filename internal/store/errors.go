package store

import "errors"

var (
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrInvalidTransition indicates a status change that the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotFound indicates the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
)
