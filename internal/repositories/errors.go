// Package repositories holds the PostgreSQL persistence layer. Every store
// acquires a pooled connection per call and maps database failures onto the
// sentinel errors below so callers never see driver-level error types.
package repositories

import "errors"

var (
	// ErrNotFound means no row matched the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrConflict means the write lost to a uniqueness constraint, such as
	// a taken email identity or username.
	ErrConflict = errors.New("record conflict")
)
