// Package sentinel holds infrastructure facts returned by stores and caches.
// Services translate them into domain errors; handlers never see them.
package sentinel

import "errors"

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness constraint was hit.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable means a backing service could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
