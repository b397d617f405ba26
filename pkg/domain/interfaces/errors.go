package interfaces

import "errors"

// ErrNotFound is returned by repository implementations when a requested
// record does not exist. Callers match it with errors.Is regardless of
// the backend.
var ErrNotFound = errors.New("record not found")
