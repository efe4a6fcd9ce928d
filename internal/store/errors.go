package store

import "errors"

// ErrNotFound is wrapped into errors returned when a lookup by id finds
// nothing. Callers should check with errors.Is.
var ErrNotFound = errors.New("not found")
