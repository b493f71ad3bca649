package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// StateEntry is one namespaced value in the local state table.
type StateEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
