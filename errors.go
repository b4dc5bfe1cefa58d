package livecache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: the targeted record (or its parent) does not exist.
	ErrNotFound = errors.New("livecache: not found")

	// ErrPermissionDenied: the remote store rejected the operation on
	// security rules. Remote implementations should wrap this sentinel.
	ErrPermissionDenied = errors.New("livecache: permission denied")

	// ErrValidation: caller-supplied data was rejected before any remote
	// call was attempted.
	ErrValidation = errors.New("livecache: validation failed")

	// ErrRemoteUnavailable: fetch or subscribe could not reach the remote
	// store. Cached data, if any, continues to be served stale.
	ErrRemoteUnavailable = errors.New("livecache: remote unavailable")
)

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsPermissionDenied reports whether err is (or wraps) ErrPermissionDenied.
func IsPermissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }

// WriteError is a remote write rejection. The optimistic local state has
// already been rolled back by the time a caller sees one.
type WriteError struct {
	Op    string // "create", "update", "delete", "batch"
	Kind  string
	Scope string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("livecache: %s %s (scope %q) rejected: %v", e.Op, e.Kind, e.Scope, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// EntryTooLargeError: an encoded entry exceeded the kind's byte ceiling.
// The store rejects the write; it never truncates. Absorbed by the cache
// layer, surfaced only through logs and hooks.
type EntryTooLargeError struct {
	Kind  string
	Scope string
	Size  int
	Limit int
}

func (e *EntryTooLargeError) Error() string {
	return fmt.Sprintf("livecache: entry for %s (scope %q) too large: %d > %d bytes",
		e.Kind, e.Scope, e.Size, e.Limit)
}
