package cache

import (
	"context"
)

// SetStore holds named sets of strings. The reconciliation dedup state is
// kept in one, so it can live in process memory for a single instance or in
// Redis / SQL when several scanners share it.
type SetStore interface {
	// IsMember reports whether member is in the named set.
	IsMember(ctx context.Context, set, member string) (bool, error)

	// Add inserts member into the named set. Adding an existing member is a no-op.
	Add(ctx context.Context, set, member string) error

	// Count returns the size of the named set.
	Count(ctx context.Context, set string) (int64, error)

	// Members returns every member of the named set in no particular order.
	Members(ctx context.Context, set string) ([]string, error)

	// Close releases the store's resources.
	Close() error
}

// StoreError is a constant error type for store failures.
type StoreError string

func (e StoreError) Error() string { return string(e) }

const (
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed StoreError = "set store closed"
)
