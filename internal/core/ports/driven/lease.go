package driven

import (
	"context"
	"time"
)

// DocumentLease gives one process exclusive ownership of a document's
// thread set when several processes share a store.
type DocumentLease interface {
	// Acquire takes the lease for ttl. Re-acquiring a lease this holder
	// already owns renews it. Returns false when another holder owns it.
	Acquire(ctx context.Context, documentID string, ttl time.Duration) (bool, error)

	// Extend pushes the expiry of a held lease out to ttl from now.
	Extend(ctx context.Context, documentID string, ttl time.Duration) error

	// Release drops the lease if this holder owns it.
	Release(ctx context.Context, documentID string) error

	// HolderID identifies this holder in logs.
	HolderID() string
}
