package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentLease = (*Lease)(nil)

const leasePrefix = "marginalia:lease:"

// Lease implements driven.DocumentLease with SET NX and a TTL. The value is
// the holder id so only the holder can renew or release it.
type Lease struct {
	client   *redis.Client
	holderID string
}

// NewLease creates a lease holder with a generated id.
func NewLease(client *redis.Client) *Lease {
	return &Lease{
		client:   client,
		holderID: generateHolderID(),
	}
}

// Format: hostname:pid:random
func generateHolderID() string {
	hostname, _ := os.Hostname()
	randomBytes := make([]byte, 8)
	_, _ = rand.Read(randomBytes)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(randomBytes))
}

// acquireScript sets the key when free and renews it when already ours.
var acquireScript = redis.NewScript(`
	local current = redis.call("get", KEYS[1])
	if not current then
		redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
		return 1
	end
	if current == ARGV[1] then
		redis.call("pexpire", KEYS[1], ARGV[2])
		return 1
	end
	return 0
`)

// Acquire takes or renews the lease on a document.
func (l *Lease) Acquire(ctx context.Context, documentID string, ttl time.Duration) (bool, error) {
	result, err := acquireScript.Run(ctx, l.client, []string{leasePrefix + documentID}, l.holderID, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", documentID, err)
	}
	return result == 1, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release deletes the lease only if this holder owns it.
func (l *Lease) Release(ctx context.Context, documentID string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{leasePrefix + documentID}, l.holderID).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release lease %s: %w", documentID, err)
	}
	return nil
}

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Extend renews a held lease. It fails when the lease expired or belongs
// to someone else.
func (l *Lease) Extend(ctx context.Context, documentID string, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{leasePrefix + documentID}, l.holderID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lease %s: %w", documentID, err)
	}
	if result == 0 {
		return fmt.Errorf("lease %s not held by %s", documentID, l.holderID)
	}
	return nil
}

// HolderID returns the unique identifier for this holder.
func (l *Lease) HolderID() string {
	return l.holderID
}
