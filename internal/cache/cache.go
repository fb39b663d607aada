// Package cache is the durable local key-value store: a small persistence
// surface that survives restarts, used as a fallback mirror of the current
// identity and as the store of record for scheduled posts. Values are plain
// JSON blobs; anything that fails to parse on the way out is treated as
// absent, never as a fatal error.
package cache

import "context"

// Logical keys.
const (
	KeyCurrentUser    = "currentUser"
	KeyScheduledPosts = "scheduledPosts"
	KeyInstagramToken = "instagramToken"
)

// KV is the raw persistence surface. Get reports (value, present, error);
// a missing key is (nil, false, nil), not an error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
