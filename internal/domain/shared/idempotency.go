package shared

import (
	"context"
	"time"
)

// StoredResponse is the response recorded for an idempotency key
type StoredResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	// RequestHash fingerprints the request body; a replay with a different
	// body under the same key is rejected
	RequestHash string `json:"request_hash"`
}

// IdempotencyStore remembers the outcome of mutation requests keyed by the
// client's Idempotency-Key so a retried request replays instead of
// reserving or consuming stock twice.
type IdempotencyStore interface {
	// Acquire claims key for an in-flight request. It returns false when
	// another request holds or already completed the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Load returns the completed response for key, or nil when there is none
	Load(ctx context.Context, key string) (*StoredResponse, error)

	// Complete stores the response and keeps it for ttl
	Complete(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error

	// Abandon drops the claim so the client can retry
	Abandon(ctx context.Context, key string) error

	Close() error
}
