// Package cache provides a durable response cache keyed by request
// fingerprint, with one JSON file per entry and per-entry expiration.
package cache

import (
	"encoding/json"
	"time"
)

// Payload kinds. Entries are tagged with the shape of the cached value so
// Get can restore it without caller-supplied type hints.
const (
	kindText       = "text"
	kindStructured = "json"
)

// Entry is the on-disk representation of a cached value.
type Entry struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	// ExpiresAt is a unix timestamp in seconds. Zero means no expiry is
	// tracked; such entries are never purged.
	ExpiresAt int64 `json:"expires_at"`
}

// IsExpired reports whether the entry's expiry timestamp is in the past.
// Entries without an expiry never expire.
func (e *Entry) IsExpired(now time.Time) bool {
	return e.ExpiresAt > 0 && now.Unix() >= e.ExpiresAt
}
