package cache

import "errors"

// KV defines the durable string-keyed backing store contract.
// Implementations must be safe for concurrent use by multiple goroutines.
type KV interface {
	// Get returns ErrNotFound when the key is absent.
	Get(key string) (string, error)
	Set(key, value string) error
	// Remove is idempotent: removing an absent key is not an error.
	Remove(key string) error
	// Clear drops every key in the store.
	Clear() error
}

var ErrNotFound = errors.New("cache: not found")
