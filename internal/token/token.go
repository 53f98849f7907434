package token

import "github.com/southadmin/localvault/internal/local"

// Key is the well-known storage key for the auth token.
const Key = "token"

// Accessor reads and writes the auth token through a local.Store.
type Accessor struct {
	store *local.Store
}

func New(store *local.Store) *Accessor {
	return &Accessor{store: store}
}

// Get returns the stored token, or "" when none is live.
func (a *Accessor) Get() (string, error) {
	tok, _, err := local.Get[string](a.store, Key)
	return tok, err
}

// Set stores the token with the store's default TTL.
func (a *Accessor) Set(value string) error {
	return a.store.Set(Key, value)
}

func (a *Accessor) Remove() error {
	return a.store.Remove(Key)
}
