package vault

import "errors"

// ErrCapacity classifies a write rejected because the backing store is
// out of room. Save reacts by degrading the record and retrying once.
var ErrCapacity = errors.New("storage capacity exceeded")

// Store is the minimal key-value capability the vault needs. Values are
// serialized documents; implementations decide where they live.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) (string, bool, error)
	// Set writes the value, replacing any previous one. A store with a
	// size budget reports overflow via an error wrapping ErrCapacity.
	Set(key, value string) error
	// Remove deletes the key. Removing a missing key is not an error.
	Remove(key string) error
}
