// -----------------------------------------------------------------------
// Last Modified: Tuesday, 12th May 2026 11:42:18 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// KeyValuePair represents a single published key/value pair with metadata
type KeyValuePair struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Publisher defines operations for the key/value store that holds the
// published catalog artifacts. Values are JSON documents.
type Publisher interface {
	// Get retrieves a raw value by key, returns ErrKeyNotFound if absent
	Get(ctx context.Context, key string) (string, error)

	// GetJSON retrieves a value and unmarshals it into out
	GetJSON(ctx context.Context, key string, out any) error

	// Set inserts or updates a raw value
	Set(ctx context.Context, key string, value string) error

	// SetJSON marshals value and stores it under key
	SetJSON(ctx context.Context, key string, value any) error

	// Delete removes a key, returns ErrKeyNotFound if absent
	Delete(ctx context.Context, key string) error

	// List returns all pairs ordered by key
	List(ctx context.Context) ([]KeyValuePair, error)

	// ListByPrefix returns all pairs whose key starts with prefix, ordered by key
	ListByPrefix(ctx context.Context, prefix string) ([]KeyValuePair, error)

	// DeleteAll removes every pair from the store
	DeleteAll(ctx context.Context) error
}
