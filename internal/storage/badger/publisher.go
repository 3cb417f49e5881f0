// -----------------------------------------------------------------------
// Last Modified: Tuesday, 12th May 2026 11:50:02 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// PublisherStore implements the Publisher interface for Badger. Keys are
// stored exactly as given; the published key names are the catalog's
// external contract and must round-trip unchanged.
type PublisherStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPublisherStore creates a new PublisherStore instance
func NewPublisherStore(db *BadgerDB, logger arbor.ILogger) interfaces.Publisher {
	return &PublisherStore{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a raw value by key
func (s *PublisherStore) Get(ctx context.Context, key string) (string, error) {
	var pair interfaces.KeyValuePair
	err := s.db.Store().Get(key, &pair)
	if err == badgerhold.ErrNotFound {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return pair.Value, nil
}

// GetJSON retrieves a value and unmarshals it into out
func (s *PublisherStore) GetJSON(ctx context.Context, key string, out any) error {
	value, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return fmt.Errorf("failed to decode value for key %s: %w", key, err)
	}
	return nil
}

// Set inserts or updates a raw value
func (s *PublisherStore) Set(ctx context.Context, key string, value string) error {
	now := time.Now()

	pair := interfaces.KeyValuePair{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Preserve CreatedAt on updates
	var existing interfaces.KeyValuePair
	if err := s.db.Store().Get(key, &existing); err == nil {
		pair.CreatedAt = existing.CreatedAt
	}

	if err := s.db.Store().Upsert(key, &pair); err != nil {
		return fmt.Errorf("failed to set key/value: %w", err)
	}
	return nil
}

// SetJSON marshals value and stores it under key
func (s *PublisherStore) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// Delete removes a key/value pair
func (s *PublisherStore) Delete(ctx context.Context, key string) error {
	err := s.db.Store().Delete(key, &interfaces.KeyValuePair{})
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// List returns all pairs ordered by key
func (s *PublisherStore) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	var pairs []interfaces.KeyValuePair
	err := s.db.Store().Find(&pairs, badgerhold.Where("Key").Ne("").SortBy("Key"))
	if err != nil {
		return nil, fmt.Errorf("failed to list key/value pairs: %w", err)
	}
	return pairs, nil
}

// ListByPrefix returns all pairs whose key starts with prefix, ordered by key
func (s *PublisherStore) ListByPrefix(ctx context.Context, prefix string) ([]interfaces.KeyValuePair, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	pairs := make([]interfaces.KeyValuePair, 0)
	for _, pair := range all {
		if strings.HasPrefix(pair.Key, prefix) {
			pairs = append(pairs, pair)
		}
	}
	return pairs, nil
}

// DeleteAll removes every pair from the store
func (s *PublisherStore) DeleteAll(ctx context.Context) error {
	var pairs []interfaces.KeyValuePair
	err := s.db.Store().Find(&pairs, nil)
	if err != nil {
		return fmt.Errorf("failed to list key/value pairs for deletion: %w", err)
	}

	for _, pair := range pairs {
		if err := s.db.Store().Delete(pair.Key, &interfaces.KeyValuePair{}); err != nil {
			s.logger.Warn().Str("key", pair.Key).Err(err).Msg("Failed to delete key during DeleteAll")
		}
	}

	s.logger.Info().Int("count", len(pairs)).Msg("Deleted all key/value pairs")
	return nil
}
