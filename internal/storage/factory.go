package storage

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/storage/badger"
)

// Store bundles the database connection with the publisher built on it so
// the application can close both together.
type Store struct {
	db        *badger.BadgerDB
	Publisher interfaces.Publisher
}

// NewStore opens the Badger database and wires the catalog publisher
func NewStore(logger arbor.ILogger, config *common.Config) (*Store, error) {
	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:        db,
		Publisher: badger.NewPublisherStore(db, logger),
	}, nil
}

// Maintain reclaims space left behind by republished catalog keys.
func (s *Store) Maintain() error {
	return s.db.RunGC(0.5)
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
