package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PublishStorage implements the PublishStorage interface for Badger
type PublishStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPublishStorage creates a new PublishStorage instance
func NewPublishStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PublishStorage {
	return &PublishStorage{
		db:     db,
		logger: logger,
	}
}

func (s *PublishStorage) StorePublishRecord(ctx context.Context, rec *models.PublishRecord) error {
	if err := s.db.Store().Insert(badgerhold.NextSequence(), rec); err != nil {
		return fmt.Errorf("failed to store publish record: %w", err)
	}
	return nil
}

func (s *PublishStorage) GetRecentPublishRecords(ctx context.Context, limit int) ([]*models.PublishRecord, error) {
	query := badgerhold.Where("ID").Ge(uint64(0)).SortBy("CompletedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []models.PublishRecord
	if err := s.db.Store().Find(&recs, query); err != nil {
		return nil, fmt.Errorf("failed to list publish records: %w", err)
	}

	result := make([]*models.PublishRecord, len(recs))
	for i := range recs {
		result[i] = &recs[i]
	}
	return result, nil
}
