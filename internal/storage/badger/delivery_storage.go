package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DeliveryStorage implements the DeliveryStorage interface for Badger
type DeliveryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDeliveryStorage creates a new DeliveryStorage instance
func NewDeliveryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DeliveryStorage {
	return &DeliveryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DeliveryStorage) StoreDelivery(ctx context.Context, rec *models.DeliveryRecord) error {
	if rec.Channel == "" || rec.SubjectKey == "" {
		return fmt.Errorf("channel and subject key are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if err := s.db.Store().Insert(badgerhold.NextSequence(), rec); err != nil {
		return fmt.Errorf("failed to store delivery record: %w", err)
	}
	return nil
}

// HasRecent checks the ledger for a matching delivery inside the window.
// Failed deliveries count too: a crash after ledger write and before the
// side effect suppresses the retry rather than duplicating it.
func (s *DeliveryStorage) HasRecent(ctx context.Context, channel, subjectKey string, window time.Duration) (bool, error) {
	cutoff := time.Now().Add(-window)

	count, err := s.db.Store().Count(&models.DeliveryRecord{},
		badgerhold.Where("Channel").Eq(channel).
			And("SubjectKey").Eq(subjectKey).
			And("CreatedAt").Ge(cutoff))
	if err != nil {
		return false, fmt.Errorf("failed to query delivery ledger: %w", err)
	}
	return count > 0, nil
}

func (s *DeliveryStorage) GetDeliveriesSince(ctx context.Context, since time.Time) ([]*models.DeliveryRecord, error) {
	var recs []models.DeliveryRecord
	if err := s.db.Store().Find(&recs, badgerhold.Where("CreatedAt").Ge(since).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list delivery records: %w", err)
	}

	result := make([]*models.DeliveryRecord, len(recs))
	for i := range recs {
		result[i] = &recs[i]
	}
	return result, nil
}
