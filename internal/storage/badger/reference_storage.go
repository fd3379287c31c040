package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ReferenceStorage implements the ReferenceStorage interface for Badger
type ReferenceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReferenceStorage creates a new ReferenceStorage instance
func NewReferenceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReferenceStorage {
	return &ReferenceStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ReferenceStorage) StoreReference(ctx context.Context, ref *models.JobReference) error {
	if ref.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if ref.ReferenceToken == "" {
		return fmt.Errorf("reference token is required")
	}

	if err := s.db.Store().Upsert(ref.JobID, ref); err != nil {
		return fmt.Errorf("failed to store reference: %w", err)
	}
	return nil
}

func (s *ReferenceStorage) GetReference(ctx context.Context, jobID string) (*models.JobReference, error) {
	var ref models.JobReference
	if err := s.db.Store().Get(jobID, &ref); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reference: %w", err)
	}
	return &ref, nil
}

func (s *ReferenceStorage) GetAllReferences(ctx context.Context) ([]*models.JobReference, error) {
	var refs []models.JobReference
	if err := s.db.Store().Find(&refs, nil); err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}

	result := make([]*models.JobReference, len(refs))
	for i := range refs {
		result[i] = &refs[i]
	}
	return result, nil
}

func (s *ReferenceStorage) DeleteReference(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.JobReference{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete reference: %w", err)
	}
	return nil
}

func (s *ReferenceStorage) CountReferences(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.JobReference{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count references: %w", err)
	}
	return int(count), nil
}
