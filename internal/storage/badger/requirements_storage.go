package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RequirementsStorage implements the RequirementsStorage interface for Badger
type RequirementsStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRequirementsStorage creates a new RequirementsStorage instance
func NewRequirementsStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RequirementsStorage {
	return &RequirementsStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RequirementsStorage) StoreRequirements(ctx context.Context, req *models.JobRequirements) error {
	if req.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(req.JobID, req); err != nil {
		return fmt.Errorf("failed to store requirements: %w", err)
	}
	return nil
}

func (s *RequirementsStorage) GetRequirements(ctx context.Context, jobID string) (*models.JobRequirements, error) {
	var req models.JobRequirements
	if err := s.db.Store().Get(jobID, &req); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get requirements: %w", err)
	}
	return &req, nil
}
