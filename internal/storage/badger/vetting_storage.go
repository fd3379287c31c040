package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// VettingStorage implements the VettingStorage interface for Badger
type VettingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewVettingStorage creates a new VettingStorage instance
func NewVettingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.VettingStorage {
	return &VettingStorage{
		db:     db,
		logger: logger,
	}
}

func (s *VettingStorage) StoreRun(ctx context.Context, run *models.VettingRun) error {
	if run.RunID == "" {
		return fmt.Errorf("run ID is required")
	}

	if err := s.db.Store().Upsert(run.RunID, run); err != nil {
		return fmt.Errorf("failed to store vetting run: %w", err)
	}
	return nil
}

func (s *VettingStorage) GetRun(ctx context.Context, runID string) (*models.VettingRun, error) {
	var run models.VettingRun
	if err := s.db.Store().Get(runID, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vetting run: %w", err)
	}
	return &run, nil
}

func (s *VettingStorage) GetRunByMessageID(ctx context.Context, messageID string) (*models.VettingRun, error) {
	var runs []models.VettingRun
	if err := s.db.Store().Find(&runs, badgerhold.Where("MessageID").Eq(messageID).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find vetting run: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *VettingStorage) GetRunsByStatus(ctx context.Context, status models.RunStatus, limit int) ([]*models.VettingRun, error) {
	query := badgerhold.Where("Status").Eq(status).SortBy("StartedAt")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.VettingRun
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list vetting runs: %w", err)
	}

	result := make([]*models.VettingRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *VettingStorage) GetOldestRunning(ctx context.Context) (*models.VettingRun, error) {
	var runs []models.VettingRun
	if err := s.db.Store().Find(&runs, badgerhold.Where("Status").Eq(models.RunStatusRunning).SortBy("StartedAt").Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find running vetting run: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *VettingStorage) StoreMatch(ctx context.Context, match *models.JobMatch) error {
	if err := s.db.Store().Insert(badgerhold.NextSequence(), match); err != nil {
		return fmt.Errorf("failed to store job match: %w", err)
	}
	return nil
}

func (s *VettingStorage) GetMatchesByRun(ctx context.Context, runID string) ([]*models.JobMatch, error) {
	var matches []models.JobMatch
	if err := s.db.Store().Find(&matches, badgerhold.Where("RunID").Eq(runID).SortBy("Score").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to list job matches: %w", err)
	}

	result := make([]*models.JobMatch, len(matches))
	for i := range matches {
		result[i] = &matches[i]
	}
	return result, nil
}

func (s *VettingStorage) StoreFilterEntry(ctx context.Context, entry *models.FilterLogEntry) error {
	if err := s.db.Store().Insert(badgerhold.NextSequence(), entry); err != nil {
		return fmt.Errorf("failed to store filter log entry: %w", err)
	}
	return nil
}

func (s *VettingStorage) StoreEscalationEntry(ctx context.Context, entry *models.EscalationLogEntry) error {
	if err := s.db.Store().Insert(badgerhold.NextSequence(), entry); err != nil {
		return fmt.Errorf("failed to store escalation log entry: %w", err)
	}
	return nil
}
