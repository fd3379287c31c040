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

// ApplicationStorage implements the ApplicationStorage interface for Badger
type ApplicationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewApplicationStorage creates a new ApplicationStorage instance
func NewApplicationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ApplicationStorage {
	return &ApplicationStorage{
		db:     db,
		logger: logger,
	}
}

// StoreApplication inserts the application keyed by MessageID. Re-storing an
// existing MessageID is a no-op, which makes inbound ingestion idempotent.
func (s *ApplicationStorage) StoreApplication(ctx context.Context, app *models.Application) error {
	if app.MessageID == "" {
		return fmt.Errorf("message ID is required")
	}

	if err := s.db.Store().Insert(app.MessageID, app); err != nil {
		if err == badgerhold.ErrKeyExists {
			s.logger.Debug().Str("message_id", app.MessageID).Msg("Application already recorded, skipping")
			return nil
		}
		return fmt.Errorf("failed to store application: %w", err)
	}
	return nil
}

func (s *ApplicationStorage) GetApplication(ctx context.Context, messageID string) (*models.Application, error) {
	var app models.Application
	if err := s.db.Store().Get(messageID, &app); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return &app, nil
}

func (s *ApplicationStorage) GetUnprocessed(ctx context.Context, limit int) ([]*models.Application, error) {
	query := badgerhold.Where("Processed").Eq(false).SortBy("ReceivedAt")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var apps []models.Application
	if err := s.db.Store().Find(&apps, query); err != nil {
		return nil, fmt.Errorf("failed to list unprocessed applications: %w", err)
	}

	result := make([]*models.Application, len(apps))
	for i := range apps {
		result[i] = &apps[i]
	}
	return result, nil
}

func (s *ApplicationStorage) MarkProcessed(ctx context.Context, messageID string) error {
	var app models.Application
	if err := s.db.Store().Get(messageID, &app); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("application not found: %s", messageID)
		}
		return fmt.Errorf("failed to get application: %w", err)
	}

	app.Processed = true
	app.ProcessedAt = time.Now()

	if err := s.db.Store().Update(messageID, &app); err != nil {
		return fmt.Errorf("failed to mark application processed: %w", err)
	}
	return nil
}

func (s *ApplicationStorage) CountApplications(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Application{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return int(count), nil
}
