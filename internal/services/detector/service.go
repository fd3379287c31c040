package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

// Service finds new applicants across three signal sources: applications
// already ingested from inbound mail, ATS web responses, and agent-created
// submissions. All three land in the application store keyed by MessageID,
// so overlapping signals for the same event collapse to one record.
type Service struct {
	ats     interfaces.ATSClient
	apps    interfaces.ApplicationStorage
	config  *common.VettingConfig
	exclude map[string]bool
	logger  arbor.ILogger
}

// NewService creates the applicant detector
func NewService(ats interfaces.ATSClient, apps interfaces.ApplicationStorage, config *common.VettingConfig, excludeJobs []string, logger arbor.ILogger) *Service {
	exclude := make(map[string]bool, len(excludeJobs))
	for _, id := range excludeJobs {
		exclude[id] = true
	}
	return &Service{
		ats:     ats,
		apps:    apps,
		config:  config,
		exclude: exclude,
		logger:  logger,
	}
}

// DetectBatch ingests fresh ATS events and returns the next batch of
// unprocessed applications, oldest first. ATS outages degrade detection to
// the mail-ingested backlog instead of failing the cycle.
func (s *Service) DetectBatch(ctx context.Context) ([]*models.Application, error) {
	since := time.Now().Add(-time.Duration(s.config.DetectorWindowMins) * time.Minute)

	s.ingest(ctx, "web_responses", func() ([]*models.Application, error) {
		return s.ats.FindRecentWebResponses(ctx, since, s.config.BatchSize*2)
	})
	s.ingest(ctx, "submissions", func() ([]*models.Application, error) {
		return s.ats.FindRecentSubmissions(ctx, since, s.config.BatchSize*2)
	})

	batch, err := s.apps.GetUnprocessed(ctx, s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load unprocessed applications: %w", err)
	}

	filtered := batch[:0]
	for _, app := range batch {
		if s.exclude[app.JobID] {
			// Excluded jobs are marked processed without vetting so they
			// never clog the queue.
			if err := s.apps.MarkProcessed(ctx, app.MessageID); err != nil {
				s.logger.Warn().Err(err).Str("message_id", app.MessageID).Msg("Failed to mark excluded application")
			}
			continue
		}
		filtered = append(filtered, app)
	}

	s.logger.Info().
		Int("batch", len(filtered)).
		Msg("Applicant detection completed")
	return filtered, nil
}

func (s *Service) ingest(ctx context.Context, source string, fetch func() ([]*models.Application, error)) {
	apps, err := fetch()
	if err != nil {
		s.logger.Warn().Err(err).Str("source", source).Msg("Detection source unavailable, continuing with remaining sources")
		return
	}

	stored := 0
	for _, app := range apps {
		if err := s.apps.StoreApplication(ctx, app); err != nil {
			s.logger.Warn().Err(err).Str("message_id", app.MessageID).Msg("Failed to store detected application")
			continue
		}
		stored++
	}

	s.logger.Debug().
		Str("source", source).
		Int("seen", len(apps)).
		Int("stored", stored).
		Msg("Detection source ingested")
}
