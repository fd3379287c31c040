package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
	"github.com/ternarybob/vettra/internal/services/refstore"
)

// feedFilename is the document name at the distribution point
const feedFilename = "jobs.xml"

// zeroJobGuardMin is the job count the previous publish must have reached
// before an empty snapshot is treated as an upstream fault instead of a
// genuinely empty book of business.
const zeroJobGuardMin = 5

// Service runs the freshness cycle: pull tearsheet jobs, resolve reference
// tokens, build the feed, and publish it. A zero-job snapshot is never
// published; the previous feed stays live and an alert goes out instead.
type Service struct {
	config    *common.FeedConfig
	atsConfig *common.ATSConfig
	ats       interfaces.ATSClient
	refs      *refstore.Service
	builder   *Builder
	publisher interfaces.FeedPublisher
	mailer    interfaces.MailSender
	dedup     DedupGate
	publishes interfaces.PublishStorage
	adminBCC  string
	logger    arbor.ILogger
}

// DedupGate is the suppression check used before alert emails
type DedupGate interface {
	ShouldSend(ctx context.Context, channel, subjectKey string) (bool, error)
	RecordSend(ctx context.Context, channel, subjectKey, recipient string, sendErr error) error
}

// NewService creates the feed cycle service
func NewService(
	config *common.FeedConfig,
	atsConfig *common.ATSConfig,
	ats interfaces.ATSClient,
	refs *refstore.Service,
	builder *Builder,
	publisher interfaces.FeedPublisher,
	mailer interfaces.MailSender,
	dedup DedupGate,
	publishes interfaces.PublishStorage,
	adminBCC string,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:    config,
		atsConfig: atsConfig,
		ats:       ats,
		refs:      refs,
		builder:   builder,
		publisher: publisher,
		mailer:    mailer,
		dedup:     dedup,
		publishes: publishes,
		adminBCC:  adminBCC,
		logger:    logger,
	}
}

// RunCycle executes one publish cycle end to end
func (s *Service) RunCycle(ctx context.Context) error {
	start := time.Now()
	runID := uuid.New().String()
	log := s.logger.WithCorrelationId(runID)

	if s.config.Frozen {
		log.Warn().Msg("Feed is frozen, skipping publish cycle")
		return s.record(ctx, &models.PublishRecord{
			RunID:       runID,
			Skipped:     true,
			SkipReason:  "frozen",
			Duration:    time.Since(start).String(),
			CompletedAt: time.Now(),
		})
	}

	jobs, err := s.CollectJobs(ctx)
	if err != nil {
		return fmt.Errorf("publish cycle %s: %w", runID, err)
	}

	if len(jobs) == 0 && s.previousFeedHealthy(ctx) {
		// A sudden drop to zero after a healthy publish means upstream
		// trouble, not an empty book. The live feed stays untouched.
		log.Error().Msg("Zero jobs collected after a healthy publish, refusing to overwrite live feed")
		s.sendZeroJobAlert(ctx)
		return s.record(ctx, &models.PublishRecord{
			RunID:       runID,
			Skipped:     true,
			SkipReason:  "zero_jobs",
			Duration:    time.Since(start).String(),
			CompletedAt: time.Now(),
		})
	}

	jobIDs := make([]string, len(jobs))
	for i, j := range jobs {
		jobIDs[i] = j.JobID
	}

	tokens, err := s.refs.LoadOrMint(ctx, jobIDs)
	if err != nil {
		return fmt.Errorf("publish cycle %s: %w", runID, err)
	}

	content, count, err := s.builder.Build(jobs, tokens, time.Now())
	if err != nil {
		return fmt.Errorf("publish cycle %s: %w", runID, err)
	}

	if err := s.publisher.Publish(ctx, feedFilename, content); err != nil {
		s.sendPublishFailureAlert(ctx, err)
		return fmt.Errorf("publish cycle %s: %w", runID, err)
	}

	s.sendUploadConfirmation(ctx, count, len(content))

	if _, err := s.refs.CollectStale(ctx); err != nil {
		log.Warn().Err(err).Msg("Reference GC failed, continuing")
	}

	log.Info().
		Str("run_id", runID).
		Int("jobs", count).
		Int("bytes", len(content)).
		Dur("elapsed", time.Since(start)).
		Msg("Publish cycle completed")

	return s.record(ctx, &models.PublishRecord{
		RunID:       runID,
		JobCount:    count,
		Published:   true,
		FeedBytes:   len(content),
		Duration:    time.Since(start).String(),
		CompletedAt: time.Now(),
	})
}

// CollectJobs pulls every monitored tearsheet, deduplicates across them, and
// drops closed and excluded jobs.
func (s *Service) CollectJobs(ctx context.Context) ([]*models.Job, error) {
	excluded := make(map[string]bool, len(s.atsConfig.ExcludeJobs))
	for _, id := range s.atsConfig.ExcludeJobs {
		excluded[id] = true
	}

	seen := make(map[string]bool)
	var jobs []*models.Job

	for _, tearsheetID := range s.atsConfig.TearsheetIDs {
		pulled, err := s.ats.ListTearsheetJobs(ctx, tearsheetID)
		if err != nil {
			return nil, fmt.Errorf("tearsheet %d: %w", tearsheetID, err)
		}
		for _, job := range pulled {
			if seen[job.JobID] || excluded[job.JobID] || !job.IsOpen() {
				continue
			}
			seen[job.JobID] = true
			jobs = append(jobs, job)
		}
	}

	s.logger.Debug().Int("jobs", len(jobs)).Int("tearsheets", len(s.atsConfig.TearsheetIDs)).Msg("Jobs collected")
	return jobs, nil
}

// previousFeedHealthy reports whether the most recent successful publish
// carried enough jobs for an empty snapshot to look like a fault. Storage
// errors count as healthy so a broken history never lets an empty feed
// overwrite a live one.
func (s *Service) previousFeedHealthy(ctx context.Context) bool {
	records, err := s.publishes.GetRecentPublishRecords(ctx, 20)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Publish history unavailable, treating previous feed as healthy")
		return true
	}
	for _, rec := range records {
		if rec.Published {
			return rec.JobCount >= zeroJobGuardMin
		}
	}
	return false
}

func (s *Service) sendZeroJobAlert(ctx context.Context) {
	subjectKey := "zero-jobs-" + time.Now().UTC().Format("2006-01-02")

	ok, err := s.dedup.ShouldSend(ctx, models.ChannelEmailZeroJobAlert, subjectKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Dedup check failed for zero-job alert")
		return
	}
	if !ok {
		s.logger.Debug().Msg("Zero-job alert already sent, suppressing")
		return
	}

	mail := &interfaces.OutboundMail{
		To:      []string{s.adminBCC},
		Subject: "ALERT: zero-job snapshot, publish suppressed",
		BodyText: "The publish cycle collected zero open jobs across all monitored tearsheets.\n" +
			"The previously published feed remains live. Check ATS connectivity and tearsheet contents.\n",
	}
	sendErr := s.mailer.Send(ctx, mail)
	if recErr := s.dedup.RecordSend(ctx, models.ChannelEmailZeroJobAlert, subjectKey, s.adminBCC, sendErr); recErr != nil {
		s.logger.Warn().Err(recErr).Msg("Failed to record zero-job alert delivery")
	}
	if sendErr != nil {
		s.logger.Error().Err(sendErr).Msg("Failed to send zero-job alert")
	}
}

// sendPublishFailureAlert notifies the operator when the upload failed after
// exhausting its retries. The remote feed is stale until the next cycle.
func (s *Service) sendPublishFailureAlert(ctx context.Context, pubErr error) {
	subjectKey := "publish-failure-" + time.Now().UTC().Format("2006-01-02T15:04")

	ok, err := s.dedup.ShouldSend(ctx, models.ChannelEmailXMLUpload, subjectKey)
	if err != nil || !ok {
		return
	}

	mail := &interfaces.OutboundMail{
		To:      []string{s.adminBCC},
		Subject: "ERROR: job feed publish failed",
		BodyText: fmt.Sprintf("Uploading %s to %s failed after retries: %v\n"+
			"The previously published feed remains live until the next successful cycle.\n",
			feedFilename, s.config.RemoteHost, pubErr),
	}
	sendErr := s.mailer.Send(ctx, mail)
	if recErr := s.dedup.RecordSend(ctx, models.ChannelEmailXMLUpload, subjectKey, s.adminBCC, sendErr); recErr != nil {
		s.logger.Warn().Err(recErr).Msg("Failed to record publish failure alert delivery")
	}
	if sendErr != nil {
		s.logger.Error().Err(sendErr).Msg("Failed to send publish failure alert")
	}
}

func (s *Service) sendUploadConfirmation(ctx context.Context, jobCount, bytes int) {
	subjectKey := fmt.Sprintf("upload-%s", time.Now().UTC().Format("2006-01-02T15:04"))

	ok, err := s.dedup.ShouldSend(ctx, models.ChannelEmailXMLUpload, subjectKey)
	if err != nil || !ok {
		return
	}

	mail := &interfaces.OutboundMail{
		To:      []string{s.adminBCC},
		Subject: fmt.Sprintf("Job feed published: %d jobs", jobCount),
		BodyText: fmt.Sprintf("Feed %s uploaded to %s (%d jobs, %d bytes).\n",
			feedFilename, s.config.RemoteHost, jobCount, bytes),
	}
	sendErr := s.mailer.Send(ctx, mail)
	if recErr := s.dedup.RecordSend(ctx, models.ChannelEmailXMLUpload, subjectKey, s.adminBCC, sendErr); recErr != nil {
		s.logger.Warn().Err(recErr).Msg("Failed to record upload confirmation delivery")
	}
}

// RefreshReference rotates one job's token on operator request and notifies
// the admin address of the change.
func (s *Service) RefreshReference(ctx context.Context, jobID string) error {
	oldToken, newToken, err := s.refs.OperatorRefresh(ctx, jobID)
	if err != nil {
		return err
	}

	subjectKey := "refresh-" + jobID + "-" + newToken
	ok, derr := s.dedup.ShouldSend(ctx, models.ChannelEmailReferenceRefresh, subjectKey)
	if derr != nil || !ok {
		return nil
	}

	mail := &interfaces.OutboundMail{
		To:      []string{s.adminBCC},
		Subject: fmt.Sprintf("Job %s reference token rotated", jobID),
		BodyText: fmt.Sprintf("Reference token for job %s was rotated by operator request.\nOld: %s\nNew: %s\nThe new token appears in the next published feed.\n",
			jobID, oldToken, newToken),
	}
	sendErr := s.mailer.Send(ctx, mail)
	if recErr := s.dedup.RecordSend(ctx, models.ChannelEmailReferenceRefresh, subjectKey, s.adminBCC, sendErr); recErr != nil {
		s.logger.Warn().Err(recErr).Msg("Failed to record reference refresh delivery")
	}
	return sendErr
}

func (s *Service) record(ctx context.Context, rec *models.PublishRecord) error {
	if err := s.publishes.StorePublishRecord(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to store publish record")
	}
	return nil
}
