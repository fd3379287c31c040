package vetting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
	"github.com/ternarybob/vettra/internal/services/detector"
	"github.com/ternarybob/vettra/internal/services/embedfilter"
	"github.com/ternarybob/vettra/internal/services/resume"
	"github.com/ternarybob/vettra/internal/services/scorer"
)

// maxRunAttempts bounds how many cycles a run may retry after transient
// pipeline failures before it fails terminally.
const maxRunAttempts = 3

// JobSource supplies the current open-job snapshot for matching
type JobSource interface {
	CollectJobs(ctx context.Context) ([]*models.Job, error)
}

// DedupGate is the suppression check applied before any outbound write
type DedupGate interface {
	ShouldSend(ctx context.Context, channel, subjectKey string) (bool, error)
	RecordSend(ctx context.Context, channel, subjectKey, recipient string, sendErr error) error
}

// Service coordinates the vetting pipeline: detect applicants, fetch and
// extract resumes, filter jobs by embedding similarity, score through the
// LLM cascade, then write the note and recruiter email. All outbound side
// effects happen here and nowhere else in the pipeline.
type Service struct {
	detector *detector.Service
	resumes  *resume.Service
	filter   *embedfilter.Service
	scorer   *scorer.Service
	jobs     JobSource
	ats      interfaces.ATSClient
	vetting  interfaces.VettingStorage
	apps     interfaces.ApplicationStorage
	mailer   interfaces.MailSender
	dedup    DedupGate
	config   *common.VettingConfig
	logger   arbor.ILogger
}

// NewService creates the vetting coordinator
func NewService(
	det *detector.Service,
	resumes *resume.Service,
	filter *embedfilter.Service,
	sc *scorer.Service,
	jobs JobSource,
	ats interfaces.ATSClient,
	vettingStore interfaces.VettingStorage,
	apps interfaces.ApplicationStorage,
	mailer interfaces.MailSender,
	dedup DedupGate,
	config *common.VettingConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		detector: det,
		resumes:  resumes,
		filter:   filter,
		scorer:   sc,
		jobs:     jobs,
		ats:      ats,
		vetting:  vettingStore,
		apps:     apps,
		mailer:   mailer,
		dedup:    dedup,
		config:   config,
		logger:   logger,
	}
}

// RunCycle executes one vetting cycle: detect a batch and process up to the
// configured number of candidates in parallel. The job snapshot is pulled
// once and shared across the batch.
func (s *Service) RunCycle(ctx context.Context) error {
	batch, err := s.detector.DetectBatch(ctx)
	if err != nil {
		return fmt.Errorf("vetting cycle: %w", err)
	}
	if len(batch) == 0 {
		s.logger.Debug().Msg("No applications to vet")
		return nil
	}

	openJobs, err := s.jobs.CollectJobs(ctx)
	if err != nil {
		return fmt.Errorf("vetting cycle: job snapshot: %w", err)
	}
	if len(openJobs) == 0 {
		s.logger.Warn().Msg("Open job snapshot is empty, deferring vetting cycle")
		return nil
	}

	workers := s.config.MaxCandidates
	if workers <= 0 {
		workers = 1
	}
	if workers > len(batch) {
		workers = len(batch)
	}

	appCh := make(chan *models.Application)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for app := range appCh {
				if err := s.processApplication(ctx, app, openJobs); err != nil {
					s.logger.Error().
						Err(err).
						Str("message_id", app.MessageID).
						Str("candidate_id", app.CandidateID).
						Msg("Application vetting failed")
				}
			}
		}()
	}

	for _, app := range batch {
		select {
		case appCh <- app:
		case <-ctx.Done():
			close(appCh)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(appCh)
	wg.Wait()

	s.logger.Info().Int("batch", len(batch)).Msg("Vetting cycle completed")
	return nil
}

// processApplication runs one candidate through the full pipeline
func (s *Service) processApplication(ctx context.Context, app *models.Application, openJobs []*models.Job) error {
	run, err := s.ensureRun(ctx, app)
	if err != nil {
		return err
	}
	if run == nil {
		// Already completed by an earlier cycle
		return s.apps.MarkProcessed(ctx, app.MessageID)
	}

	log := s.logger.WithCorrelationId(run.RunID)

	resumeText, hash, err := s.resumes.FetchResumeText(ctx, app.CandidateID)
	if err != nil {
		if errors.Is(err, models.ErrResumeUnavailable) {
			return s.deferOrFail(ctx, run, app)
		}
		return s.retryOrFail(ctx, run, app, err)
	}
	run.ResumeHash = hash

	filtered, err := s.filter.FilterJobs(ctx, run.RunID, resumeText, app.JobID, openJobs)
	if err != nil {
		return s.retryOrFail(ctx, run, app, err)
	}
	run.FilteredJobs = len(filtered)

	matches, err := s.scorer.ScoreJobs(ctx, run.RunID, app.CandidateID, resumeText, filtered)
	if err != nil {
		return s.retryOrFail(ctx, run, app, err)
	}
	run.ScoredJobs = len(matches)

	for _, m := range matches {
		if m.Score > run.HighestScore {
			run.HighestScore = m.Score
		}
	}

	qualified, _ := splitByVerdict(matches)
	run.MatchedJobs = len(qualified)

	s.writeNote(ctx, app, run, matches, log)
	if len(qualified) > 0 {
		s.sendQualifiedEmail(ctx, app, qualified, log)
	}

	run.Status = models.RunStatusCompleted
	run.CompletedAt = time.Now()
	s.storeRun(ctx, run)

	if err := s.apps.MarkProcessed(ctx, app.MessageID); err != nil {
		return fmt.Errorf("failed to mark application processed: %w", err)
	}

	log.Info().
		Str("candidate_id", app.CandidateID).
		Int("filtered", run.FilteredJobs).
		Int("scored", run.ScoredJobs).
		Int("qualified", run.MatchedJobs).
		Msg("Candidate vetted")
	return nil
}

// ensureRun loads or creates the vetting run for an application. Returns nil
// when a completed run already exists.
func (s *Service) ensureRun(ctx context.Context, app *models.Application) (*models.VettingRun, error) {
	run, err := s.vetting.GetRunByMessageID(ctx, app.MessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up vetting run: %w", err)
	}

	if run != nil {
		switch run.Status {
		case models.RunStatusCompleted:
			return nil, nil
		case models.RunStatusFailed:
			// Terminal; do not reprocess
			return nil, nil
		}
		run.Status = models.RunStatusRunning
		run.Attempts++
		run.StartedAt = time.Now()
		s.storeRun(ctx, run)
		return run, nil
	}

	run = &models.VettingRun{
		RunID:        uuid.New().String(),
		MessageID:    app.MessageID,
		CandidateID:  app.CandidateID,
		AppliedJobID: app.JobID,
		Status:       models.RunStatusRunning,
		Attempts:     1,
		StartedAt:    time.Now(),
	}
	s.storeRun(ctx, run)
	return run, nil
}

// retryOrFail handles a transient pipeline failure: the run drops back to
// pending and the application stays unprocessed so the next cycle retries
// it. Only exhausting the attempt cap fails the run terminally.
func (s *Service) retryOrFail(ctx context.Context, run *models.VettingRun, app *models.Application, cause error) error {
	if run.Attempts >= maxRunAttempts {
		run.Status = models.RunStatusFailed
		run.FailureReason = cause.Error()
		run.CompletedAt = time.Now()
		s.storeRun(ctx, run)

		if err := s.apps.MarkProcessed(ctx, app.MessageID); err != nil {
			s.logger.Warn().Err(err).Str("message_id", app.MessageID).Msg("Failed to release failed application")
		}
		s.logger.Error().
			Err(cause).
			Str("candidate_id", app.CandidateID).
			Int("attempts", run.Attempts).
			Msg("Giving up on candidate after repeated pipeline failures")
		return cause
	}

	run.Status = models.RunStatusPending
	run.FailureReason = cause.Error()
	s.storeRun(ctx, run)
	s.logger.Warn().
		Err(cause).
		Str("candidate_id", app.CandidateID).
		Int("attempts", run.Attempts).
		Msg("Pipeline failure, candidate will be retried next cycle")
	return cause
}

// deferOrFail handles a missing resume: defer for a later cycle until the
// attempt limit, then fail terminally and release the application.
func (s *Service) deferOrFail(ctx context.Context, run *models.VettingRun, app *models.Application) error {
	if run.Attempts >= s.config.ResumeMaxAttempts {
		run.Status = models.RunStatusFailed
		run.FailureReason = "resume unavailable after max attempts"
		run.CompletedAt = time.Now()
		s.storeRun(ctx, run)

		if err := s.apps.MarkProcessed(ctx, app.MessageID); err != nil {
			return err
		}
		s.logger.Warn().
			Str("candidate_id", app.CandidateID).
			Int("attempts", run.Attempts).
			Msg("Giving up on candidate, resume never became available")
		return nil
	}

	run.Status = models.RunStatusDeferred
	s.storeRun(ctx, run)
	s.logger.Debug().
		Str("candidate_id", app.CandidateID).
		Int("attempts", run.Attempts).
		Msg("Resume not available yet, deferring candidate")
	return nil
}

// writeNote posts the vetting note onto the candidate record, gated by the
// note dedup window. The key includes the resume hash so a candidate
// resubmitting an updated resume gets a fresh note while identical content
// stays suppressed. The ledger write precedes the ATS call so a crash in
// between suppresses rather than duplicates.
func (s *Service) writeNote(ctx context.Context, app *models.Application, run *models.VettingRun, matches []*models.JobMatch, log arbor.ILogger) {
	subjectKey := app.CandidateID + ":AI_VETTING:" + run.ResumeHash

	ok, err := s.dedup.ShouldSend(ctx, models.ChannelNote, subjectKey)
	if err != nil {
		log.Warn().Err(err).Msg("Note dedup check failed, skipping note")
		return
	}
	if !ok {
		log.Debug().Str("candidate_id", app.CandidateID).Msg("Note suppressed by dedup window")
		return
	}

	if err := s.dedup.RecordSend(ctx, models.ChannelNote, subjectKey, app.CandidateID, nil); err != nil {
		log.Warn().Err(err).Msg("Failed to record note delivery, skipping note")
		return
	}

	note := composeNote(&app.Candidate, matches)
	noteID, err := s.ats.CreateCandidateNote(ctx, app.CandidateID, note)
	if err != nil {
		log.Error().Err(err).Str("candidate_id", app.CandidateID).Msg("Failed to write candidate note")
		return
	}
	run.NoteID = noteID
}

// sendQualifiedEmail sends the consolidated recruiter email. The dedup key
// covers the recipient set, so the same candidate going to a different
// group of recruiters is a distinct send.
func (s *Service) sendQualifiedEmail(ctx context.Context, app *models.Application, qualified []*models.JobMatch, log arbor.ILogger) {
	email := composeQualifiedEmail(&app.Candidate, qualified)
	if len(email.To) == 0 {
		log.Warn().Str("candidate_id", app.CandidateID).Msg("No recruiter address on any qualified job, skipping email")
		return
	}

	subjectKey := "qualified:" + recipientFingerprint(email.To, email.Cc) + ":" + app.CandidateID

	ok, err := s.dedup.ShouldSend(ctx, models.ChannelEmailQualified, subjectKey)
	if err != nil {
		log.Warn().Err(err).Msg("Email dedup check failed, skipping email")
		return
	}
	if !ok {
		log.Debug().Str("candidate_id", app.CandidateID).Msg("Qualified email suppressed by dedup window")
		return
	}

	mail := &interfaces.OutboundMail{
		To:       email.To,
		Cc:       email.Cc,
		Subject:  email.Subject,
		BodyText: email.Text,
		BodyHTML: email.HTML,
	}
	sendErr := s.mailer.Send(ctx, mail)
	if recErr := s.dedup.RecordSend(ctx, models.ChannelEmailQualified, subjectKey, email.To[0], sendErr); recErr != nil {
		log.Warn().Err(recErr).Msg("Failed to record qualified email delivery")
	}
	if sendErr != nil {
		log.Error().Err(sendErr).Str("candidate_id", app.CandidateID).Msg("Failed to send qualified email")
	}
}

// recipientFingerprint hashes the sorted recipient set into a short stable
// token for dedup keys.
func recipientFingerprint(to, cc []string) string {
	all := make([]string, 0, len(to)+len(cc))
	for _, addr := range append(append([]string{}, to...), cc...) {
		all = append(all, strings.ToLower(strings.TrimSpace(addr)))
	}
	sort.Strings(all)
	sum := sha256.Sum256([]byte(strings.Join(all, ",")))
	return hex.EncodeToString(sum[:6])
}

func (s *Service) storeRun(ctx context.Context, run *models.VettingRun) {
	if err := s.vetting.StoreRun(ctx, run); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.RunID).Msg("Failed to store vetting run")
	}
}
