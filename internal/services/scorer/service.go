package scorer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
	"github.com/ternarybob/vettra/internal/services/embedfilter"
)

// criticalGapCap is the ceiling applied when the candidate is two or more
// years short of a skill's stated experience requirement.
const criticalGapCap = 60

// minorGapPenalty is subtracted per skill with a shortfall between one and
// two years.
const minorGapPenalty = 15

// Service scores a candidate against filtered jobs through the LLM cascade.
// The primary model scores everything; results landing in the escalation
// band are re-scored by the premium model, whose verdict wins.
type Service struct {
	primary      interfaces.Scorer
	premium      interfaces.Scorer
	requirements interfaces.RequirementsStorage
	vetting      interfaces.VettingStorage
	config       *common.VettingConfig
	logger       arbor.ILogger
}

// NewService creates the scoring service. Passing the same model for both
// tiers leaves escalation dormant.
func NewService(
	primary interfaces.Scorer,
	premium interfaces.Scorer,
	requirements interfaces.RequirementsStorage,
	vetting interfaces.VettingStorage,
	config *common.VettingConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		primary:      primary,
		premium:      premium,
		requirements: requirements,
		vetting:      vetting,
		config:       config,
		logger:       logger,
	}
}

// ScoreJobs evaluates the resume against every filtered job in parallel. A
// pair whose scoring permanently fails still produces a zero-score match
// with the error stamped, so every filtered job has a recorded outcome.
func (s *Service) ScoreJobs(ctx context.Context, runID, candidateID, resumeText string, jobs []*embedfilter.FilteredJob) ([]*models.JobMatch, error) {
	workers := s.config.ScoreWorkers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan *embedfilter.FilteredJob)
	matches := make([]*models.JobMatch, 0, len(jobs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fj := range jobCh {
				match, err := s.scoreOne(ctx, runID, candidateID, resumeText, fj)
				if err != nil {
					s.logger.Warn().Err(err).Str("run_id", runID).Str("job_id", fj.Job.JobID).Msg("Job scoring failed")
					match = s.failedMatch(runID, candidateID, fj, err)
				}
				mu.Lock()
				matches = append(matches, match)
				mu.Unlock()
			}
		}()
	}

	for _, fj := range jobs {
		select {
		case jobCh <- fj:
		case <-ctx.Done():
			close(jobCh)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobCh)
	wg.Wait()

	failed := 0
	for _, m := range matches {
		if m.Error != "" {
			failed++
		}
	}
	if failed == len(matches) && failed > 0 {
		return nil, fmt.Errorf("all %d scoring calls failed for run %s", failed, runID)
	}

	for _, m := range matches {
		if err := s.vetting.StoreMatch(ctx, m); err != nil {
			s.logger.Warn().Err(err).Str("job_id", m.JobID).Msg("Failed to store job match")
		}
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("scored", len(matches)-failed).
		Int("failed", failed).
		Msg("Scoring completed")
	return matches, nil
}

// failedMatch records a pair whose scoring exhausted its retries. The zero
// score keeps the candidate's run moving instead of sinking it.
func (s *Service) failedMatch(runID, candidateID string, fj *embedfilter.FilteredJob, err error) *models.JobMatch {
	return &models.JobMatch{
		RunID:         runID,
		CandidateID:   candidateID,
		JobID:         fj.Job.JobID,
		JobTitle:      fj.Job.Title,
		Score:         0,
		Verdict:       models.VerdictNotRecommended,
		Error:         err.Error(),
		AppliedJob:    fj.Bypassed,
		RecruiterName: fj.Job.RecruiterTag(),
		RecruiterMail: fj.Job.Owner.Email,
		ScoredAt:      time.Now(),
	}
}

func (s *Service) scoreOne(ctx context.Context, runID, candidateID, resumeText string, fj *embedfilter.FilteredJob) (*models.JobMatch, error) {
	job := fj.Job

	reqs, err := s.resolveRequirements(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.JobID, err)
	}

	primary, err := s.primary.ScoreCandidate(ctx, resumeText, job, reqs.Active())
	if err != nil {
		return nil, fmt.Errorf("job %s: primary scoring: %w", job.JobID, err)
	}

	score, gaps, gated := applyYearsGate(primary.Score, primary.Gaps, primary.YearsAnalysis)

	match := &models.JobMatch{
		RunID:           runID,
		CandidateID:     candidateID,
		JobID:           job.JobID,
		JobTitle:        job.Title,
		Score:           score,
		Reasoning:       primary.Summary,
		SkillsMatch:     primary.SkillsMatch,
		ExperienceMatch: primary.ExperienceMatch,
		Gaps:            gaps,
		AppliedJob:      fj.Bypassed,
		YearsGated:      gated,
		RecruiterName:   job.RecruiterTag(),
		RecruiterMail:   job.Owner.Email,
		ScoredAt:        time.Now(),
	}

	if s.shouldEscalate(score) {
		escalated, err := s.escalate(ctx, runID, job, resumeText, reqs.Active(), score)
		if err != nil {
			// Premium failure keeps the primary verdict
			s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Escalation failed, keeping primary score")
		} else {
			match.Escalated = true
			match.PrimaryScore = score
			match.Score = escalated.score
			match.Reasoning = escalated.result.Summary
			match.SkillsMatch = escalated.result.SkillsMatch
			match.ExperienceMatch = escalated.result.ExperienceMatch
			match.Gaps = escalated.gaps
			match.YearsGated = match.YearsGated || escalated.gated
		}
	}

	match.Verdict = s.verdict(match.Score, reqs)
	return match, nil
}

// resolveRequirements returns stored requirements, extracting and persisting
// them on first encounter with a job.
func (s *Service) resolveRequirements(ctx context.Context, job *models.Job) (*models.JobRequirements, error) {
	reqs, err := s.requirements.GetRequirements(ctx, job.JobID)
	if err != nil {
		return nil, err
	}
	if reqs != nil && reqs.Active() != "" {
		return reqs, nil
	}

	extracted, err := s.primary.ExtractRequirements(ctx, job.Title, job.DescriptionHTML)
	if err != nil {
		return nil, fmt.Errorf("requirements extraction: %w", err)
	}

	reqs = &models.JobRequirements{
		JobID:          job.JobID,
		AIExtracted:    extracted,
		LastExtraction: time.Now(),
	}
	if err := s.requirements.StoreRequirements(ctx, reqs); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to store extracted requirements")
	}
	return reqs, nil
}

// shouldEscalate reports whether the score lands in the inclusive escalation
// band. A band where both tiers use the same model never escalates.
func (s *Service) shouldEscalate(score int) bool {
	if s.primary.ModelName() == s.premium.ModelName() {
		return false
	}
	return score >= s.config.EscalationLow && score <= s.config.EscalationHigh
}

type escalationResult struct {
	score  int
	result *interfaces.ScoreResult
	gaps   []string
	gated  bool
}

// escalate re-scores the pair on the premium model. The attempt is logged
// whether or not the premium call succeeds.
func (s *Service) escalate(ctx context.Context, runID string, job *models.Job, resumeText, requirements string, primaryScore int) (*escalationResult, error) {
	entry := &models.EscalationLogEntry{
		RunID:        runID,
		JobID:        job.JobID,
		PrimaryScore: primaryScore,
		PrimaryModel: s.primary.ModelName(),
		PremiumModel: s.premium.ModelName(),
		CreatedAt:    time.Now(),
	}

	res, err := s.premium.ScoreCandidate(ctx, resumeText, job, requirements)
	if err != nil {
		entry.Error = err.Error()
		if serr := s.vetting.StoreEscalationEntry(ctx, entry); serr != nil {
			s.logger.Warn().Err(serr).Msg("Failed to store escalation log entry")
		}
		return nil, err
	}

	score, gaps, gated := applyYearsGate(res.Score, res.Gaps, res.YearsAnalysis)

	entry.PremiumScore = score
	if err := s.vetting.StoreEscalationEntry(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to store escalation log entry")
	}

	s.logger.Info().
		Str("run_id", runID).
		Str("job_id", job.JobID).
		Int("primary_score", primaryScore).
		Int("premium_score", score).
		Msg("Score escalated to premium model")

	return &escalationResult{score: score, result: res, gaps: gaps, gated: gated}, nil
}

// verdict applies the match threshold, honoring a per-job override
func (s *Service) verdict(score int, reqs *models.JobRequirements) models.Verdict {
	threshold := s.config.MatchThreshold
	if reqs.Threshold > 0 {
		threshold = reqs.Threshold
	}
	if score >= threshold {
		return models.VerdictQualified
	}
	return models.VerdictNotRecommended
}

// applyYearsGate enforces the per-skill experience hard gate on a model
// score. A shortfall of two or more years caps the score below
// qualification and flags the gap list; a shortfall of one to two years
// takes a fixed penalty per skill. Skills are visited in sorted order so
// the outcome never depends on map iteration.
func applyYearsGate(score int, gaps []string, years map[string]interfaces.YearsEntry) (int, []string, bool) {
	if len(years) == 0 {
		return score, gaps, false
	}

	skills := make([]string, 0, len(years))
	for skill := range years {
		skills = append(skills, skill)
	}
	sort.Strings(skills)

	gated := false
	for _, skill := range skills {
		entry := years[skill]
		shortfall := entry.RequiredYears - entry.EstimatedYears
		switch {
		case shortfall >= 2:
			if score > criticalGapCap {
				score = criticalGapCap
			}
			gaps = append(gaps, fmt.Sprintf("CRITICAL: %s requires %gyr, candidate has ~%gyr", skill, entry.RequiredYears, entry.EstimatedYears))
			gated = true
		case shortfall >= 1:
			score -= minorGapPenalty
			if score < 0 {
				score = 0
			}
			gated = true
		}
	}
	return score, gaps, gated
}
