package embedfilter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

// FilteredJob is a job that survived the similarity pre-filter
type FilteredJob struct {
	Job        *models.Job
	Similarity float64
	Bypassed   bool
	MinPass    bool
}

// Service is the embedding pre-filter ahead of LLM scoring. It cuts the
// candidate's job list down to plausibly-relevant positions so the expensive
// model only sees a handful.
type Service struct {
	embedder interfaces.Embedder
	cache    interfaces.EmbeddingCacheStorage
	vetting  interfaces.VettingStorage
	ats      interfaces.ATSClient
	config   *common.VettingConfig
	logger   arbor.ILogger
}

// NewService creates the embedding filter
func NewService(
	embedder interfaces.Embedder,
	cache interfaces.EmbeddingCacheStorage,
	vetting interfaces.VettingStorage,
	ats interfaces.ATSClient,
	config *common.VettingConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		embedder: embedder,
		cache:    cache,
		vetting:  vetting,
		ats:      ats,
		config:   config,
		logger:   logger,
	}
}

// FilterJobs returns the jobs worth scoring for this resume. The applied job
// bypasses the filter entirely, fetched from the ATS when the snapshot does
// not carry it. When fewer than the floor pass the threshold, the floor is
// filled with the highest-similarity jobs so a weak embedding never starves
// the scorer. An embedding failure on the resume fails open: every job goes
// through to scoring rather than silently dropping the candidate.
func (s *Service) FilterJobs(ctx context.Context, runID, resumeText, appliedJobID string, jobs []*models.Job) ([]*FilteredJob, error) {
	jobs = s.includeAppliedJob(ctx, appliedJobID, jobs)

	resumeVec, err := s.embedResume(ctx, resumeText)
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("Resume embedding failed, bypassing filter for all jobs")
		return s.bypassAll(ctx, runID, appliedJobID, jobs), nil
	}

	scored := make([]*FilteredJob, 0, len(jobs))
	for _, job := range jobs {
		if job.JobID == appliedJobID {
			scored = append(scored, &FilteredJob{Job: job, Similarity: 1, Bypassed: true})
			continue
		}

		jobVec, err := s.embedJob(ctx, job)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Job embedding failed, excluding from filter")
			continue
		}

		scored = append(scored, &FilteredJob{
			Job:        job,
			Similarity: cosineSimilarity(resumeVec, jobVec),
		})
	}

	passed := s.applyThreshold(scored)

	for _, fj := range scored {
		entry := &models.FilterLogEntry{
			RunID:      runID,
			JobID:      fj.Job.JobID,
			Similarity: fj.Similarity,
			Passed:     containsJob(passed, fj.Job.JobID),
			MinPass:    fj.MinPass,
			Bypassed:   fj.Bypassed,
			CreatedAt:  time.Now(),
		}
		if err := s.vetting.StoreFilterEntry(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to store filter log entry")
		}
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("candidates", len(jobs)).
		Int("passed", len(passed)).
		Msg("Embedding filter applied")
	return passed, nil
}

// includeAppliedJob makes sure the job the candidate applied to is present
// even when it has left the monitored tearsheets. A closed applied job stays
// out; the candidate is still matched against the rest of the book.
func (s *Service) includeAppliedJob(ctx context.Context, appliedJobID string, jobs []*models.Job) []*models.Job {
	if appliedJobID == "" {
		return jobs
	}
	for _, job := range jobs {
		if job.JobID == appliedJobID {
			return jobs
		}
	}

	job, err := s.ats.GetJob(ctx, appliedJobID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", appliedJobID).Msg("Applied job lookup failed, matching against snapshot only")
		return jobs
	}
	if job == nil || !job.IsOpen() {
		s.logger.Debug().Str("job_id", appliedJobID).Msg("Applied job is closed, leaving it out")
		return jobs
	}
	return append(jobs, job)
}

// bypassAll flags every job straight through to scoring. Used when the
// resume could not be embedded.
func (s *Service) bypassAll(ctx context.Context, runID, appliedJobID string, jobs []*models.Job) []*FilteredJob {
	out := make([]*FilteredJob, 0, len(jobs))
	for _, job := range jobs {
		fj := &FilteredJob{Job: job, Bypassed: true}
		if job.JobID == appliedJobID {
			fj.Similarity = 1
		}
		out = append(out, fj)

		entry := &models.FilterLogEntry{
			RunID:      runID,
			JobID:      job.JobID,
			Similarity: fj.Similarity,
			Passed:     true,
			Bypassed:   true,
			CreatedAt:  time.Now(),
		}
		if err := s.vetting.StoreFilterEntry(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to store filter log entry")
		}
	}
	return out
}

// applyThreshold selects bypassed jobs, threshold passers, then backfills to
// the minimum floor by similarity rank.
func (s *Service) applyThreshold(scored []*FilteredJob) []*FilteredJob {
	var passed []*FilteredJob
	var rest []*FilteredJob

	for _, fj := range scored {
		if fj.Bypassed || fj.Similarity >= s.config.EmbeddingThreshold {
			passed = append(passed, fj)
		} else {
			rest = append(rest, fj)
		}
	}

	minJobs := s.config.EmbeddingMinJobs
	if len(passed) < minJobs && len(rest) > 0 {
		sort.Slice(rest, func(i, j int) bool { return rest[i].Similarity > rest[j].Similarity })
		need := minJobs - len(passed)
		if need > len(rest) {
			need = len(rest)
		}
		for _, fj := range rest[:need] {
			fj.MinPass = true
			passed = append(passed, fj)
		}
	}

	sort.Slice(passed, func(i, j int) bool { return passed[i].Similarity > passed[j].Similarity })
	return passed
}

// embedResume truncates to the token budget, keeping the head (contact,
// summary, recent roles) and the tail (education, certifications), then
// embeds through the cache.
func (s *Service) embedResume(ctx context.Context, text string) ([]float32, error) {
	return s.embedCached(ctx, truncateForEmbedding(text, s.config.EmbeddingMaxTokens))
}

// embedJob embeds the job title plus its description with markup stripped
func (s *Service) embedJob(ctx context.Context, job *models.Job) ([]float32, error) {
	text := job.Title + "\n\n" + stripHTML(job.DescriptionHTML)
	return s.embedCached(ctx, truncateForEmbedding(text, s.config.EmbeddingMaxTokens))
}

func (s *Service) embedCached(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text, s.embedder.ModelName())

	cached, err := s.cache.GetEmbedding(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Embedding cache lookup failed")
	}
	if cached != nil && len(cached.Vector) > 0 {
		return cached.Vector, nil
	}

	vec, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	entry := &models.EmbeddingCacheEntry{
		Key:       key,
		Model:     s.embedder.ModelName(),
		Vector:    vec,
		CreatedAt: time.Now(),
	}
	if err := s.cache.StoreEmbedding(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to store embedding cache entry")
	}
	return vec, nil
}

// truncateForEmbedding enforces the model's context budget. Tokens are
// estimated at one per three characters. When over budget, the head keeps
// three quarters of the allowance and the tail the rest.
func truncateForEmbedding(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	maxChars := maxTokens * 3
	if len(text) <= maxChars {
		return text
	}

	headLen := maxChars * 3 / 4
	tailLen := maxChars - headLen
	return text[:headLen] + "\n...\n" + text[len(text)-tailLen:]
}

// stripHTML reduces a job description to its text content
func stripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.TrimSpace(doc.Text())
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched or zero-magnitude inputs.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func cacheKey(text, model string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func containsJob(list []*FilteredJob, jobID string) bool {
	for _, fj := range list {
		if fj.Job.JobID == jobID {
			return true
		}
	}
	return false
}
