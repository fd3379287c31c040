package scorer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
	"github.com/ternarybob/vettra/internal/services/embedfilter"
)

// fakeScorer returns canned results keyed by job title
type fakeScorer struct {
	name    string
	results map[string]*interfaces.ScoreResult
	fail    bool
	failFor map[string]bool
	calls   int
}

func (f *fakeScorer) ScoreCandidate(ctx context.Context, resumeText string, job *models.Job, requirements string) (*interfaces.ScoreResult, error) {
	f.calls++
	if f.fail || f.failFor[job.Title] {
		return nil, fmt.Errorf("model unavailable")
	}
	if res, ok := f.results[job.Title]; ok {
		return res, nil
	}
	return &interfaces.ScoreResult{Score: 50, Summary: "default"}, nil
}

func (f *fakeScorer) ExtractRequirements(ctx context.Context, jobTitle, descriptionHTML string) (string, error) {
	return "5 years of Go", nil
}

func (f *fakeScorer) ModelName() string { return f.name }

type memRequirements struct {
	reqs map[string]*models.JobRequirements
}

func (m *memRequirements) StoreRequirements(ctx context.Context, req *models.JobRequirements) error {
	m.reqs[req.JobID] = req
	return nil
}

func (m *memRequirements) GetRequirements(ctx context.Context, jobID string) (*models.JobRequirements, error) {
	return m.reqs[jobID], nil
}

// recordingVettingStorage captures matches and escalation entries
type recordingVettingStorage struct {
	matches     []*models.JobMatch
	escalations []*models.EscalationLogEntry
}

func (r *recordingVettingStorage) StoreRun(ctx context.Context, run *models.VettingRun) error {
	return nil
}
func (r *recordingVettingStorage) GetRun(ctx context.Context, runID string) (*models.VettingRun, error) {
	return nil, nil
}
func (r *recordingVettingStorage) GetRunByMessageID(ctx context.Context, messageID string) (*models.VettingRun, error) {
	return nil, nil
}
func (r *recordingVettingStorage) GetRunsByStatus(ctx context.Context, status models.RunStatus, limit int) ([]*models.VettingRun, error) {
	return nil, nil
}
func (r *recordingVettingStorage) GetOldestRunning(ctx context.Context) (*models.VettingRun, error) {
	return nil, nil
}
func (r *recordingVettingStorage) StoreMatch(ctx context.Context, match *models.JobMatch) error {
	r.matches = append(r.matches, match)
	return nil
}
func (r *recordingVettingStorage) GetMatchesByRun(ctx context.Context, runID string) ([]*models.JobMatch, error) {
	return r.matches, nil
}
func (r *recordingVettingStorage) StoreFilterEntry(ctx context.Context, e *models.FilterLogEntry) error {
	return nil
}
func (r *recordingVettingStorage) StoreEscalationEntry(ctx context.Context, e *models.EscalationLogEntry) error {
	r.escalations = append(r.escalations, e)
	return nil
}

func scorerConfig() *common.VettingConfig {
	return &common.VettingConfig{
		ScoreWorkers:   2,
		MatchThreshold: 80,
		EscalationLow:  60,
		EscalationHigh: 85,
	}
}

func filteredJob(id, title string) *embedfilter.FilteredJob {
	return &embedfilter.FilteredJob{
		Job: &models.Job{JobID: id, Title: title, Owner: models.Owner{Name: "Jane", Email: "jane@x.com"}},
	}
}

func TestScoreJobs_VerdictAgainstThreshold(t *testing.T) {
	primary := &fakeScorer{name: "haiku", results: map[string]*interfaces.ScoreResult{
		"Strong Fit": {Score: 90, Summary: "solid match"},
		"Weak Fit":   {Score: 30, Summary: "wrong field"},
	}}
	premium := &fakeScorer{name: "haiku"} // same model, escalation dormant
	vetting := &recordingVettingStorage{}
	svc := NewService(primary, premium, &memRequirements{reqs: map[string]*models.JobRequirements{}}, vetting, scorerConfig(), arbor.NewLogger())

	matches, err := svc.ScoreJobs(context.Background(), "run-1", "cand-1", "resume", []*embedfilter.FilteredJob{
		filteredJob("1", "Strong Fit"),
		filteredJob("2", "Weak Fit"),
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	byJob := make(map[string]*models.JobMatch)
	for _, m := range matches {
		byJob[m.JobID] = m
	}
	assert.Equal(t, models.VerdictQualified, byJob["1"].Verdict)
	assert.Equal(t, "solid match", byJob["1"].Reasoning)
	assert.Equal(t, models.VerdictNotRecommended, byJob["2"].Verdict)
	assert.Len(t, vetting.matches, 2)
}

func TestScoreJobs_FailedPairStillRecorded(t *testing.T) {
	primary := &fakeScorer{
		name:    "haiku",
		results: map[string]*interfaces.ScoreResult{"Good Job": {Score: 90, Summary: "fine"}},
		failFor: map[string]bool{"Broken Job": true},
	}
	vetting := &recordingVettingStorage{}
	svc := NewService(primary, &fakeScorer{name: "haiku"}, &memRequirements{reqs: map[string]*models.JobRequirements{}}, vetting, scorerConfig(), arbor.NewLogger())

	matches, err := svc.ScoreJobs(context.Background(), "run-1", "cand-1", "resume", []*embedfilter.FilteredJob{
		filteredJob("1", "Good Job"),
		filteredJob("2", "Broken Job"),
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	byJob := make(map[string]*models.JobMatch)
	for _, m := range matches {
		byJob[m.JobID] = m
	}
	failed := byJob["2"]
	assert.Equal(t, 0, failed.Score)
	assert.Equal(t, models.VerdictNotRecommended, failed.Verdict)
	assert.Contains(t, failed.Error, "model unavailable")
	// The failed pair is persisted alongside the scored one
	assert.Len(t, vetting.matches, 2)
}

func TestScoreJobs_AllFailed(t *testing.T) {
	primary := &fakeScorer{name: "haiku", fail: true}
	svc := NewService(primary, &fakeScorer{name: "haiku"}, &memRequirements{reqs: map[string]*models.JobRequirements{}}, &recordingVettingStorage{}, scorerConfig(), arbor.NewLogger())

	_, err := svc.ScoreJobs(context.Background(), "run-1", "cand-1", "resume", []*embedfilter.FilteredJob{
		filteredJob("1", "Any Job"),
	})
	assert.Error(t, err)
}

func TestScoreJobs_EscalationReplacesPrimary(t *testing.T) {
	primary := &fakeScorer{name: "haiku", results: map[string]*interfaces.ScoreResult{
		"Borderline": {Score: 70, Summary: "maybe"},
	}}
	premium := &fakeScorer{name: "sonnet", results: map[string]*interfaces.ScoreResult{
		"Borderline": {Score: 88, Summary: "strong on closer review", SkillsMatch: "deep Go work"},
	}}
	vetting := &recordingVettingStorage{}
	svc := NewService(primary, premium, &memRequirements{reqs: map[string]*models.JobRequirements{}}, vetting, scorerConfig(), arbor.NewLogger())

	matches, err := svc.ScoreJobs(context.Background(), "run-1", "cand-1", "resume", []*embedfilter.FilteredJob{
		filteredJob("1", "Borderline"),
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.True(t, m.Escalated)
	assert.Equal(t, 70, m.PrimaryScore)
	assert.Equal(t, 88, m.Score)
	assert.Equal(t, "strong on closer review", m.Reasoning)
	assert.Equal(t, "deep Go work", m.SkillsMatch)
	assert.Equal(t, models.VerdictQualified, m.Verdict)
	require.Len(t, vetting.escalations, 1)
	assert.Equal(t, "haiku", vetting.escalations[0].PrimaryModel)
	assert.Equal(t, "sonnet", vetting.escalations[0].PremiumModel)
	assert.Equal(t, 88, vetting.escalations[0].PremiumScore)
}

func TestScoreJobs_EscalationFailureKeepsPrimaryAndLogs(t *testing.T) {
	primary := &fakeScorer{name: "haiku", results: map[string]*interfaces.ScoreResult{
		"Borderline": {Score: 70, Summary: "maybe"},
	}}
	premium := &fakeScorer{name: "sonnet", fail: true}
	vetting := &recordingVettingStorage{}
	svc := NewService(primary, premium, &memRequirements{reqs: map[string]*models.JobRequirements{}}, vetting, scorerConfig(), arbor.NewLogger())

	matches, err := svc.ScoreJobs(context.Background(), "run-1", "cand-1", "resume", []*embedfilter.FilteredJob{
		filteredJob("1", "Borderline"),
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.False(t, m.Escalated)
	assert.Equal(t, 70, m.Score)
	assert.Equal(t, models.VerdictNotRecommended, m.Verdict)

	// The attempt is on the escalation log with the failure stamped
	require.Len(t, vetting.escalations, 1)
	assert.Equal(t, 70, vetting.escalations[0].PrimaryScore)
	assert.Contains(t, vetting.escalations[0].Error, "model unavailable")
	assert.Equal(t, 0, vetting.escalations[0].PremiumScore)
}

func TestScoreJobs_SameModelNeverEscalates(t *testing.T) {
	primary := &fakeScorer{name: "haiku", results: map[string]*interfaces.ScoreResult{
		"Borderline": {Score: 70, Summary: "maybe"},
	}}
	premium := &fakeScorer{name: "haiku", results: map[string]*interfaces.ScoreResult{
		"Borderline": {Score: 99, Summary: "should never be consulted"},
	}}
	vetting := &recordingVettingStorage{}
	svc := NewService(primary, premium, &memRequirements{reqs: map[string]*models.JobRequirements{}}, vetting, scorerConfig(), arbor.NewLogger())

	matches, err := svc.ScoreJobs(context.Background(), "run-1", "cand-1", "resume", []*embedfilter.FilteredJob{
		filteredJob("1", "Borderline"),
	})
	require.NoError(t, err)
	assert.Equal(t, 70, matches[0].Score)
	assert.Equal(t, 0, premium.calls)
}

func TestScoreJobs_PerJobThresholdOverride(t *testing.T) {
	primary := &fakeScorer{name: "haiku", results: map[string]*interfaces.ScoreResult{
		"Niche Role": {Score: 55, Summary: "partial"},
	}}
	reqs := &memRequirements{reqs: map[string]*models.JobRequirements{
		"1": {JobID: "1", CustomOverride: "Anyone with a pulse", Threshold: 50},
	}}
	svc := NewService(primary, &fakeScorer{name: "haiku"}, reqs, &recordingVettingStorage{}, scorerConfig(), arbor.NewLogger())

	matches, err := svc.ScoreJobs(context.Background(), "run-1", "cand-1", "resume", []*embedfilter.FilteredJob{
		filteredJob("1", "Niche Role"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictQualified, matches[0].Verdict)
}

func TestScoreJobs_ExtractsAndPersistsRequirements(t *testing.T) {
	primary := &fakeScorer{name: "haiku"}
	reqs := &memRequirements{reqs: map[string]*models.JobRequirements{}}
	svc := NewService(primary, &fakeScorer{name: "haiku"}, reqs, &recordingVettingStorage{}, scorerConfig(), arbor.NewLogger())

	_, err := svc.ScoreJobs(context.Background(), "run-1", "cand-1", "resume", []*embedfilter.FilteredJob{
		filteredJob("1", "New Job"),
	})
	require.NoError(t, err)

	stored := reqs.reqs["1"]
	require.NotNil(t, stored)
	assert.Equal(t, "5 years of Go", stored.AIExtracted)
}

func TestScoreJobs_YearsGateCapsQualification(t *testing.T) {
	primary := &fakeScorer{name: "haiku", results: map[string]*interfaces.ScoreResult{
		"Gated Role": {
			Score:   92,
			Summary: "looks strong on paper",
			YearsAnalysis: map[string]interfaces.YearsEntry{
				"Kubernetes": {RequiredYears: 5, EstimatedYears: 2, MeetsRequirement: false},
			},
		},
	}}
	svc := NewService(primary, &fakeScorer{name: "haiku"}, &memRequirements{reqs: map[string]*models.JobRequirements{}}, &recordingVettingStorage{}, scorerConfig(), arbor.NewLogger())

	matches, err := svc.ScoreJobs(context.Background(), "run-1", "cand-1", "resume", []*embedfilter.FilteredJob{
		filteredJob("1", "Gated Role"),
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, criticalGapCap, m.Score)
	assert.True(t, m.YearsGated)
	assert.Equal(t, models.VerdictNotRecommended, m.Verdict)
	require.Len(t, m.Gaps, 1)
	assert.Contains(t, m.Gaps[0], "CRITICAL: Kubernetes requires 5yr, candidate has ~2yr")
}

func TestApplyYearsGate(t *testing.T) {
	years := func(required, estimated float64) map[string]interfaces.YearsEntry {
		return map[string]interfaces.YearsEntry{
			"Go": {RequiredYears: required, EstimatedYears: estimated},
		}
	}

	t.Run("no analysis passes through", func(t *testing.T) {
		score, gaps, gated := applyYearsGate(90, nil, nil)
		assert.Equal(t, 90, score)
		assert.Empty(t, gaps)
		assert.False(t, gated)
	})

	t.Run("under a year ignored", func(t *testing.T) {
		score, gaps, gated := applyYearsGate(90, nil, years(5, 4.5))
		assert.Equal(t, 90, score)
		assert.Empty(t, gaps)
		assert.False(t, gated)
	})

	t.Run("minor gap penalized", func(t *testing.T) {
		score, gaps, gated := applyYearsGate(90, nil, years(5, 3.5))
		assert.Equal(t, 75, score)
		assert.Empty(t, gaps)
		assert.True(t, gated)
	})

	t.Run("minor gap floors at zero", func(t *testing.T) {
		score, _, gated := applyYearsGate(10, nil, years(5, 4))
		assert.Equal(t, 0, score)
		assert.True(t, gated)
	})

	t.Run("critical gap caps score", func(t *testing.T) {
		score, gaps, gated := applyYearsGate(95, []string{"existing gap"}, years(5, 3))
		assert.Equal(t, criticalGapCap, score)
		assert.True(t, gated)
		require.Len(t, gaps, 2)
		assert.Equal(t, "existing gap", gaps[0])
		assert.Contains(t, gaps[1], "CRITICAL: Go requires 5yr, candidate has ~3yr")
	})

	t.Run("critical gap below cap keeps score", func(t *testing.T) {
		score, _, gated := applyYearsGate(40, nil, years(6, 1))
		assert.Equal(t, 40, score)
		assert.True(t, gated)
	})

	t.Run("skills visit in sorted order", func(t *testing.T) {
		_, gaps, _ := applyYearsGate(90, nil, map[string]interfaces.YearsEntry{
			"Terraform": {RequiredYears: 4, EstimatedYears: 1},
			"AWS":       {RequiredYears: 5, EstimatedYears: 2},
		})
		require.Len(t, gaps, 2)
		assert.Contains(t, gaps[0], "AWS")
		assert.Contains(t, gaps[1], "Terraform")
	})
}

func TestShouldEscalate_BandIsInclusive(t *testing.T) {
	svc := NewService(&fakeScorer{name: "haiku"}, &fakeScorer{name: "sonnet"}, &memRequirements{reqs: map[string]*models.JobRequirements{}}, &recordingVettingStorage{}, scorerConfig(), arbor.NewLogger())

	assert.False(t, svc.shouldEscalate(59))
	assert.True(t, svc.shouldEscalate(60))
	assert.True(t, svc.shouldEscalate(85))
	assert.False(t, svc.shouldEscalate(86))
}
