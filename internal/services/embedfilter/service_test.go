package embedfilter

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/models"
)

// filterATS serves single-job lookups for the applied-job bypass
type filterATS struct {
	jobs    map[string]*models.Job
	err     error
	getJobs int
}

func (f *filterATS) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	f.getJobs++
	if f.err != nil {
		return nil, f.err
	}
	return f.jobs[jobID], nil
}
func (f *filterATS) ListTearsheetJobs(ctx context.Context, tearsheetID int) ([]*models.Job, error) {
	return nil, nil
}
func (f *filterATS) FindRecentWebResponses(ctx context.Context, since time.Time, limit int) ([]*models.Application, error) {
	return nil, nil
}
func (f *filterATS) FindRecentSubmissions(ctx context.Context, since time.Time, limit int) ([]*models.Application, error) {
	return nil, nil
}
func (f *filterATS) GetCandidate(ctx context.Context, candidateID string) (*models.Candidate, error) {
	return nil, nil
}
func (f *filterATS) ListCandidateFiles(ctx context.Context, candidateID string) ([]*models.Attachment, error) {
	return nil, nil
}
func (f *filterATS) DownloadFile(ctx context.Context, candidateID, attachmentID string) ([]byte, string, error) {
	return nil, "", nil
}
func (f *filterATS) CreateCandidateNote(ctx context.Context, candidateID, noteText string) (string, error) {
	return "", nil
}
func (f *filterATS) Ping(ctx context.Context) error { return nil }

// fakeEmbedder returns canned vectors by keyword
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
	failFor string
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	for key, vec := range f.vectors {
		if strings.Contains(text, key) {
			if key == f.failFor {
				return nil, fmt.Errorf("embedding backend down")
			}
			return vec, nil
		}
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

type memEmbeddingCache struct {
	entries map[string]*models.EmbeddingCacheEntry
}

func (m *memEmbeddingCache) StoreEmbedding(ctx context.Context, e *models.EmbeddingCacheEntry) error {
	m.entries[e.Key] = e
	return nil
}

func (m *memEmbeddingCache) GetEmbedding(ctx context.Context, key string) (*models.EmbeddingCacheEntry, error) {
	return m.entries[key], nil
}

// nullVettingStorage records filter log entries and discards the rest
type nullVettingStorage struct {
	filterEntries []*models.FilterLogEntry
}

func (n *nullVettingStorage) StoreRun(ctx context.Context, run *models.VettingRun) error { return nil }
func (n *nullVettingStorage) GetRun(ctx context.Context, runID string) (*models.VettingRun, error) {
	return nil, nil
}
func (n *nullVettingStorage) GetRunByMessageID(ctx context.Context, messageID string) (*models.VettingRun, error) {
	return nil, nil
}
func (n *nullVettingStorage) GetRunsByStatus(ctx context.Context, status models.RunStatus, limit int) ([]*models.VettingRun, error) {
	return nil, nil
}
func (n *nullVettingStorage) GetOldestRunning(ctx context.Context) (*models.VettingRun, error) {
	return nil, nil
}
func (n *nullVettingStorage) StoreMatch(ctx context.Context, match *models.JobMatch) error {
	return nil
}
func (n *nullVettingStorage) GetMatchesByRun(ctx context.Context, runID string) ([]*models.JobMatch, error) {
	return nil, nil
}
func (n *nullVettingStorage) StoreFilterEntry(ctx context.Context, e *models.FilterLogEntry) error {
	n.filterEntries = append(n.filterEntries, e)
	return nil
}
func (n *nullVettingStorage) StoreEscalationEntry(ctx context.Context, e *models.EscalationLogEntry) error {
	return nil
}

func filterTestService(embedder *fakeEmbedder, cfg *common.VettingConfig) (*Service, *nullVettingStorage) {
	return filterTestServiceWithATS(embedder, cfg, &filterATS{jobs: make(map[string]*models.Job)})
}

func filterTestServiceWithATS(embedder *fakeEmbedder, cfg *common.VettingConfig, ats *filterATS) (*Service, *nullVettingStorage) {
	vetting := &nullVettingStorage{}
	cache := &memEmbeddingCache{entries: make(map[string]*models.EmbeddingCacheEntry)}
	return NewService(embedder, cache, vetting, ats, cfg, arbor.NewLogger()), vetting
}

func filterJob(id, title string) *models.Job {
	return &models.Job{JobID: id, Title: title, DescriptionHTML: "<p>" + title + " role</p>"}
}

func TestFilterJobs_ThresholdAndBypass(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"golang resume":   {1, 0, 0},
		"Backend Go":      {1, 0, 0},   // similarity 1
		"Forklift Driver": {0, 1, 0},   // similarity 0
		"Data Engineer":   {0.5, 1, 0}, // similarity ~0.45
	}}
	cfg := &common.VettingConfig{EmbeddingThreshold: 0.35, EmbeddingMinJobs: 0, EmbeddingMaxTokens: 8000}
	svc, vetting := filterTestService(embedder, cfg)

	jobs := []*models.Job{
		filterJob("1", "Backend Go"),
		filterJob("2", "Forklift Driver"),
		filterJob("3", "Data Engineer"),
	}

	passed, err := svc.FilterJobs(context.Background(), "run-1", "golang resume", "2", jobs)
	require.NoError(t, err)

	// Job 2 bypasses as the applied job despite zero similarity
	byID := make(map[string]*FilteredJob)
	for _, fj := range passed {
		byID[fj.Job.JobID] = fj
	}
	require.Contains(t, byID, "1")
	require.Contains(t, byID, "2")
	require.Contains(t, byID, "3")

	assert.True(t, byID["2"].Bypassed)
	assert.Equal(t, float64(1), byID["2"].Similarity)
	assert.False(t, byID["1"].Bypassed)
	assert.InDelta(t, 1.0, byID["1"].Similarity, 0.001)

	// Sorted by similarity descending
	for i := 1; i < len(passed); i++ {
		assert.GreaterOrEqual(t, passed[i-1].Similarity, passed[i].Similarity)
	}

	// Every scored job gets a filter log entry
	assert.Len(t, vetting.filterEntries, 3)
}

func TestFilterJobs_MinPassBackfill(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"golang resume": {1, 0, 0},
		"Job A":         {0.2, 1, 0}, // below threshold
		"Job B":         {0.1, 1, 0}, // further below
	}}
	cfg := &common.VettingConfig{EmbeddingThreshold: 0.35, EmbeddingMinJobs: 2, EmbeddingMaxTokens: 8000}
	svc, _ := filterTestService(embedder, cfg)

	jobs := []*models.Job{filterJob("a", "Job A"), filterJob("b", "Job B")}

	passed, err := svc.FilterJobs(context.Background(), "run-1", "golang resume", "", jobs)
	require.NoError(t, err)
	require.Len(t, passed, 2)

	// Both entered through the floor, higher similarity first
	assert.Equal(t, "a", passed[0].Job.JobID)
	assert.True(t, passed[0].MinPass)
	assert.True(t, passed[1].MinPass)
}

func TestFilterJobs_EmbedFailureExcludesJob(t *testing.T) {
	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"golang resume": {1, 0, 0},
			"Job A":         {1, 0, 0},
			"Job B":         {1, 0, 0},
		},
		failFor: "Job B",
	}
	cfg := &common.VettingConfig{EmbeddingThreshold: 0.35, EmbeddingMaxTokens: 8000}
	svc, _ := filterTestService(embedder, cfg)

	jobs := []*models.Job{filterJob("a", "Job A"), filterJob("b", "Job B")}

	passed, err := svc.FilterJobs(context.Background(), "run-1", "golang resume", "", jobs)
	require.NoError(t, err)
	require.Len(t, passed, 1)
	assert.Equal(t, "a", passed[0].Job.JobID)
}

func TestFilterJobs_ResumeEmbedFailureBypassesAll(t *testing.T) {
	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"golang resume": {1, 0, 0},
			"Job A":         {1, 0, 0},
			"Job B":         {0, 1, 0},
		},
		failFor: "golang resume",
	}
	cfg := &common.VettingConfig{EmbeddingThreshold: 0.35, EmbeddingMaxTokens: 8000}
	svc, vetting := filterTestService(embedder, cfg)

	jobs := []*models.Job{filterJob("a", "Job A"), filterJob("b", "Job B")}

	// The filter fails open: every job goes through to scoring
	passed, err := svc.FilterJobs(context.Background(), "run-1", "golang resume", "b", jobs)
	require.NoError(t, err)
	require.Len(t, passed, 2)
	for _, fj := range passed {
		assert.True(t, fj.Bypassed)
	}

	require.Len(t, vetting.filterEntries, 2)
	for _, e := range vetting.filterEntries {
		assert.True(t, e.Bypassed)
		assert.True(t, e.Passed)
	}
}

func TestFilterJobs_AppliedJobOutsideSnapshot(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"golang resume": {1, 0, 0},
		"Job A":         {1, 0, 0},
	}}
	cfg := &common.VettingConfig{EmbeddingThreshold: 0.35, EmbeddingMaxTokens: 8000}

	t.Run("open applied job is fetched and bypassed", func(t *testing.T) {
		ats := &filterATS{jobs: map[string]*models.Job{
			"9": {JobID: "9", Title: "Off-Sheet Role", Status: "Accepting Candidates"},
		}}
		svc, _ := filterTestServiceWithATS(embedder, cfg, ats)

		passed, err := svc.FilterJobs(context.Background(), "run-1", "golang resume", "9", []*models.Job{filterJob("a", "Job A")})
		require.NoError(t, err)
		assert.Equal(t, 1, ats.getJobs)

		byID := make(map[string]*FilteredJob)
		for _, fj := range passed {
			byID[fj.Job.JobID] = fj
		}
		require.Contains(t, byID, "9")
		assert.True(t, byID["9"].Bypassed)
		assert.Equal(t, float64(1), byID["9"].Similarity)
	})

	t.Run("closed applied job stays out", func(t *testing.T) {
		ats := &filterATS{jobs: map[string]*models.Job{
			"9": {JobID: "9", Title: "Off-Sheet Role", Status: "Placed"},
		}}
		svc, _ := filterTestServiceWithATS(embedder, cfg, ats)

		passed, err := svc.FilterJobs(context.Background(), "run-1", "golang resume", "9", []*models.Job{filterJob("a", "Job A")})
		require.NoError(t, err)
		for _, fj := range passed {
			assert.NotEqual(t, "9", fj.Job.JobID)
		}
	})

	t.Run("lookup failure degrades to the snapshot", func(t *testing.T) {
		ats := &filterATS{err: fmt.Errorf("ats down")}
		svc, _ := filterTestServiceWithATS(embedder, cfg, ats)

		passed, err := svc.FilterJobs(context.Background(), "run-1", "golang resume", "9", []*models.Job{filterJob("a", "Job A")})
		require.NoError(t, err)
		require.Len(t, passed, 1)
		assert.Equal(t, "a", passed[0].Job.JobID)
	})

	t.Run("snapshot already carries the applied job", func(t *testing.T) {
		ats := &filterATS{jobs: make(map[string]*models.Job)}
		svc, _ := filterTestServiceWithATS(embedder, cfg, ats)

		_, err := svc.FilterJobs(context.Background(), "run-1", "golang resume", "a", []*models.Job{filterJob("a", "Job A")})
		require.NoError(t, err)
		assert.Equal(t, 0, ats.getJobs)
	})
}

func TestFilterJobs_CacheAvoidsRecompute(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"golang resume": {1, 0, 0},
		"Job A":         {1, 0, 0},
	}}
	cfg := &common.VettingConfig{EmbeddingThreshold: 0.35, EmbeddingMaxTokens: 8000}
	svc, _ := filterTestService(embedder, cfg)
	jobs := []*models.Job{filterJob("a", "Job A")}

	_, err := svc.FilterJobs(context.Background(), "run-1", "golang resume", "", jobs)
	require.NoError(t, err)
	first := embedder.calls

	_, err = svc.FilterJobs(context.Background(), "run-2", "golang resume", "", jobs)
	require.NoError(t, err)
	assert.Equal(t, first, embedder.calls)
}

func TestTruncateForEmbedding(t *testing.T) {
	// Under budget passes through untouched
	assert.Equal(t, "short", truncateForEmbedding("short", 100))
	assert.Equal(t, "no budget", truncateForEmbedding("no budget", 0))

	// Over budget keeps head and tail around the marker
	text := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	out := truncateForEmbedding(text, 100) // 300 char budget
	assert.Contains(t, out, "\n...\n")
	assert.True(t, strings.HasPrefix(out, "aaaa"))
	assert.True(t, strings.HasSuffix(out, "zzzz"))
	assert.Less(t, len(out), len(text))

	headLen := 300 * 3 / 4
	assert.Equal(t, strings.Repeat("a", headLen), out[:headLen])
}

func TestStripHTML(t *testing.T) {
	out := stripHTML("<div><h1>Title</h1><p>Body text</p></div>")
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "Body text")
	assert.NotContains(t, out, "<p>")
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 0.0001)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 0.0001)

	// Degenerate inputs
	assert.Equal(t, float64(0), cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, float64(0), cosineSimilarity(nil, nil))
	assert.Equal(t, float64(0), cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
