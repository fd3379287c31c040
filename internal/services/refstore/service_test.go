package refstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/models"
)

// memReferenceStorage is an in-memory ReferenceStorage for tests
type memReferenceStorage struct {
	refs map[string]*models.JobReference
}

func newMemReferenceStorage() *memReferenceStorage {
	return &memReferenceStorage{refs: make(map[string]*models.JobReference)}
}

func (m *memReferenceStorage) StoreReference(ctx context.Context, ref *models.JobReference) error {
	cp := *ref
	m.refs[ref.JobID] = &cp
	return nil
}

func (m *memReferenceStorage) GetReference(ctx context.Context, jobID string) (*models.JobReference, error) {
	if ref, ok := m.refs[jobID]; ok {
		cp := *ref
		return &cp, nil
	}
	return nil, nil
}

func (m *memReferenceStorage) GetAllReferences(ctx context.Context) ([]*models.JobReference, error) {
	var out []*models.JobReference
	for _, ref := range m.refs {
		cp := *ref
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memReferenceStorage) DeleteReference(ctx context.Context, jobID string) error {
	delete(m.refs, jobID)
	return nil
}

func (m *memReferenceStorage) CountReferences(ctx context.Context) (int, error) {
	return len(m.refs), nil
}

func TestLoadOrMint_MintsAndPreserves(t *testing.T) {
	store := newMemReferenceStorage()
	svc := NewService(store, arbor.NewLogger(), 30)
	ctx := context.Background()

	tokens, err := svc.LoadOrMint(ctx, []string{"100", "200"})
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	for _, token := range tokens {
		assert.Len(t, token, tokenLength)
		for _, ch := range token {
			assert.Contains(t, tokenCharset, string(ch))
		}
	}

	// A second cycle returns the same tokens
	again, err := svc.LoadOrMint(ctx, []string{"100", "200"})
	require.NoError(t, err)
	assert.Equal(t, tokens, again)
}

func TestLoadOrMint_TokensAreDistinct(t *testing.T) {
	store := newMemReferenceStorage()
	svc := NewService(store, arbor.NewLogger(), 30)

	var ids []string
	for i := 0; i < 30; i++ {
		ids = append(ids, fmt.Sprintf("job-%d", i))
	}

	tokens, err := svc.LoadOrMint(context.Background(), ids)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, token := range tokens {
		assert.False(t, seen[token], "token %s assigned twice", token)
		seen[token] = true
	}
}

func TestMintUniqueToken_AvoidsTakenSet(t *testing.T) {
	svc := NewService(newMemReferenceStorage(), arbor.NewLogger(), 30)

	taken := map[string]bool{"AAAAAAAAAA": true, "BBBBBBBBBB": true}
	token, err := svc.mintUniqueToken(taken)
	require.NoError(t, err)
	assert.Len(t, token, tokenLength)
	assert.False(t, taken[token])
}

// racingRefStorage injects a concurrently minted reference between the
// initial miss and the pre-store recheck
type racingRefStorage struct {
	*memReferenceStorage
	jobID string
	ref   *models.JobReference
	gets  int
}

func (r *racingRefStorage) GetReference(ctx context.Context, jobID string) (*models.JobReference, error) {
	if jobID == r.jobID {
		r.gets++
		if r.gets == 2 {
			cp := *r.ref
			r.memReferenceStorage.refs[jobID] = &cp
		}
	}
	return r.memReferenceStorage.GetReference(ctx, jobID)
}

func TestLoadOrMint_ConcurrentMintFirstWriterWins(t *testing.T) {
	store := &racingRefStorage{
		memReferenceStorage: newMemReferenceStorage(),
		jobID:               "100",
		ref:                 &models.JobReference{JobID: "100", ReferenceToken: "WINNERTOK2"},
	}
	svc := NewService(store, arbor.NewLogger(), 30)

	tokens, err := svc.LoadOrMint(context.Background(), []string{"100"})
	require.NoError(t, err)
	assert.Equal(t, "WINNERTOK2", tokens["100"])
	assert.Equal(t, "WINNERTOK2", store.refs["100"].ReferenceToken)
}

func TestLoadOrMint_AdvancesLastSeen(t *testing.T) {
	store := newMemReferenceStorage()
	store.refs["100"] = &models.JobReference{
		JobID:          "100",
		ReferenceToken: "OLDTOKEN22",
		LastSeen:       time.Now().Add(-40 * 24 * time.Hour),
	}
	svc := NewService(store, arbor.NewLogger(), 30)

	tokens, err := svc.LoadOrMint(context.Background(), []string{"100"})
	require.NoError(t, err)
	assert.Equal(t, "OLDTOKEN22", tokens["100"])
	assert.WithinDuration(t, time.Now(), store.refs["100"].LastSeen, time.Minute)
}

func TestOperatorRefresh_RotatesToken(t *testing.T) {
	store := newMemReferenceStorage()
	store.refs["100"] = &models.JobReference{JobID: "100", ReferenceToken: "OLDTOKEN22"}
	svc := NewService(store, arbor.NewLogger(), 30)

	oldToken, newToken, err := svc.OperatorRefresh(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, "OLDTOKEN22", oldToken)
	assert.NotEqual(t, oldToken, newToken)
	assert.Len(t, newToken, tokenLength)
	assert.Equal(t, newToken, store.refs["100"].ReferenceToken)
}

func TestOperatorRefresh_UnknownJob(t *testing.T) {
	svc := NewService(newMemReferenceStorage(), arbor.NewLogger(), 30)

	_, _, err := svc.OperatorRefresh(context.Background(), "999")
	assert.Error(t, err)
}

func TestCollectStale(t *testing.T) {
	store := newMemReferenceStorage()
	now := time.Now()
	store.refs["fresh"] = &models.JobReference{JobID: "fresh", ReferenceToken: "AAAAAAAAAA", LastSeen: now}
	store.refs["stale"] = &models.JobReference{JobID: "stale", ReferenceToken: "BBBBBBBBBB", LastSeen: now.Add(-31 * 24 * time.Hour)}
	svc := NewService(store, arbor.NewLogger(), 30)

	removed, err := svc.CollectStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Contains(t, store.refs, "fresh")
	assert.NotContains(t, store.refs, "stale")
}

func TestMintToken_CharsetAndLength(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := mintToken()
		require.NoError(t, err)
		assert.Len(t, token, tokenLength)
		for _, ch := range token {
			assert.Contains(t, tokenCharset, string(ch))
		}
		seen[token] = true
	}
	// Collisions across 50 mints would indicate a broken random source
	assert.Greater(t, len(seen), 45)
}
