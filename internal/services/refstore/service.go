package refstore

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

// tokenLength is the length of a public reference token
const tokenLength = 10

// tokenCharset omits easily-confused characters (0/O, 1/I/L)
const tokenCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Service owns the job reference tokens that appear in published feeds.
// A token, once minted for a job, survives every automated path; only
// OperatorRefresh rotates it.
type Service struct {
	storage interfaces.ReferenceStorage
	logger  arbor.ILogger
	gcAge   time.Duration
}

// NewService creates a reference store service. gcDays bounds how long an
// unseen job keeps its token before collection.
func NewService(storage interfaces.ReferenceStorage, logger arbor.ILogger, gcDays int) *Service {
	if gcDays <= 0 {
		gcDays = 30
	}
	return &Service{
		storage: storage,
		logger:  logger,
		gcAge:   time.Duration(gcDays) * 24 * time.Hour,
	}
}

// LoadOrMint returns the reference token for each job ID, minting tokens for
// jobs seen for the first time. Existing tokens are never rewritten; LastSeen
// is advanced on every call so GC tracks feed membership.
func (s *Service) LoadOrMint(ctx context.Context, jobIDs []string) (map[string]string, error) {
	now := time.Now()
	tokens := make(map[string]string, len(jobIDs))
	minted := 0

	var taken map[string]bool

	for _, jobID := range jobIDs {
		ref, err := s.storage.GetReference(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("failed to load reference for job %s: %w", jobID, err)
		}

		if ref == nil {
			if taken == nil {
				taken, err = s.takenTokens(ctx)
				if err != nil {
					return nil, err
				}
			}
			token, err := s.mintUniqueToken(taken)
			if err != nil {
				return nil, fmt.Errorf("failed to mint token for job %s: %w", jobID, err)
			}

			// A concurrent cycle may have minted first; the earlier
			// write wins so published tokens never flap.
			existing, err := s.storage.GetReference(ctx, jobID)
			if err != nil {
				return nil, fmt.Errorf("failed to load reference for job %s: %w", jobID, err)
			}
			if existing != nil {
				ref = existing
			} else {
				ref = &models.JobReference{
					JobID:          jobID,
					ReferenceToken: token,
					LastUpdated:    now,
				}
				taken[token] = true
				minted++
				s.logger.Info().Str("job_id", jobID).Str("token", token).Msg("Minted new job reference")
			}
		}

		ref.LastSeen = now
		if err := s.storage.StoreReference(ctx, ref); err != nil {
			return nil, fmt.Errorf("failed to store reference for job %s: %w", jobID, err)
		}
		tokens[jobID] = ref.ReferenceToken
	}

	if minted > 0 {
		s.logger.Info().Int("minted", minted).Int("total", len(jobIDs)).Msg("Reference tokens resolved")
	}
	return tokens, nil
}

// OperatorRefresh rotates the token for one job. Returns the old and new
// tokens so the caller can notify recruiters of the change.
func (s *Service) OperatorRefresh(ctx context.Context, jobID string) (oldToken, newToken string, err error) {
	ref, err := s.storage.GetReference(ctx, jobID)
	if err != nil {
		return "", "", fmt.Errorf("failed to load reference for job %s: %w", jobID, err)
	}
	if ref == nil {
		return "", "", fmt.Errorf("no reference exists for job %s", jobID)
	}

	taken, err := s.takenTokens(ctx)
	if err != nil {
		return "", "", err
	}

	oldToken = ref.ReferenceToken
	newToken, err = s.mintUniqueToken(taken)
	if err != nil {
		return "", "", fmt.Errorf("failed to mint replacement token: %w", err)
	}

	ref.ReferenceToken = newToken
	ref.LastUpdated = time.Now()
	if err := s.storage.StoreReference(ctx, ref); err != nil {
		return "", "", fmt.Errorf("failed to store refreshed reference: %w", err)
	}

	s.logger.Warn().
		Str("job_id", jobID).
		Str("old_token", oldToken).
		Str("new_token", newToken).
		Msg("Operator refreshed job reference token")
	return oldToken, newToken, nil
}

// CollectStale deletes references for jobs not seen in any publish cycle
// within the GC window. Returns the number removed.
func (s *Service) CollectStale(ctx context.Context) (int, error) {
	refs, err := s.storage.GetAllReferences(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list references for GC: %w", err)
	}

	cutoff := time.Now().Add(-s.gcAge)
	removed := 0
	for _, ref := range refs {
		if ref.LastSeen.After(cutoff) {
			continue
		}
		if err := s.storage.DeleteReference(ctx, ref.JobID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", ref.JobID).Msg("Failed to collect stale reference")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Stale job references collected")
	}
	return removed, nil
}

// takenTokens returns the set of tokens already assigned across the store
func (s *Service) takenTokens(ctx context.Context) (map[string]bool, error) {
	refs, err := s.storage.GetAllReferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list references for token uniqueness: %w", err)
	}
	taken := make(map[string]bool, len(refs))
	for _, ref := range refs {
		taken[ref.ReferenceToken] = true
	}
	return taken, nil
}

// mintUniqueToken mints a token not yet assigned to any job, retrying on
// the (vanishingly rare) collision.
func (s *Service) mintUniqueToken(taken map[string]bool) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		token, err := mintToken()
		if err != nil {
			return "", err
		}
		if !taken[token] {
			return token, nil
		}
	}
	return "", fmt.Errorf("could not mint a unique token after repeated collisions")
}

// mintToken produces a 10-character token from the crypto random source
func mintToken() (string, error) {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = tokenCharset[int(buf[i])%len(tokenCharset)]
	}
	return string(buf), nil
}
