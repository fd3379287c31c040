package resume

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

// maxResumeChars bounds cached resume text. Anything longer than this is
// boilerplate or a corrupted extraction, not a resume.
const maxResumeChars = 60000

// Service fetches, extracts, and caches candidate resume text. The cache is
// keyed by content hash so the same document uploaded to several candidate
// records extracts once.
type Service struct {
	ats     interfaces.ATSClient
	cache   interfaces.ResumeCacheStorage
	logger  arbor.ILogger
	tempDir string
}

// NewService creates the resume service
func NewService(ats interfaces.ATSClient, cache interfaces.ResumeCacheStorage, logger arbor.ILogger) *Service {
	tempDir := filepath.Join(os.TempDir(), "vettra-resume")
	os.MkdirAll(tempDir, 0755)

	return &Service{
		ats:     ats,
		cache:   cache,
		logger:  logger,
		tempDir: tempDir,
	}
}

// FetchResumeText returns the normalized resume text and content hash for a
// candidate. Returns models.ErrResumeUnavailable when no usable attachment
// exists; the caller defers the run and retries on a later cycle.
func (s *Service) FetchResumeText(ctx context.Context, candidateID string) (string, string, error) {
	files, err := s.ats.ListCandidateFiles(ctx, candidateID)
	if err != nil {
		return "", "", fmt.Errorf("failed to list files for candidate %s: %w", candidateID, err)
	}

	best := selectBest(files)
	if best == nil {
		s.logger.Debug().Str("candidate_id", candidateID).Msg("Candidate has no attachments yet")
		return "", "", models.ErrResumeUnavailable
	}

	data, _, err := s.ats.DownloadFile(ctx, candidateID, best.AttachmentID)
	if err != nil {
		return "", "", fmt.Errorf("failed to download %s for candidate %s: %w", best.FileName, candidateID, err)
	}

	hash := contentHash(data)

	cached, err := s.cache.GetResume(ctx, hash)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Resume cache lookup failed, extracting fresh")
	}
	if cached != nil {
		cached.HitCount++
		cached.LastAccessed = time.Now()
		if err := s.cache.StoreResume(ctx, cached); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to update resume cache hit stats")
		}
		s.logger.Debug().
			Str("candidate_id", candidateID).
			Str("hash", hash[:12]).
			Int("hits", cached.HitCount).
			Msg("Resume cache hit")
		return cached.Text, hash, nil
	}

	text, err := s.extractText(data, best.FileName)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("candidate_id", candidateID).
			Str("file", best.FileName).
			Msg("Resume extraction failed")
		return "", "", models.ErrResumeUnavailable
	}

	text = normalizeText(text)
	if len(text) < 100 {
		// A page of prose is at least a few hundred characters; anything
		// shorter is an extraction artifact.
		s.logger.Warn().
			Str("candidate_id", candidateID).
			Str("file", best.FileName).
			Int("chars", len(text)).
			Msg("Extracted text too short to be a resume")
		return "", "", models.ErrResumeUnavailable
	}

	truncated := false
	if len(text) > maxResumeChars {
		text = text[:maxResumeChars]
		truncated = true
	}

	entry := &models.ResumeCacheEntry{
		ContentHash: hash,
		CandidateID: candidateID,
		FileName:    best.FileName,
		Text:        text,
		Truncated:   truncated,
		ExtractedAt: time.Now(),
	}
	if err := s.cache.StoreResume(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to store resume cache entry")
	}

	s.logger.Info().
		Str("candidate_id", candidateID).
		Str("file", best.FileName).
		Int("chars", len(text)).
		Msg("Resume extracted")
	return text, hash, nil
}

// contentHash returns the hex SHA-256 of the raw document bytes
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
