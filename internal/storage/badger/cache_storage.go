package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ResumeCacheStorage implements the ResumeCacheStorage interface for Badger
type ResumeCacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewResumeCacheStorage creates a new ResumeCacheStorage instance
func NewResumeCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ResumeCacheStorage {
	return &ResumeCacheStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ResumeCacheStorage) StoreResume(ctx context.Context, entry *models.ResumeCacheEntry) error {
	if entry.ContentHash == "" {
		return fmt.Errorf("content hash is required")
	}

	if err := s.db.Store().Upsert(entry.ContentHash, entry); err != nil {
		return fmt.Errorf("failed to store resume cache entry: %w", err)
	}
	return nil
}

func (s *ResumeCacheStorage) GetResume(ctx context.Context, contentHash string) (*models.ResumeCacheEntry, error) {
	var entry models.ResumeCacheEntry
	if err := s.db.Store().Get(contentHash, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get resume cache entry: %w", err)
	}
	return &entry, nil
}

// EmbeddingCacheStorage implements the EmbeddingCacheStorage interface for Badger
type EmbeddingCacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEmbeddingCacheStorage creates a new EmbeddingCacheStorage instance
func NewEmbeddingCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EmbeddingCacheStorage {
	return &EmbeddingCacheStorage{
		db:     db,
		logger: logger,
	}
}

func (s *EmbeddingCacheStorage) StoreEmbedding(ctx context.Context, entry *models.EmbeddingCacheEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("cache key is required")
	}

	if err := s.db.Store().Upsert(entry.Key, entry); err != nil {
		return fmt.Errorf("failed to store embedding cache entry: %w", err)
	}
	return nil
}

func (s *EmbeddingCacheStorage) GetEmbedding(ctx context.Context, key string) (*models.EmbeddingCacheEntry, error) {
	var entry models.EmbeddingCacheEntry
	if err := s.db.Store().Get(key, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get embedding cache entry: %w", err)
	}
	return &entry, nil
}
