package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// LockStorage implements the LockStorage interface for Badger. A process-wide
// mutex serializes claim checks against the same store so two local cycles
// cannot race on the read-then-write.
type LockStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewLockStorage creates a new LockStorage instance
func NewLockStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LockStorage {
	return &LockStorage{
		db:     db,
		logger: logger,
	}
}

func (s *LockStorage) TryAcquire(ctx context.Context, name, holderID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	var lock models.SchedulerLock
	err := s.db.Store().Get(name, &lock)
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to read lock %s: %w", name, err)
	}

	if err == nil && lock.HolderID != holderID && !lock.Expired(now) {
		return models.ErrLockHeld
	}

	newLock := models.SchedulerLock{
		Name:      name,
		HolderID:  holderID,
		ExpiresAt: now.Add(ttl),
		ClaimedAt: now,
	}
	if err := s.db.Store().Upsert(name, &newLock); err != nil {
		return fmt.Errorf("failed to claim lock %s: %w", name, err)
	}

	s.logger.Debug().Str("lock", name).Str("holder", holderID).Msg("Lock acquired")
	return nil
}

func (s *LockStorage) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lock models.SchedulerLock
	if err := s.db.Store().Get(name, &lock); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("lock %s not found", name)
		}
		return fmt.Errorf("failed to read lock %s: %w", name, err)
	}

	if lock.HolderID != holderID {
		return models.ErrLockHeld
	}

	lock.ExpiresAt = time.Now().Add(ttl)
	if err := s.db.Store().Upsert(name, &lock); err != nil {
		return fmt.Errorf("failed to renew lock %s: %w", name, err)
	}
	return nil
}

func (s *LockStorage) Release(ctx context.Context, name, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lock models.SchedulerLock
	if err := s.db.Store().Get(name, &lock); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to read lock %s: %w", name, err)
	}

	// Only the holder may release; an expired lease claimed by someone else
	// must not be clobbered.
	if lock.HolderID != holderID {
		return nil
	}

	if err := s.db.Store().Delete(name, &models.SchedulerLock{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}

	s.logger.Debug().Str("lock", name).Str("holder", holderID).Msg("Lock released")
	return nil
}
