package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/vettra/internal/models"
)

// ReferenceStorage - persistence for job reference tokens
type ReferenceStorage interface {
	StoreReference(ctx context.Context, ref *models.JobReference) error
	GetReference(ctx context.Context, jobID string) (*models.JobReference, error)
	GetAllReferences(ctx context.Context) ([]*models.JobReference, error)
	DeleteReference(ctx context.Context, jobID string) error
	CountReferences(ctx context.Context) (int, error)
}

// ApplicationStorage - persistence for application events
type ApplicationStorage interface {
	StoreApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, messageID string) (*models.Application, error)
	GetUnprocessed(ctx context.Context, limit int) ([]*models.Application, error)
	MarkProcessed(ctx context.Context, messageID string) error
	CountApplications(ctx context.Context) (int, error)
}

// VettingStorage - persistence for vetting runs, matches, and audit logs
type VettingStorage interface {
	StoreRun(ctx context.Context, run *models.VettingRun) error
	GetRun(ctx context.Context, runID string) (*models.VettingRun, error)
	GetRunByMessageID(ctx context.Context, messageID string) (*models.VettingRun, error)
	GetRunsByStatus(ctx context.Context, status models.RunStatus, limit int) ([]*models.VettingRun, error)
	GetOldestRunning(ctx context.Context) (*models.VettingRun, error)

	StoreMatch(ctx context.Context, match *models.JobMatch) error
	GetMatchesByRun(ctx context.Context, runID string) ([]*models.JobMatch, error)

	StoreFilterEntry(ctx context.Context, entry *models.FilterLogEntry) error
	StoreEscalationEntry(ctx context.Context, entry *models.EscalationLogEntry) error
}

// RequirementsStorage - persistence for per-job scoring requirements
type RequirementsStorage interface {
	StoreRequirements(ctx context.Context, req *models.JobRequirements) error
	GetRequirements(ctx context.Context, jobID string) (*models.JobRequirements, error)
}

// ResumeCacheStorage - content-addressed cache of extracted resume text
type ResumeCacheStorage interface {
	StoreResume(ctx context.Context, entry *models.ResumeCacheEntry) error
	GetResume(ctx context.Context, contentHash string) (*models.ResumeCacheEntry, error)
}

// EmbeddingCacheStorage - cache of computed embedding vectors
type EmbeddingCacheStorage interface {
	StoreEmbedding(ctx context.Context, entry *models.EmbeddingCacheEntry) error
	GetEmbedding(ctx context.Context, key string) (*models.EmbeddingCacheEntry, error)
}

// DeliveryStorage - the outbound dedup ledger
type DeliveryStorage interface {
	StoreDelivery(ctx context.Context, rec *models.DeliveryRecord) error
	// HasRecent reports whether a delivery on channel with subjectKey was
	// recorded within the window ending now.
	HasRecent(ctx context.Context, channel, subjectKey string, window time.Duration) (bool, error)
	GetDeliveriesSince(ctx context.Context, since time.Time) ([]*models.DeliveryRecord, error)
}

// LockStorage - distributed TTL leases for scheduler cycles
type LockStorage interface {
	// TryAcquire claims the named lease for holderID if it is free or
	// expired. Returns models.ErrLockHeld when another holder has it.
	TryAcquire(ctx context.Context, name, holderID string, ttl time.Duration) error
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error
	Release(ctx context.Context, name, holderID string) error
}

// PublishStorage - history of feed publish cycles
type PublishStorage interface {
	StorePublishRecord(ctx context.Context, rec *models.PublishRecord) error
	GetRecentPublishRecords(ctx context.Context, limit int) ([]*models.PublishRecord, error)
}

// StorageManager aggregates the per-entity storages behind one lifecycle
type StorageManager interface {
	References() ReferenceStorage
	Applications() ApplicationStorage
	Vetting() VettingStorage
	Requirements() RequirementsStorage
	ResumeCache() ResumeCacheStorage
	EmbeddingCache() EmbeddingCacheStorage
	Deliveries() DeliveryStorage
	Locks() LockStorage
	Publishes() PublishStorage
	Close() error
}
