package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db             *BadgerDB
	references     interfaces.ReferenceStorage
	applications   interfaces.ApplicationStorage
	vetting        interfaces.VettingStorage
	requirements   interfaces.RequirementsStorage
	resumeCache    interfaces.ResumeCacheStorage
	embeddingCache interfaces.EmbeddingCacheStorage
	deliveries     interfaces.DeliveryStorage
	locks          interfaces.LockStorage
	publishes      interfaces.PublishStorage
	logger         arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:             db,
		references:     NewReferenceStorage(db, logger),
		applications:   NewApplicationStorage(db, logger),
		vetting:        NewVettingStorage(db, logger),
		requirements:   NewRequirementsStorage(db, logger),
		resumeCache:    NewResumeCacheStorage(db, logger),
		embeddingCache: NewEmbeddingCacheStorage(db, logger),
		deliveries:     NewDeliveryStorage(db, logger),
		locks:          NewLockStorage(db, logger),
		publishes:      NewPublishStorage(db, logger),
		logger:         logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// References returns the reference token storage
func (m *Manager) References() interfaces.ReferenceStorage {
	return m.references
}

// Applications returns the application event storage
func (m *Manager) Applications() interfaces.ApplicationStorage {
	return m.applications
}

// Vetting returns the vetting run storage
func (m *Manager) Vetting() interfaces.VettingStorage {
	return m.vetting
}

// Requirements returns the job requirements storage
func (m *Manager) Requirements() interfaces.RequirementsStorage {
	return m.requirements
}

// ResumeCache returns the resume text cache
func (m *Manager) ResumeCache() interfaces.ResumeCacheStorage {
	return m.resumeCache
}

// EmbeddingCache returns the embedding vector cache
func (m *Manager) EmbeddingCache() interfaces.EmbeddingCacheStorage {
	return m.embeddingCache
}

// Deliveries returns the outbound dedup ledger
func (m *Manager) Deliveries() interfaces.DeliveryStorage {
	return m.deliveries
}

// Locks returns the scheduler lease storage
func (m *Manager) Locks() interfaces.LockStorage {
	return m.locks
}

// Publishes returns the publish cycle history
func (m *Manager) Publishes() interfaces.PublishStorage {
	return m.publishes
}

// Close closes the underlying database
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing Badger storage manager")
	return m.db.Close()
}
