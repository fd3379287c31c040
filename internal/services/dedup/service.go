package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

// Service is the outbound suppression gate. Every note and email checks the
// ledger before sending and records itself after. Windows differ by channel:
// notes suppress for a day, emails only long enough to absorb double-fires.
type Service struct {
	storage     interfaces.DeliveryStorage
	noteWindow  time.Duration
	emailWindow time.Duration
	logger      arbor.ILogger
}

// NewService creates the dedup gate
func NewService(storage interfaces.DeliveryStorage, config *common.DedupConfig, logger arbor.ILogger) *Service {
	return &Service{
		storage:     storage,
		noteWindow:  common.ParseDuration(config.NoteWindow, 24*time.Hour),
		emailWindow: common.ParseDuration(config.EmailWindow, 5*time.Minute),
		logger:      logger,
	}
}

// ShouldSend reports whether no matching delivery exists inside the
// channel's window
func (s *Service) ShouldSend(ctx context.Context, channel, subjectKey string) (bool, error) {
	window := s.windowFor(channel)

	recent, err := s.storage.HasRecent(ctx, channel, subjectKey, window)
	if err != nil {
		return false, err
	}
	if recent {
		s.logger.Debug().
			Str("channel", channel).
			Str("subject_key", subjectKey).
			Msg("Delivery suppressed by dedup window")
	}
	return !recent, nil
}

// RecordSend writes the delivery to the ledger. Failed sends are recorded
// too so a crash-loop cannot spam recipients.
func (s *Service) RecordSend(ctx context.Context, channel, subjectKey, recipient string, sendErr error) error {
	rec := &models.DeliveryRecord{
		DeliveryID: uuid.New().String(),
		Channel:    channel,
		SubjectKey: subjectKey,
		Recipient:  recipient,
		Succeeded:  sendErr == nil,
		CreatedAt:  time.Now(),
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	return s.storage.StoreDelivery(ctx, rec)
}

func (s *Service) windowFor(channel string) time.Duration {
	if channel == models.ChannelNote {
		return s.noteWindow
	}
	return s.emailWindow
}
