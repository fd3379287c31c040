package digest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

type memPublishStorage struct {
	records []*models.PublishRecord
}

func (m *memPublishStorage) StorePublishRecord(ctx context.Context, rec *models.PublishRecord) error {
	m.records = append(m.records, rec)
	return nil
}
func (m *memPublishStorage) GetRecentPublishRecords(ctx context.Context, limit int) ([]*models.PublishRecord, error) {
	return m.records, nil
}

type memDeliveryStorage struct {
	records []*models.DeliveryRecord
}

func (m *memDeliveryStorage) StoreDelivery(ctx context.Context, rec *models.DeliveryRecord) error {
	m.records = append(m.records, rec)
	return nil
}
func (m *memDeliveryStorage) HasRecent(ctx context.Context, channel, subjectKey string, window time.Duration) (bool, error) {
	return false, nil
}
func (m *memDeliveryStorage) GetDeliveriesSince(ctx context.Context, since time.Time) ([]*models.DeliveryRecord, error) {
	var out []*models.DeliveryRecord
	for _, r := range m.records {
		if r.CreatedAt.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

type memVettingStorage struct {
	runs []*models.VettingRun
}

func (m *memVettingStorage) StoreRun(ctx context.Context, run *models.VettingRun) error {
	m.runs = append(m.runs, run)
	return nil
}
func (m *memVettingStorage) GetRun(ctx context.Context, runID string) (*models.VettingRun, error) {
	return nil, nil
}
func (m *memVettingStorage) GetRunByMessageID(ctx context.Context, messageID string) (*models.VettingRun, error) {
	return nil, nil
}
func (m *memVettingStorage) GetRunsByStatus(ctx context.Context, status models.RunStatus, limit int) ([]*models.VettingRun, error) {
	var out []*models.VettingRun
	for _, r := range m.runs {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}
func (m *memVettingStorage) GetOldestRunning(ctx context.Context) (*models.VettingRun, error) {
	return nil, nil
}
func (m *memVettingStorage) StoreMatch(ctx context.Context, match *models.JobMatch) error { return nil }
func (m *memVettingStorage) GetMatchesByRun(ctx context.Context, runID string) ([]*models.JobMatch, error) {
	return nil, nil
}
func (m *memVettingStorage) StoreFilterEntry(ctx context.Context, entry *models.FilterLogEntry) error {
	return nil
}
func (m *memVettingStorage) StoreEscalationEntry(ctx context.Context, entry *models.EscalationLogEntry) error {
	return nil
}

type captureMailer struct {
	sent []*interfaces.OutboundMail
}

func (m *captureMailer) Send(ctx context.Context, mail *interfaces.OutboundMail) error {
	m.sent = append(m.sent, mail)
	return nil
}

func TestSendDaily_ComposesAndSends(t *testing.T) {
	now := time.Now()
	publishes := &memPublishStorage{records: []*models.PublishRecord{
		{RunID: "r1", Published: true, JobCount: 12, CompletedAt: now.Add(-time.Hour)},
		{RunID: "r2", Skipped: true, SkipReason: "zero_jobs", CompletedAt: now.Add(-2 * time.Hour)},
		{RunID: "old", Published: true, JobCount: 99, CompletedAt: now.Add(-48 * time.Hour)},
	}}
	vetting := &memVettingStorage{runs: []*models.VettingRun{
		{RunID: "v1", Status: models.RunStatusCompleted, MatchedJobs: 2, CompletedAt: now.Add(-time.Hour)},
		{RunID: "v2", Status: models.RunStatusCompleted, MatchedJobs: 0, CompletedAt: now.Add(-time.Hour)},
		{RunID: "v3", Status: models.RunStatusFailed, CompletedAt: now.Add(-time.Hour)},
		{RunID: "v4", Status: models.RunStatusDeferred},
	}}
	deliveries := &memDeliveryStorage{records: []*models.DeliveryRecord{
		{Channel: models.ChannelNote, Succeeded: true, CreatedAt: now.Add(-time.Hour)},
		{Channel: models.ChannelNote, Succeeded: true, CreatedAt: now.Add(-time.Hour)},
		{Channel: models.ChannelEmailQualified, Succeeded: false, Error: "smtp timeout", CreatedAt: now.Add(-time.Hour)},
	}}
	mailer := &captureMailer{}

	svc := NewService(publishes, deliveries, vetting, mailer, "admin@example.com", arbor.NewLogger())
	require.NoError(t, svc.SendDaily(context.Background()))

	require.Len(t, mailer.sent, 1)
	mail := mailer.sent[0]
	assert.Equal(t, []string{"admin@example.com"}, mail.To)
	assert.Contains(t, mail.Subject, "daily digest")

	// Markdown body carries the day's numbers, stale records excluded
	assert.Contains(t, mail.BodyText, "Cycles published: **1**")
	assert.Contains(t, mail.BodyText, "Cycles skipped: **1**")
	assert.Contains(t, mail.BodyText, "Jobs in latest feed: **12**")
	assert.Contains(t, mail.BodyText, "Candidates vetted: **2**")
	assert.Contains(t, mail.BodyText, "With qualified matches: **1**")
	assert.Contains(t, mail.BodyText, "Failed runs: **1**")
	assert.Contains(t, mail.BodyText, "Awaiting resume: **1**")
	assert.Contains(t, mail.BodyText, "note: **2**")
	assert.Contains(t, mail.BodyText, "Delivery failures: **1**")

	// Rendered HTML alternative
	assert.Contains(t, mail.BodyHTML, "<h1>")
	assert.Contains(t, mail.BodyHTML, "<strong>12</strong>")
}

func TestSendDaily_NoAdminAddressSkips(t *testing.T) {
	mailer := &captureMailer{}
	svc := NewService(&memPublishStorage{}, &memDeliveryStorage{}, &memVettingStorage{}, mailer, "", arbor.NewLogger())

	require.NoError(t, svc.SendDaily(context.Background()))
	assert.Empty(t, mailer.sent)
}

func TestSendDaily_QuietDay(t *testing.T) {
	mailer := &captureMailer{}
	svc := NewService(&memPublishStorage{}, &memDeliveryStorage{}, &memVettingStorage{}, mailer, "admin@example.com", arbor.NewLogger())

	require.NoError(t, svc.SendDaily(context.Background()))
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].BodyText, "- None")
}
