package digest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"

	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

// Service composes the daily operations digest: publish cycle outcomes,
// vetting throughput, and outbound deliveries over the last 24 hours. The
// body is written as markdown and rendered to HTML for the email.
type Service struct {
	publishes  interfaces.PublishStorage
	deliveries interfaces.DeliveryStorage
	vetting    interfaces.VettingStorage
	mailer     interfaces.MailSender
	adminAddr  string
	logger     arbor.ILogger
}

// NewService creates the digest service
func NewService(
	publishes interfaces.PublishStorage,
	deliveries interfaces.DeliveryStorage,
	vetting interfaces.VettingStorage,
	mailer interfaces.MailSender,
	adminAddr string,
	logger arbor.ILogger,
) *Service {
	return &Service{
		publishes:  publishes,
		deliveries: deliveries,
		vetting:    vetting,
		mailer:     mailer,
		adminAddr:  adminAddr,
		logger:     logger,
	}
}

// SendDaily composes and sends the digest for the past 24 hours
func (s *Service) SendDaily(ctx context.Context) error {
	if s.adminAddr == "" {
		s.logger.Debug().Msg("No admin address configured, skipping digest")
		return nil
	}

	md, err := s.compose(ctx)
	if err != nil {
		return fmt.Errorf("failed to compose digest: %w", err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md), &html); err != nil {
		return fmt.Errorf("failed to render digest: %w", err)
	}

	mail := &interfaces.OutboundMail{
		To:       []string{s.adminAddr},
		Subject:  fmt.Sprintf("Vettra daily digest - %s", time.Now().UTC().Format("2006-01-02")),
		BodyText: md,
		BodyHTML: html.String(),
	}
	if err := s.mailer.Send(ctx, mail); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}

	s.logger.Info().Msg("Daily digest sent")
	return nil
}

func (s *Service) compose(ctx context.Context) (string, error) {
	since := time.Now().Add(-24 * time.Hour)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Daily Digest - %s\n\n", time.Now().UTC().Format("Monday, 2 January 2006")))

	publishes, err := s.publishes.GetRecentPublishRecords(ctx, 50)
	if err != nil {
		return "", err
	}

	published, skipped := 0, 0
	lastJobCount := 0
	for _, p := range publishes {
		if p.CompletedAt.Before(since) {
			continue
		}
		if p.Published {
			published++
			if lastJobCount == 0 {
				lastJobCount = p.JobCount
			}
		} else {
			skipped++
		}
	}

	b.WriteString("## Feed publishing\n\n")
	b.WriteString(fmt.Sprintf("- Cycles published: **%d**\n", published))
	b.WriteString(fmt.Sprintf("- Cycles skipped: **%d**\n", skipped))
	if lastJobCount > 0 {
		b.WriteString(fmt.Sprintf("- Jobs in latest feed: **%d**\n", lastJobCount))
	}
	b.WriteString("\n")

	completed, err := s.vetting.GetRunsByStatus(ctx, models.RunStatusCompleted, 0)
	if err != nil {
		return "", err
	}
	failed, err := s.vetting.GetRunsByStatus(ctx, models.RunStatusFailed, 0)
	if err != nil {
		return "", err
	}
	deferred, err := s.vetting.GetRunsByStatus(ctx, models.RunStatusDeferred, 0)
	if err != nil {
		return "", err
	}

	vetted, matched := 0, 0
	for _, r := range completed {
		if r.CompletedAt.Before(since) {
			continue
		}
		vetted++
		if r.MatchedJobs > 0 {
			matched++
		}
	}
	failedRecent := 0
	for _, r := range failed {
		if r.CompletedAt.After(since) {
			failedRecent++
		}
	}

	b.WriteString("## Candidate vetting\n\n")
	b.WriteString(fmt.Sprintf("- Candidates vetted: **%d**\n", vetted))
	b.WriteString(fmt.Sprintf("- With qualified matches: **%d**\n", matched))
	b.WriteString(fmt.Sprintf("- Failed runs: **%d**\n", failedRecent))
	b.WriteString(fmt.Sprintf("- Awaiting resume: **%d**\n", len(deferred)))
	b.WriteString("\n")

	recs, err := s.deliveries.GetDeliveriesSince(ctx, since)
	if err != nil {
		return "", err
	}

	byChannel := make(map[string]int)
	sendFailures := 0
	for _, rec := range recs {
		byChannel[rec.Channel]++
		if !rec.Succeeded {
			sendFailures++
		}
	}

	b.WriteString("## Outbound deliveries\n\n")
	if len(recs) == 0 {
		b.WriteString("- None\n")
	}
	for _, channel := range []string{
		models.ChannelNote,
		models.ChannelEmailQualified,
		models.ChannelEmailXMLUpload,
		models.ChannelEmailZeroJobAlert,
		models.ChannelEmailReferenceRefresh,
	} {
		if n := byChannel[channel]; n > 0 {
			b.WriteString(fmt.Sprintf("- %s: **%d**\n", channel, n))
		}
	}
	if sendFailures > 0 {
		b.WriteString(fmt.Sprintf("- **Delivery failures: %d**\n", sendFailures))
	}

	return b.String(), nil
}
