// -----------------------------------------------------------------------
// IMAP Poller - Inbound application notification ingestion
// -----------------------------------------------------------------------

package imappoller

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

// Notification field patterns for job-board application emails
var (
	jobIDPattern     = regexp.MustCompile(`(?im)^job\s*(?:id|#|number)\s*[:=]\s*(\S+)`)
	candidatePattern = regexp.MustCompile(`(?im)^candidate\s*(?:id)?\s*[:=]\s*(\S+)`)
	namePattern      = regexp.MustCompile(`(?im)^(?:applicant|name)\s*[:=]\s*(.+)$`)
	emailPattern     = regexp.MustCompile(`(?im)^email\s*[:=]\s*(\S+@\S+)`)
)

// applicationSubjectHint filters the mailbox to application notifications
const applicationSubjectHint = "new application"

// Service polls the applications mailbox and turns job-board notification
// emails into application records. The upstream Message-ID is the identity
// key, so re-delivered notifications collapse into the existing record.
type Service struct {
	config *common.IMAPConfig
	apps   interfaces.ApplicationStorage
	logger arbor.ILogger
}

// NewService creates the IMAP poller
func NewService(config *common.IMAPConfig, apps interfaces.ApplicationStorage, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		apps:   apps,
		logger: logger,
	}
}

// Enabled reports whether the mailbox is configured
func (s *Service) Enabled() bool {
	return s.config.Host != "" && s.config.Username != "" && s.config.Password != ""
}

// Poll fetches unseen notification emails, stores the applications they
// describe, and marks the messages seen. Unparseable messages are marked
// seen too so they never wedge the mailbox.
func (s *Service) Poll(ctx context.Context) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}

	c, err := s.connect()
	if err != nil {
		return 0, models.Transient("imap.poll", err)
	}
	defer c.Logout()

	mbox, err := c.Select(s.config.Mailbox, false)
	if err != nil {
		return 0, fmt.Errorf("failed to select %s: %w", s.config.Mailbox, err)
	}
	if mbox.Messages == 0 {
		return 0, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	seqNums, err := c.Search(criteria)
	if err != nil {
		return 0, fmt.Errorf("failed to search for unseen messages: %w", err)
	}
	if len(seqNums) == 0 {
		return 0, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	messages := make(chan *imap.Message, len(seqNums))
	section := &imap.BodySectionName{}

	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, section.FetchItem()}, messages)
	}()

	ingested := 0
	processed := new(imap.SeqSet)
	for msg := range messages {
		if msg == nil {
			continue
		}

		subject := strings.ToLower(msg.Envelope.Subject)
		if !strings.Contains(subject, applicationSubjectHint) {
			continue
		}

		app, err := s.parseApplication(msg, section)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Int64("seq", int64(msg.SeqNum)).
				Str("subject", msg.Envelope.Subject).
				Msg("Unparseable application notification, marking seen")
			processed.AddNum(msg.SeqNum)
			continue
		}

		if err := s.apps.StoreApplication(ctx, app); err != nil {
			s.logger.Warn().Err(err).Str("message_id", app.MessageID).Msg("Failed to store inbound application")
			continue
		}
		processed.AddNum(msg.SeqNum)
		ingested++
	}

	if err := <-done; err != nil {
		return ingested, fmt.Errorf("failed to fetch messages: %w", err)
	}

	if !processed.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		flags := []interface{}{imap.SeenFlag}
		if err := c.Store(processed, item, flags, nil); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to mark messages seen")
		}
	}

	if ingested > 0 {
		s.logger.Info().Int("ingested", ingested).Msg("Inbound applications ingested from mailbox")
	}
	return ingested, nil
}

func (s *Service) connect() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var c *client.Client
	var err error
	if s.config.UseTLS {
		c, err = client.DialTLS(addr, nil)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(s.config.Username, s.config.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}
	return c, nil
}

// parseApplication extracts the application fields from a notification email
func (s *Service) parseApplication(msg *imap.Message, section *imap.BodySectionName) (*models.Application, error) {
	body, err := parseMessageBody(msg, section)
	if err != nil {
		return nil, err
	}

	jobID := firstMatch(jobIDPattern, body)
	candidateID := firstMatch(candidatePattern, body)
	if jobID == "" || candidateID == "" {
		return nil, fmt.Errorf("notification missing job or candidate identifier")
	}

	messageID := strings.Trim(msg.Envelope.MessageId, "<>")
	if messageID == "" {
		messageID = fmt.Sprintf("mail-%s-%s-%d", candidateID, jobID, msg.Envelope.Date.Unix())
	}

	name := firstMatch(namePattern, body)
	first, last := splitName(name)

	email := firstMatch(emailPattern, body)
	if email == "" && len(msg.Envelope.From) > 0 {
		email = msg.Envelope.From[0].Address()
	}

	return &models.Application{
		MessageID:   messageID,
		CandidateID: candidateID,
		JobID:       jobID,
		Candidate: models.Candidate{
			CandidateID: candidateID,
			FirstName:   first,
			LastName:    last,
			Email:       email,
		},
		Source:     models.SourceInboundMail,
		AppliedAt:  msg.Envelope.Date,
		ReceivedAt: time.Now(),
	}, nil
}

// parseMessageBody extracts the text body from an IMAP message
func parseMessageBody(msg *imap.Message, section *imap.BodySectionName) (string, error) {
	r := msg.GetBody(section)
	if r == nil {
		return "", fmt.Errorf("no body section")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create mail reader: %w", err)
	}

	var body string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read next part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			if strings.HasPrefix(contentType, "text/plain") {
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return "", fmt.Errorf("failed to read body: %w", err)
				}
				body = string(b)
			}
		}
	}

	return strings.TrimSpace(body), nil
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
