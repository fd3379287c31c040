// -----------------------------------------------------------------------
// Mailer Service - SMTP email sending with TLS and STARTTLS support
// -----------------------------------------------------------------------

package mailer

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

// Service sends outbound mail over SMTP. Every send carries the configured
// admin BCC so operators keep a copy of everything the system emits.
type Service struct {
	config *common.MailConfig
	logger arbor.ILogger
	retry  *common.RetryPolicy
}

var _ interfaces.MailSender = (*Service)(nil)

// NewService creates a new mailer service
func NewService(config *common.MailConfig, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		logger: logger,
		retry:  common.NewRetryPolicy(),
	}
}

// Send delivers the mail, retrying transient SMTP failures
func (s *Service) Send(ctx context.Context, mail *interfaces.OutboundMail) error {
	if s.config.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if s.config.From == "" {
		return fmt.Errorf("from email not configured")
	}
	if len(mail.To) == 0 {
		return fmt.Errorf("no recipients")
	}

	bcc := mail.Bcc
	if s.config.AdminBCC != "" && !contains(bcc, s.config.AdminBCC) {
		bcc = append(bcc, s.config.AdminBCC)
	}

	msg := s.buildMessage(mail)
	recipients := collectRecipients(mail.To, mail.Cc, bcc)

	_, err := s.retry.ExecuteWithRetry(ctx, s.logger, func() (int, time.Duration, error) {
		if err := s.deliver(recipients, msg); err != nil {
			return 0, 0, models.Transient("mailer.send", err)
		}
		return 0, 0, nil
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("subject", mail.Subject).
			Int("recipients", len(recipients)).
			Msg("Failed to send email")
		return fmt.Errorf("failed to send %q: %w", mail.Subject, err)
	}

	s.logger.Info().
		Str("subject", mail.Subject).
		Int("recipients", len(recipients)).
		Msg("Email sent")
	return nil
}

// buildMessage renders the RFC 5322 message. HTML bodies go out as
// multipart/alternative with base64 parts so long lines stay legal.
func (s *Service) buildMessage(mail *interfaces.OutboundMail) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(mail.To, ", ")))
	if len(mail.Cc) > 0 {
		msg.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(mail.Cc, ", ")))
	}
	if s.config.ReplyTo != "" {
		msg.WriteString(fmt.Sprintf("Reply-To: %s\r\n", s.config.ReplyTo))
	}
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mail.Subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))

	if mail.BodyHTML != "" {
		boundary := generateBoundary()
		msg.WriteString("MIME-Version: 1.0\r\n")
		msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
		msg.WriteString("\r\n")

		if mail.BodyText != "" {
			msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
			msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
			msg.WriteString("Content-Transfer-Encoding: base64\r\n")
			msg.WriteString("\r\n")
			msg.WriteString(encodeBase64WithLineBreaks(mail.BodyText))
			msg.WriteString("\r\n")
		}

		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(encodeBase64WithLineBreaks(mail.BodyHTML))
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	} else {
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(mail.BodyText)
	}

	return msg.String()
}

func (s *Service) deliver(recipients []string, msg string) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)

	if s.config.UseTLS {
		return s.sendWithTLS(addr, auth, recipients, msg)
	}
	return smtp.SendMail(addr, auth, s.config.From, recipients, []byte(msg))
}

// sendWithTLS connects over implicit TLS, falling back to STARTTLS
func (s *Service) sendWithTLS(addr string, auth smtp.Auth, recipients []string, msg string) error {
	host := strings.Split(addr, ":")[0]

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return s.sendWithSTARTTLS(addr, auth, recipients, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return s.transact(client, auth, recipients, msg)
}

// sendWithSTARTTLS connects plain and upgrades
func (s *Service) sendWithSTARTTLS(addr string, auth smtp.Auth, recipients []string, msg string) error {
	host := strings.Split(addr, ":")[0]

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return s.transact(client, auth, recipients, msg)
}

func (s *Service) transact(client *smtp.Client, auth smtp.Auth, recipients []string, msg string) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// collectRecipients flattens To/Cc/Bcc into the envelope list, dropping
// duplicates and empties.
func collectRecipients(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, addr := range list {
			addr = strings.TrimSpace(addr)
			if addr == "" || seen[strings.ToLower(addr)] {
				continue
			}
			seen[strings.ToLower(addr)] = true
			out = append(out, addr)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// generateBoundary creates a unique MIME boundary string
func generateBoundary() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "vettra_boundary_fallback"
	}
	return fmt.Sprintf("vettra_%x", b)
}

// encodeBase64WithLineBreaks encodes content as base64 with 76-char lines
func encodeBase64WithLineBreaks(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	var result strings.Builder
	for len(encoded) > 76 {
		result.WriteString(encoded[:76])
		result.WriteString("\r\n")
		encoded = encoded[76:]
	}
	result.WriteString(encoded)
	return result.String()
}
