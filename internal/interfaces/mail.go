package interfaces

import "context"

// OutboundMail is one message handed to the mail sender
type OutboundMail struct {
	To       []string
	Cc       []string
	Bcc      []string
	Subject  string
	BodyText string
	BodyHTML string
}

// MailSender delivers outbound mail. Implementations retry transient SMTP
// failures internally.
type MailSender interface {
	Send(ctx context.Context, mail *OutboundMail) error
}

// FeedPublisher uploads a built feed document to the distribution point
type FeedPublisher interface {
	Publish(ctx context.Context, filename string, content []byte) error
}
