package models

import "time"

// ApplicationSource identifies which detection strategy produced an application
type ApplicationSource string

const (
	SourceWebResponse ApplicationSource = "web_response"
	SourceSubmission  ApplicationSource = "submission"
	SourceInboundMail ApplicationSource = "inbound_mail"
)

// Candidate is the ATS person record attached to an application
type Candidate struct {
	CandidateID string `json:"candidate_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
}

// FullName returns "First Last" with whatever parts are present
func (c *Candidate) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Application is a single candidate-applied-to-job event. MessageID is the
// stable external identity used for inbound idempotency: re-delivery of the
// same event keys into the same record.
type Application struct {
	MessageID   string            `json:"message_id" badgerhold:"unique"`
	CandidateID string            `json:"candidate_id" badgerhold:"index"`
	JobID       string            `json:"job_id" badgerhold:"index"`
	Candidate   Candidate         `json:"candidate"`
	Source      ApplicationSource `json:"source"`
	AppliedAt   time.Time         `json:"applied_at"`
	ReceivedAt  time.Time         `json:"received_at"`
	// Processed marks that a vetting run consumed this application
	Processed   bool      `json:"processed" badgerhold:"index"`
	ProcessedAt time.Time `json:"processed_at,omitempty"`
}

// Attachment is a file attached to a candidate record in the ATS
type Attachment struct {
	AttachmentID string    `json:"attachment_id"`
	FileName     string    `json:"file_name"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploaded_at"`
}
