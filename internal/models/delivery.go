package models

import "time"

// Delivery channels recorded in the dedup ledger. A channel plus a subject
// key identifies one logical outbound action.
const (
	ChannelNote                  = "note"
	ChannelEmailQualified        = "email_qualified"
	ChannelEmailXMLUpload        = "email_xml_upload"
	ChannelEmailZeroJobAlert     = "email_zero_job_alert"
	ChannelEmailReferenceRefresh = "email_reference_refresh"
)

// DeliveryRecord is one entry in the outbound dedup ledger. Writes go through
// the ledger before the side effect so a crash errs toward suppression rather
// than duplication.
type DeliveryRecord struct {
	ID         uint64    `json:"id" badgerhold:"key"`
	DeliveryID string    `json:"delivery_id"`
	Channel    string    `json:"channel" badgerhold:"index"`
	SubjectKey string    `json:"subject_key" badgerhold:"index"`
	Recipient  string    `json:"recipient,omitempty"`
	Succeeded  bool      `json:"succeeded"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SchedulerLock is a TTL lease guarding a named cycle. The holder renews the
// lease while working; any instance may claim an expired lease.
type SchedulerLock struct {
	Name      string    `json:"name" badgerhold:"unique"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Expired reports whether the lease is free for the taking at t
func (l *SchedulerLock) Expired(t time.Time) bool {
	return !t.Before(l.ExpiresAt)
}

// PublishRecord captures the outcome of one feed publish cycle
type PublishRecord struct {
	ID          uint64    `json:"id" badgerhold:"key"`
	RunID       string    `json:"run_id"`
	JobCount    int       `json:"job_count"`
	Published   bool      `json:"published"`
	Skipped     bool      `json:"skipped"`
	SkipReason  string    `json:"skip_reason,omitempty"`
	FeedBytes   int       `json:"feed_bytes"`
	Duration    string    `json:"duration"`
	CompletedAt time.Time `json:"completed_at"`
}
