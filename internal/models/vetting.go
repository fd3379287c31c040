package models

import "time"

// RunStatus is the lifecycle state of a vetting run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	// RunStatusDeferred means the resume could not be fetched yet; the run
	// will be retried on a later cycle up to the attempt limit.
	RunStatusDeferred RunStatus = "deferred"
)

// Verdict is the outcome recorded for a candidate against one job
type Verdict string

const (
	VerdictQualified      Verdict = "qualified"
	VerdictNotRecommended Verdict = "not_recommended"
)

// VettingRun tracks one candidate's trip through the vetting pipeline.
// There is at most one run per application.
type VettingRun struct {
	RunID         string    `json:"run_id" badgerhold:"unique"`
	MessageID     string    `json:"message_id" badgerhold:"index"`
	CandidateID   string    `json:"candidate_id" badgerhold:"index"`
	AppliedJobID  string    `json:"applied_job_id"`
	Status        RunStatus `json:"status" badgerhold:"index"`
	Attempts      int       `json:"attempts"`
	ResumeHash    string    `json:"resume_hash,omitempty"`
	FilteredJobs  int       `json:"filtered_jobs"`
	ScoredJobs    int       `json:"scored_jobs"`
	MatchedJobs   int       `json:"matched_jobs"`
	HighestScore  int       `json:"highest_score,omitempty"`
	NoteID        string    `json:"note_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
}

// JobMatch is the scored result of one candidate against one job
type JobMatch struct {
	ID          uint64  `json:"id" badgerhold:"key"`
	RunID       string  `json:"run_id" badgerhold:"index"`
	CandidateID string  `json:"candidate_id" badgerhold:"index"`
	JobID       string  `json:"job_id" badgerhold:"index"`
	JobTitle    string  `json:"job_title"`
	Score       int     `json:"score"`
	Verdict     Verdict `json:"verdict"`
	Reasoning   string  `json:"reasoning"`
	// SkillsMatch and ExperienceMatch carry the model's per-dimension
	// commentary; Gaps lists what the candidate is missing.
	SkillsMatch     string   `json:"skills_match,omitempty"`
	ExperienceMatch string   `json:"experience_match,omitempty"`
	Gaps            []string `json:"gaps,omitempty"`
	// Error is set when scoring this pair permanently failed; the score is
	// zero and the pair still counts against the run.
	Error string `json:"error,omitempty"`
	// AppliedJob marks the job the candidate actually applied to, which
	// bypasses the embedding filter and always appears in the note.
	AppliedJob bool `json:"applied_job"`
	// Escalated is set when the premium model re-scored this match
	Escalated     bool      `json:"escalated"`
	PrimaryScore  int       `json:"primary_score,omitempty"`
	YearsGated    bool      `json:"years_gated"`
	RecruiterName string    `json:"recruiter_name,omitempty"`
	RecruiterMail string    `json:"recruiter_mail,omitempty"`
	ScoredAt      time.Time `json:"scored_at"`
}

// FilterLogEntry records an embedding-filter decision for audit
type FilterLogEntry struct {
	ID         uint64    `json:"id" badgerhold:"key"`
	RunID      string    `json:"run_id" badgerhold:"index"`
	JobID      string    `json:"job_id"`
	Similarity float64   `json:"similarity"`
	Passed     bool      `json:"passed"`
	// MinPass marks jobs admitted by the floor rule rather than the threshold
	MinPass   bool      `json:"min_pass"`
	Bypassed  bool      `json:"bypassed"`
	CreatedAt time.Time `json:"created_at"`
}

// EscalationLogEntry records a premium-model re-score for audit
type EscalationLogEntry struct {
	ID            uint64    `json:"id" badgerhold:"key"`
	RunID         string    `json:"run_id" badgerhold:"index"`
	JobID         string    `json:"job_id"`
	PrimaryScore  int       `json:"primary_score"`
	PremiumScore  int       `json:"premium_score"`
	PrimaryModel  string    `json:"primary_model"`
	PremiumModel  string    `json:"premium_model"`
	// Error records a premium call that failed; the primary verdict stood
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
