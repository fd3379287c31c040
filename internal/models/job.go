package models

import "time"

// WorkType is the job's site arrangement as reported by the ATS
type WorkType string

const (
	WorkTypeOnSite WorkType = "on_site"
	WorkTypeHybrid WorkType = "hybrid"
	WorkTypeRemote WorkType = "remote"
)

// Location is a job's normalized address
type Location struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	// Address1 is the free-text line used to backfill missing fields
	Address1 string `json:"address1,omitempty"`
}

// Owner is the recruiter responsible for a job
type Owner struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Job is a position observed via ATS pulls. Jobs are never mutated locally.
type Job struct {
	JobID           string    `json:"job_id"`
	Title           string    `json:"title"`
	DescriptionHTML string    `json:"description_html"`
	Location        Location  `json:"location"`
	WorkType        WorkType  `json:"work_type"`
	Owner           Owner     `json:"owner"`
	// AssignedUsers and ResponseUser feed the recruiter tag fallback chain:
	// assignedUsers -> responseUser -> owner
	AssignedUsers []Owner `json:"assigned_users,omitempty"`
	ResponseUser  *Owner  `json:"response_user,omitempty"`
	PostedAt      time.Time `json:"posted_at"`
	Status        string    `json:"status"`
	TearsheetID   int       `json:"tearsheet_id"`
}

// IsOpen reports whether the ATS considers the job accepting applicants
func (j *Job) IsOpen() bool {
	switch j.Status {
	case "Accepting Candidates", "Open", "open":
		return true
	}
	return false
}

// RecruiterTag returns the display name for the feed's assignedrecruiter
// field using the fallback chain assignedUsers -> responseUser -> owner.
func (j *Job) RecruiterTag() string {
	if len(j.AssignedUsers) > 0 && j.AssignedUsers[0].Name != "" {
		return j.AssignedUsers[0].Name
	}
	if j.ResponseUser != nil && j.ResponseUser.Name != "" {
		return j.ResponseUser.Name
	}
	return j.Owner.Name
}

// JobReference maps a job to its stable public reference token.
// Once assigned, the token is never rewritten by any automated path;
// only an operator-initiated refresh may rotate it.
type JobReference struct {
	JobID          string    `json:"job_id" badgerhold:"unique"`
	ReferenceToken string    `json:"reference_token"`
	LastUpdated    time.Time `json:"last_updated"`
	// LastSeen is the most recent publish cycle that observed the job in a
	// monitored tearsheet; drives the 30-day GC policy.
	LastSeen time.Time `json:"last_seen"`
}

// JobRequirements holds the scoring requirements for a job.
// Active requirements = CustomOverride if non-empty, else AIExtracted.
type JobRequirements struct {
	JobID          string    `json:"job_id" badgerhold:"unique"`
	AIExtracted    string    `json:"ai_extracted"`
	CustomOverride string    `json:"custom_override"`
	Threshold      int       `json:"threshold"` // 0 means "use the global default"
	LastExtraction time.Time `json:"last_extraction"`
}

// Active returns the requirements text to score against
func (r *JobRequirements) Active() string {
	if r.CustomOverride != "" {
		return r.CustomOverride
	}
	return r.AIExtracted
}
