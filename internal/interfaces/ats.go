package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/vettra/internal/models"
)

// ATSClient is the authenticated surface against the applicant tracking
// system. All calls hold a session token and retry transparently on expiry.
type ATSClient interface {
	// ListTearsheetJobs returns every job pinned to the tearsheet,
	// following pagination to exhaustion.
	ListTearsheetJobs(ctx context.Context, tearsheetID int) ([]*models.Job, error)

	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// FindRecentWebResponses returns web-response events created since the
	// given time, newest first.
	FindRecentWebResponses(ctx context.Context, since time.Time, limit int) ([]*models.Application, error)

	// FindRecentSubmissions returns agent-created submission events since
	// the given time.
	FindRecentSubmissions(ctx context.Context, since time.Time, limit int) ([]*models.Application, error)

	GetCandidate(ctx context.Context, candidateID string) (*models.Candidate, error)

	ListCandidateFiles(ctx context.Context, candidateID string) ([]*models.Attachment, error)

	// DownloadFile fetches the raw bytes of a candidate attachment
	DownloadFile(ctx context.Context, candidateID, attachmentID string) ([]byte, string, error)

	// CreateCandidateNote posts a note onto the candidate record and
	// returns the created note's ID.
	CreateCandidateNote(ctx context.Context, candidateID, noteText string) (string, error)

	// Ping verifies the authenticated session is live
	Ping(ctx context.Context) error
}
