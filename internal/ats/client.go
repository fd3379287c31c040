package ats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

const pageSize = 200

// Client is the authenticated ATS REST client. Safe for concurrent use.
type Client struct {
	config     *common.ATSConfig
	logger     arbor.ILogger
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *common.RetryPolicy

	sessionMu sync.RWMutex
	session   *session
}

// NewClient creates an ATS client. No network call happens until first use.
func NewClient(config *common.ATSConfig, logger arbor.ILogger) interfaces.ATSClient {
	return &Client{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			Timeout: common.ParseDuration(config.Timeout, 2*time.Minute),
		},
		// 10 req/s sustained with a small burst keeps us inside the
		// upstream per-client quota.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		retry:   common.NewATSRetryPolicy(),
	}
}

// doJSON performs an authenticated request and decodes the JSON response
// into out. A 401 invalidates the session and triggers one re-login.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	raw, _, err := c.doRaw(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &models.DataError{Op: "ats." + path, Err: err}
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, string, error) {
	var respBody []byte
	var contentType string

	_, err := c.retry.ExecuteWithRetry(ctx, c.logger, func() (int, time.Duration, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, 0, err
		}

		sess, err := c.ensureSession(ctx)
		if err != nil {
			return 0, 0, err
		}

		status, ct, data, wait, err := c.execute(ctx, sess, method, path, query, body)
		if status == http.StatusUnauthorized {
			c.logger.Debug().Str("path", path).Msg("Session expired, re-authenticating")
			sess, err = c.refreshSession(ctx, sess)
			if err != nil {
				return http.StatusUnauthorized, 0, err
			}
			status, ct, data, wait, err = c.execute(ctx, sess, method, path, query, body)
		}
		if err != nil {
			return status, 0, err
		}
		if status >= 400 {
			retryAfter := time.Duration(0)
			if status == http.StatusTooManyRequests {
				// Honor the server's Retry-After when present
				retryAfter = wait
				if retryAfter == 0 {
					retryAfter = 2 * time.Second
				}
			}
			return status, retryAfter, fmt.Errorf("ats %s %s returned %d", method, path, status)
		}

		respBody = data
		contentType = ct
		return status, 0, nil
	})
	if err != nil {
		return nil, "", err
	}
	return respBody, contentType, nil
}

func (c *Client) execute(ctx context.Context, sess *session, method, path string, query url.Values, body interface{}) (int, string, []byte, time.Duration, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("BhRestToken", sess.restToken)

	fullURL := strings.TrimSuffix(sess.restURL, "/") + "/" + strings.TrimPrefix(path, "/") + "?" + query.Encode()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, "", nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return 0, "", nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", nil, 0, models.Transient("ats."+path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", nil, 0, models.Transient("ats."+path, err)
	}

	return resp.StatusCode, resp.Header.Get("Content-Type"), data, common.RetryAfter(resp), nil
}

// ListTearsheetJobs pulls every job pinned to the tearsheet, following
// pagination to exhaustion.
func (c *Client) ListTearsheetJobs(ctx context.Context, tearsheetID int) ([]*models.Job, error) {
	var jobs []*models.Job
	start := 0

	for {
		query := url.Values{}
		query.Set("fields", "id,title,publicDescription,address,onSite,status,dateAdded,owner,responseUser,assignedUsers")
		query.Set("start", strconv.Itoa(start))
		query.Set("count", strconv.Itoa(pageSize))

		var page jobOrderPage
		path := fmt.Sprintf("entity/Tearsheet/%d/jobOrders", tearsheetID)
		if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list tearsheet %d jobs: %w", tearsheetID, err)
		}

		for i := range page.Data {
			jobs = append(jobs, convertJobOrder(&page.Data[i], tearsheetID))
		}

		start += len(page.Data)
		if len(page.Data) == 0 || start >= page.Total {
			break
		}
	}

	c.logger.Debug().Int("tearsheet_id", tearsheetID).Int("jobs", len(jobs)).Msg("Tearsheet jobs fetched")
	return jobs, nil
}

// GetJob fetches one job by ID
func (c *Client) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	query := url.Values{}
	query.Set("fields", "id,title,publicDescription,address,onSite,status,dateAdded,owner,responseUser,assignedUsers")

	var resp struct {
		Data jobOrderEntity `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "entity/JobOrder/"+url.PathEscape(jobID), query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return convertJobOrder(&resp.Data, 0), nil
}

// FindRecentWebResponses returns candidate web-response events since the
// given time, newest first.
func (c *Client) FindRecentWebResponses(ctx context.Context, since time.Time, limit int) ([]*models.Application, error) {
	return c.findSubmissions(ctx, "New Lead", since, limit, models.SourceWebResponse)
}

// FindRecentSubmissions returns agent-created submission events since the
// given time.
func (c *Client) FindRecentSubmissions(ctx context.Context, since time.Time, limit int) ([]*models.Application, error) {
	return c.findSubmissions(ctx, "Submitted", since, limit, models.SourceSubmission)
}

func (c *Client) findSubmissions(ctx context.Context, status string, since time.Time, limit int, source models.ApplicationSource) ([]*models.Application, error) {
	if limit <= 0 {
		limit = pageSize
	}

	query := url.Values{}
	query.Set("fields", "id,candidate(id,firstName,lastName,email,phone),jobOrder(id,title),status,dateAdded")
	query.Set("where", fmt.Sprintf("status='%s' AND dateAdded>%d", status, since.UnixMilli()))
	query.Set("orderBy", "-dateAdded")
	query.Set("count", strconv.Itoa(limit))

	var page submissionPage
	if err := c.doJSON(ctx, http.MethodGet, "query/JobSubmission", query, nil, &page); err != nil {
		return nil, fmt.Errorf("failed to query submissions (%s): %w", status, err)
	}

	apps := make([]*models.Application, 0, len(page.Data))
	for i := range page.Data {
		apps = append(apps, convertSubmission(&page.Data[i], source))
	}
	return apps, nil
}

// GetCandidate fetches one candidate record
func (c *Client) GetCandidate(ctx context.Context, candidateID string) (*models.Candidate, error) {
	query := url.Values{}
	query.Set("fields", "id,firstName,lastName,email,phone")

	var resp candidateResponse
	if err := c.doJSON(ctx, http.MethodGet, "entity/Candidate/"+url.PathEscape(candidateID), query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get candidate %s: %w", candidateID, err)
	}
	return convertCandidate(&resp.Data), nil
}

// ListCandidateFiles lists attachments on a candidate record
func (c *Client) ListCandidateFiles(ctx context.Context, candidateID string) ([]*models.Attachment, error) {
	query := url.Values{}
	query.Set("fields", "id,name,contentType,fileSize,dateAdded")

	var page fileAttachmentPage
	path := "entity/Candidate/" + url.PathEscape(candidateID) + "/fileAttachments"
	if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &page); err != nil {
		return nil, fmt.Errorf("failed to list files for candidate %s: %w", candidateID, err)
	}

	files := make([]*models.Attachment, 0, len(page.Data))
	for _, f := range page.Data {
		files = append(files, &models.Attachment{
			AttachmentID: strconv.Itoa(f.ID),
			FileName:     f.Name,
			ContentType:  f.ContentType,
			Size:         f.FileSize,
			UploadedAt:   time.UnixMilli(f.DateAdded),
		})
	}
	return files, nil
}

// DownloadFile fetches the raw bytes of a candidate attachment
func (c *Client) DownloadFile(ctx context.Context, candidateID, attachmentID string) ([]byte, string, error) {
	path := "file/Candidate/" + url.PathEscape(candidateID) + "/" + url.PathEscape(attachmentID) + "/raw"
	data, contentType, err := c.doRaw(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download file %s for candidate %s: %w", attachmentID, candidateID, err)
	}
	if len(data) == 0 {
		return nil, "", &models.DataError{Op: "ats.file", Err: fmt.Errorf("empty attachment body")}
	}
	return data, contentType, nil
}

// CreateCandidateNote posts a note onto the candidate record and returns the
// created note's ID.
func (c *Client) CreateCandidateNote(ctx context.Context, candidateID, noteText string) (string, error) {
	id, err := strconv.Atoi(candidateID)
	if err != nil {
		return "", fmt.Errorf("invalid candidate ID %q: %w", candidateID, err)
	}

	payload := notePayload{
		Comments: noteText,
		Action:   "Vetting Result",
	}
	payload.PersonReference.ID = id

	var resp struct {
		ChangedEntityID int `json:"changedEntityId"`
	}
	if err := c.doJSON(ctx, http.MethodPut, "entity/Note", nil, &payload, &resp); err != nil {
		return "", fmt.Errorf("failed to create note for candidate %s: %w", candidateID, err)
	}

	noteID := ""
	if resp.ChangedEntityID != 0 {
		noteID = strconv.Itoa(resp.ChangedEntityID)
	}
	c.logger.Info().Str("candidate_id", candidateID).Str("note_id", noteID).Msg("Candidate note created")
	return noteID, nil
}

// Ping verifies the authenticated session is live
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		SessionExpires int64 `json:"sessionExpires"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "ping", nil, nil, &resp); err != nil {
		return fmt.Errorf("ats ping: %w", err)
	}
	return nil
}
