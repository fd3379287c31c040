package ats

import (
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/vettra/internal/models"
)

// convertJobOrder maps an upstream job order onto the domain model
func convertJobOrder(j *jobOrderEntity, tearsheetID int) *models.Job {
	job := &models.Job{
		JobID:           strconv.Itoa(j.ID),
		Title:           j.Title,
		DescriptionHTML: j.PublicDescription,
		Location: models.Location{
			City:     j.Address.City,
			State:    j.Address.State,
			Country:  j.Address.Country,
			Address1: j.Address.Address1,
		},
		WorkType:    convertOnSite(j.OnSite),
		Status:      j.Status,
		PostedAt:    time.UnixMilli(j.DateAdded),
		TearsheetID: tearsheetID,
		Owner:       convertOwner(&j.Owner),
	}

	for i := range j.AssignedUsers.Data {
		job.AssignedUsers = append(job.AssignedUsers, convertOwner(&j.AssignedUsers.Data[i]))
	}
	if j.ResponseUser != nil {
		ru := convertOwner(j.ResponseUser)
		job.ResponseUser = &ru
	}
	return job
}

func convertOwner(e *namedEntity) models.Owner {
	name := e.Name
	if name == "" {
		name = strings.TrimSpace(e.FirstName + " " + e.LastName)
	}
	return models.Owner{Name: name, Email: e.Email}
}

// convertOnSite maps the upstream free-text site field to a work type
func convertOnSite(onSite string) models.WorkType {
	switch strings.ToLower(strings.TrimSpace(onSite)) {
	case "remote", "off-site", "offsite":
		return models.WorkTypeRemote
	case "hybrid", "flexible":
		return models.WorkTypeHybrid
	default:
		return models.WorkTypeOnSite
	}
}

// convertSubmission maps a submission event onto an application. The
// MessageID is derived from the upstream event ID so re-observing the same
// event always produces the same identity.
func convertSubmission(s *submissionEntity, source models.ApplicationSource) *models.Application {
	return &models.Application{
		MessageID:   string(source) + "-" + strconv.Itoa(s.ID),
		CandidateID: strconv.Itoa(s.Candidate.ID),
		JobID:       strconv.Itoa(s.JobOrder.ID),
		Candidate:   *convertCandidate(&s.Candidate),
		Source:      source,
		AppliedAt:   time.UnixMilli(s.DateAdded),
		ReceivedAt:  time.Now(),
	}
}

func convertCandidate(c *candidateEntity) *models.Candidate {
	return &models.Candidate{
		CandidateID: strconv.Itoa(c.ID),
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		Phone:       c.Phone,
	}
}
