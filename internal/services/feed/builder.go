package feed

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/vettra/internal/models"
)

// cdata wraps text that must survive markup inside the feed
type cdata struct {
	Text string `xml:",cdata"`
}

// jobXML is one feed entry. Field order is the published element order and
// must not change; downstream consumers parse positionally.
type jobXML struct {
	Title             cdata  `xml:"title"`
	Date              string `xml:"date"`
	ReferenceNumber   string `xml:"referencenumber"`
	BHAtsID           string `xml:"bhatsid"`
	Company           string `xml:"company"`
	URL               string `xml:"url"`
	Description       cdata  `xml:"description"`
	JobType           string `xml:"jobtype"`
	City              string `xml:"city"`
	State             string `xml:"state"`
	Country           string `xml:"country"`
	Category          string `xml:"category"`
	ApplyEmail        string `xml:"apply_email"`
	RemoteType        string `xml:"remotetype"`
	AssignedRecruiter cdata  `xml:"assignedrecruiter"`
	JobFunction       cdata  `xml:"jobfunction"`
	JobIndustries     cdata  `xml:"jobindustries"`
	SeniorityLevel    cdata  `xml:"senioritylevel"`
}

type sourceXML struct {
	XMLName xml.Name `xml:"source"`
	Title   cdata    `xml:"title"`
	Link    string   `xml:"link"`
	Jobs    []jobXML `xml:"job"`
}

// Builder renders the distribution feed document. The output is byte-stable
// for a given input set: jobs are sorted by ID and timestamps come from the
// caller, so two builds of the same snapshot compare equal.
type Builder struct {
	company      string
	applyBaseURL string
	applyEmail   string
	tagMap       *TagMap
}

// NewBuilder creates a feed builder
func NewBuilder(company, applyBaseURL, applyEmail string, tagMap *TagMap) *Builder {
	return &Builder{
		company:      company,
		applyBaseURL: applyBaseURL,
		applyEmail:   applyEmail,
		tagMap:       tagMap,
	}
}

// Build renders the feed for the given jobs and their reference tokens.
// Jobs without a token are skipped; publishing an unreferenced job would
// break apply-link tracking.
func (b *Builder) Build(jobs []*models.Job, tokens map[string]string, buildTime time.Time) ([]byte, int, error) {
	sorted := make([]*models.Job, len(jobs))
	copy(sorted, jobs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].JobID < sorted[j].JobID })

	doc := sourceXML{
		Title: cdata{Text: b.company},
		Link:  b.applyBaseURL,
	}

	for _, job := range sorted {
		token, ok := tokens[job.JobID]
		if !ok || token == "" {
			continue
		}

		loc := normalizeLocation(job.Location)
		class := b.tagMap.Classify(job.Title)

		doc.Jobs = append(doc.Jobs, jobXML{
			Title:             cdata{Text: strings.TrimSpace(job.Title)},
			Date:              job.PostedAt.UTC().Format("2006-01-02"),
			ReferenceNumber:   token,
			BHAtsID:           job.JobID,
			Company:           b.company,
			URL:               b.applyURL(token),
			Description:       cdata{Text: job.DescriptionHTML},
			JobType:           class.JobType,
			City:              loc.City,
			State:             loc.State,
			Country:           loc.Country,
			Category:          class.Category,
			ApplyEmail:        b.applyEmail,
			RemoteType:        remoteType(job.WorkType),
			AssignedRecruiter: cdata{Text: b.tagMap.Resolve(job.RecruiterTag())},
			JobFunction:       cdata{Text: class.JobFunction},
			JobIndustries:     cdata{Text: class.JobIndustries},
			SeniorityLevel:    cdata{Text: class.SeniorityLevel},
		})
	}

	out, err := xml.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal feed: %w", err)
	}

	return append([]byte(xml.Header), out...), len(doc.Jobs), nil
}

// remoteType maps the work arrangement onto the feed's remotetype vocabulary
func remoteType(wt models.WorkType) string {
	switch wt {
	case models.WorkTypeRemote:
		return "Remote"
	case models.WorkTypeHybrid:
		return "Hybrid"
	default:
		return "On-Site"
	}
}

// applyURL builds the tracked apply link for a reference token
func (b *Builder) applyURL(token string) string {
	return strings.TrimSuffix(b.applyBaseURL, "/") + "/apply/" + url.PathEscape(token)
}

// normalizeLocation backfills missing city/state from the free-text address
// line. The upstream ATS frequently leaves the structured fields blank when
// the address was typed as one line.
func normalizeLocation(loc models.Location) models.Location {
	if loc.City != "" && loc.State != "" {
		return loc
	}

	parts := strings.Split(loc.Address1, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch {
	case loc.City == "" && len(parts) >= 2:
		loc.City = parts[len(parts)-2]
		if loc.State == "" {
			loc.State = parts[len(parts)-1]
		}
	case loc.City == "" && len(parts) == 1 && parts[0] != "":
		loc.City = parts[0]
	case loc.State == "" && len(parts) >= 1 && parts[len(parts)-1] != "":
		loc.State = parts[len(parts)-1]
	}

	if loc.Country == "" {
		loc.Country = "United States"
	}
	return loc
}
