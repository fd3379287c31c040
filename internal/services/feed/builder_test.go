package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/vettra/internal/models"
)

func testBuilder() *Builder {
	tm := &TagMap{
		entries: map[string]string{"jane smith": "Jane S."},
		classes: map[string]Classification{
			"engineer": {
				Category:       "Engineering",
				JobType:        "Full-Time",
				JobFunction:    "Engineering",
				JobIndustries:  "Technology",
				SeniorityLevel: "Mid-Senior level",
			},
		},
		defaultClass: Classification{
			Category:       "General",
			JobType:        "Full-Time",
			JobFunction:    "Other",
			JobIndustries:  "Staffing",
			SeniorityLevel: "Associate",
		},
	}
	return NewBuilder("Acme Staffing", "https://jobs.example.com/", "apply@example.com", tm)
}

func testJob(id, title string) *models.Job {
	return &models.Job{
		JobID:           id,
		Title:           title,
		DescriptionHTML: "<p>Build things</p>",
		Location:        models.Location{City: "Austin", State: "TX"},
		WorkType:        models.WorkTypeRemote,
		Owner:           models.Owner{Name: "Jane Smith", Email: "jane@example.com"},
		PostedAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:          "Open",
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := testBuilder()
	jobs := []*models.Job{testJob("200", "Engineer"), testJob("100", "Analyst")}
	tokens := map[string]string{"100": "AAAAAAAAAA", "200": "BBBBBBBBBB"}
	buildTime := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	out1, count1, err := b.Build(jobs, tokens, buildTime)
	require.NoError(t, err)
	assert.Equal(t, 2, count1)

	// Reversed input order yields byte-identical output
	reversed := []*models.Job{jobs[1], jobs[0]}
	out2, count2, err := b.Build(reversed, tokens, buildTime)
	require.NoError(t, err)
	assert.Equal(t, count1, count2)
	assert.Equal(t, string(out1), string(out2))

	// Jobs appear sorted by ID
	doc := string(out1)
	assert.Less(t, strings.Index(doc, "AAAAAAAAAA"), strings.Index(doc, "BBBBBBBBBB"))
}

func TestBuild_SkipsJobsWithoutToken(t *testing.T) {
	b := testBuilder()
	jobs := []*models.Job{testJob("100", "Analyst"), testJob("200", "Engineer")}
	tokens := map[string]string{"100": "AAAAAAAAAA"}

	out, count, err := b.Build(jobs, tokens, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NotContains(t, string(out), "Engineer")
}

func TestBuild_FieldsAndMarkup(t *testing.T) {
	b := testBuilder()
	job := testJob("100", "Senior Engineer")
	tokens := map[string]string{"100": "REF123XY99"}
	buildTime := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	out, _, err := b.Build([]*models.Job{job}, tokens, buildTime)
	require.NoError(t, err)

	doc := string(out)
	assert.True(t, strings.HasPrefix(doc, "<?xml"))
	assert.Contains(t, doc, "<![CDATA[")
	assert.Contains(t, doc, "<p>Build things</p>")
	assert.Contains(t, doc, "https://jobs.example.com/apply/REF123XY99")
	assert.Contains(t, doc, "<referencenumber>REF123XY99</referencenumber>")
	assert.Contains(t, doc, "<bhatsid>100</bhatsid>")
	assert.Contains(t, doc, "<date>2025-06-01</date>")
	assert.Contains(t, doc, "<apply_email>apply@example.com</apply_email>")
	assert.Contains(t, doc, "<remotetype>Remote</remotetype>")
	assert.Contains(t, doc, "<company>Acme Staffing</company>")
	// Owner name resolves through the tag map
	assert.Contains(t, doc, "Jane S.")
	assert.NotContains(t, doc, "Jane Smith")
}

func TestBuild_ElementOrder(t *testing.T) {
	b := testBuilder()
	job := testJob("100", "Senior Engineer")
	tokens := map[string]string{"100": "REF123XY99"}

	out, _, err := b.Build([]*models.Job{job}, tokens, time.Now())
	require.NoError(t, err)
	doc := string(out)

	// Header elements precede the job entries
	assert.Less(t, strings.Index(doc, "<title>"), strings.Index(doc, "<link>"))
	assert.Less(t, strings.Index(doc, "<link>"), strings.Index(doc, "<job>"))

	// Job children appear in the published order
	order := []string{
		"<title>", "<date>", "<referencenumber>", "<bhatsid>", "<company>",
		"<url>", "<description>", "<jobtype>", "<city>", "<state>",
		"<country>", "<category>", "<apply_email>", "<remotetype>",
		"<assignedrecruiter>", "<jobfunction>", "<jobindustries>", "<senioritylevel>",
	}
	jobStart := strings.Index(doc, "<job>")
	require.Greater(t, jobStart, 0)
	body := doc[jobStart:]
	prev := -1
	for _, el := range order {
		idx := strings.Index(body, el)
		require.Greaterf(t, idx, prev, "element %s out of order", el)
		prev = idx
	}
}

func TestBuild_Classification(t *testing.T) {
	b := testBuilder()
	tokens := map[string]string{"100": "AAAAAAAAAA", "200": "BBBBBBBBBB"}

	out, _, err := b.Build([]*models.Job{testJob("100", "Staff Engineer"), testJob("200", "Recruiter")}, tokens, time.Now())
	require.NoError(t, err)
	doc := string(out)

	// Matching fragment picks the configured entry, otherwise the default
	assert.Contains(t, doc, "<category>Engineering</category>")
	assert.Contains(t, doc, "<category>General</category>")
	assert.Contains(t, doc, "<![CDATA[Mid-Senior level]]>")
	assert.Contains(t, doc, "<![CDATA[Staffing]]>")
}

func TestBuild_EmptySet(t *testing.T) {
	b := testBuilder()
	out, count, err := b.Build(nil, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Contains(t, string(out), "<source>")
}

func TestApplyURL_EscapesToken(t *testing.T) {
	b := testBuilder()
	assert.Equal(t, "https://jobs.example.com/apply/ABC123", b.applyURL("ABC123"))
}

func TestRemoteType(t *testing.T) {
	assert.Equal(t, "Remote", remoteType(models.WorkTypeRemote))
	assert.Equal(t, "Hybrid", remoteType(models.WorkTypeHybrid))
	assert.Equal(t, "On-Site", remoteType(models.WorkTypeOnSite))
}

func TestNormalizeLocation(t *testing.T) {
	tests := []struct {
		name string
		in   models.Location
		want models.Location
	}{
		{
			name: "structured fields intact",
			in:   models.Location{City: "Austin", State: "TX", Country: "United States"},
			want: models.Location{City: "Austin", State: "TX", Country: "United States"},
		},
		{
			name: "backfill city and state from address line",
			in:   models.Location{Address1: "500 Main St, Denver, CO"},
			want: models.Location{City: "Denver", State: "CO", Country: "United States", Address1: "500 Main St, Denver, CO"},
		},
		{
			name: "single segment becomes city",
			in:   models.Location{Address1: "Chicago"},
			want: models.Location{City: "Chicago", Country: "United States", Address1: "Chicago"},
		},
		{
			name: "default country",
			in:   models.Location{City: "Boston", State: "MA"},
			want: models.Location{City: "Boston", State: "MA", Country: "United States"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeLocation(tt.in))
		})
	}
}

func TestTagMap_Resolve(t *testing.T) {
	tm := &TagMap{entries: map[string]string{"jane smith": "Jane S."}}

	assert.Equal(t, "Jane S.", tm.Resolve("Jane Smith"))
	assert.Equal(t, "Jane S.", tm.Resolve("  JANE SMITH  "))
	// Unmapped names pass through unchanged
	assert.Equal(t, "Bob Jones", tm.Resolve("Bob Jones"))
}

func TestTagMap_Classify(t *testing.T) {
	tm := &TagMap{
		classes: map[string]Classification{
			"engineer":          {Category: "Engineering"},
			"software engineer": {Category: "Software"},
		},
		defaultClass: Classification{Category: "General"},
	}

	// Longest matching fragment wins
	assert.Equal(t, "Software", tm.Classify("Senior Software Engineer").Category)
	assert.Equal(t, "Engineering", tm.Classify("Network Engineer").Category)
	assert.Equal(t, "General", tm.Classify("Account Manager").Category)
}

func TestLoadTagMap_MissingFile(t *testing.T) {
	tm, err := LoadTagMap("/nonexistent/tags.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Anyone", tm.Resolve("Anyone"))
	assert.Equal(t, Classification{}, tm.Classify("Engineer"))
}
