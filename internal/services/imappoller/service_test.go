package imappoller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
)

const sampleNotification = `A new application has arrived.

Job ID: 4521
Candidate ID: C-889
Applicant: Ada King Lovelace
Email: ada@example.com

Please review in the portal.`

func TestFieldPatterns(t *testing.T) {
	assert.Equal(t, "4521", firstMatch(jobIDPattern, sampleNotification))
	assert.Equal(t, "C-889", firstMatch(candidatePattern, sampleNotification))
	assert.Equal(t, "Ada King Lovelace", firstMatch(namePattern, sampleNotification))
	assert.Equal(t, "ada@example.com", firstMatch(emailPattern, sampleNotification))
}

func TestFieldPatterns_Variants(t *testing.T) {
	assert.Equal(t, "77", firstMatch(jobIDPattern, "JOB # : 77"))
	assert.Equal(t, "12", firstMatch(jobIDPattern, "job number = 12"))
	assert.Equal(t, "55", firstMatch(candidatePattern, "Candidate: 55"))
	assert.Equal(t, "Jo", firstMatch(namePattern, "name: Jo"))
}

func TestFieldPatterns_AnchoredToLineStart(t *testing.T) {
	// Mid-line mentions are not field labels
	assert.Equal(t, "", firstMatch(jobIDPattern, "regarding the job id: 99 discussion"))
	assert.Equal(t, "", firstMatch(emailPattern, "send email: nobody@example.com later"))
}

func TestFirstMatch_NoMatch(t *testing.T) {
	assert.Equal(t, "", firstMatch(jobIDPattern, "nothing relevant here"))
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in    string
		first string
		last  string
	}{
		{"", "", ""},
		{"Ada", "Ada", ""},
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Ada King Lovelace", "Ada", "King Lovelace"},
		{"  Ada   Lovelace  ", "Ada", "Lovelace"},
	}

	for _, tt := range tests {
		first, last := splitName(tt.in)
		assert.Equal(t, tt.first, first)
		assert.Equal(t, tt.last, last)
	}
}

func TestEnabled(t *testing.T) {
	full := &common.IMAPConfig{Host: "imap.example.com", Username: "apps", Password: "secret"}
	assert.True(t, NewService(full, nil, arbor.NewLogger()).Enabled())

	assert.False(t, NewService(&common.IMAPConfig{}, nil, arbor.NewLogger()).Enabled())
	assert.False(t, NewService(&common.IMAPConfig{Host: "imap.example.com"}, nil, arbor.NewLogger()).Enabled())
}
