package vetting

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/ternarybob/vettra/internal/models"
)

// notRecommendedLimit caps how many rejected matches the note details
const notRecommendedLimit = 5

// composeNote renders the candidate note written back to the ATS. The
// heading states the overall outcome, the applied job is always present and
// labeled, other qualified jobs follow, and the strongest rejections close
// the note with their gaps.
func composeNote(candidate *models.Candidate, matches []*models.JobMatch) string {
	qualified, rest := splitByVerdict(matches)
	applied := findApplied(matches)

	var b strings.Builder
	if len(qualified) > 0 {
		b.WriteString(fmt.Sprintf("QUALIFIED CANDIDATE: %s\n", candidate.FullName()))
	} else {
		b.WriteString(fmt.Sprintf("NOT RECOMMENDED: %s\n", candidate.FullName()))
	}
	b.WriteString(strings.Repeat("-", 60))
	b.WriteString("\n\n")

	if applied != nil {
		if applied.Verdict == models.VerdictQualified {
			b.WriteString("APPLIED POSITION (QUALIFIED)\n")
		} else {
			b.WriteString("APPLIED POSITION:\n")
		}
		writeMatchDetail(&b, applied)
		b.WriteString("\n")
	}

	others := excludeMatch(qualified, applied)
	if len(others) > 0 {
		b.WriteString("OTHER QUALIFIED POSITIONS\n")
		for _, m := range others {
			writeMatchDetail(&b, m)
		}
		b.WriteString("\n")
	}

	rejected := excludeMatch(rest, applied)
	if len(rejected) > 0 {
		if len(rejected) > notRecommendedLimit {
			rejected = rejected[:notRecommendedLimit]
		}
		b.WriteString("NOT RECOMMENDED\n")
		for _, m := range rejected {
			writeMatchDetail(&b, m)
			for _, gap := range m.Gaps {
				b.WriteString(fmt.Sprintf("      - %s\n", gap))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("Jobs evaluated: %d. Scores are 0-100 against each job's requirements.\n", len(matches)))
	return b.String()
}

func writeMatchDetail(b *strings.Builder, m *models.JobMatch) {
	escalated := ""
	if m.Escalated {
		escalated = " (escalated review)"
	}
	b.WriteString(fmt.Sprintf("  [%d] %s (job %s)%s\n", m.Score, m.JobTitle, m.JobID, escalated))
	if m.Reasoning != "" {
		b.WriteString(fmt.Sprintf("      %s\n", m.Reasoning))
	}
	if m.Error != "" {
		b.WriteString(fmt.Sprintf("      Scoring failed: %s\n", m.Error))
	}
}

// findApplied returns the match for the job the candidate applied to
func findApplied(matches []*models.JobMatch) *models.JobMatch {
	for _, m := range matches {
		if m.AppliedJob {
			return m
		}
	}
	return nil
}

func excludeMatch(matches []*models.JobMatch, skip *models.JobMatch) []*models.JobMatch {
	if skip == nil {
		return matches
	}
	out := make([]*models.JobMatch, 0, len(matches))
	for _, m := range matches {
		if m != skip {
			out = append(out, m)
		}
	}
	return out
}

// recruiterEmail is one outbound qualified-candidate email
type recruiterEmail struct {
	To      []string
	Cc      []string
	Subject string
	Text    string
	HTML    string
}

// composeQualifiedEmail builds the single consolidated email sent when a
// candidate qualifies for at least one job. The primary recruiter goes on
// To; jobs they own read "YOUR JOB" and everyone else's are attributed by
// name so one message serves all owners.
func composeQualifiedEmail(candidate *models.Candidate, qualified []*models.JobMatch) *recruiterEmail {
	// The applied job's recruiter (or the top match's) owns the thread and
	// goes on To; other owning recruiters ride along on Cc.
	primary := ""
	for _, m := range qualified {
		if m.AppliedJob && m.RecruiterMail != "" {
			primary = strings.ToLower(m.RecruiterMail)
			break
		}
	}
	if primary == "" && len(qualified) > 0 {
		primary = strings.ToLower(qualified[0].RecruiterMail)
	}

	ccSet := make(map[string]bool)
	for _, m := range qualified {
		addr := strings.ToLower(m.RecruiterMail)
		if addr != "" && addr != primary {
			ccSet[addr] = true
		}
	}

	var to, cc []string
	if primary != "" {
		to = append(to, primary)
	}
	for addr := range ccSet {
		cc = append(cc, addr)
	}
	sort.Strings(cc)

	subject := fmt.Sprintf("Qualified candidate: %s (%d matching job", candidate.FullName(), len(qualified))
	if len(qualified) == 1 {
		subject += ")"
	} else {
		subject += "s)"
	}

	var text strings.Builder
	text.WriteString(fmt.Sprintf("Candidate %s <%s> qualified for the following jobs:\n\n", candidate.FullName(), candidate.Email))
	for _, m := range qualified {
		applied := ""
		if m.AppliedJob {
			applied = " [APPLIED TO THIS JOB]"
		}
		text.WriteString(fmt.Sprintf("%s >> [%d] %s (job %s)%s\n", ownerLabel(m, primary), m.Score, m.JobTitle, m.JobID, applied))
		if m.Reasoning != "" {
			text.WriteString(fmt.Sprintf("    %s\n", m.Reasoning))
		}
		text.WriteString("\n")
	}
	text.WriteString("Full scoring detail is on the candidate's ATS record.\n")

	var htmlB strings.Builder
	htmlB.WriteString(fmt.Sprintf("<p>Candidate <strong>%s</strong> &lt;%s&gt; qualified for the following jobs:</p><ul>",
		html.EscapeString(candidate.FullName()), html.EscapeString(candidate.Email)))
	for _, m := range qualified {
		applied := ""
		if m.AppliedJob {
			applied = " <strong>[APPLIED TO THIS JOB]</strong>"
		}
		htmlB.WriteString(fmt.Sprintf("<li>%s &raquo; <strong>[%d] %s</strong> (job %s)%s<br/>%s</li>",
			html.EscapeString(ownerLabel(m, primary)), m.Score, html.EscapeString(m.JobTitle), m.JobID, applied, html.EscapeString(m.Reasoning)))
	}
	htmlB.WriteString("</ul><p>Full scoring detail is on the candidate's ATS record.</p>")

	return &recruiterEmail{
		To:      to,
		Cc:      cc,
		Subject: subject,
		Text:    text.String(),
		HTML:    htmlB.String(),
	}
}

// ownerLabel attributes a job to the To recipient or to its owning
// recruiter by name.
func ownerLabel(m *models.JobMatch, primary string) string {
	if strings.ToLower(m.RecruiterMail) == primary && primary != "" {
		return "YOUR JOB"
	}
	if m.RecruiterName != "" {
		return m.RecruiterName + "'s Job"
	}
	return "UNASSIGNED JOB"
}

func splitByVerdict(matches []*models.JobMatch) (qualified, rest []*models.JobMatch) {
	for _, m := range matches {
		if m.Verdict == models.VerdictQualified {
			qualified = append(qualified, m)
		} else {
			rest = append(rest, m)
		}
	}
	sort.Slice(qualified, func(i, j int) bool { return qualified[i].Score > qualified[j].Score })
	sort.Slice(rest, func(i, j int) bool { return rest[i].Score > rest[j].Score })
	return qualified, rest
}
