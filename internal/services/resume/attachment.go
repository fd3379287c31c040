package resume

import (
	"path/filepath"
	"strings"

	"github.com/ternarybob/vettra/internal/models"
)

// resumeHints mark filenames that look like an actual resume
var resumeHints = []string{"resume", "cv", "curriculum"}

// noiseHints mark filenames that are almost never the resume
var noiseHints = []string{"cover", "letter", "reference", "cert", "transcript", "portfolio", "offer"}

// extensionScores are formats the extractor handles well. PDF extracts more
// reliably than DOCX and outranks it.
var extensionScores = map[string]int{
	".pdf":  2,
	".docx": 1,
}

// scoreAttachment ranks how likely an attachment is the candidate's resume.
// Name hints dominate; format preference breaks ties.
func scoreAttachment(a *models.Attachment) int {
	name := strings.ToLower(a.FileName)
	score := 0

	for _, hint := range resumeHints {
		if strings.Contains(name, hint) {
			score += 3
			break
		}
	}
	for _, hint := range noiseHints {
		if strings.Contains(name, hint) {
			score -= 3
			break
		}
	}
	return score + extensionScores[filepath.Ext(name)]
}

// selectBest picks the most resume-like attachment. Score ties go to the
// larger file, then to the most recent upload. Returns nil when the list is
// empty.
func selectBest(files []*models.Attachment) *models.Attachment {
	var best *models.Attachment
	bestScore := 0

	for _, f := range files {
		score := scoreAttachment(f)
		switch {
		case best == nil || score > bestScore:
			best = f
			bestScore = score
		case score == bestScore && f.Size > best.Size:
			best = f
		case score == bestScore && f.Size == best.Size && f.UploadedAt.After(best.UploadedAt):
			best = f
		}
	}
	return best
}
