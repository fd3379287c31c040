package interfaces

import (
	"context"

	"github.com/ternarybob/vettra/internal/models"
)

// YearsEntry is the model's per-skill experience estimate
type YearsEntry struct {
	RequiredYears    float64 `json:"required_years"`
	EstimatedYears   float64 `json:"estimated_years"`
	MeetsRequirement bool    `json:"meets_requirement"`
}

// ScoreResult is one model verdict for a candidate against one job
type ScoreResult struct {
	Score           int
	Summary         string
	SkillsMatch     string
	ExperienceMatch string
	Gaps            []string
	KeyRequirements []string
	// YearsAnalysis maps each skill with a stated experience requirement
	// to the model's estimate of the candidate's years in it.
	YearsAnalysis map[string]YearsEntry
}

// Scorer evaluates one resume against one job's requirements
type Scorer interface {
	// ScoreCandidate returns a 0-100 fit score with structured reasoning.
	// The job carries the location and work arrangement the model weighs.
	ScoreCandidate(ctx context.Context, resumeText string, job *models.Job, requirements string) (*ScoreResult, error)

	// ExtractRequirements condenses a raw job description into a
	// requirements summary for scoring.
	ExtractRequirements(ctx context.Context, jobTitle, descriptionHTML string) (string, error)

	ModelName() string
}

// Embedder generates vector embeddings for similarity pre-filtering
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}
