package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

const scoringSystemPrompt = `You are a technical recruiter's screening assistant. You evaluate how well a candidate's resume fits a specific job's requirements.

Score from 0 to 100:
- 90-100: exceptional fit, meets or exceeds every requirement
- 80-89: strong fit, meets all core requirements
- 60-79: partial fit, meets most core requirements with gaps
- 40-59: weak fit, significant gaps in core requirements
- 0-39: poor fit

Location rules:
- For on-site and hybrid jobs the candidate must live in the same city or metro area as the job. Score location mismatches as significant gaps.
- For remote jobs the candidate must live in the same country as the job, unless the posting explicitly welcomes international applicants.

Experience counting rules:
- Full-time professional roles count at 100%.
- Internships and part-time roles count at 50%.
- Coursework and academic projects count as zero years.
- Treat a "present" end date as today's date.

Respond with ONLY a JSON object, no other text:
{
  "match_score": <int>,
  "match_summary": "<2-4 sentences naming specific evidence>",
  "skills_match": "<one sentence on skill coverage>",
  "experience_match": "<one sentence on experience depth>",
  "gaps_identified": ["<gap>", ...],
  "key_requirements": ["<requirement>", ...],
  "years_analysis": {"<skill>": {"required_years": <number>, "estimated_years": <number>, "meets_requirement": <bool>}}
}
Include a years_analysis entry for every skill the requirements attach a minimum number of years to; leave it empty when none do.`

const extractionSystemPrompt = `You condense job descriptions into screening requirements. Given a job title and description, produce a concise requirements summary: core skills, minimum years of experience, certifications, and hard constraints (location, clearance, licensure). Plain text, at most 200 words, no preamble.`

// ClaudeScorer implements the Scorer interface against the Anthropic API
type ClaudeScorer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	temp      float32
	timeout   time.Duration
	logger    arbor.ILogger
}

var _ interfaces.Scorer = (*ClaudeScorer)(nil)

// NewClaudeScorer creates a scorer for the given model. The same constructor
// serves the primary and escalation tiers.
func NewClaudeScorer(config *common.LLMConfig, model string, logger arbor.ILogger) (*ClaudeScorer, error) {
	if config.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required (set ANTHROPIC_API_KEY or llm.anthropic_api_key)")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	maxTokens := int64(config.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.AnthropicAPIKey),
	)

	return &ClaudeScorer{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		temp:      config.Temperature,
		timeout:   common.ParseDuration(config.CallTimeout, 60*time.Second),
		logger:    logger,
	}, nil
}

// ModelName returns the model identifier this scorer calls
func (s *ClaudeScorer) ModelName() string {
	return s.model
}

// ScoreCandidate evaluates one resume against one job's requirements
func (s *ClaudeScorer) ScoreCandidate(ctx context.Context, resumeText string, job *models.Job, requirements string) (*interfaces.ScoreResult, error) {
	prompt := fmt.Sprintf(
		"JOB TITLE:\n%s\n\nLOCATION:\n%s, %s, %s\n\nWORK ARRANGEMENT:\n%s\n\nREQUIREMENTS:\n%s\n\nRESUME:\n%s",
		job.Title, job.Location.City, job.Location.State, job.Location.Country,
		job.WorkType, requirements, resumeText,
	)

	raw, err := s.complete(ctx, scoringSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		MatchScore      int                             `json:"match_score"`
		MatchSummary    string                          `json:"match_summary"`
		SkillsMatch     string                          `json:"skills_match"`
		ExperienceMatch string                          `json:"experience_match"`
		GapsIdentified  []string                        `json:"gaps_identified"`
		KeyRequirements []string                        `json:"key_requirements"`
		YearsAnalysis   map[string]interfaces.YearsEntry `json:"years_analysis"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, &models.DataError{Op: "llm.score", Err: fmt.Errorf("unparseable model response: %w", err)}
	}

	if parsed.MatchScore < 0 {
		parsed.MatchScore = 0
	}
	if parsed.MatchScore > 100 {
		parsed.MatchScore = 100
	}

	return &interfaces.ScoreResult{
		Score:           parsed.MatchScore,
		Summary:         strings.TrimSpace(parsed.MatchSummary),
		SkillsMatch:     strings.TrimSpace(parsed.SkillsMatch),
		ExperienceMatch: strings.TrimSpace(parsed.ExperienceMatch),
		Gaps:            parsed.GapsIdentified,
		KeyRequirements: parsed.KeyRequirements,
		YearsAnalysis:   parsed.YearsAnalysis,
	}, nil
}

// ExtractRequirements condenses a job description into screening requirements
func (s *ClaudeScorer) ExtractRequirements(ctx context.Context, jobTitle, descriptionHTML string) (string, error) {
	prompt := fmt.Sprintf("JOB TITLE:\n%s\n\nDESCRIPTION:\n%s", jobTitle, descriptionHTML)

	out, err := s.complete(ctx, extractionSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &models.DataError{Op: "llm.extract", Err: fmt.Errorf("empty requirements from model")}
	}
	return out, nil
}

func (s *ClaudeScorer) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if s.temp > 0 {
		params.Temperature = anthropic.Float(float64(s.temp))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", models.Transient("llm.claude", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", &models.DataError{Op: "llm.claude", Err: fmt.Errorf("no text content in response")}
	}
	return out.String(), nil
}

// extractJSON strips markdown code fences and leading prose so the JSON
// object can be unmarshaled even when the model wraps it.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}
