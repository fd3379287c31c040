package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/vettra/internal/common"
	"github.com/ternarybob/vettra/internal/interfaces"
	"github.com/ternarybob/vettra/internal/models"
)

// embedDimension is the output dimensionality requested from the API
const embedDimension = 768

// GeminiEmbedder implements the Embedder interface against the Gemini API
type GeminiEmbedder struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  arbor.ILogger
}

var _ interfaces.Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder creates the embedding client
func NewGeminiEmbedder(ctx context.Context, config *common.LLMConfig, logger arbor.ILogger) (*GeminiEmbedder, error) {
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set GEMINI_API_KEY or llm.gemini_api_key)")
	}

	model := config.EmbeddingModel
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiEmbedder{
		client:  client,
		model:   model,
		timeout: common.ParseDuration(config.CallTimeout, 60*time.Second),
		logger:  logger,
	}, nil
}

// ModelName returns the embedding model identifier
func (e *GeminiEmbedder) ModelName() string {
	return e.model
}

// GenerateEmbedding returns the embedding vector for the given text
func (e *GeminiEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	outputDim := int32(embedDimension)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, embeddingConfig)
	if err != nil {
		return nil, models.Transient("llm.embed", err)
	}

	var vector []float32
	if result != nil && len(result.Embeddings) > 0 {
		vector = result.Embeddings[0].Values
	}
	if len(vector) == 0 {
		return nil, &models.DataError{Op: "llm.embed", Err: fmt.Errorf("no embedding returned from API")}
	}
	if len(vector) != embedDimension {
		return nil, &models.DataError{Op: "llm.embed", Err: fmt.Errorf("dimension mismatch: expected %d, got %d", embedDimension, len(vector))}
	}

	return vector, nil
}
