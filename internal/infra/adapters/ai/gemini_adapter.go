package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/infra/metrics"
)

var (
	_ adapter.Classifier    = (*GeminiAdapter)(nil)
	_ adapter.EventDetector = (*GeminiAdapter)(nil)
)

// GeminiAdapter classifies and detects events with Gemini. It has no transcription.
type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	budget       *TokenBudget
	log          *zerolog.Logger
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxPromptTokens int, logger *zerolog.Logger) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	l := logger.With().Str("component", "gemini").Logger()
	// Gemini tokenizes differently; cl100k is close enough for a budget
	return &GeminiAdapter{client: c, defaultModel: defaultModel, budget: NewTokenBudget("gpt-4", maxPromptTokens, &l), log: &l}, nil
}

func (g *GeminiAdapter) Categorize(ctx context.Context, content string, cctx adapter.ClassificationContext) (adapter.Classification, error) {
	reply, err := g.generate(ctx, "gemini_classify", classifySystem(), classifyUser(content, cctx, g.budget))
	if err != nil {
		return adapter.Classification{}, err
	}
	return parseClassification(reply)
}

func (g *GeminiAdapter) DetectEvent(ctx context.Context, content string, ref adapter.EventReference) (model.CalendarEventSuggestion, error) {
	reply, err := g.generate(ctx, "gemini_detect", detectSystemPrompt, detectUser(content, ref, g.budget))
	if err != nil {
		return model.CalendarEventSuggestion{}, err
	}
	return parseSuggestion(reply)
}

func (g *GeminiAdapter) generate(ctx context.Context, collab, system, user string) (string, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.defaultModel, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
	})
	metrics.ObserveExternalCall(collab, time.Since(start), err == nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", classifyStatus("gemini", apiErr.Code, err)
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	if resp != nil && resp.UsageMetadata != nil {
		metrics.AddPromptTokens("gemini", g.defaultModel, int(resp.UsageMetadata.PromptTokenCount))
	}
	if resp == nil {
		return "", errEmptyReply
	}
	return resp.Text(), nil
}
