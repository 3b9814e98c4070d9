package agent

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIBackend generates statements using Google's Gemini API.
type GenAIBackend struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewGenAIBackend creates a GenAI generation backend.
func NewGenAIBackend(apiKey, model string, temperature float64, maxTokens int) (*GenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("GenAI model is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIBackend{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Generate asks the model for a completion.
func (b *GenAIBackend) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	temp := float32(b.temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if b.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(b.maxTokens)
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := b.client.Models.GenerateContent(ctx,
		b.model,
		genai.Text(userPrompt),
		cfg,
	)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("GenAI returned no text content")
	}
	return text, nil
}

// Name returns the backend name.
func (b *GenAIBackend) Name() string {
	return fmt.Sprintf("genai:%s", b.model)
}
