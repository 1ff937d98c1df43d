package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiPlanner plans via the Google Gen AI SDK (Gemini API backend).
type GeminiPlanner struct {
	client *genai.Client
	model  string
}

// NewGeminiPlanner creates a planner using the given API key and model
// (default gemini-2.0-flash).
func NewGeminiPlanner(ctx context.Context, apiKey, model string) (*GeminiPlanner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiPlanner{client: client, model: model}, nil
}

func (p *GeminiPlanner) Name() string { return "gemini" }

func (p *GeminiPlanner) Plan(ctx context.Context, query string, capabilities map[string][]string) (*Plan, error) {
	if len(capabilities) == 0 {
		return nil, ErrNoAgentsKnown
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
	}
	contents := genai.Text(PlanPrompt(query, capabilities))

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini plan request: %w", err)
	}
	return ParsePlan(resp.Text())
}
