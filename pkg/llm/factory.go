package llm

import (
	"context"
	"fmt"
)

// NewPlanner constructs a planner by provider name: "mock", "openai",
// "gemini", or "bedrock".
func NewPlanner(ctx context.Context, provider, model, apiKey string) (Planner, error) {
	switch provider {
	case "", "mock":
		return &MockPlanner{}, nil
	case "openai":
		return NewOpenAIPlanner(apiKey, model)
	case "gemini":
		return NewGeminiPlanner(ctx, apiKey, model)
	case "bedrock":
		return NewBedrockPlanner(ctx, model)
	default:
		return nil, fmt.Errorf("unknown planner provider: %s", provider)
	}
}
