package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoAgentsKnown is returned when the registry snapshot is empty.
var ErrNoAgentsKnown = errors.New("no agents registered")

// OpenAIPlanner plans via the OpenAI chat completion API.
type OpenAIPlanner struct {
	client *openai.Client
	model  string
}

// NewOpenAIPlanner creates a planner using the given API key and model
// (default gpt-4o-mini).
func NewOpenAIPlanner(apiKey, model string) (*OpenAIPlanner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIPlanner{client: openai.NewClient(apiKey), model: model}, nil
}

func (p *OpenAIPlanner) Name() string { return "openai" }

func (p *OpenAIPlanner) Plan(ctx context.Context, query string, capabilities map[string][]string) (*Plan, error) {
	if len(capabilities) == 0 {
		return nil, ErrNoAgentsKnown
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: PlanPrompt(query, capabilities)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai plan request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	return ParsePlan(resp.Choices[0].Message.Content)
}
