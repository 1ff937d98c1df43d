package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockPlanner plans via the AWS Bedrock Converse API. Credentials
// come from the default AWS chain.
type BedrockPlanner struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrockPlanner creates a planner for the given model id (default
// anthropic.claude-3-haiku-20240307-v1:0).
func NewBedrockPlanner(ctx context.Context, model string) (*BedrockPlanner, error) {
	if model == "" {
		model = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &BedrockPlanner{
		client: bedrockruntime.NewFromConfig(cfg),
		model:  model,
	}, nil
}

func (p *BedrockPlanner) Name() string { return "bedrock" }

func (p *BedrockPlanner) Plan(ctx context.Context, query string, capabilities map[string][]string) (*Plan, error) {
	if len(capabilities) == 0 {
		return nil, ErrNoAgentsKnown
	}
	out, err := p.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.model),
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: PlanPrompt(query, capabilities)},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock plan request: %w", err)
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return nil, fmt.Errorf("bedrock returned no content")
	}
	text, ok := msg.Value.Content[0].(*types.ContentBlockMemberText)
	if !ok {
		return nil, fmt.Errorf("bedrock returned non-text content")
	}
	return ParsePlan(text.Value)
}
