package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider using the Anthropic Claude API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider. The API key is read
// from the ANTHROPIC_API_KEY environment variable by default.
func NewAnthropicProvider() *AnthropicProvider {
	return &AnthropicProvider{client: anthropic.NewClient()}
}

// NewAnthropicProviderWithKey creates an Anthropic provider with an explicit
// API key.
func NewAnthropicProviderWithKey(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// Complete implements Provider.Complete for Anthropic.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	anthropicMessages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		anthropicMessages = append(anthropicMessages, convertMessage(msg))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  anthropicMessages,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}
	if len(req.Tools) > 0 {
		anthropicTools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			anthropicTools = append(anthropicTools, convertToolDefinition(tool))
		}
		params.Tools = anthropicTools
	}
	// JSONResponse has no native switch on this backend; the classifier
	// prompt itself demands a JSON-only reply.

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}
	return convertResponse(resp), nil
}

// Name implements Provider.Name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// convertMessage converts a Message to Anthropic's MessageParam. The
// Messages API has no system role inside the conversation, so system
// entries are carried as user messages.
func convertMessage(msg Message) anthropic.MessageParam {
	block := anthropic.NewTextBlock(msg.Content)
	if msg.Role == RoleAssistant {
		return anthropic.NewAssistantMessage(block)
	}
	return anthropic.NewUserMessage(block)
}

// convertToolDefinition converts a ToolDefinition to Anthropic's ToolParam.
func convertToolDefinition(tool ToolDefinition) anthropic.ToolUnionParam {
	properties := tool.InputSchema["properties"]
	required, _ := tool.InputSchema["required"].([]string)

	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		},
	}
}

// convertResponse converts Anthropic's Message to a Response.
func convertResponse(resp *anthropic.Message) *Response {
	response := &Response{}

	var textParts []string
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			response.ToolCalls = append(response.ToolCalls, ToolUseBlock{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	response.Content = strings.Join(textParts, "")

	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		response.StopReason = StopReasonToolUse
	case anthropic.StopReasonMaxTokens:
		response.StopReason = StopReasonMaxTokens
	default:
		response.StopReason = StopReasonEndTurn
	}
	return response
}
