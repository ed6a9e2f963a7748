// Package llm adapts the turn-loop context to the OpenAI chat-completion
// API and normalizes the response into "final content" or "one tool call".
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/aisaturn/saturn-engine/saturn/contract"
)

const defaultModel = "gpt-4o-mini"

// Service wraps one chat-completion call. It never retries; provider
// failures are fatal to the current turn-loop run.
type Service struct {
	client      *openaisdk.Client
	model       string
	temperature float64
	maxTokens   int64
}

var _ contractx.CompletionService = (*Service)(nil)

// NewService builds the adapter for one agent profile's model settings.
func NewService(client *openaisdk.Client, profile *contractx.AgentProfile) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: openai client is required", contractx.ErrValidation)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	model := strings.TrimSpace(profile.Model.ModelName)
	if model == "" {
		model = defaultModel
	}

	// Temperature is taken verbatim: 0 is a valid (deterministic) setting.
	// The unset-column default lives where the profile record is loaded.
	return &Service{
		client:      client,
		model:       model,
		temperature: profile.Temperature,
		maxTokens:   profile.Model.MaxTokens,
	}, nil
}

// GenerateCompletion performs one completion over the full history. Exactly
// one of Content or ToolCall is populated on success; when the provider
// reports several simultaneous tool calls only the first is surfaced.
func (s *Service) GenerateCompletion(
	ctx context.Context,
	messages []contractx.ChatMessage,
	tools []contractx.ToolDefinition,
) (contractx.Completion, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:       s.model,
		Messages:    buildMessages(messages),
		Temperature: openaisdk.Float(s.temperature),
	}
	if s.maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(s.maxTokens)
	}
	if len(tools) > 0 {
		params.Tools = buildTools(tools)
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return contractx.Completion{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return contractx.Completion{}, fmt.Errorf("%w: no choices returned", contractx.ErrModelInvoke)
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		return contractx.Completion{
			ToolCall: &contractx.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			},
		}, nil
	}

	return contractx.Completion{Content: msg.Content}, nil
}

func buildMessages(messages []contractx.ChatMessage) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case contractx.RoleSystem:
			out = append(out, openaisdk.SystemMessage(m.Content))
		case contractx.RoleUser:
			out = append(out, openaisdk.UserMessage(m.Content))
		case contractx.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openaisdk.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openaisdk.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, openaisdk.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, openaisdk.ChatCompletionMessageParamUnion{
				OfAssistant: &openaisdk.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: calls,
				},
			})
		case contractx.RoleTool:
			out = append(out, openaisdk.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func buildTools(tools []contractx.ToolDefinition) []openaisdk.ChatCompletionToolParam {
	out := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openaisdk.ChatCompletionToolParam{
			Type: "function",
			Function: openaisdk.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openaisdk.String(t.Description),
				Parameters:  openaisdk.FunctionParameters(t.Parameters),
			},
		})
	}
	return out
}
