package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ramsred/agentic-platform-mcp/pkg/conversation"
	"github.com/ramsred/agentic-platform-mcp/pkg/protocol"
)

// OpenAIEngine plans with OpenAI chat completions
type OpenAIEngine struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAIEngine creates an OpenAI-backed engine
func NewOpenAIEngine(apiKey, model string, maxTokens int) *OpenAIEngine {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &OpenAIEngine{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Name returns the engine identifier
func (e *OpenAIEngine) Name() string {
	return "openai"
}

// Plan implements Engine
func (e *OpenAIEngine) Plan(ctx context.Context, messages []conversation.Message, caps map[string]protocol.CapabilitySet) (*PlanningOutput, error) {
	oaMessages := []openai.ChatCompletionMessageParamUnion{}

	for _, msg := range messages {
		switch msg.Role {
		case conversation.RoleSystem:
			oaMessages = append(oaMessages, openai.SystemMessage(msg.Content))
		case conversation.RoleUser:
			oaMessages = append(oaMessages, openai.UserMessage(msg.Content))
		case conversation.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
				for _, tc := range msg.ToolCalls {
					argsJSON, err := json.Marshal(tc.Arguments)
					if err != nil {
						return nil, fmt.Errorf("failed to encode tool arguments: %w", err)
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   tc.InvocationID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      tc.Name,
							Arguments: string(argsJSON),
						},
					})
				}
				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				oaMessages = append(oaMessages, assistantMsg.ToParam())
			} else {
				oaMessages = append(oaMessages, openai.AssistantMessage(msg.Content))
			}
		case conversation.RoleTool:
			oaMessages = append(oaMessages, openai.ToolMessage(msg.InvocationID, msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(e.model),
		Messages:  oaMessages,
		MaxTokens: openai.Int(int64(e.maxTokens)),
	}

	schemas := buildToolSchemas(caps)
	if len(schemas) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(schemas))
		for _, s := range schemas {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        s.Name,
					Description: openai.String(s.Description),
					Parameters:  openai.FunctionParameters(s.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	response, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if IsRetryableError(err) {
			return nil, &UnavailableError{Err: err}
		}
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, &ProtocolError{Reason: "engine returned no choices"}
	}
	choice := response.Choices[0]

	var calls []rawToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("unparseable tool arguments for %s: %v", tc.Function.Name, err)}
		}
		calls = append(calls, rawToolCall{Name: tc.Function.Name, Arguments: args})
	}

	usage := &TokenUsage{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
	}

	return parseOutput(choice.Message.Content, calls, usage)
}
