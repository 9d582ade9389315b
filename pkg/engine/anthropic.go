package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ramsred/agentic-platform-mcp/pkg/conversation"
	"github.com/ramsred/agentic-platform-mcp/pkg/protocol"
)

// AnthropicEngine plans with Anthropic Claude
type AnthropicEngine struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicEngine creates an Anthropic-backed engine
func NewAnthropicEngine(apiKey, model string, maxTokens int) *AnthropicEngine {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicEngine{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Name returns the engine identifier
func (e *AnthropicEngine) Name() string {
	return "anthropic"
}

// Plan implements Engine
func (e *AnthropicEngine) Plan(ctx context.Context, messages []conversation.Message, caps map[string]protocol.CapabilitySet) (*PlanningOutput, error) {
	var system string
	anthropicMessages := []anthropic.MessageParam{}

	for _, msg := range messages {
		switch msg.Role {
		case conversation.RoleSystem:
			system = msg.Content
		case conversation.RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case conversation.RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.InvocationID, tc.Arguments, tc.Name))
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case conversation.RoleTool:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.InvocationID, msg.Content, false),
			))
		}
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		Messages:  anthropicMessages,
		MaxTokens: int64(e.maxTokens),
	}

	if system != "" {
		reqParams.System = []anthropic.TextBlockParam{{Text: system}}
	}

	schemas := buildToolSchemas(caps)
	if len(schemas) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(schemas))
		for _, s := range schemas {
			toolParam := anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: s.InputSchema["properties"],
				},
			}
			if required, ok := s.InputSchema["required"].([]interface{}); ok {
				strs := make([]string, 0, len(required))
				for _, v := range required {
					if str, ok := v.(string); ok {
						strs = append(strs, str)
					}
				}
				toolParam.InputSchema.Required = strs
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		reqParams.Tools = tools
	}

	response, err := e.client.Messages.New(ctx, reqParams)
	if err != nil {
		if IsRetryableError(err) {
			return nil, &UnavailableError{Err: err}
		}
		return nil, err
	}

	content := ""
	var calls []rawToolCall
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, &ProtocolError{Reason: fmt.Sprintf("unparseable tool input for %s: %v", b.Name, err)}
			}
			calls = append(calls, rawToolCall{Name: b.Name, Arguments: args})
		}
	}

	usage := &TokenUsage{
		InputTokens:  int(response.Usage.InputTokens),
		OutputTokens: int(response.Usage.OutputTokens),
	}

	return parseOutput(content, calls, usage)
}
