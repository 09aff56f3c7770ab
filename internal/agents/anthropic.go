package agents

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicMaxTokens bounds a single review response.
const anthropicMaxTokens = 8192

// AnthropicInvoker runs anthropic-kind agents against the Messages API.
type AnthropicInvoker struct {
	api *anthropic.Client
}

// NewAnthropicInvoker creates an invoker. An empty key falls back to
// the SDK's environment lookup.
func NewAnthropicInvoker(apiKey string) *AnthropicInvoker {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicInvoker{api: &client}
}

func (a *AnthropicInvoker) Invoke(ctx context.Context, agent Agent, prompt string) (string, error) {
	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(agent.Model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &TimeoutError{Agent: agent.Name}
		}
		return "", &ResponseError{Agent: agent.Name, Detail: err.Error()}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", &ResponseError{Agent: agent.Name, Detail: "empty response"}
	}
	return text, nil
}
