package agents

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIInvoker runs openai-kind agents against the Chat Completions
// API.
type OpenAIInvoker struct {
	api openai.Client
}

// NewOpenAIInvoker creates an invoker. An empty key falls back to the
// SDK's environment lookup.
func NewOpenAIInvoker(apiKey string) *OpenAIInvoker {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAIInvoker{api: openai.NewClient(opts...)}
}

func (o *OpenAIInvoker) Invoke(ctx context.Context, agent Agent, prompt string) (string, error) {
	resp, err := o.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(agent.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &TimeoutError{Agent: agent.Name}
		}
		return "", &ResponseError{Agent: agent.Name, Detail: err.Error()}
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &ResponseError{Agent: agent.Name, Detail: "empty response"}
	}
	return resp.Choices[0].Message.Content, nil
}
