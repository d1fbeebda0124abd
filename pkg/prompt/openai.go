package prompt

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEnhancer enhances prompts through an OpenAI-compatible chat endpoint.
type OpenAIEnhancer struct {
	client *openai.Client
	model  string
}

// NewOpenAIEnhancer creates an OpenAIEnhancer. An empty apiBase targets the
// OpenAI API; compatible endpoints pass their own base URL.
func NewOpenAIEnhancer(apiKey, apiBase, model string) *OpenAIEnhancer {
	clientCfg := openai.DefaultConfig(apiKey)
	if apiBase != "" {
		clientCfg.BaseURL = apiBase
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIEnhancer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

func (e *OpenAIEnhancer) Enhance(ctx context.Context, prompt, guide string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystem(guide)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to enhance prompt: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("failed to enhance prompt: empty response")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("failed to enhance prompt: empty response")
	}
	return out, nil
}
