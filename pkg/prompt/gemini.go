package prompt

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiEnhancer enhances prompts through the Gemini Developer API.
type GeminiEnhancer struct {
	client *genai.Client
	model  string
}

// NewGeminiEnhancer creates a GeminiEnhancer.
func NewGeminiEnhancer(apiKey, model string) (*GeminiEnhancer, error) {
	gc, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %v", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiEnhancer{client: gc, model: model}, nil
}

func (e *GeminiEnhancer) Enhance(ctx context.Context, prompt, guide string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: buildSystem(guide)}},
		},
		Temperature: genai.Ptr[float32](0.7),
	}

	res, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("failed to enhance prompt: %v", err)
	}

	out := strings.TrimSpace(extractText(res))
	if out == "" {
		return "", fmt.Errorf("failed to enhance prompt: empty response")
	}
	return out, nil
}

func extractText(res *genai.GenerateContentResponse) string {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, p := range res.Candidates[0].Content.Parts {
		if p.Text == "" {
			continue
		}
		if text == "" {
			text = p.Text
		} else {
			text += "\n" + p.Text
		}
	}
	return text
}
