// Package prompt rewrites terse user prompts into ones generation models
// respond well to. Enhancement is best effort; callers fall back to the raw
// prompt when a backend fails.
package prompt

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wavespeedai/wavebot-go/pkg/config"
)

// Enhancer rewrites a user prompt. The guide carries model-specific prompt
// notes from the catalog card, possibly empty.
type Enhancer interface {
	Enhance(ctx context.Context, prompt, guide string) (string, error)
}

const systemPrompt = "You rewrite prompts for AI image and video generation models. " +
	"Expand the user's prompt with concrete visual detail: subject, setting, lighting, " +
	"camera and style. Keep the user's intent and language. " +
	"Return only the rewritten prompt with no commentary."

func buildSystem(guide string) string {
	if strings.TrimSpace(guide) == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\nNotes for the target model:\n" + guide
}

// NewEnhancer creates the configured enhancer backend.
func NewEnhancer(cfg *config.Config) (Enhancer, error) {
	ec := cfg.Enhancer

	// Helper to check env if config is empty
	checkEnv := func(cfgVal, envKey string) string {
		if cfgVal != "" {
			return cfgVal
		}
		return os.Getenv(envKey)
	}

	switch strings.ToLower(ec.Provider) {
	case "", "openai":
		apiKey := checkEnv(ec.APIKey, "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("no API key configured for the prompt enhancer")
		}
		return NewOpenAIEnhancer(apiKey, ec.APIBase, ec.Model), nil
	case "gemini":
		apiKey := checkEnv(ec.APIKey, "GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("no API key configured for the prompt enhancer")
		}
		return NewGeminiEnhancer(apiKey, ec.Model)
	default:
		return nil, fmt.Errorf("unknown enhancer provider: %s", ec.Provider)
	}
}
