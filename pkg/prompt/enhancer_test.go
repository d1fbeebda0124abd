package prompt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wavespeedai/wavebot-go/pkg/config"
)

func TestNewEnhancer_SelectsBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Enhancer.Provider = "openai"
	cfg.Enhancer.APIKey = "sk-test"
	e, err := NewEnhancer(cfg)
	if err != nil {
		t.Fatalf("NewEnhancer: %v", err)
	}
	if _, ok := e.(*OpenAIEnhancer); !ok {
		t.Fatalf("expected OpenAIEnhancer, got %T", e)
	}

	cfg.Enhancer.Provider = "weird"
	if _, err := NewEnhancer(cfg); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNewEnhancer_EnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	cfg := config.DefaultConfig()
	cfg.Enhancer.Provider = ""
	cfg.Enhancer.APIKey = ""
	if _, err := NewEnhancer(cfg); err != nil {
		t.Fatalf("env key not picked up: %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewEnhancer(cfg); err == nil {
		t.Fatalf("expected error without any key")
	}
}

func TestOpenAIEnhancer_RewritesPrompt(t *testing.T) {
	var gotSystem, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			switch m.Role {
			case "system":
				gotSystem = m.Content
			case "user":
				gotUser = m.Content
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"role": "assistant", "content": "  a red fox, golden hour, slow pan  "}},
			},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEnhancer("sk-test", srv.URL, "gpt-4o-mini")
	out, err := e.Enhance(context.Background(), "a fox", "Name concrete subjects.")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if out != "a red fox, golden hour, slow pan" {
		t.Fatalf("output not trimmed or wrong: %q", out)
	}
	if gotUser != "a fox" {
		t.Fatalf("user prompt not sent: %q", gotUser)
	}
	if !strings.Contains(gotSystem, "Name concrete subjects.") {
		t.Fatalf("card guide not included in system prompt: %q", gotSystem)
	}
}

func TestOpenAIEnhancer_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []map[string]interface{}{}})
	}))
	defer srv.Close()

	e := NewOpenAIEnhancer("sk-test", srv.URL, "")
	if _, err := e.Enhance(context.Background(), "a fox", ""); err == nil {
		t.Fatalf("expected error on empty response")
	}
}

func TestBuildSystem(t *testing.T) {
	if got := buildSystem(""); got != systemPrompt {
		t.Fatalf("empty guide must not change the system prompt")
	}
	if got := buildSystem("  "); got != systemPrompt {
		t.Fatalf("blank guide must not change the system prompt")
	}
	if got := buildSystem("tips"); !strings.HasSuffix(got, "tips") {
		t.Fatalf("guide not appended: %q", got)
	}
}
