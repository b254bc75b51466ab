package data

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// completionServer answers chat completions with content and records the
// last request body
func completionServer(t *testing.T, content string, last *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
		*last = body

		choices := []map[string]any{}
		if content != "-" {
			choices = append(choices, map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"model":   "test-model",
			"choices": choices,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerator_Generate(t *testing.T) {
	var last map[string]any
	srv := completionServer(t, "  你好呀～ ", &last)
	gen := NewGenerator(GeneratorConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"}, testLogger())

	out, err := gen.Generate(context.Background(), repo.GenerateRequest{System: "sys", Prompt: "hi", Seed: 42})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Text != "你好呀～" || out.From != domain.FromLLM {
		t.Errorf("Unexpected generation %+v", out)
	}
	if last["seed"] != float64(42) || last["model"] != "test-model" {
		t.Errorf("Expected seed and model forwarded, got %v", last)
	}
	msgs, _ := last["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("Expected system and user messages, got %v", last["messages"])
	}
}

func TestGenerator_EmptyChoicesFallBack(t *testing.T) {
	var last map[string]any
	srv := completionServer(t, "-", &last)
	gen := NewGenerator(GeneratorConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"}, testLogger())

	out, err := gen.Generate(context.Background(), repo.GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Text != "" || out.From != domain.FromFallback {
		t.Errorf("Expected fallback generation, got %+v", out)
	}
}

func TestGenerator_Visuals(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "a.png")
	// PNG signature is enough for content sniffing
	if err := os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n0000"), 0644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	text := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(text, []byte("hello"), 0644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var last map[string]any
	srv := completionServer(t, "看到了", &last)
	gen := NewGenerator(GeneratorConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"}, testLogger())

	_, err := gen.Generate(context.Background(), repo.GenerateRequest{
		Prompt:  "看图",
		Visuals: []string{png, "https://example.com/b.jpg", text, filepath.Join(dir, "missing.png")},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	msgs := last["messages"].([]any)
	user := msgs[1].(map[string]any)
	parts, ok := user["content"].([]any)
	if !ok {
		t.Fatalf("Expected multi-part content, got %v", user["content"])
	}
	if len(parts) != 3 {
		t.Fatalf("Expected text and two images, got %d parts", len(parts))
	}
	first := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(first, "data:image/png;base64,") {
		t.Errorf("Expected local file inlined as data URL, got %s", first)
	}
	second := parts[2].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	if second != "https://example.com/b.jpg" {
		t.Errorf("Expected remote URL kept, got %s", second)
	}
}
