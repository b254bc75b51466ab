package data

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
)

const maxImageBytes = 8 << 20

// GeneratorConfig configures the OpenAI-compatible generator
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// openaiGenerator implements repo.Generator over an OpenAI-compatible API
type openaiGenerator struct {
	client *openai.Client
	cfg    GeneratorConfig
	logger *slog.Logger
}

// NewGenerator creates a generator. BaseURL may point at any
// OpenAI-compatible endpoint.
func NewGenerator(cfg GeneratorConfig, logger *slog.Logger) repo.Generator {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &openaiGenerator{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		logger: logger.With("component", "generator"),
	}
}

// Generate runs one chat completion. The seed pins sampling so retries of
// the same turn read alike.
func (g *openaiGenerator) Generate(ctx context.Context, req repo.GenerateRequest) (*domain.Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	seed := int(req.Seed)
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			g.userMessage(req),
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		Seed:        &seed,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return &domain.Generation{From: domain.FromFallback}, nil
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return &domain.Generation{From: domain.FromFallback}, nil
	}
	return &domain.Generation{Text: text, From: domain.FromLLM}, nil
}

// userMessage builds the user turn, attaching images as multi-part content
func (g *openaiGenerator) userMessage(req repo.GenerateRequest) openai.ChatCompletionMessage {
	var images []openai.ChatMessagePart
	for _, ref := range req.Visuals {
		url, err := imageURL(ref)
		if err != nil {
			g.logger.Warn("skipping image", "ref", ref, "error", err)
			continue
		}
		images = append(images, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
		})
	}
	if len(images) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt}
	}

	parts := append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Prompt}}, images...)
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

// imageURL returns ref unchanged when it is already a URL and inlines
// local files as data URLs
func imageURL(ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
		return ref, nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		return "", fmt.Errorf("stat image: %w", err)
	}
	if info.Size() > maxImageBytes {
		return "", fmt.Errorf("image too large: %d bytes", info.Size())
	}
	raw, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("not an image: %s", mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
