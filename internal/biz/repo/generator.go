package repo

import (
	"context"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
)

// GenerateRequest is one text generation call
type GenerateRequest struct {
	System  string
	Prompt  string
	Visuals []string
	Seed    uint32
}

// Generator produces reply text
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*domain.Generation, error)
}
