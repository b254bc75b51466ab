package repo

import (
	"context"
	"errors"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
)

// ErrNotFound is returned when a stored record does not exist
var ErrNotFound = errors.New("not found")

// MemoryOptions controls how much long-term memory GetContext loads
type MemoryOptions struct {
	Mode         domain.MemoryMode
	MaxFacts     int
	MaxSummaries int
}

// MemoryRepo is the long-term memory store
type MemoryRepo interface {
	// GetContext loads the memory used to build a reply
	GetContext(ctx context.Context, event *domain.ChatEvent, sessionKey string, opts MemoryOptions) (*domain.MemoryContext, error)

	// RecordTurn stores a committed turn and any fact candidates in the
	// user text
	RecordTurn(ctx context.Context, event *domain.ChatEvent, sessionKey, userText, replyText string) error

	// SearchFacts finds facts about a user matching query
	SearchFacts(ctx context.Context, userID, query string, limit int) ([]*domain.Fact, error)
}
