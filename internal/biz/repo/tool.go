package repo

import (
	"context"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
)

// ToolRouter decides whether a tool should answer an event.
// Implementations must honor ctx cancellation.
type ToolRouter interface {
	Route(ctx context.Context, event *domain.ChatEvent) (domain.ToolRoute, error)
}
