package data

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
)

// FeishuClient is the part of the Feishu client used for sending
type FeishuClient interface {
	SendText(ctx context.Context, chatID, text string) error
	SendTextToUser(ctx context.Context, openID, text string) error
	ReplyText(ctx context.Context, messageID, text string) error
}

// feishuRepo implements the outbound message repository with a shared
// send rate limit
type feishuRepo struct {
	client  FeishuClient
	limiter *rate.Limiter
}

// NewFeishuRepo creates a Feishu message repository. perSecond <= 0
// disables pacing.
func NewFeishuRepo(client FeishuClient, perSecond float64, burst int) repo.MessageRepo {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &feishuRepo{client: client, limiter: rate.NewLimiter(limit, burst)}
}

// SendGroupText sends text to a group, replying to quoteMsgID when set
func (r *feishuRepo) SendGroupText(ctx context.Context, groupID, text, quoteMsgID string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send throttled: %w", err)
	}
	if quoteMsgID != "" {
		return r.client.ReplyText(ctx, quoteMsgID, text)
	}
	return r.client.SendText(ctx, groupID, text)
}

// SendPrivateText sends text to a user
func (r *feishuRepo) SendPrivateText(ctx context.Context, userID, text string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send throttled: %w", err)
	}
	return r.client.SendTextToUser(ctx, userID, text)
}
