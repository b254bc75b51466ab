package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
	"github.com/ovo-bot/ovo-agent/internal/infra/clock"
	"github.com/ovo-bot/ovo-agent/internal/infra/feishu"
)

const (
	dedupeWindow = 5 * time.Minute
	memberTTL    = 10 * time.Minute
)

// FeishuClient is the inbound side of the Feishu client
type FeishuClient interface {
	OnMessage(handler feishu.MessageHandler)
	Start(ctx context.Context) error
	DownloadImage(ctx context.Context, messageID, imageKey string) (string, error)
	GetChatMembers(ctx context.Context, chatID string) ([]*feishu.ChatMember, error)
	IsOwnMessage(msgID string) bool
}

// EventHandler consumes normalized chat events
type EventHandler interface {
	HandleEvent(ctx context.Context, event *domain.ChatEvent) error
}

type memberCache struct {
	names     map[string]string
	fetchedAt time.Time
}

// FeishuServer turns Feishu messages into chat events
type FeishuServer struct {
	client  FeishuClient
	handler EventHandler
	clock   clock.Clock
	logger  *slog.Logger

	// Message deduplication cache
	seenMu sync.Mutex
	seen   map[string]time.Time // msgID -> first seen

	membersMu sync.Mutex
	members   map[string]*memberCache // chatID -> names
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(client FeishuClient, handler EventHandler, clk clock.Clock, logger *slog.Logger) *FeishuServer {
	return &FeishuServer{
		client:  client,
		handler: handler,
		clock:   clk,
		logger:  logger.With("component", "feishu-server"),
		seen:    make(map[string]time.Time),
		members: make(map[string]*memberCache),
	}
}

// Start registers the message handler and blocks on the Feishu connection
func (s *FeishuServer) Start(ctx context.Context) error {
	s.client.OnMessage(func(msg *feishu.Message) {
		s.handleMessage(ctx, msg)
	})
	return s.client.Start(ctx)
}

// handleMessage handles one Feishu message
func (s *FeishuServer) handleMessage(ctx context.Context, msg *feishu.Message) {
	if msg == nil || msg.Sender == nil || msg.Sender.SenderID == "" {
		return
	}
	if !s.markSeen(msg.MsgID) {
		s.logger.Debug("duplicate message ignored", "msg_id", msg.MsgID)
		return
	}

	event := s.toEvent(ctx, msg)
	s.logger.Debug("received message",
		"msg_id", msg.MsgID, "chat", msg.ChatID, "scope", event.Scope, "segments", len(event.Segments))

	if err := s.handler.HandleEvent(ctx, event); err != nil {
		s.logger.Warn("handle event failed", "msg_id", msg.MsgID, "error", err)
	}
}

// toEvent converts a Feishu message to a chat event
func (s *FeishuServer) toEvent(ctx context.Context, msg *feishu.Message) *domain.ChatEvent {
	event := &domain.ChatEvent{
		Scope:     domain.ScopeGroup,
		GroupID:   msg.ChatID,
		UserID:    msg.Sender.SenderID,
		MessageID: msg.MsgID,
		Text:      msg.Content,
		Time:      s.clock.Now(),
	}
	if msg.ChatType == "p2p" {
		event.Scope = domain.ScopePrivate
		event.GroupID = ""
	}
	if msg.CreateTime > 0 {
		event.Time = time.UnixMilli(msg.CreateTime)
	}
	if event.IsGroup() {
		event.SenderName = s.senderName(ctx, msg.ChatID, event.UserID)
	}

	if msg.MentionsBot {
		event.Segments = append(event.Segments, domain.Segment{Kind: domain.SegmentMention, UserID: domain.SelfID})
	}
	for _, id := range msg.Mentions {
		event.Segments = append(event.Segments, domain.Segment{Kind: domain.SegmentMention, UserID: id})
	}
	if msg.ParentID != "" {
		seg := domain.Segment{Kind: domain.SegmentReply, MessageID: msg.ParentID}
		if s.client.IsOwnMessage(msg.ParentID) {
			seg.UserID = domain.SelfID
		}
		event.Segments = append(event.Segments, seg)
	}
	for _, key := range msg.ImageKeys {
		// A failed download still counts as an attached image
		path, err := s.client.DownloadImage(ctx, msg.MsgID, key)
		if err != nil {
			s.logger.Warn("failed to download image", "key", key, "error", err)
		}
		event.Segments = append(event.Segments, domain.Segment{Kind: domain.SegmentImage, Ref: path})
	}
	return event
}

// senderName resolves a display name from the cached member list
func (s *FeishuServer) senderName(ctx context.Context, chatID, userID string) string {
	now := s.clock.Now()

	s.membersMu.Lock()
	cache, ok := s.members[chatID]
	if ok && now.Sub(cache.fetchedAt) < memberTTL {
		if name, found := cache.names[userID]; found {
			s.membersMu.Unlock()
			return name
		}
	}
	s.membersMu.Unlock()

	members, err := s.client.GetChatMembers(ctx, chatID)
	if err != nil {
		s.logger.Debug("failed to get chat members", "chat", chatID, "error", err)
		return ""
	}
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.MemberID] = m.Name
	}

	s.membersMu.Lock()
	s.members[chatID] = &memberCache{names: names, fetchedAt: now}
	s.membersMu.Unlock()
	return names[userID]
}

// markSeen records msgID and reports whether it was new
func (s *FeishuServer) markSeen(msgID string) bool {
	if msgID == "" {
		return true
	}
	now := s.clock.Now()

	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	if at, ok := s.seen[msgID]; ok && now.Sub(at) < dedupeWindow {
		return false
	}
	s.seen[msgID] = now

	cutoff := now.Add(-dedupeWindow)
	for id, ts := range s.seen {
		if ts.Before(cutoff) {
			delete(s.seen, id)
		}
	}
	return true
}
