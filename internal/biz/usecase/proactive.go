package usecase

import (
	"sort"
	"strings"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
)

// ProactiveConfig contains proactive selection configuration
type ProactiveConfig struct {
	IdleMs            int64 // Quiet time before a cold-start nudge
	ContinueIdleMs    int64 // Quiet time before resuming a topic or bubbling
	MinGapMs          int64 // Minimum time between two proactive sends to one group
	BubbleIntervalMs  int64 // Time between presence bubbles
	MinRecentMessages int
	MaxPerTick        int
	Templates         map[domain.ProactiveReason][]string
}

// DefaultProactiveConfig returns the default proactive configuration
func DefaultProactiveConfig() ProactiveConfig {
	return ProactiveConfig{
		IdleMs:            int64(45 * time.Minute / time.Millisecond),
		ContinueIdleMs:    int64(4 * time.Minute / time.Millisecond),
		MinGapMs:          int64(90 * time.Minute / time.Millisecond),
		BubbleIntervalMs:  int64(6 * time.Hour / time.Millisecond),
		MinRecentMessages: 6,
		MaxPerTick:        2,
		Templates: map[domain.ProactiveReason][]string{
			domain.ProactiveColdStart: {
				"群里好安静呀，大家最近在忙什么？",
				"冒个泡～今天有什么好玩的事吗？",
				"有人在吗？来聊点什么吧",
			},
			domain.ProactiveContinue: {
				"刚才聊的「{{topic}}」还挺有意思的，后来怎么样了？",
				"关于「{{topic}}」，我还想多听听大家的看法～",
			},
			domain.ProactiveBubble: {
				"路过冒个泡，有事随时叫我～",
				"我还在哦，需要帮忙就 @ 我",
			},
		},
	}
}

// GroupGate is a read-only view of which groups are busy with replies or
// already have a proactive turn pending
type GroupGate interface {
	IsGroupBusy(groupID string) bool
	IsProactivePending(groupID string) bool
}

// ProactiveUsecase picks idle groups for unprompted messages
type ProactiveUsecase struct {
	cfg ProactiveConfig
}

// NewProactiveUsecase creates a new proactive usecase
func NewProactiveUsecase(cfg ProactiveConfig) *ProactiveUsecase {
	return &ProactiveUsecase{cfg: cfg}
}

// Select returns this tick's candidates, best first. gate may be nil.
func (uc *ProactiveUsecase) Select(snapshots []domain.GroupSnapshot, now time.Time, gate GroupGate) []domain.ProactiveCandidate {
	var candidates []domain.ProactiveCandidate
	for _, g := range snapshots {
		if gate != nil && (gate.IsGroupBusy(g.GroupID) || gate.IsProactivePending(g.GroupID)) {
			continue
		}
		if reason, ok := uc.classify(g, now); ok {
			candidates = append(candidates, domain.ProactiveCandidate{
				GroupID:     g.GroupID,
				Reason:      reason,
				Topic:       g.Topic,
				RecentCount: g.RecentCount,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].Reason.Rank(), candidates[j].Reason.Rank()
		if ri != rj {
			return ri < rj
		}
		return candidates[i].RecentCount > candidates[j].RecentCount
	})
	if uc.cfg.MaxPerTick > 0 && len(candidates) > uc.cfg.MaxPerTick {
		candidates = candidates[:uc.cfg.MaxPerTick]
	}
	return candidates
}

func (uc *ProactiveUsecase) classify(g domain.GroupSnapshot, now time.Time) (domain.ProactiveReason, bool) {
	sinceProactive := elapsedMs(now, g.LastProactiveAt)
	if sinceProactive < uc.cfg.MinGapMs {
		return "", false
	}
	idle := elapsedMs(now, g.LastMessageAt)

	switch {
	case idle >= uc.cfg.IdleMs && g.RecentCount < uc.cfg.MinRecentMessages:
		return domain.ProactiveColdStart, true
	case strings.TrimSpace(g.Topic) != "" && idle >= uc.cfg.ContinueIdleMs && g.RecentCount >= uc.cfg.MinRecentMessages:
		return domain.ProactiveContinue, true
	case idle >= uc.cfg.ContinueIdleMs && sinceProactive >= uc.cfg.BubbleIntervalMs:
		return domain.ProactiveBubble, true
	}
	return "", false
}

// RenderText picks the template for a candidate. The choice depends only
// on the candidate and now.
func (uc *ProactiveUsecase) RenderText(c domain.ProactiveCandidate, now time.Time) string {
	templates := uc.cfg.Templates[c.Reason]
	if len(templates) == 0 {
		templates = uc.cfg.Templates[domain.ProactiveBubble]
	}
	if len(templates) == 0 {
		return ""
	}
	idx := (uint64(now.UnixMilli()) + groupNumber(c.GroupID)) % uint64(len(templates))
	return strings.ReplaceAll(templates[idx], "{{topic}}", c.Topic)
}

// elapsedMs is the time since t, treating a zero t as infinitely long ago
func elapsedMs(now, t time.Time) int64 {
	if t.IsZero() {
		return 1<<63 - 1
	}
	return now.Sub(t).Milliseconds()
}
