package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz"
	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
	"github.com/ovo-bot/ovo-agent/internal/infra/clock"
)

const (
	userTopKeywords = 8
	userFactLimit   = 20
)

// LoopView is the read-only part of the agent loop the admin surface uses
type LoopView interface {
	Stats() LoopStats
	IsGroupBusy(groupID string) bool
	IsProactivePending(groupID string) bool
}

// GroupView is one group as shown to operators
type GroupView struct {
	GroupID          string     `json:"group_id"`
	Enabled          bool       `json:"enabled"`
	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	LastProactiveAt  *time.Time `json:"last_proactive_at,omitempty"`
	RecentCount      int        `json:"recent_count"`
	Participants     int        `json:"participants"`
	Topic            string     `json:"topic,omitempty"`
	TopKeywords      []string   `json:"top_keywords,omitempty"`
	Busy             bool       `json:"busy"`
	ProactivePending bool       `json:"proactive_pending"`
}

// UserView is one user's live state plus stored facts
type UserView struct {
	UserID          string     `json:"user_id"`
	DisplayName     string     `json:"display_name,omitempty"`
	TotalMessages   int        `json:"total_messages"`
	RepliedMessages int        `json:"replied_messages"`
	Emotion         string     `json:"emotion,omitempty"`
	EmotionScore    float64    `json:"emotion_score"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	TopKeywords     []string   `json:"top_keywords,omitempty"`
	Facts           []string   `json:"facts,omitempty"`
}

// Health is the health endpoint payload
type Health struct {
	Status string    `json:"status"`
	Loop   LoopStats `json:"loop"`
	Time   time.Time `json:"time"`
}

// AdminService exposes live state and group switches to operators
type AdminService struct {
	uc     *biz.Usecases
	groups repo.GroupRepo
	memory repo.MemoryRepo
	loop   LoopView
	clock  clock.Clock
}

// NewAdminService creates an admin service
func NewAdminService(uc *biz.Usecases, groups repo.GroupRepo, memory repo.MemoryRepo, loop LoopView, clk clock.Clock) *AdminService {
	return &AdminService{uc: uc, groups: groups, memory: memory, loop: loop, clock: clk}
}

// Health reports loop statistics
func (s *AdminService) Health() Health {
	return Health{Status: "ok", Loop: s.loop.Stats(), Time: s.clock.Now()}
}

// ListGroups merges live snapshots with stored settings, sorted by id
func (s *AdminService) ListGroups(ctx context.Context) ([]GroupView, error) {
	views := make(map[string]*GroupView)
	for _, snap := range s.uc.State.ListGroupSnapshots(s.clock.Now()) {
		views[snap.GroupID] = &GroupView{
			GroupID:         snap.GroupID,
			LastMessageAt:   timePtr(snap.LastMessageAt),
			LastProactiveAt: timePtr(snap.LastProactiveAt),
			RecentCount:     snap.RecentCount,
			Participants:    snap.Participants,
			Topic:           snap.Topic,
			TopKeywords:     snap.TopKeywords,
		}
	}

	settings, err := s.groups.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list group settings: %w", err)
	}
	for _, st := range settings {
		if _, ok := views[st.GroupID]; !ok {
			views[st.GroupID] = &GroupView{GroupID: st.GroupID}
		}
	}

	out := make([]GroupView, 0, len(views))
	for id, v := range views {
		enabled, err := s.groups.IsEnabled(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get group setting: %w", err)
		}
		v.Enabled = enabled
		v.Busy = s.loop.IsGroupBusy(id)
		v.ProactivePending = s.loop.IsProactivePending(id)
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

// SetGroupEnabled stores a group's enable flag
func (s *AdminService) SetGroupEnabled(ctx context.Context, groupID string, enabled bool) error {
	if groupID == "" {
		return fmt.Errorf("group id is required")
	}
	return s.groups.SetEnabled(ctx, groupID, enabled)
}

// GetUser returns a user's live state and stored facts. It returns
// repo.ErrNotFound when neither exists.
func (s *AdminService) GetUser(ctx context.Context, userID string) (*UserView, error) {
	view := &UserView{UserID: userID}

	live, ok := s.uc.State.UserState(userID)
	if ok {
		view.DisplayName = live.DisplayName
		view.TotalMessages = live.TotalMessages
		view.RepliedMessages = live.RepliedMessages
		view.Emotion = string(live.Emotion)
		view.EmotionScore = live.EmotionScore
		view.LastSeen = timePtr(live.LastSeen)
		view.TopKeywords = topKeywords(live.Keywords, userTopKeywords)
	}

	facts, err := s.memory.SearchFacts(ctx, userID, "", userFactLimit)
	if err != nil {
		return nil, fmt.Errorf("search facts: %w", err)
	}
	for _, f := range facts {
		view.Facts = append(view.Facts, f.Content)
	}

	if !ok && len(view.Facts) == 0 {
		return nil, repo.ErrNotFound
	}
	return view, nil
}

func topKeywords(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
