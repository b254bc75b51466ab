package usecase

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
)

// Clock is the time source the tracker reads when events carry no timestamp
type Clock interface {
	Now() time.Time
}

// StateTrackerConfig contains state tracker configuration
type StateTrackerConfig struct {
	GroupWindow    time.Duration // Rolling window of group samples
	GroupWindowCap int           // Max samples kept per group
	UserKeywordCap int           // Max keywords kept per user
	TopicSize      int           // Keywords that make up a group topic
}

// DefaultStateTrackerConfig returns the default state tracker configuration
func DefaultStateTrackerConfig() StateTrackerConfig {
	return StateTrackerConfig{
		GroupWindow:    10 * time.Minute,
		GroupWindowCap: 80,
		UserKeywordCap: 40,
		TopicSize:      4,
	}
}

const (
	affinityHighRatio = 0.72
	affinityMidRatio  = 0.45
	affinityMinScore  = -0.2
	affinityMaxScore  = 0.35
	// Users need this many messages before affinity nudges willingness
	affinityWarmup     = 3
	affinityBoostScale = 0.35

	topicOverlapStep = 0.07
	topicOverlapCap  = 0.18

	heatBase = -0.04
	heatStep = 0.006
	heatMin  = -0.04
	heatMax  = 0.08

	emotionPositiveAt = 0.42
	emotionExcitedAt  = 0.22
	emotionNegativeAt = -0.38
)

// StateTracker keeps rolling per-user, per-group and per-session state.
// It is the only writer of that state; reads hand out copies.
type StateTracker struct {
	mu       sync.RWMutex
	cfg      StateTrackerConfig
	clock    Clock
	users    map[string]*domain.UserLiveState
	groups   map[string]*domain.GroupLiveState
	sessions map[string]*domain.SessionLiveState
}

// NewStateTracker creates a new state tracker
func NewStateTracker(cfg StateTrackerConfig, clock Clock) *StateTracker {
	return &StateTracker{
		cfg:      cfg,
		clock:    clock,
		users:    make(map[string]*domain.UserLiveState),
		groups:   make(map[string]*domain.GroupLiveState),
		sessions: make(map[string]*domain.SessionLiveState),
	}
}

// ========== Write Paths ==========

// RecordIncoming folds an inbound event into user, group and session state
func (t *StateTracker) RecordIncoming(event *domain.ChatEvent) {
	now := event.TimeOr(t.clock.Now())
	text := event.NormalizedText()
	keywords := ExtractKeywords(text)

	t.mu.Lock()
	defer t.mu.Unlock()

	user := t.userLocked(event.UserID)
	if event.SenderName != "" {
		user.DisplayName = event.SenderName
	}
	user.TotalMessages++
	user.LastSeen = now
	if text != "" {
		sample := ClassifyEmotion(text)
		user.EmotionScore = smoothEmotion(user.EmotionScore, sample)
		user.Emotion = emotionLabel(user.EmotionScore, sample.Question)
	}
	for _, kw := range keywords {
		user.Keywords[kw]++
	}
	t.trimUserKeywords(user, keywords)

	if event.IsGroup() {
		group := t.groupLocked(event.GroupID)
		group.LastMessageAt = now
		group.TotalMessages++
		group.Recent = append(pruneWindow(group.Recent, now, t.cfg.GroupWindow), domain.MessageSample{
			Text:     text,
			UserID:   event.UserID,
			At:       now,
			Keywords: keywords,
		})
		if over := len(group.Recent) - t.cfg.GroupWindowCap; t.cfg.GroupWindowCap > 0 && over > 0 {
			group.Recent = append([]domain.MessageSample(nil), group.Recent[over:]...)
		}
		if text != "" {
			group.TopKeywords = topKeywords(group.Recent, t.cfg.TopicSize)
			group.Topic = strings.Join(group.TopKeywords, " / ")
		}
	}

	session := t.sessionLocked(event.SessionKey())
	session.UpdatedAt = now
	session.LastUser = text
}

// RecordReply notes that the agent replied to event with text
func (t *StateTracker) RecordReply(event *domain.ChatEvent, text string) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	user := t.userLocked(event.UserID)
	if user.RepliedMessages < user.TotalMessages {
		user.RepliedMessages++
	}

	session := t.sessionLocked(event.SessionKey())
	session.UpdatedAt = now
	session.TurnCount++
	session.LastReply = text
}

// MarkProactiveSent stamps the last proactive send of a group
func (t *StateTracker) MarkProactiveSent(groupID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groupLocked(groupID).LastProactiveAt = at
}

// ========== Read Paths ==========

// GetPromptState derives the tiers and summaries used to plan and prompt a reply
func (t *StateTracker) GetPromptState(event *domain.ChatEvent) domain.PromptState {
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	state := domain.PromptState{
		AffinityTier: domain.TierLow,
		Emotion:      domain.EmotionNeutral,
		ActivityTier: domain.TierLow,
	}

	if user, ok := t.users[event.UserID]; ok {
		state.DisplayName = user.DisplayName
		ratio := replyRatio(user)
		state.AffinityTier = affinityTier(ratio)
		state.AffinityScore = affinityScore(ratio)
		state.Emotion = user.Emotion
		state.EmotionScore = user.EmotionScore
	}
	if state.DisplayName == "" {
		state.DisplayName = event.SenderName
	}

	if event.IsGroup() {
		if group, ok := t.groups[event.GroupID]; ok {
			recent, participants := windowStats(group.Recent, now, t.cfg.GroupWindow)
			state.RecentCount = recent
			state.Participants = participants
			state.ActivityTier = activityTier(recent, participants)
			state.Topic = group.Topic
			state.TopKeywords = append([]string(nil), group.TopKeywords...)
		}
	}
	return state
}

// GetTriggerHints returns the soft willingness boosts for an event
func (t *StateTracker) GetTriggerHints(event *domain.ChatEvent) domain.TriggerHints {
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	var hints domain.TriggerHints
	if user, ok := t.users[event.UserID]; ok && user.TotalMessages >= affinityWarmup {
		hints.AffinityBoost = affinityScore(replyRatio(user)) * affinityBoostScale
	}

	if !event.IsGroup() {
		return hints
	}
	group, ok := t.groups[event.GroupID]
	if !ok {
		return hints
	}

	overlap := 0
	top := make(map[string]bool, len(group.TopKeywords))
	for _, kw := range group.TopKeywords {
		top[kw] = true
	}
	for _, kw := range ExtractKeywords(event.NormalizedText()) {
		if top[kw] {
			overlap++
		}
	}
	hints.TopicBoost = clamp(float64(overlap)*topicOverlapStep, 0, topicOverlapCap)

	recent, _ := windowStats(group.Recent, now, t.cfg.GroupWindow)
	hints.HeatBoost = clamp(heatBase+heatStep*float64(recent), heatMin, heatMax)
	return hints
}

// ListGroupSnapshots returns copies of every known group as of now
func (t *StateTracker) ListGroupSnapshots(now time.Time) []domain.GroupSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshots := make([]domain.GroupSnapshot, 0, len(t.groups))
	for _, g := range t.groups {
		recent, participants := windowStats(g.Recent, now, t.cfg.GroupWindow)
		snapshots = append(snapshots, domain.GroupSnapshot{
			GroupID:         g.GroupID,
			LastMessageAt:   g.LastMessageAt,
			LastProactiveAt: g.LastProactiveAt,
			RecentCount:     recent,
			Participants:    participants,
			Topic:           g.Topic,
			TopKeywords:     append([]string(nil), g.TopKeywords...),
		})
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].GroupID < snapshots[j].GroupID })
	return snapshots
}

// UserState returns a copy of a user's state
func (t *StateTracker) UserState(userID string) (*domain.UserLiveState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	user, ok := t.users[userID]
	if !ok {
		return nil, false
	}
	return user.Clone(), true
}

// SessionState returns a copy of a session's diagnostics
func (t *StateTracker) SessionState(key string) (domain.SessionLiveState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[key]
	if !ok {
		return domain.SessionLiveState{}, false
	}
	return *s, true
}

// ========== Internal ==========

func (t *StateTracker) userLocked(userID string) *domain.UserLiveState {
	user, ok := t.users[userID]
	if !ok {
		user = &domain.UserLiveState{
			UserID:   userID,
			Emotion:  domain.EmotionNeutral,
			Keywords: make(map[string]int),
		}
		t.users[userID] = user
	}
	return user
}

func (t *StateTracker) groupLocked(groupID string) *domain.GroupLiveState {
	group, ok := t.groups[groupID]
	if !ok {
		group = &domain.GroupLiveState{GroupID: groupID}
		t.groups[groupID] = group
	}
	return group
}

func (t *StateTracker) sessionLocked(key string) *domain.SessionLiveState {
	s, ok := t.sessions[key]
	if !ok {
		s = &domain.SessionLiveState{Key: key}
		t.sessions[key] = s
	}
	return s
}

// trimUserKeywords evicts the least frequent keywords over the cap.
// Keywords from the current message are evicted last.
func (t *StateTracker) trimUserKeywords(user *domain.UserLiveState, current []string) {
	over := len(user.Keywords) - t.cfg.UserKeywordCap
	if t.cfg.UserKeywordCap <= 0 || over <= 0 {
		return
	}
	fresh := make(map[string]bool, len(current))
	for _, kw := range current {
		fresh[kw] = true
	}
	type entry struct {
		kw    string
		count int
		fresh bool
	}
	entries := make([]entry, 0, len(user.Keywords))
	for kw, n := range user.Keywords {
		entries = append(entries, entry{kw, n, fresh[kw]})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].fresh != entries[j].fresh {
			return !entries[i].fresh
		}
		if entries[i].count != entries[j].count {
			return entries[i].count < entries[j].count
		}
		return entries[i].kw < entries[j].kw
	})
	for _, e := range entries[:over] {
		delete(user.Keywords, e.kw)
	}
}

func pruneWindow(samples []domain.MessageSample, now time.Time, window time.Duration) []domain.MessageSample {
	cutoff := now.Add(-window)
	i := 0
	for i < len(samples) && samples[i].At.Before(cutoff) {
		i++
	}
	return samples[i:]
}

func windowStats(samples []domain.MessageSample, now time.Time, window time.Duration) (recent, participants int) {
	cutoff := now.Add(-window)
	users := make(map[string]bool)
	for _, s := range samples {
		if s.At.Before(cutoff) {
			continue
		}
		recent++
		users[s.UserID] = true
	}
	return recent, len(users)
}

// topKeywords ranks keywords by frequency across samples. Ties keep
// first-seen order.
func topKeywords(samples []domain.MessageSample, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, s := range samples {
		for _, kw := range s.Keywords {
			if counts[kw] == 0 {
				order = append(order, kw)
			}
			counts[kw]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	return order
}

func replyRatio(user *domain.UserLiveState) float64 {
	if user.TotalMessages == 0 {
		return 0
	}
	return float64(user.RepliedMessages) / float64(user.TotalMessages)
}

func affinityTier(ratio float64) domain.Tier {
	switch {
	case ratio >= affinityHighRatio:
		return domain.TierHigh
	case ratio >= affinityMidRatio:
		return domain.TierMid
	default:
		return domain.TierLow
	}
}

func affinityScore(ratio float64) float64 {
	return affinityMinScore + clamp01(ratio)*(affinityMaxScore-affinityMinScore)
}

func activityTier(recent, participants int) domain.Tier {
	switch {
	case recent >= 40 || participants >= 8:
		return domain.TierHigh
	case recent >= 18 || participants >= 4:
		return domain.TierMid
	default:
		return domain.TierLow
	}
}

func emotionLabel(score float64, question bool) domain.EmotionLabel {
	switch {
	case score >= emotionPositiveAt:
		return domain.EmotionPositive
	case score >= emotionExcitedAt:
		return domain.EmotionExcited
	case score <= emotionNegativeAt:
		return domain.EmotionNegative
	case question:
		return domain.EmotionCurious
	default:
		return domain.EmotionNeutral
	}
}
