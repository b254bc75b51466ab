package domain

import "time"

// EmotionLabel is the smoothed emotion of a user
type EmotionLabel string

const (
	EmotionNeutral  EmotionLabel = "neutral"
	EmotionPositive EmotionLabel = "positive"
	EmotionExcited  EmotionLabel = "excited"
	EmotionNegative EmotionLabel = "negative"
	EmotionCurious  EmotionLabel = "curious"
)

// Tier is a coarse low/mid/high level
type Tier string

const (
	TierLow  Tier = "low"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
)

// UserLiveState is the rolling state of one user
type UserLiveState struct {
	UserID          string
	DisplayName     string
	TotalMessages   int
	RepliedMessages int
	Emotion         EmotionLabel
	EmotionScore    float64
	LastSeen        time.Time
	Keywords        map[string]int
}

// Clone returns a deep copy
func (u *UserLiveState) Clone() *UserLiveState {
	c := *u
	c.Keywords = make(map[string]int, len(u.Keywords))
	for k, v := range u.Keywords {
		c.Keywords[k] = v
	}
	return &c
}

// MessageSample is one entry in a group's rolling window
type MessageSample struct {
	Text     string
	UserID   string
	At       time.Time
	Keywords []string
}

// GroupLiveState is the rolling state of one group
type GroupLiveState struct {
	GroupID         string
	LastMessageAt   time.Time
	TotalMessages   int
	Recent          []MessageSample
	Topic           string
	TopKeywords     []string
	LastProactiveAt time.Time
}

// SessionLiveState holds light per-session diagnostics
type SessionLiveState struct {
	Key       string
	UpdatedAt time.Time
	TurnCount int
	LastUser  string
	LastReply string
}

// GroupSnapshot is a point-in-time copy of a group for proactive selection
type GroupSnapshot struct {
	GroupID         string
	LastMessageAt   time.Time
	LastProactiveAt time.Time
	RecentCount     int
	Participants    int
	Topic           string
	TopKeywords     []string
}

// PromptState is what the planner and prompt builder read about a turn
type PromptState struct {
	DisplayName   string
	AffinityTier  Tier
	AffinityScore float64
	Emotion       EmotionLabel
	EmotionScore  float64
	ActivityTier  Tier
	RecentCount   int
	Participants  int
	Topic         string
	TopKeywords   []string
}
