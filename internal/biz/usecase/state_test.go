package usecase

import (
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestTracker() (*StateTracker, *testClock) {
	clk := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewStateTracker(DefaultStateTrackerConfig(), clk), clk
}

func msgAt(scope domain.Scope, group, user, text string, at time.Time) *domain.ChatEvent {
	return &domain.ChatEvent{Scope: scope, GroupID: group, UserID: user, Text: text, Time: at}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Hello world, 今天天气不错 the", []string{"hello", "world", "今天天气不错"}},
		{"go go golang Golang", []string{"golang"}},
		{"一二三四五六七八", []string{"一二三四五六", "七八"}},
		{"我们 什么", nil},
		{"", nil},
	}

	for _, tt := range tests {
		got := ExtractKeywords(tt.text)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExtractKeywords(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestClassifyEmotion(t *testing.T) {
	s := ClassifyEmotion("太开心了!")
	if !almostEqual(s.Score, 0.6) {
		t.Errorf("Expected 0.6, got %f", s.Score)
	}

	s = ClassifyEmotion("这是啥?")
	if s.Score != 0 || !s.Question {
		t.Errorf("Expected neutral question, got %+v", s)
	}

	s = ClassifyEmotion("烦 累 讨厌 崩溃 无语 郁闷 太难过了!!")
	if s.Score != -1 {
		t.Errorf("Expected score clipped to -1, got %f", s.Score)
	}
}

func TestRecordIncoming_EmotionSmoothing(t *testing.T) {
	tracker, clk := newTestTracker()

	tracker.RecordIncoming(msgAt(domain.ScopePrivate, "", "u1", "太开心了!", clk.now))
	user, _ := tracker.UserState("u1")
	if !almostEqual(user.EmotionScore, 0.192) {
		t.Errorf("Expected smoothed score 0.192, got %f", user.EmotionScore)
	}
	if user.Emotion != domain.EmotionNeutral {
		t.Errorf("Expected neutral after one sample, got %s", user.Emotion)
	}

	tracker.RecordIncoming(msgAt(domain.ScopePrivate, "", "u1", "太开心了!", clk.now))
	user, _ = tracker.UserState("u1")
	if user.Emotion != domain.EmotionExcited {
		t.Errorf("Expected excited after two samples (score %f), got %s", user.EmotionScore, user.Emotion)
	}

	for i := 0; i < 3; i++ {
		tracker.RecordIncoming(msgAt(domain.ScopePrivate, "", "u1", "太开心了!", clk.now))
	}
	user, _ = tracker.UserState("u1")
	if user.Emotion != domain.EmotionPositive {
		t.Errorf("Expected positive, got %s (score %f)", user.Emotion, user.EmotionScore)
	}
}

func TestRecordIncoming_NegativeAndCurious(t *testing.T) {
	tracker, clk := newTestTracker()

	for i := 0; i < 3; i++ {
		tracker.RecordIncoming(msgAt(domain.ScopePrivate, "", "sad", "好烦好累", clk.now))
	}
	user, _ := tracker.UserState("sad")
	if user.Emotion != domain.EmotionNegative {
		t.Errorf("Expected negative, got %s (score %f)", user.Emotion, user.EmotionScore)
	}

	tracker.RecordIncoming(msgAt(domain.ScopePrivate, "", "q", "这是啥?", clk.now))
	user, _ = tracker.UserState("q")
	if user.Emotion != domain.EmotionCurious {
		t.Errorf("Expected curious, got %s", user.Emotion)
	}
}

func TestRecordIncoming_UserKeywordCap(t *testing.T) {
	tracker, clk := newTestTracker()

	for i := 0; i < 45; i++ {
		tracker.RecordIncoming(msgAt(domain.ScopePrivate, "", "u1", fmt.Sprintf("keyword%c", 'a'+rune(i%26))+fmt.Sprintf("x%c", 'a'+rune(i/26)), clk.now))
	}
	user, _ := tracker.UserState("u1")
	if len(user.Keywords) > 40 {
		t.Errorf("Expected at most 40 keywords, got %d", len(user.Keywords))
	}
}

func TestRecordIncoming_GroupWindowAndTopic(t *testing.T) {
	tracker, clk := newTestTracker()
	start := clk.now

	tracker.RecordIncoming(msgAt(domain.ScopeGroup, "g1", "u1", "rust 生命周期", start))
	tracker.RecordIncoming(msgAt(domain.ScopeGroup, "g1", "u1", "golang 并发", start.Add(11*time.Minute)))
	tracker.RecordIncoming(msgAt(domain.ScopeGroup, "g1", "u2", "golang channel", start.Add(12*time.Minute)))
	tracker.RecordIncoming(msgAt(domain.ScopeGroup, "g1", "u3", "python", start.Add(13*time.Minute)))

	clk.now = start.Add(13 * time.Minute)
	snaps := tracker.ListGroupSnapshots(clk.now)
	if len(snaps) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(snaps))
	}
	g := snaps[0]
	if g.RecentCount != 3 {
		t.Errorf("Expected the 11-minute-old sample pruned, got %d recent", g.RecentCount)
	}
	if g.Participants != 3 {
		t.Errorf("Expected 3 participants, got %d", g.Participants)
	}
	want := []string{"golang", "并发", "channel", "python"}
	if !reflect.DeepEqual(g.TopKeywords, want) {
		t.Errorf("Expected top keywords %v, got %v", want, g.TopKeywords)
	}
	if g.Topic != "golang / 并发 / channel / python" {
		t.Errorf("Unexpected topic %q", g.Topic)
	}

	g.TopKeywords[0] = "mutated"
	again := tracker.ListGroupSnapshots(clk.now)
	if again[0].TopKeywords[0] != "golang" {
		t.Error("Snapshots must be copies")
	}
}

func TestRecordIncoming_GroupWindowCap(t *testing.T) {
	tracker, clk := newTestTracker()
	for i := 0; i < 100; i++ {
		tracker.RecordIncoming(msgAt(domain.ScopeGroup, "g1", "u1", "hello", clk.now.Add(time.Duration(i)*time.Second)))
	}
	snaps := tracker.ListGroupSnapshots(clk.now.Add(100 * time.Second))
	if snaps[0].RecentCount != 80 {
		t.Errorf("Expected window capped at 80, got %d", snaps[0].RecentCount)
	}
}

func TestGetPromptState_Affinity(t *testing.T) {
	tracker, clk := newTestTracker()
	e := msgAt(domain.ScopePrivate, "", "u1", "你好", clk.now)
	e.SenderName = "Alice"

	for i := 0; i < 4; i++ {
		tracker.RecordIncoming(e)
	}
	for i := 0; i < 3; i++ {
		tracker.RecordReply(e, "hi")
	}

	state := tracker.GetPromptState(e)
	if state.DisplayName != "Alice" {
		t.Errorf("Expected display name Alice, got %q", state.DisplayName)
	}
	if state.AffinityTier != domain.TierHigh {
		t.Errorf("Expected high affinity for 3/4, got %s", state.AffinityTier)
	}
	if !almostEqual(state.AffinityScore, -0.2+0.75*0.55) {
		t.Errorf("Unexpected affinity score %f", state.AffinityScore)
	}

	session, ok := tracker.SessionState(e.SessionKey())
	if !ok || session.TurnCount != 3 || session.LastReply != "hi" || session.LastUser != "你好" {
		t.Errorf("Unexpected session diagnostics %+v", session)
	}
}

func TestRecordReply_NeverExceedsTotal(t *testing.T) {
	tracker, clk := newTestTracker()
	e := msgAt(domain.ScopePrivate, "", "u1", "hi", clk.now)
	tracker.RecordIncoming(e)
	tracker.RecordReply(e, "a")
	tracker.RecordReply(e, "b")

	user, _ := tracker.UserState("u1")
	if user.RepliedMessages != 1 {
		t.Errorf("Expected replied count capped at 1, got %d", user.RepliedMessages)
	}
}

func TestGetPromptState_ActivityTier(t *testing.T) {
	tracker, clk := newTestTracker()
	for i := 0; i < 8; i++ {
		tracker.RecordIncoming(msgAt(domain.ScopeGroup, "g1", fmt.Sprintf("u%d", i), "hello", clk.now))
	}
	state := tracker.GetPromptState(msgAt(domain.ScopeGroup, "g1", "u0", "hello", clk.now))
	if state.ActivityTier != domain.TierHigh {
		t.Errorf("Expected high activity for 8 participants, got %s", state.ActivityTier)
	}

	tracker2, clk2 := newTestTracker()
	for i := 0; i < 18; i++ {
		tracker2.RecordIncoming(msgAt(domain.ScopeGroup, "g1", "u1", "hello", clk2.now))
	}
	state = tracker2.GetPromptState(msgAt(domain.ScopeGroup, "g1", "u1", "hello", clk2.now))
	if state.ActivityTier != domain.TierMid {
		t.Errorf("Expected mid activity for 18 messages, got %s", state.ActivityTier)
	}
}

func TestGetTriggerHints(t *testing.T) {
	tracker, clk := newTestTracker()

	newcomer := msgAt(domain.ScopeGroup, "g1", "new", "golang 并发 问题", clk.now)
	if hints := tracker.GetTriggerHints(newcomer); hints.Total() != 0 {
		t.Errorf("Expected no hints for unknown user and group, got %+v", hints)
	}

	tracker.RecordIncoming(msgAt(domain.ScopeGroup, "g1", "u1", "golang 并发", clk.now))
	tracker.RecordIncoming(msgAt(domain.ScopeGroup, "g1", "u2", "golang channel", clk.now))
	tracker.RecordIncoming(msgAt(domain.ScopeGroup, "g1", "u3", "python", clk.now))

	hints := tracker.GetTriggerHints(newcomer)
	if hints.AffinityBoost != 0 {
		t.Errorf("Expected zero affinity for a new user, got %f", hints.AffinityBoost)
	}
	if !almostEqual(hints.TopicBoost, 0.14) {
		t.Errorf("Expected topic boost 0.14 for two overlapping keywords, got %f", hints.TopicBoost)
	}
	if !almostEqual(hints.HeatBoost, -0.04+0.006*3) {
		t.Errorf("Unexpected heat boost %f", hints.HeatBoost)
	}

	for i := 0; i < 40; i++ {
		tracker.RecordIncoming(msgAt(domain.ScopeGroup, "g1", "u1", "golang 并发 channel python", clk.now))
	}
	hints = tracker.GetTriggerHints(msgAt(domain.ScopeGroup, "g1", "u9", "golang 并发 channel python", clk.now))
	if !almostEqual(hints.TopicBoost, 0.18) {
		t.Errorf("Expected topic boost capped at 0.18, got %f", hints.TopicBoost)
	}
	if !almostEqual(hints.HeatBoost, 0.08) {
		t.Errorf("Expected heat boost capped at 0.08, got %f", hints.HeatBoost)
	}
}

func TestMarkProactiveSent(t *testing.T) {
	tracker, clk := newTestTracker()
	tracker.MarkProactiveSent("g1", clk.now)

	snaps := tracker.ListGroupSnapshots(clk.now)
	if len(snaps) != 1 || !snaps[0].LastProactiveAt.Equal(clk.now) {
		t.Errorf("Expected proactive stamp, got %+v", snaps)
	}
}
