package data

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
)

func newTestMemory(t *testing.T) repo.MemoryRepo {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "data", "ovo.db"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mem, err := NewMemoryRepo(db)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return mem
}

func memEvent(text string, at time.Time) *domain.ChatEvent {
	return &domain.ChatEvent{
		Scope:      domain.ScopeGroup,
		GroupID:    "oc_group",
		UserID:     "ou_alice",
		SenderName: "Alice",
		Text:       text,
		Time:       at,
	}
}

func TestExtractFacts(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"我叫小明，我喜欢吃火锅", []string{"名字是小明", "喜欢吃火锅"}},
		{"我住在杭州。", []string{"住在杭州"}},
		{"My name is Alice, and I like hiking.", []string{"name is Alice", "likes hiking"}},
		{"今天天气不错", nil},
	}

	for _, tt := range tests {
		got := ExtractFacts(tt.text)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExtractFacts(%q): expected %v, got %v", tt.text, tt.want, got)
		}
	}
}

func TestMemoryRepo_RecordAndGetContext(t *testing.T) {
	ctx := context.Background()
	mem := newTestMemory(t)
	base := time.UnixMilli(1_700_000_000_000)

	if err := mem.RecordTurn(ctx, memEvent("我叫小明", base), "s1", "我叫小明", "你好小明"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := mem.RecordTurn(ctx, memEvent("我喜欢爬山", base.Add(time.Minute)), "s1", "我喜欢爬山", "爬山好呀"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// Duplicate facts are ignored
	if err := mem.RecordTurn(ctx, memEvent("我喜欢爬山", base.Add(2*time.Minute)), "s1", "我喜欢爬山", "记住啦"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	event := &domain.ChatEvent{Scope: domain.ScopeGroup, GroupID: "oc_group", UserID: "ou_alice"}
	got, err := mem.GetContext(ctx, event, "s1", repo.MemoryOptions{Mode: domain.MemoryFull, MaxFacts: 8, MaxSummaries: 3})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.UserDisplayName != "Alice" {
		t.Errorf("Expected stored display name Alice, got %q", got.UserDisplayName)
	}
	if !reflect.DeepEqual(got.LongTermFacts, []string{"喜欢爬山", "名字是小明"}) {
		t.Errorf("Expected newest facts first, got %v", got.LongTermFacts)
	}
	if len(got.ArchivedSummaries) != 0 {
		t.Errorf("Expected no summaries yet, got %v", got.ArchivedSummaries)
	}

	lite, err := mem.GetContext(ctx, event, "s1", repo.MemoryOptions{Mode: domain.MemoryLite, MaxFacts: 1})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(lite.LongTermFacts) != 1 {
		t.Errorf("Expected fact limit honored, got %v", lite.LongTermFacts)
	}
}

func TestMemoryRepo_ArchivesLongSessions(t *testing.T) {
	ctx := context.Background()
	mem := newTestMemory(t)
	base := time.UnixMilli(1_700_000_000_000)

	for i := 0; i < archiveThreshold+1; i++ {
		text := fmt.Sprintf("第%d条", i)
		if err := mem.RecordTurn(ctx, memEvent(text, base.Add(time.Duration(i)*time.Second)), "s1", text, "好"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	got, err := mem.GetContext(ctx, memEvent("", time.Time{}), "s1", repo.MemoryOptions{MaxSummaries: 3})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got.ArchivedSummaries) != 1 {
		t.Fatalf("Expected one summary, got %v", got.ArchivedSummaries)
	}
	want := fmt.Sprintf("之前聊过%d轮：第0条；第1条；第2条；第3条；第4条；第5条", archiveThreshold+1-keepTurns)
	if got.ArchivedSummaries[0] != want {
		t.Errorf("Expected summary %q, got %q", want, got.ArchivedSummaries[0])
	}

	other, err := mem.GetContext(ctx, memEvent("", time.Time{}), "s2", repo.MemoryOptions{MaxSummaries: 3})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(other.ArchivedSummaries) != 0 {
		t.Errorf("Expected summaries scoped to their session, got %v", other.ArchivedSummaries)
	}
}

func TestMemoryRepo_SearchFacts(t *testing.T) {
	ctx := context.Background()
	mem := newTestMemory(t)

	if err := mem.RecordTurn(ctx, memEvent("我叫小明，我喜欢猫", time.UnixMilli(1000)), "s1", "我叫小明，我喜欢猫", "好"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	facts, err := mem.SearchFacts(ctx, "ou_alice", "猫", 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(facts) != 1 || facts[0].Content != "喜欢猫" || facts[0].GroupID != "oc_group" {
		t.Errorf("Unexpected facts %+v", facts)
	}

	all, err := mem.SearchFacts(ctx, "ou_alice", "", 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected empty query to list all facts, got %d", len(all))
	}

	none, err := mem.SearchFacts(ctx, "ou_bob", "", 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected facts scoped to user, got %+v", none)
	}
}
