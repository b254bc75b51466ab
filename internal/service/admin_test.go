package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
)

func newTestAdmin(f *loopFixture) *AdminService {
	return NewAdminService(f.uc, f.groups, f.memory, f.loop, f.clock)
}

func TestAdminService_ListGroups(t *testing.T) {
	f := defaultLoopFixture()
	f.groups.enabled["oc_stored"] = false
	seedGroup(f, "oc_group", 2)
	seedGroup(f, "oc_live", 1)

	admin := newTestAdmin(f)
	f.loop.SubmitProactive(domain.ProactiveCandidate{GroupID: "oc_group", Reason: domain.ProactiveBubble})

	views, err := admin.ListGroups(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("Expected 3 groups, got %+v", views)
	}

	byID := map[string]GroupView{}
	for _, v := range views {
		byID[v.GroupID] = v
	}
	if views[0].GroupID != "oc_group" || views[2].GroupID != "oc_stored" {
		t.Errorf("Expected groups sorted by id, got %s..%s", views[0].GroupID, views[2].GroupID)
	}
	if g := byID["oc_group"]; !g.Enabled || g.RecentCount != 2 || g.Participants != 2 || !g.ProactivePending || g.LastMessageAt == nil {
		t.Errorf("Unexpected live group view %+v", g)
	}
	if g := byID["oc_live"]; g.Enabled {
		t.Errorf("Expected unknown group to use the repo default, got %+v", g)
	}
	if g := byID["oc_stored"]; g.Enabled || g.RecentCount != 0 || g.LastMessageAt != nil {
		t.Errorf("Expected stored-only group without live data, got %+v", g)
	}
}

func TestAdminService_SetGroupEnabled(t *testing.T) {
	f := defaultLoopFixture()
	admin := newTestAdmin(f)
	ctx := context.Background()

	if err := admin.SetGroupEnabled(ctx, "oc_group", false); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if on, _ := f.groups.IsEnabled(ctx, "oc_group"); on {
		t.Error("Expected group disabled")
	}
	if err := admin.SetGroupEnabled(ctx, "", true); err == nil {
		t.Error("Expected error for empty group id")
	}
}

func TestAdminService_GetUser(t *testing.T) {
	f := defaultLoopFixture()
	f.memory.facts = []*domain.Fact{{UserID: "ou_a", Content: "喜欢猫"}, {UserID: "ou_z", Content: "住在杭州"}}
	admin := newTestAdmin(f)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		f.uc.State.RecordIncoming(&domain.ChatEvent{
			Scope: domain.ScopeGroup, GroupID: "oc_group", UserID: "ou_a", SenderName: "Alice",
			Text: "部署流程又出问题了", Time: f.clock.Now(),
		})
		f.clock.Advance(time.Second)
	}

	user, err := admin.GetUser(ctx, "ou_a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if user.TotalMessages != 2 || user.DisplayName != "Alice" || user.LastSeen == nil {
		t.Errorf("Unexpected live fields %+v", user)
	}
	if len(user.Facts) != 1 || user.Facts[0] != "喜欢猫" {
		t.Errorf("Expected the user's facts only, got %v", user.Facts)
	}

	factsOnly, err := admin.GetUser(ctx, "ou_z")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if factsOnly.TotalMessages != 0 || len(factsOnly.Facts) != 1 {
		t.Errorf("Expected facts without live state, got %+v", factsOnly)
	}

	if _, err := admin.GetUser(ctx, "ou_nobody"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTopKeywords(t *testing.T) {
	got := topKeywords(map[string]int{"部署": 3, "猫": 1, "火锅": 3, "周末": 2}, 3)
	want := []string{"火锅", "部署", "周末"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
