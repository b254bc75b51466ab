package service

import (
	"context"
	"testing"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
)

func seedGroup(f *loopFixture, groupID string, users int) {
	for i := 0; i < users; i++ {
		f.uc.State.RecordIncoming(&domain.ChatEvent{
			Scope:   domain.ScopeGroup,
			GroupID: groupID,
			UserID:  "ou_" + string(rune('a'+i)),
			Text:    "今天吃什么",
			Time:    f.clock.Now(),
		})
	}
}

func TestProactiveRunner_Tick(t *testing.T) {
	f := defaultLoopFixture()
	runner := NewProactiveRunner(ProactiveRunnerConfig{Enabled: true, Interval: time.Minute}, f.uc, f.groups, f.loop, f.clock, testLogger())

	seedGroup(f, "oc_group", 2)
	seedGroup(f, "oc_disabled", 2)

	if n := runner.Tick(context.Background()); n != 0 {
		t.Fatalf("Expected no candidates while the group is active, got %d", n)
	}

	f.clock.Advance(time.Hour)
	if n := runner.Tick(context.Background()); n != 1 {
		t.Fatalf("Expected 1 candidate after an hour of silence, got %d", n)
	}
	if n := runner.Tick(context.Background()); n != 0 {
		t.Errorf("Expected the pending group skipped on the next tick, got %d", n)
	}

	f.drain()
	sent := f.messages.messages()
	if len(sent) != 1 || sent[0].GroupID != "oc_group" {
		t.Fatalf("Expected one proactive message to the enabled group, got %+v", sent)
	}

	if n := runner.Tick(context.Background()); n != 0 {
		t.Errorf("Expected min gap to block another proactive message, got %d", n)
	}
}

func TestProactiveRunner_StartTicksOnClock(t *testing.T) {
	f := defaultLoopFixture()
	runner := NewProactiveRunner(ProactiveRunnerConfig{Enabled: true, Interval: time.Minute}, f.uc, f.groups, f.loop, f.clock, testLogger())

	seedGroup(f, "oc_group", 1)
	f.clock.Advance(time.Hour)

	runner.Start(context.Background())
	defer runner.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for !f.loop.IsProactivePending("oc_group") && time.Now().Before(deadline) {
		f.clock.Advance(time.Minute)
		time.Sleep(5 * time.Millisecond)
	}
	if !f.loop.IsProactivePending("oc_group") {
		t.Error("Expected a tick to submit the idle group")
	}
}

func TestProactiveRunner_Disabled(t *testing.T) {
	f := defaultLoopFixture()
	runner := NewProactiveRunner(ProactiveRunnerConfig{Enabled: false, Interval: time.Minute}, f.uc, f.groups, f.loop, f.clock, testLogger())

	runner.Start(context.Background())
	runner.Stop()

	if f.clock.Pending() != 0 {
		t.Error("Expected no ticker registered when disabled")
	}
}
