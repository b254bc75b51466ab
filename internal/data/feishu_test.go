package data

import (
	"context"
	"errors"
	"testing"
)

type mockFeishuClient struct {
	calls []string
	err   error
}

func (m *mockFeishuClient) SendText(ctx context.Context, chatID, text string) error {
	m.calls = append(m.calls, "send:"+chatID+":"+text)
	return m.err
}

func (m *mockFeishuClient) SendTextToUser(ctx context.Context, openID, text string) error {
	m.calls = append(m.calls, "user:"+openID+":"+text)
	return m.err
}

func (m *mockFeishuClient) ReplyText(ctx context.Context, messageID, text string) error {
	m.calls = append(m.calls, "reply:"+messageID+":"+text)
	return m.err
}

func TestFeishuRepo_Routing(t *testing.T) {
	client := &mockFeishuClient{}
	messages := NewFeishuRepo(client, 0, 0)
	ctx := context.Background()

	if err := messages.SendGroupText(ctx, "oc_group", "hi", ""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := messages.SendGroupText(ctx, "oc_group", "quoted", "om_1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := messages.SendPrivateText(ctx, "ou_alice", "dm"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []string{"send:oc_group:hi", "reply:om_1:quoted", "user:ou_alice:dm"}
	if len(client.calls) != len(want) {
		t.Fatalf("Expected %d calls, got %v", len(want), client.calls)
	}
	for i := range want {
		if client.calls[i] != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], client.calls[i])
		}
	}
}

func TestFeishuRepo_Throttle(t *testing.T) {
	client := &mockFeishuClient{}
	messages := NewFeishuRepo(client, 0.001, 1)

	if err := messages.SendGroupText(context.Background(), "oc_group", "first", ""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := messages.SendPrivateText(ctx, "ou_alice", "second"); err == nil {
		t.Error("Expected throttled send to fail on a cancelled context")
	}
	if len(client.calls) != 1 {
		t.Errorf("Expected only the first send to reach the client, got %v", client.calls)
	}
}

func TestFeishuRepo_PropagatesErrors(t *testing.T) {
	client := &mockFeishuClient{err: errors.New("boom")}
	messages := NewFeishuRepo(client, 0, 0)

	if err := messages.SendGroupText(context.Background(), "oc_group", "hi", ""); err == nil {
		t.Error("Expected client error")
	}
}
