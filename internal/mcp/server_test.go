package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
	"github.com/ovo-bot/ovo-agent/internal/service"
)

type mockAdmin struct {
	groups []service.GroupView
	users  map[string]*service.UserView
	set    map[string]bool
	err    error
}

func (m *mockAdmin) ListGroups(ctx context.Context) ([]service.GroupView, error) {
	return m.groups, m.err
}

func (m *mockAdmin) SetGroupEnabled(ctx context.Context, groupID string, enabled bool) error {
	if m.err != nil {
		return m.err
	}
	m.set[groupID] = enabled
	return nil
}

func (m *mockAdmin) GetUser(ctx context.Context, userID string) (*service.UserView, error) {
	if m.err != nil {
		return nil, m.err
	}
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	return nil, repo.ErrNotFound
}

// connect starts an in-memory session against the admin tools
func connect(t *testing.T, admin Admin) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	srv := NewServer(admin, "test")
	if _, err := srv.server.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// callTool calls a tool and decodes its text result into out
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("Tool %s failed: %+v", name, res.Content)
	}
	if len(res.Content) == 0 {
		t.Fatalf("Tool %s returned no content", name)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("Expected text content, got %T", res.Content[0])
	}
	if err := json.Unmarshal([]byte(text.Text), out); err != nil {
		t.Fatalf("Failed to parse tool output: %v", err)
	}
}

func TestListTools(t *testing.T) {
	session := connect(t, &mockAdmin{})

	res, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
		if tool.Description == "" {
			t.Errorf("Tool %s has empty description", tool.Name)
		}
	}
	for _, want := range []string{"list_groups", "set_group_enabled", "get_user_state"} {
		if !names[want] {
			t.Errorf("Expected tool %s registered", want)
		}
	}
}

func TestListGroupsTool(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session := connect(t, &mockAdmin{groups: []service.GroupView{
		{GroupID: "oc_1", Enabled: true, RecentCount: 5, Topic: "部署", LastMessageAt: &at, Busy: true},
	}})

	var out ListGroupsOutput
	callTool(t, session, "list_groups", map[string]any{}, &out)

	if len(out.Groups) != 1 {
		t.Fatalf("Expected 1 group, got %+v", out)
	}
	g := out.Groups[0]
	if g.GroupID != "oc_1" || !g.Enabled || g.RecentCount != 5 || !g.Busy {
		t.Errorf("Unexpected group %+v", g)
	}
	if g.LastMessageAt != "2026-03-01T12:00:00Z" {
		t.Errorf("Expected RFC3339 time, got %s", g.LastMessageAt)
	}
}

func TestSetGroupEnabledTool(t *testing.T) {
	admin := &mockAdmin{set: map[string]bool{}}
	session := connect(t, admin)

	var out SetGroupEnabledOutput
	callTool(t, session, "set_group_enabled", map[string]any{"group_id": "oc_1", "enabled": false}, &out)
	if !out.Success {
		t.Errorf("Expected success, got %+v", out)
	}
	if on, ok := admin.set["oc_1"]; !ok || on {
		t.Errorf("Expected oc_1 disabled, got %v", admin.set)
	}

	var missing SetGroupEnabledOutput
	callTool(t, session, "set_group_enabled", map[string]any{"group_id": "", "enabled": true}, &missing)
	if missing.Success || missing.Error == "" {
		t.Errorf("Expected error for empty group id, got %+v", missing)
	}
}

func TestGetUserStateTool(t *testing.T) {
	session := connect(t, &mockAdmin{users: map[string]*service.UserView{
		"ou_a": {UserID: "ou_a", DisplayName: "Alice", TotalMessages: 3, Facts: []string{"喜欢猫"}},
	}})

	var found GetUserStateOutput
	callTool(t, session, "get_user_state", map[string]any{"user_id": "ou_a"}, &found)
	if !found.Found || found.DisplayName != "Alice" || found.TotalMessages != 3 || len(found.Facts) != 1 {
		t.Errorf("Unexpected user state %+v", found)
	}

	var missing GetUserStateOutput
	callTool(t, session, "get_user_state", map[string]any{"user_id": "ou_x"}, &missing)
	if missing.Found || missing.Error != "" {
		t.Errorf("Expected not-found without error, got %+v", missing)
	}
}

func TestToolErrorsReported(t *testing.T) {
	session := connect(t, &mockAdmin{err: errors.New("db down")})

	var out ListGroupsOutput
	callTool(t, session, "list_groups", map[string]any{}, &out)
	if out.Error != "db down" {
		t.Errorf("Expected error surfaced in output, got %+v", out)
	}
}
